package watch

import (
	"fmt"
	"net/url"
	"strings"

	"pagewatch/pkg/errutil"
)

// NormalizeURL trims the input and prefixes https:// when no scheme is given.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errutil.Validation("website_url is required", nil)
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", errutil.Validation("website_url is not a valid URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errutil.Validation(fmt.Sprintf("website_url scheme %q is not supported", u.Scheme), nil)
	}
	if u.Host == "" {
		return "", errutil.Validation("website_url has no host", nil)
	}
	return u.String(), nil
}

// BuildAnalysisPrompt derives the instruction sent with the snapshot. It must
// be regenerated whenever the criteria change.
func BuildAnalysisPrompt(criteria string) string {
	var b strings.Builder
	b.WriteString("You are monitoring a web page on behalf of a user. ")
	b.WriteString("Look at the attached screenshot and decide whether the following condition is true.\n\n")
	b.WriteString("Condition: ")
	b.WriteString(strings.TrimSpace(criteria))
	b.WriteString("\n\n")
	b.WriteString(`Respond with a single JSON object and nothing else: {"analysis": "<what you observed, one or two sentences>", "matched": true|false}`)
	return b.String()
}
