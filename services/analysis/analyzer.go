package analysis

import (
	"context"
	"fmt"
	"strings"
)

type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
)

// ParseProvider accepts the configured provider name case-insensitively.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderOpenAI, ProviderOllama:
		return p, nil
	default:
		return "", fmt.Errorf("unknown analysis provider %q", s)
	}
}

// RequiresCredentials reports whether runs must resolve an API key first.
// Local models do not.
func (p Provider) RequiresCredentials() bool {
	return p == ProviderOpenAI
}

type Request struct {
	Prompt      string
	Criteria    string
	Image       []byte
	ContentType string
	APIKey      string
}

type Result struct {
	Text string
	// Matched is nil when the model output could not be read as a verdict.
	Matched *bool
	Raw     string
}

func (r *Result) Degraded() bool {
	return r.Matched == nil
}

type Analyzer interface {
	Provider() Provider
	Analyze(ctx context.Context, req Request) (*Result, error)
}
