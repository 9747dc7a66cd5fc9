package snapshot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pagewatch/pkg/errutil"

	"github.com/go-resty/resty/v2"
)

var (
	ErrEndpointNotConfigured = errutil.Configuration("snapshot endpoint is not configured", nil)
)

type Snapshot struct {
	URL         string
	ContentType string
	Data        []byte
	TakenAt     time.Time
}

type Capturer interface {
	Capture(ctx context.Context, url string) (*Snapshot, error)
}

// HTTPCapturer delegates rendering to a screenshot service that answers
// GET {endpoint}?url=<page> with the image bytes.
type HTTPCapturer struct {
	client   *resty.Client
	endpoint string
}

func NewHTTPCapturer(endpoint string, timeout time.Duration) *HTTPCapturer {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() >= http.StatusInternalServerError
		})
	return &HTTPCapturer{client: client, endpoint: endpoint}
}

func (c *HTTPCapturer) Capture(ctx context.Context, url string) (*Snapshot, error) {
	if c.endpoint == "" {
		return nil, ErrEndpointNotConfigured
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("url", url).
		SetHeader("Accept", "image/png,image/jpeg,image/*").
		Get(c.endpoint)
	if err != nil {
		return nil, errutil.Capture(fmt.Sprintf("capture %s", url), err)
	}
	if resp.IsError() {
		return nil, errutil.Capture(fmt.Sprintf("capture %s: screenshot service returned %d", url, resp.StatusCode()), nil)
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, errutil.Capture(fmt.Sprintf("capture %s: empty image", url), nil)
	}

	contentType := resp.Header().Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(body)
	}

	return &Snapshot{
		URL:         url,
		ContentType: contentType,
		Data:        body,
		TakenAt:     resp.ReceivedAt(),
	}, nil
}
