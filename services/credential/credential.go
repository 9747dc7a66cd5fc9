package credential

import (
	"context"
	"strings"
	"unicode"

	"pagewatch/pkg/errutil"
)

const invalidMessage = "credential is malformed"

var (
	ErrMissingCredential = errutil.Configuration("credential is not set", nil)
	ErrInvalidCredential = errutil.Configuration(invalidMessage, nil)
)

// Provider stores one API key per analysis provider name.
type Provider interface {
	Get(ctx context.Context, provider string) (string, error)
	Set(ctx context.Context, provider, key string) error
	Clear(ctx context.Context, provider string) error
}

// ValidateKey checks the key format only; it is never verified against the
// provider.
func ValidateKey(provider, key string) error {
	if key == "" {
		return ErrMissingCredential
	}
	if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return invalid(provider, "contains whitespace")
	}

	switch provider {
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return invalid(provider, "must start with sk-")
		}
		if len(key) < 20 {
			return invalid(provider, "is too short")
		}
	}
	return nil
}

// errors.Is(err, ErrInvalidCredential) holds for the result.
func invalid(provider, reason string) error {
	return errutil.Configuration(invalidMessage, nil,
		errutil.WithDetails(errutil.Detail{Field: provider, Message: reason}))
}
