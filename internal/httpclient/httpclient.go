// Package httpclient provides the standardized HTTP client construction
// used by the control-plane REST client, the static-info REST client and the
// chat webhook. The SSE stream uses its own http.Client. Grounded on the teacher's
// infrastructure/httputil package.
package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds standard client configuration used across all outbound
// clients, eliminating duplication of client-construction logic.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// MaxBodyBytes is not applied by NewClient; response bodies are capped
	// by the limit each caller passes to ReadAllStrict.
	MaxBodyBytes int64
}

// Defaults holds default values applied when Config leaves a field zero.
type Defaults struct {
	Timeout      time.Duration
	MaxBodyBytes int64
}

// DefaultDefaults returns standard default values.
func DefaultDefaults() Defaults {
	return Defaults{
		Timeout:      30 * time.Second,
		MaxBodyBytes: 1 << 20, // 1MiB
	}
}

// NewClient builds an *http.Client with the resolved timeout. Passing
// Config{Timeout: -1} yields a client with no overall deadline.
func NewClient(cfg Config, defaults Defaults) *http.Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaults.Timeout
	}
	if timeout < 0 {
		timeout = 0
	}
	return &http.Client{Timeout: timeout}
}

// NormalizeBaseURL trims whitespace/trailing slashes and validates that raw
// is an absolute http(s) URL with no userinfo, query, or fragment.
func NormalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", fmt.Errorf("base URL is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("base URL must be a valid absolute URL")
	}
	if parsed.User != nil {
		return "", fmt.Errorf("base URL must not include user info")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("base URL scheme must be http or https")
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", fmt.Errorf("base URL must not include query or fragment")
	}
	return trimmed, nil
}

// BodyTooLargeError is returned by ReadAllStrict when the body exceeds limit.
type BodyTooLargeError struct {
	Limit int64
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("body exceeds limit of %d bytes", e.Limit)
}

// ReadAllStrict reads the full body from r up to limit bytes, returning
// *BodyTooLargeError if it is exceeded.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	limited := io.LimitReader(r, limit+1)
	b, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, &BodyTooLargeError{Limit: limit}
	}
	return b, nil
}
