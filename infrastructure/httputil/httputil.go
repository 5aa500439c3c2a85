// Package httputil provides the request/response plumbing shared by every
// collaborator client in clients/: base URL normalization, bounded body
// reads, and client construction with sane timeout defaults.
package httputil

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// NormalizeBaseURL trims, validates, and returns a clean base URL plus its
// parsed form. It rejects user-info, query, and fragment components —
// collaborator base URLs are operational config, not tokens.
func NormalizeBaseURL(raw string) (string, *url.URL, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(raw), "/")
	if baseURL == "" {
		return "", nil, fmt.Errorf("base URL is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", nil, fmt.Errorf("base URL must be a valid URL")
	}
	if parsed.User != nil {
		return "", nil, fmt.Errorf("base URL must not include user info")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", nil, fmt.Errorf("base URL scheme must be http or https")
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", nil, fmt.Errorf("base URL must not include query or fragment")
	}

	return baseURL, parsed, nil
}

// BodyTooLargeError is returned by ReadAllStrict when the body exceeds the
// given limit.
type BodyTooLargeError struct {
	Limit int64
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("body exceeds limit of %d bytes", e.Limit)
}

// ReadAllWithLimit reads up to limit bytes from r, reporting whether the
// body was truncated.
func ReadAllWithLimit(r io.Reader, limit int64) (body []byte, truncated bool, err error) {
	if limit <= 0 {
		return nil, false, fmt.Errorf("limit must be positive")
	}
	if r == nil {
		return nil, false, fmt.Errorf("reader is nil")
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(b)) > limit {
		return b[:limit], true, nil
	}
	return b, false, nil
}

// ReadAllStrict reads the full body up to limit bytes, returning
// *BodyTooLargeError if it is exceeded.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	b, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, &BodyTooLargeError{Limit: limit}
	}
	return b, nil
}

// ClientConfig configures NewClient.
type ClientConfig struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient returns cfg.HTTPClient with its timeout overridden, or a fresh
// *http.Client with the given timeout if none was supplied.
func NewClient(cfg ClientConfig, defaultTimeout time.Duration) *http.Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		return &http.Client{Timeout: timeout}
	}
	clone := *cfg.HTTPClient
	clone.Timeout = timeout
	return &clone
}

// ResolveMaxBodyBytes returns cfg if positive, otherwise defaultBytes.
func ResolveMaxBodyBytes(cfg, defaultBytes int64) int64 {
	if cfg <= 0 {
		return defaultBytes
	}
	return cfg
}
