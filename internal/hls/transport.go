package hls

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

// HeaderMapTransport sets fixed headers (Referer, User-Agent, Cookie, ...) on
// every outgoing request. CDNs serving stream segments commonly reject
// requests that lack the headers the player page would send.
type HeaderMapTransport struct {
	Headers map[string]string
	Base    http.RoundTripper
}

func (t *HeaderMapTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if len(t.Headers) == 0 {
		return base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	return base.RoundTrip(req)
}

// LoadHeaders reads a JSON object of header names to values. An empty path
// yields no headers.
func LoadHeaders(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read headers file: %w", err)
	}

	var headers map[string]string
	if err := json.Unmarshal(data, &headers); err != nil {
		return nil, fmt.Errorf("parse headers file: %w", err)
	}

	return headers, nil
}
