package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// ProviderError is an error object the provider reported in a successful response.
type ProviderError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *ProviderError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("provider error: %s", e.Message)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Type, e.Message)
}

// errorBodyTransport turns 2xx JSON responses that carry a top-level error object into a [*ProviderError].
// Some OpenAI-compatible gateways answer rate limits and upstream failures that way.
type errorBodyTransport struct {
	next http.RoundTripper
}

func (t *errorBodyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, err //nolint:wrapcheck // the round tripper is transparent.
	}
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType != "application/json" {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var envelope struct {
		Error *ProviderError `json:"error"`
	}
	if json.Unmarshal(body, &envelope) != nil || envelope.Error == nil {
		return resp, nil
	}
	if envelope.Error.Message == "" {
		envelope.Error.Message = "no message"
	}
	return nil, envelope.Error
}

// withErrorBodies returns a copy of client whose transport reports error objects in successful responses.
func withErrorBodies(client *http.Client) *http.Client {
	wrapped := &http.Client{} //nolint:exhaustruct // copied below.
	if client != nil {
		*wrapped = *client //nolint:govet // http.Client holds no locks.
	}
	next := wrapped.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	wrapped.Transport = &errorBodyTransport{next: next}
	return wrapped
}
