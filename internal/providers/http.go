package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// defaultHTTPTimeout caps a vendor call even when the caller sets no deadline
	defaultHTTPTimeout = 60 * time.Second

	// maxResponseBytes bounds how much of a vendor response is read into memory
	maxResponseBytes = 8 << 20
)

// newHTTPClient creates the pooled client each adapter owns
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: defaultHTTPTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// httpCaller bundles what an adapter needs to talk JSON over HTTP
type httpCaller struct {
	provider string
	client   *http.Client
	headers  map[string]string

	// the vendor credential travels as keyHeader: keyPrefix+apiKey
	keyHeader string
	keyPrefix string
	apiKey    string
}

// postJSON sends payload and returns the body of a 2xx response. Every
// failure is returned as *Error so the dispatcher can classify it.
func (c *httpCaller) postJSON(ctx context.Context, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Provider: c.provider, Message: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Provider: c.provider, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return c.do(httpReq)
}

// get issues an authenticated GET and discards the body of a 2xx response
func (c *httpCaller) get(ctx context.Context, url string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	_, err = c.do(httpReq)
	return err
}

func (c *httpCaller) do(httpReq *http.Request) ([]byte, error) {
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	if c.apiKey == "" {
		return nil, &Error{Provider: c.provider, StatusCode: http.StatusUnauthorized, Message: "authentication failed: API key is empty"}
	}
	httpReq.Header.Set(c.keyHeader, c.keyPrefix+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, newTransportError(c.provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, newTransportError(c.provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(c.provider, resp.StatusCode, respBody)
	}
	return respBody, nil
}
