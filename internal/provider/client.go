package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/ratelimit"
)

const requestTimeout = 30 * time.Second

// apiClient is the shared outbound HTTP plumbing: every request first blocks
// on the service's token bucket, then runs with a bounded timeout. Non-2xx
// responses become ProviderError so job-level retry takes over.
type apiClient struct {
	service string
	baseURL string
	limiter ratelimit.Limiter
	http    *http.Client
	headers map[string]string
}

func newAPIClient(service, baseURL string, limiter ratelimit.Limiter, headers map[string]string) *apiClient {
	return &apiClient{
		service: service,
		baseURL: baseURL,
		limiter: limiter,
		http:    &http.Client{Timeout: requestTimeout},
		headers: headers,
	}
}

func (c *apiClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
	if err := ratelimit.Acquire(ctx, c.limiter, c.service, 1); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewProvider(c.service, 0, err.Error())
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.NewProvider(c.service, resp.StatusCode, string(raw))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return apperrors.NewProvider(c.service, resp.StatusCode, "unparseable response: "+err.Error())
		}
	}
	return nil
}
