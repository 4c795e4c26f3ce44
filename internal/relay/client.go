package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxzi/emailflow/internal/jsonx"
)

// Client sends submissions to the intermediary endpoint
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client posting to endpoint.
// A zero timeout means 30 seconds.
func NewClient(endpoint string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		logger:   logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint returns the URL the client posts to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send posts req once. There are no retries.
// A non-2xx response or a transport failure is returned as *Error.
func (c *Client) Send(ctx context.Context, req *SubmissionRequest) (*Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Detail: err.Error(), Err: err}
	}

	obj := jsonx.Object(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
			// Accepted, but the backend broke its JSON contract
			c.logger.Warn("relay success response is not JSON",
				"status", resp.StatusCode,
				"bytes", len(body),
			)
		}
		return &Response{StatusCode: resp.StatusCode, Body: obj}, nil
	}

	detail := jsonx.String(obj, "detail")
	if detail == "" {
		detail = jsonx.String(obj, "error")
	}
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	if detail == "" {
		detail = resp.Status
	}

	return nil, &Error{Detail: detail, StatusCode: resp.StatusCode}
}
