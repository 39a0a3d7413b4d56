package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/markethub/markethub/internal/config"
	"github.com/markethub/markethub/internal/metrics"
	"github.com/markethub/markethub/internal/tracing"
)

// userAgent identifies outbound notification requests.
const userAgent = "MarketHub/1.0"

// maxReadBody caps how much of a receiver response is read off the wire.
const maxReadBody = 1 << 20

// Response is the receiver's answer to one delivery attempt.
type Response struct {
	StatusCode int
	Body       string
}

// OK reports whether the receiver acknowledged the delivery. Only a plain
// 200 counts; redirects and other 2xx codes do not.
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Client POSTs signed JSON notifications to receiver endpoints.
type Client struct {
	httpClient *http.Client
	signer     *Signer
}

func NewClient(cfg config.Webhook) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		signer:     NewSigner(cfg.Secret, cfg.SignatureHeader),
	}
}

// Signer exposes the client's signer, for receivers that share its config.
func (c *Client) Signer() *Signer {
	return c.signer
}

// Send POSTs payload to url. Transport failures return an error; any HTTP
// response, success or not, comes back as a Response for the caller to
// judge and record.
func (c *Client) Send(ctx context.Context, url string, payload map[string]any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.signer.Enabled() {
		sig, err := c.signer.Sign(payload)
		if err != nil {
			return nil, fmt.Errorf("sign webhook payload: %w", err)
		}
		req.Header.Set(c.signer.Header(), sig)
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordWebhookDelivery(EventFailed, time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadBody))
	result := &Response{StatusCode: resp.StatusCode, Body: string(respBody)}
	if result.OK() {
		metrics.RecordWebhookDelivery(EventCompleted, time.Since(start))
	} else {
		metrics.RecordWebhookDelivery(EventFailed, time.Since(start))
	}
	return result, nil
}
