package enhancer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/markethub/markethub/internal/config"
	"github.com/markethub/markethub/internal/logging"
	"github.com/markethub/markethub/internal/metrics"
	"github.com/markethub/markethub/internal/product"
)

const descriptionPrompt = `Enhance the following product description for marketplace:

Title: %s
Category: %s
Current description: %s

Create an attractive, detailed and sales-optimized description.
Include key benefits and important features.
Maximum 500 words.`

const keywordsPrompt = `Generate 10 relevant keywords for this product:

Title: %s
Category: %s
Description: %s

Return only the keywords separated by commas.`

// Enhancement is the composite result the publication flow persists.
type Enhancement struct {
	Description string   `json:"enhanced_description"`
	Keywords    []string `json:"keywords"`
}

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
	logger      *logging.Logger
}

func New(cfg config.Enhancer) *Client {
	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logging.New("markethub-enhancer"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// complete sends a single-turn prompt and returns the model's reply text.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion request failed: status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("completion provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// EnhanceDescription rewrites a product description as marketing copy.
// Fail-open: any provider error returns the original description unchanged.
func (c *Client) EnhanceDescription(ctx context.Context, title, description, category string) string {
	out, err := c.complete(ctx, fmt.Sprintf(descriptionPrompt, title, category, description))
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("description enhancement failed, keeping original")
		metrics.RecordEnhancerRequest("fallback")
		return description
	}
	metrics.RecordEnhancerRequest("ok")
	return strings.TrimSpace(out)
}

// GenerateKeywords asks the provider for a comma-separated keyword list.
// Fail-open: any provider error returns the lower-cased title as the single
// fallback keyword.
func (c *Client) GenerateKeywords(ctx context.Context, title, description, category string) []string {
	out, err := c.complete(ctx, fmt.Sprintf(keywordsPrompt, title, category, description))
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("keyword generation failed, using fallback")
		metrics.RecordEnhancerRequest("fallback")
		return []string{strings.ToLower(title)}
	}
	metrics.RecordEnhancerRequest("ok")
	return product.SplitKeywords(out)
}

// EnhanceProduct runs both enhancements for the publication flow. Unlike
// the fail-open single operations, provider errors are returned to the
// caller, which owns retry policy. Keywords are generated against the
// enhanced description.
func (c *Client) EnhanceProduct(ctx context.Context, p *product.Product) (*Enhancement, error) {
	description, err := c.complete(ctx, fmt.Sprintf(descriptionPrompt, p.Title, p.Category, p.Description))
	if err != nil {
		metrics.RecordEnhancerRequest("error")
		return nil, fmt.Errorf("enhance description: %w", err)
	}
	description = strings.TrimSpace(description)

	rawKeywords, err := c.complete(ctx, fmt.Sprintf(keywordsPrompt, p.Title, p.Category, description))
	if err != nil {
		metrics.RecordEnhancerRequest("error")
		return nil, fmt.Errorf("generate keywords: %w", err)
	}

	metrics.RecordEnhancerRequest("ok")
	return &Enhancement{
		Description: description,
		Keywords:    product.SplitKeywords(rawKeywords),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
