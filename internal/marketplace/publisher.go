package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/markethub/markethub/internal/metrics"
	"github.com/markethub/markethub/internal/product"
)

// Vendor error codes carried in failure results. The saga's error
// classification works on the error text, the codes travel to webhooks and
// audit records.
const (
	ErrCodeMercadoLibre = "ML_PUBLISH_ERROR"
	ErrCodeWalmart      = "WM_PUBLISH_ERROR"
	ErrCodeParis        = "PR_PUBLISH_ERROR"
	ErrCodeGeneral      = "GENERAL_PUBLISH_ERROR"
)

// ErrUnsupportedMarketplace signals a configuration mistake, never a
// transient condition. It is not retried.
var ErrUnsupportedMarketplace = errors.New("unsupported marketplace")

// Result is the uniform outcome shape every publisher returns. A failed
// call is a Result with Success=false, not a Go error: publishers convert
// everything they catch into this shape so callers handle exactly one kind
// of outcome.
type Result struct {
	Success               bool           `json:"success"`
	MarketplaceID         string         `json:"marketplace_id,omitempty"`
	MarketplaceName       string         `json:"marketplace_name,omitempty"`
	Details               map[string]any `json:"details,omitempty"`
	Error                 string         `json:"error,omitempty"`
	ErrorCode             string         `json:"error_code,omitempty"`
	MarketplaceSlug       string         `json:"marketplace_slug,omitempty"`
	InternalMarketplaceID string         `json:"internal_marketplace_id,omitempty"`
}

// Publisher is one marketplace strategy.
type Publisher interface {
	// Publish sends the product to the marketplace. Vendor and transport
	// failures come back inside the Result; the error return is reserved
	// for invalid use (nil product).
	Publish(ctx context.Context, p *product.Product) (*Result, error)
	Slug() string
}

// New resolves a marketplace slug to its publisher strategy. Lookup is
// case-insensitive; unknown slugs fail with ErrUnsupportedMarketplace.
func New(slug string, mp *Marketplace, creds *Credentials) (Publisher, error) {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	switch strings.ToLower(slug) {
	case SlugMercadoLibre:
		return &mercadoLibrePublisher{apiURL: mp.APIURL, creds: creds, httpClient: httpClient}, nil
	case SlugWalmart:
		return &walmartPublisher{apiURL: mp.APIURL, creds: creds, httpClient: httpClient}, nil
	case SlugParis:
		return &parisPublisher{apiURL: mp.APIURL, creds: creds, httpClient: httpClient}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMarketplace, slug)
	}
}

// Service is the facade the saga publishes through. It owns the factory
// call and guarantees the uniform failure shape for anything the strategy
// layer did not catch itself.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// PublishProduct publishes p to mp and stamps marketplace context onto the
// result. It never returns a Go error: factory and strategy failures both
// collapse into a GENERAL_PUBLISH_ERROR result.
func (s *Service) PublishProduct(ctx context.Context, p *product.Product, mp *Marketplace, creds *Credentials) *Result {
	pub, err := New(mp.Slug, mp, creds)
	if err != nil {
		metrics.RecordMarketplacePublish(mp.Slug, "error")
		return &Result{
			Success:               false,
			Error:                 fmt.Sprintf("Marketplace publishing failed: %v", err),
			ErrorCode:             ErrCodeGeneral,
			MarketplaceSlug:       mp.Slug,
			InternalMarketplaceID: mp.ID.String(),
		}
	}

	result, err := pub.Publish(ctx, p)
	if err != nil {
		metrics.RecordMarketplacePublish(mp.Slug, "error")
		return &Result{
			Success:               false,
			Error:                 fmt.Sprintf("Marketplace publishing failed: %v", err),
			ErrorCode:             ErrCodeGeneral,
			MarketplaceSlug:       mp.Slug,
			InternalMarketplaceID: mp.ID.String(),
		}
	}

	result.MarketplaceSlug = mp.Slug
	result.InternalMarketplaceID = mp.ID.String()
	if result.Success {
		metrics.RecordMarketplacePublish(mp.Slug, "ok")
	} else {
		metrics.RecordMarketplacePublish(mp.Slug, "error")
	}
	return result
}

// postJSON sends a vendor payload and returns the HTTP status plus the
// decoded response body (best effort, nil when not JSON).
func postJSON(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string) (int, map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var decoded map[string]any
	_ = json.Unmarshal(respBody, &decoded)
	return resp.StatusCode, decoded, nil
}

// externalRef picks the vendor-assigned id from the response when present,
// otherwise derives a stable token from the product id.
func externalRef(resp map[string]any, p *product.Product) string {
	if resp != nil {
		if id, ok := resp["id"]; ok && id != nil {
			return fmt.Sprint(id)
		}
	}
	return strings.ReplaceAll(p.ID.String(), "-", "")[:12]
}
