package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/markethub/markethub/internal/product"
)

// Supported marketplace slugs.
const (
	SlugMercadoLibre = "mercadolibre"
	SlugWalmart      = "walmart"
	SlugParis        = "paris"
)

func credentialHeaders(c *Credentials) map[string]string {
	h := map[string]string{}
	if c == nil {
		return h
	}
	if c.AccessToken != "" {
		h["Authorization"] = "Bearer " + c.AccessToken
	}
	if c.APIKey != "" {
		h["X-Api-Key"] = c.APIKey
	}
	return h
}

// vendorError renders a failure message from a vendor response. The text
// matters: retry classification works on substrings of it.
func vendorError(resp map[string]any, status int) string {
	if resp != nil {
		if msg, ok := resp["message"].(string); ok && msg != "" {
			return fmt.Sprintf("%s (status %d)", msg, status)
		}
		if msg, ok := resp["error"].(string); ok && msg != "" {
			return fmt.Sprintf("%s (status %d)", msg, status)
		}
	}
	if status == http.StatusTooManyRequests {
		return fmt.Sprintf("rate limit exceeded (status %d)", status)
	}
	return fmt.Sprintf("%s (status %d)", strings.ToLower(http.StatusText(status)), status)
}

func weightOr(p *product.Product, def float64) float64 {
	if p.Weight.Valid {
		return p.Weight.Decimal.InexactFloat64()
	}
	return def
}

type mercadoLibrePublisher struct {
	apiURL     string
	creds      *Credentials
	httpClient *http.Client
}

func (m *mercadoLibrePublisher) Slug() string { return SlugMercadoLibre }

func (m *mercadoLibrePublisher) Publish(ctx context.Context, p *product.Product) (*Result, error) {
	if p == nil {
		return nil, errors.New("nil product")
	}

	payload := map[string]any{
		"title":              p.Title,
		"description":        p.BestDescription(),
		"price":              p.Price.InexactFloat64(),
		"available_quantity": p.Stock,
		"category_id":        "MLM1051",
		"condition":          "new",
		"currency_id":        "ARS",
		"listing_type_id":    "gold_special",
	}

	status, resp, err := postJSON(ctx, m.httpClient, m.apiURL+"/items", payload, credentialHeaders(m.creds))
	if err != nil {
		return &Result{
			Success:         false,
			Error:           fmt.Sprintf("MercadoLibre publishing failed: %v", err),
			ErrorCode:       ErrCodeMercadoLibre,
			MarketplaceName: "MercadoLibre",
		}, nil
	}
	if status < 200 || status >= 300 {
		return &Result{
			Success:         false,
			Error:           fmt.Sprintf("MercadoLibre publishing failed: %s", vendorError(resp, status)),
			ErrorCode:       ErrCodeMercadoLibre,
			MarketplaceName: "MercadoLibre",
		}, nil
	}

	ref := externalRef(resp, p)
	return &Result{
		Success:         true,
		MarketplaceID:   "MLM" + ref,
		MarketplaceName: "MercadoLibre",
		Details: map[string]any{
			"api_response": "Product published successfully",
			"listing_url":  "https://articulo.mercadolibre.com.ar/MLM-" + ref,
		},
	}, nil
}

type walmartPublisher struct {
	apiURL     string
	creds      *Credentials
	httpClient *http.Client
}

func (w *walmartPublisher) Slug() string { return SlugWalmart }

func (w *walmartPublisher) Publish(ctx context.Context, p *product.Product) (*Result, error) {
	if p == nil {
		return nil, errors.New("nil product")
	}

	payload := map[string]any{
		"productName":      p.Title,
		"shortDescription": p.BestDescription(),
		"price": map[string]any{
			"amount":   p.Price.InexactFloat64(),
			"currency": "USD",
		},
		"quantity": p.Stock,
		"sku":      p.SKU,
		"brand":    "Generic",
		"shipping": map[string]any{
			"weight":     weightOr(p, 1.0),
			"dimensions": dimensionsOr(p, "10x10x10"),
		},
	}

	status, resp, err := postJSON(ctx, w.httpClient, w.apiURL+"/v3/items", payload, credentialHeaders(w.creds))
	if err != nil {
		return &Result{
			Success:         false,
			Error:           fmt.Sprintf("Walmart publishing failed: %v", err),
			ErrorCode:       ErrCodeWalmart,
			MarketplaceName: "Walmart",
		}, nil
	}
	if status < 200 || status >= 300 {
		return &Result{
			Success:         false,
			Error:           fmt.Sprintf("Walmart publishing failed: %s", vendorError(resp, status)),
			ErrorCode:       ErrCodeWalmart,
			MarketplaceName: "Walmart",
		}, nil
	}

	ref := externalRef(resp, p)
	return &Result{
		Success:         true,
		MarketplaceID:   "WM" + ref,
		MarketplaceName: "Walmart",
		Details: map[string]any{
			"api_response": "Product published successfully",
			"listing_url":  "https://www.walmart.com/ip/" + ref,
		},
	}, nil
}

type parisPublisher struct {
	apiURL     string
	creds      *Credentials
	httpClient *http.Client
}

func (pp *parisPublisher) Slug() string { return SlugParis }

func (pp *parisPublisher) Publish(ctx context.Context, p *product.Product) (*Result, error) {
	if p == nil {
		return nil, errors.New("nil product")
	}

	payload := map[string]any{
		"nombre":      p.Title,
		"descripcion": p.BestDescription(),
		"precio":      p.Price.InexactFloat64(),
		"stock":       p.Stock,
		"codigo":      p.SKU,
		"categoria":   "Electrónicos",
		"marca":       "Generic",
	}

	status, resp, err := postJSON(ctx, pp.httpClient, pp.apiURL+"/v1/productos", payload, credentialHeaders(pp.creds))
	if err != nil {
		return &Result{
			Success:         false,
			Error:           fmt.Sprintf("Paris publishing failed: %v", err),
			ErrorCode:       ErrCodeParis,
			MarketplaceName: "Paris",
		}, nil
	}
	if status < 200 || status >= 300 {
		return &Result{
			Success:         false,
			Error:           fmt.Sprintf("Paris publishing failed: %s", vendorError(resp, status)),
			ErrorCode:       ErrCodeParis,
			MarketplaceName: "Paris",
		}, nil
	}

	ref := externalRef(resp, p)
	return &Result{
		Success:         true,
		MarketplaceID:   "PR" + ref,
		MarketplaceName: "Paris",
		Details: map[string]any{
			"api_response": "Product published successfully",
			"listing_url":  "https://www.paris.cl/producto/" + ref,
		},
	}, nil
}

func dimensionsOr(p *product.Product, def string) string {
	if strings.TrimSpace(p.Dimensions) != "" {
		return p.Dimensions
	}
	return def
}
