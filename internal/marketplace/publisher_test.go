package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/markethub/markethub/internal/product"
)

func testProduct() *product.Product {
	return &product.Product{
		ID:            uuid.MustParse("a81bc81b-dead-4e5d-abff-90865d1e13b1"),
		Title:         "Wireless Headphones",
		Description:   "plain copy",
		SKU:           "WH-001",
		Price:         decimal.NewFromFloat(99.99),
		Stock:         5,
		Category:      "Electronics",
		AIEnhanced:    true,
		AIDescription: "enhanced copy",
	}
}

func testMarketplace(slug, apiURL string) *Marketplace {
	names := map[string]string{
		"mercadolibre": "MercadoLibre",
		"walmart":      "Walmart",
		"paris":        "Paris",
	}
	name := names[slug]
	if name == "" {
		name = slug
	}
	return &Marketplace{
		ID:       uuid.MustParse("7d5552e6-9a43-4a13-8cd6-4e17b52cdbd1"),
		Name:     name,
		Slug:     slug,
		APIURL:   apiURL,
		IsActive: true,
	}
}

func TestNew_SlugResolution(t *testing.T) {
	mp := testMarketplace("walmart", "https://api.example.com")
	creds := &Credentials{AccessToken: "token"}

	tests := []struct {
		name        string
		slug        string
		wantSlug    string
		expectError bool
	}{
		{name: "lowercase walmart", slug: "walmart", wantSlug: "walmart"},
		{name: "capitalized walmart", slug: "Walmart", wantSlug: "walmart"},
		{name: "uppercase walmart", slug: "WALMART", wantSlug: "walmart"},
		{name: "mercadolibre", slug: "mercadolibre", wantSlug: "mercadolibre"},
		{name: "mixed case mercadolibre", slug: "MercadoLibre", wantSlug: "mercadolibre"},
		{name: "paris", slug: "paris", wantSlug: "paris"},
		{name: "unsupported amazon", slug: "amazon", expectError: true},
		{name: "empty slug", slug: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub, err := New(tt.slug, mp, creds)
			if tt.expectError {
				if err == nil {
					t.Fatalf("New(%q) expected error but got none", tt.slug)
				}
				if !errors.Is(err, ErrUnsupportedMarketplace) {
					t.Errorf("New(%q) error = %v, want ErrUnsupportedMarketplace", tt.slug, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q) unexpected error: %v", tt.slug, err)
			}
			if got := pub.Slug(); got != tt.wantSlug {
				t.Errorf("Slug() = %q, want %q", got, tt.wantSlug)
			}
		})
	}
}

func TestPublishers_Success(t *testing.T) {
	tests := []struct {
		name         string
		slug         string
		vendorID     string
		wantPath     string
		wantID       string
		wantName     string
		wantURL      string
		checkPayload func(t *testing.T, payload map[string]any)
	}{
		{
			name:     "mercadolibre",
			slug:     "mercadolibre",
			vendorID: "123456",
			wantPath: "/items",
			wantID:   "MLM123456",
			wantName: "MercadoLibre",
			wantURL:  "https://articulo.mercadolibre.com.ar/MLM-123456",
			checkPayload: func(t *testing.T, payload map[string]any) {
				if payload["title"] != "Wireless Headphones" {
					t.Errorf("title = %v", payload["title"])
				}
				if payload["description"] != "enhanced copy" {
					t.Errorf("description = %v, want ai description", payload["description"])
				}
				if payload["currency_id"] != "ARS" {
					t.Errorf("currency_id = %v, want ARS", payload["currency_id"])
				}
				if payload["available_quantity"] != float64(5) {
					t.Errorf("available_quantity = %v, want 5", payload["available_quantity"])
				}
			},
		},
		{
			name:     "walmart",
			slug:     "walmart",
			vendorID: "987",
			wantPath: "/v3/items",
			wantID:   "WM987",
			wantName: "Walmart",
			wantURL:  "https://www.walmart.com/ip/987",
			checkPayload: func(t *testing.T, payload map[string]any) {
				if payload["productName"] != "Wireless Headphones" {
					t.Errorf("productName = %v", payload["productName"])
				}
				if payload["sku"] != "WH-001" {
					t.Errorf("sku = %v", payload["sku"])
				}
				price, ok := payload["price"].(map[string]any)
				if !ok {
					t.Fatalf("price is not an object: %v", payload["price"])
				}
				if price["currency"] != "USD" {
					t.Errorf("price.currency = %v, want USD", price["currency"])
				}
				shipping, ok := payload["shipping"].(map[string]any)
				if !ok {
					t.Fatalf("shipping is not an object: %v", payload["shipping"])
				}
				if shipping["weight"] != float64(1.0) {
					t.Errorf("shipping.weight = %v, want default 1.0", shipping["weight"])
				}
				if shipping["dimensions"] != "10x10x10" {
					t.Errorf("shipping.dimensions = %v, want default", shipping["dimensions"])
				}
			},
		},
		{
			name:     "paris",
			slug:     "paris",
			vendorID: "555",
			wantPath: "/v1/productos",
			wantID:   "PR555",
			wantName: "Paris",
			wantURL:  "https://www.paris.cl/producto/555",
			checkPayload: func(t *testing.T, payload map[string]any) {
				if payload["nombre"] != "Wireless Headphones" {
					t.Errorf("nombre = %v", payload["nombre"])
				}
				if payload["descripcion"] != "enhanced copy" {
					t.Errorf("descripcion = %v", payload["descripcion"])
				}
				if payload["codigo"] != "WH-001" {
					t.Errorf("codigo = %v", payload["codigo"])
				}
				if payload["categoria"] != "Electrónicos" {
					t.Errorf("categoria = %v", payload["categoria"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotAuth string
			var payload map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotAuth = r.Header.Get("Authorization")
				if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
					t.Fatalf("decode vendor payload: %v", err)
				}
				w.WriteHeader(http.StatusCreated)
				fmt.Fprintf(w, `{"id":"%s"}`, tt.vendorID)
			}))
			defer srv.Close()

			pub, err := New(tt.slug, testMarketplace(tt.slug, srv.URL), &Credentials{AccessToken: "token"})
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}

			result, err := pub.Publish(context.Background(), testProduct())
			if err != nil {
				t.Fatalf("Publish() unexpected error: %v", err)
			}
			if !result.Success {
				t.Fatalf("Publish() result not successful: %+v", result)
			}
			if gotPath != tt.wantPath {
				t.Errorf("vendor path = %q, want %q", gotPath, tt.wantPath)
			}
			if gotAuth != "Bearer token" {
				t.Errorf("Authorization = %q, want Bearer token", gotAuth)
			}
			if result.MarketplaceID != tt.wantID {
				t.Errorf("MarketplaceID = %q, want %q", result.MarketplaceID, tt.wantID)
			}
			if result.MarketplaceName != tt.wantName {
				t.Errorf("MarketplaceName = %q, want %q", result.MarketplaceName, tt.wantName)
			}
			if got := result.Details["listing_url"]; got != tt.wantURL {
				t.Errorf("listing_url = %v, want %q", got, tt.wantURL)
			}
			tt.checkPayload(t, payload)
		})
	}
}

func TestPublishers_VendorFailure(t *testing.T) {
	tests := []struct {
		name     string
		slug     string
		status   int
		body     string
		wantCode string
		wantSub  string
	}{
		{
			name:     "mercadolibre 500",
			slug:     "mercadolibre",
			status:   http.StatusInternalServerError,
			body:     `{"message":"internal server error"}`,
			wantCode: ErrCodeMercadoLibre,
			wantSub:  "internal server error",
		},
		{
			name:     "walmart 429 without body",
			slug:     "walmart",
			status:   http.StatusTooManyRequests,
			body:     "",
			wantCode: ErrCodeWalmart,
			wantSub:  "rate limit",
		},
		{
			name:     "paris 400 with error field",
			slug:     "paris",
			status:   http.StatusBadRequest,
			body:     `{"error":"codigo duplicado"}`,
			wantCode: ErrCodeParis,
			wantSub:  "codigo duplicado",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			pub, err := New(tt.slug, testMarketplace(tt.slug, srv.URL), nil)
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}

			result, err := pub.Publish(context.Background(), testProduct())
			if err != nil {
				t.Fatalf("Publish() returned Go error %v, failures must come back in the Result", err)
			}
			if result.Success {
				t.Fatalf("Publish() result successful, want failure")
			}
			if result.ErrorCode != tt.wantCode {
				t.Errorf("ErrorCode = %q, want %q", result.ErrorCode, tt.wantCode)
			}
			if !strings.Contains(strings.ToLower(result.Error), tt.wantSub) {
				t.Errorf("Error = %q, want substring %q", result.Error, tt.wantSub)
			}
		})
	}
}

func TestPublishers_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	pub, err := New("walmart", testMarketplace("walmart", srv.URL), nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	result, err := pub.Publish(context.Background(), testProduct())
	if err != nil {
		t.Fatalf("Publish() returned Go error %v, failures must come back in the Result", err)
	}
	if result.Success {
		t.Fatalf("Publish() result successful, want failure")
	}
	if result.ErrorCode != ErrCodeWalmart {
		t.Errorf("ErrorCode = %q, want %q", result.ErrorCode, ErrCodeWalmart)
	}
	if !strings.Contains(strings.ToLower(result.Error), "connection") {
		t.Errorf("Error = %q, want connection failure text", result.Error)
	}
}

func TestExternalRef_Fallback(t *testing.T) {
	p := testProduct()

	if got := externalRef(map[string]any{"id": "999"}, p); got != "999" {
		t.Errorf("externalRef() with vendor id = %q, want 999", got)
	}
	if got := externalRef(map[string]any{"id": float64(42)}, p); got != "42" {
		t.Errorf("externalRef() with numeric vendor id = %q, want 42", got)
	}

	got := externalRef(nil, p)
	if len(got) != 12 {
		t.Errorf("externalRef() fallback length = %d, want 12", len(got))
	}
	if !strings.HasPrefix(strings.ReplaceAll(p.ID.String(), "-", ""), got) {
		t.Errorf("externalRef() fallback %q not derived from product id", got)
	}
}

func TestService_PublishProduct(t *testing.T) {
	t.Run("success attaches marketplace context", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"id":"77"}`)
		}))
		defer srv.Close()

		mp := testMarketplace("paris", srv.URL)
		result := NewService().PublishProduct(context.Background(), testProduct(), mp, nil)

		if !result.Success {
			t.Fatalf("PublishProduct() result not successful: %+v", result)
		}
		if result.MarketplaceSlug != "paris" {
			t.Errorf("MarketplaceSlug = %q, want paris", result.MarketplaceSlug)
		}
		if result.InternalMarketplaceID != mp.ID.String() {
			t.Errorf("InternalMarketplaceID = %q, want %q", result.InternalMarketplaceID, mp.ID)
		}
	})

	t.Run("unsupported slug collapses to general error", func(t *testing.T) {
		mp := testMarketplace("amazon", "https://api.example.com")
		result := NewService().PublishProduct(context.Background(), testProduct(), mp, nil)

		if result.Success {
			t.Fatalf("PublishProduct() result successful, want failure")
		}
		if result.ErrorCode != ErrCodeGeneral {
			t.Errorf("ErrorCode = %q, want %q", result.ErrorCode, ErrCodeGeneral)
		}
		if !strings.Contains(result.Error, "unsupported marketplace") {
			t.Errorf("Error = %q, want unsupported marketplace text", result.Error)
		}
		if result.MarketplaceSlug != "amazon" {
			t.Errorf("MarketplaceSlug = %q, want amazon", result.MarketplaceSlug)
		}
	})

	t.Run("vendor failure keeps vendor error code", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		mp := testMarketplace("mercadolibre", srv.URL)
		result := NewService().PublishProduct(context.Background(), testProduct(), mp, nil)

		if result.Success {
			t.Fatalf("PublishProduct() result successful, want failure")
		}
		if result.ErrorCode != ErrCodeMercadoLibre {
			t.Errorf("ErrorCode = %q, want %q", result.ErrorCode, ErrCodeMercadoLibre)
		}
		if result.InternalMarketplaceID != mp.ID.String() {
			t.Errorf("InternalMarketplaceID = %q, want %q", result.InternalMarketplaceID, mp.ID)
		}
	})
}
