package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/markethub/markethub/internal/marketplace"
	"github.com/markethub/markethub/internal/product"
)

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}
	products, err := s.catalog.ListProducts(r.Context(), limit, offset)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("list products failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if products == nil {
		products = []*product.Product{}
	}
	respond(w, http.StatusOK, products)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "product_id must be a valid uuid")
		return
	}
	p, err := s.catalog.GetProduct(r.Context(), id)
	if errors.Is(err, product.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("Product with id %s not found", id))
		return
	}
	if err != nil {
		s.logger.WithContext(r.Context()).WithProduct(id.String()).WithError(err).Error("get product failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respond(w, http.StatusOK, p)
}

type createProductRequest struct {
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	ShortDescription string              `json:"short_description"`
	SKU              string              `json:"sku"`
	Price            decimal.Decimal     `json:"price"`
	Cost             decimal.NullDecimal `json:"cost"`
	Stock            int                 `json:"stock"`
	Weight           decimal.NullDecimal `json:"weight"`
	Dimensions       string              `json:"dimensions"`
	Category         string              `json:"category"`
	Status           string              `json:"status"`
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p := &product.Product{
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		ShortDescription: req.ShortDescription,
		SKU:              strings.TrimSpace(req.SKU),
		Price:            req.Price,
		Cost:             req.Cost,
		Stock:            req.Stock,
		Weight:           req.Weight,
		Dimensions:       req.Dimensions,
		Category:         req.Category,
		Status:           req.Status,
	}
	if err := s.catalog.InsertProduct(r.Context(), p); err != nil {
		if errors.Is(err, product.ErrInvalid) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.WithContext(r.Context()).WithError(err).Error("create product failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respond(w, http.StatusCreated, p)
}

// marketplaceView is the public shape of a marketplace. The webhook URL
// stays internal.
type marketplaceView struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Slug     string    `json:"slug"`
	APIURL   string    `json:"api_url"`
	IsActive bool      `json:"is_active"`
}

func viewOf(m *marketplace.Marketplace) marketplaceView {
	return marketplaceView{
		ID:       m.ID,
		Name:     m.Name,
		Slug:     m.Slug,
		APIURL:   m.APIURL,
		IsActive: m.IsActive,
	}
}

func (s *Server) listMarketplaces(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	mps, err := s.catalog.ListMarketplaces(r.Context(), activeOnly)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("list marketplaces failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	views := make([]marketplaceView, 0, len(mps))
	for _, m := range mps {
		views = append(views, viewOf(m))
	}
	respond(w, http.StatusOK, views)
}

type createMarketplaceRequest struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	APIURL     string `json:"api_url"`
	WebhookURL string `json:"webhook_url"`
	IsActive   *bool  `json:"is_active"`
}

func (s *Server) createMarketplace(w http.ResponseWriter, r *http.Request) {
	var req createMarketplaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	name := strings.TrimSpace(req.Name)
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if name == "" || slug == "" {
		respondError(w, http.StatusBadRequest, "name and slug are required")
		return
	}
	m := &marketplace.Marketplace{
		Name:       name,
		Slug:       slug,
		APIURL:     strings.TrimSpace(req.APIURL),
		WebhookURL: strings.TrimSpace(req.WebhookURL),
		IsActive:   true,
	}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}
	if err := s.catalog.InsertMarketplace(r.Context(), m); err != nil {
		s.logger.WithContext(r.Context()).WithMarketplace(slug).WithError(err).Error("create marketplace failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respond(w, http.StatusCreated, viewOf(m))
}
