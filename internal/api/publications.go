package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/markethub/markethub/internal/marketplace"
	"github.com/markethub/markethub/internal/product"
	"github.com/markethub/markethub/internal/saga"
)

type createPublicationRequest struct {
	ProductID     string `json:"product_id"`
	MarketplaceID string `json:"marketplace_id"`
}

// createPublication starts the async publication flow for one product and
// marketplace pair. The flow itself runs on the worker; the response only
// acknowledges the task.
func (s *Server) createPublication(w http.ResponseWriter, r *http.Request) {
	var req createPublicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ProductID == "" || req.MarketplaceID == "" {
		respond(w, http.StatusBadRequest, map[string]any{
			"error":           "Both product_id and marketplace_id are required",
			"required_fields": []string{"product_id", "marketplace_id"},
		})
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "product_id must be a valid uuid")
		return
	}
	marketplaceID, err := uuid.Parse(req.MarketplaceID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "marketplace_id must be a valid uuid")
		return
	}

	res, err := s.engine.Create(r.Context(), productID, marketplaceID)
	switch {
	case errors.Is(err, product.ErrNotFound):
		respondError(w, http.StatusNotFound, fmt.Sprintf("Product with id %s not found", productID))
	case errors.Is(err, marketplace.ErrNotFound):
		respondError(w, http.StatusNotFound, fmt.Sprintf("Marketplace with id %s not found", marketplaceID))
	case err != nil:
		s.logger.WithContext(r.Context()).WithProduct(productID.String()).WithError(err).Error("create publication failed")
		respond(w, http.StatusInternalServerError, map[string]any{
			"error":  "Failed to start publication process",
			"status": "failed",
		})
	default:
		respond(w, http.StatusAccepted, res)
	}
}

// taskStatus returns the live snapshot for one task.
func (s *Server) taskStatus(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "taskID")
	taskID, err := uuid.Parse(raw)
	if err != nil {
		respond(w, http.StatusNotFound, map[string]any{"error": "Task not found", "task_id": raw})
		return
	}
	snap, err := s.engine.Status(r.Context(), taskID)
	if err != nil {
		s.logger.WithContext(r.Context()).WithTask(raw).WithError(err).Error("task status lookup failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if snap.Status == saga.StatusNotFound {
		respond(w, http.StatusNotFound, map[string]any{"error": "Task not found", "task_id": taskID})
		return
	}
	respond(w, http.StatusOK, snap)
}

// productPublications lists a product's tasks, newest first, with the
// status and marketplace rollups.
func (s *Server) productPublications(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "product_id must be a valid uuid")
		return
	}

	f := saga.TaskFilter{Status: r.URL.Query().Get("status")}
	if raw := r.URL.Query().Get("marketplace_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "marketplace_id must be a valid uuid")
			return
		}
		f.MarketplaceID = id
	}
	if f.Limit, err = queryInt(r, "limit", 50); err != nil {
		respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		respondError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	summary, err := s.engine.ProductSummary(r.Context(), productID, f)
	switch {
	case errors.Is(err, product.ErrNotFound):
		respondError(w, http.StatusNotFound, fmt.Sprintf("Product with id %s not found", productID))
	case errors.Is(err, marketplace.ErrNotFound):
		respondError(w, http.StatusNotFound, fmt.Sprintf("Marketplace with id %s not found", f.MarketplaceID))
	case err != nil:
		s.logger.WithContext(r.Context()).WithProduct(productID.String()).WithError(err).Error("product summary failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	default:
		respond(w, http.StatusOK, summary)
	}
}
