// Museum HTTP handlers.
//
// This file exposes REST endpoints for the public museum:
//   - GET  /museum                (public listing, rarity/featured filters, paginated)
//   - GET  /museum/{id}/events    (card audit trail)
//   - POST /museum/{id}/view      (best-effort view counter bump)
//   - POST /museum/{id}/redact    (admin: hide sentiment detail)
//   - POST /museum/{id}/feature   (admin: curation flag)
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-cards-backend/internal/domain"
	"github.com/tbourn/go-cards-backend/internal/repo"
	"github.com/tbourn/go-cards-backend/internal/services"
	"github.com/tbourn/go-cards-backend/internal/utils"
)

// MuseumService defines public-gallery operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MuseumService interface {
	// ListPublic returns a page of publicly visible museum cards and the
	// total count.
	ListPublic(ctx context.Context, f repo.MuseumFilter) ([]services.MuseumCard, int64, error)
	// Search ranks public cards against a free-text query, best match first.
	Search(ctx context.Context, query string, k int) ([]services.MuseumCard, error)
	// View bumps a card's view counter; best effort, fire and forget.
	View(cardID string)
	// Redact hides sentiment detail on a public entry.
	Redact(ctx context.Context, cardID string) error
	// Feature sets or clears the curation flag.
	Feature(ctx context.Context, cardID string, featured bool) error
	// Events returns a card's full audit trail, oldest first.
	Events(ctx context.Context, cardID string) ([]domain.CardEvent, error)
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListMuseumResponse wraps a page of museum cards and pagination information.
type ListMuseumResponse struct {
	Cards      []services.MuseumCard `json:"cards"`
	Pagination Pagination            `json:"pagination"`
}

// FeatureRequest toggles a museum entry's featured flag.
type FeatureRequest struct {
	Featured bool `json:"featured"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// ListMuseum returns the public museum listing, most viewed first. Supports
// `rarity` and `featured` filters plus page/page_size pagination.
func (h *Handlers) ListMuseum(c *gin.Context) {
	page, pageSize := clampPagination(c)
	f := repo.MuseumFilter{
		Rarity: strings.ToLower(strings.TrimSpace(c.Query("rarity"))),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	if v := c.Query("featured"); v != "" {
		featured := v == "true" || v == "1"
		f.Featured = &featured
	}

	cards, total, err := h.museumSvc.ListPublic(c.Request.Context(), f)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMuseumResponse{
		Cards: cards,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// SearchMuseum ranks public museum cards against the `q` query, best match
// first. `limit` caps the result count (default 10, max 50).
func (h *Handlers) SearchMuseum(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query parameter q is required")
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), 10)
	if limit < 1 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}

	cards, err := h.museumSvc.Search(c.Request.Context(), q, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if cards == nil {
		cards = []services.MuseumCard{}
	}
	ok(c, http.StatusOK, cards)
}

// ViewCard bumps a card's museum view counter. The bump is asynchronous and
// best effort; the endpoint always answers 202.
func (h *Handlers) ViewCard(c *gin.Context) {
	h.museumSvc.View(c.Param("id"))
	c.Status(http.StatusAccepted)
}

// GetCardEvents returns a card's append-only audit trail, oldest first.
func (h *Handlers) GetCardEvents(c *gin.Context) {
	events, err := h.museumSvc.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrCardNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "card not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, events)
}

// RedactCard hides a public entry's sentiment detail while keeping the card
// on display. Only public entries can be redacted.
func (h *Handlers) RedactCard(c *gin.Context) {
	err := h.museumSvc.Redact(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrCardNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "card not found")
	case errors.Is(err, services.ErrInvalidVisibility):
		fail(c, http.StatusConflict, ErrCodeInvalidVisibility, "only public entries can be redacted")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// FeatureCard sets or clears the featured curation flag on a museum entry.
func (h *Handlers) FeatureCard(c *gin.Context) {
	var req FeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	err := h.museumSvc.Feature(c.Request.Context(), c.Param("id"), req.Featured)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrCardNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "card not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
