// Card HTTP handlers.
//
// This file exposes REST endpoints for the card lifecycle:
//   - GET  /cards/{id}            (card + current ownership)
//   - GET  /cards/{id}/history    (ownership lineage)
//   - POST /cards/{id}/claim      (participant action; first writer wins)
//   - POST /cards/{id}/decline    (participant action; advisory)
//   - POST /cards/{id}/burn       (operator action; terminal)
//   - POST /cards/{id}/print      (operator action; audit only)
//   - POST /cards/{id}/transfer   (operator action; supersedes ownership)
//
// Claim races are settled entirely in the storage layer; these handlers only
// translate outcomes. A lost race reports the winning ownership alongside a
// 409, so clients can render the result without a second round trip.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-cards-backend/internal/domain"
	"github.com/tbourn/go-cards-backend/internal/services"
)

// CardService defines card lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CardService interface {
	// Card returns a card by id.
	Card(ctx context.Context, cardID string) (*domain.Card, error)
	// CurrentOwner returns the active ownership, lazily defaulting an
	// expired offer to the vault.
	CurrentOwner(ctx context.Context, cardID string) (*domain.CardOwnership, error)
	// History returns the full ownership lineage, oldest first.
	History(ctx context.Context, cardID string) ([]domain.CardOwnership, error)
	// Claim attempts to claim the card for userID.
	Claim(ctx context.Context, cardID, userID string) (*domain.CardOwnership, error)
	// Decline records that userID passed on the offer.
	Decline(ctx context.Context, cardID, userID string) error
	// Burn permanently retires the card.
	Burn(ctx context.Context, cardID string, byUserID *string) error
	// Print records a physical print of the card.
	Print(ctx context.Context, cardID string, byUserID *string) error
	// Transfer moves ownership to newOwnerID as a purchase.
	Transfer(ctx context.Context, cardID, newOwnerID string) (*domain.CardOwnership, error)
}

//
// DTOs
//

// CardResponse is the card detail payload: the card plus its active
// ownership, when one exists.
type CardResponse struct {
	Card  *domain.Card          `json:"card"`
	Owner *domain.CardOwnership `json:"owner,omitempty"`
}

// ClaimResponse reports the settled ownership of a claim attempt. Won is
// false when another participant (or the vault) got there first.
type ClaimResponse struct {
	Won   bool                  `json:"won"`
	Owner *domain.CardOwnership `json:"owner"`
}

// TransferRequest is the JSON payload for transferring a card.
type TransferRequest struct {
	NewOwnerID string `json:"new_owner_id" binding:"required"`
}

//
// Handlers
//

// GetCard returns a card with its current owner. An expired, unclaimed offer
// is resolved to the vault on read.
func (h *Handlers) GetCard(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	card, err := h.cardSvc.Card(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrCardNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "card not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	resp := CardResponse{Card: card}
	owner, err := h.cardSvc.CurrentOwner(ctx, id)
	switch {
	case err == nil:
		resp.Owner = owner
	case errors.Is(err, services.ErrNoActiveOwner):
		// unowned: offer window still open, or vault unavailable
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, resp)
}

// GetCardHistory returns a card's ownership lineage, oldest first.
func (h *Handlers) GetCardHistory(c *gin.Context) {
	if _, err := h.cardSvc.Card(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, services.ErrCardNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "card not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	history, err := h.cardSvc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, history)
}

// ClaimCard attempts to claim a card for the current user. Exactly one
// claimant wins; everyone else receives the winning ownership with a 409.
func (h *Handlers) ClaimCard(c *gin.Context) {
	own, err := h.cardSvc.Claim(c.Request.Context(), c.Param("id"), userID(c))
	switch {
	case err == nil:
		won := own.OwnerID == userID(c) && own.AcquisitionType == domain.AcquisitionClaimed
		if !won {
			ok(c, http.StatusConflict, ClaimResponse{Won: false, Owner: own})
			return
		}
		ok(c, http.StatusOK, ClaimResponse{Won: true, Owner: own})
	case errors.Is(err, services.ErrCardNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "card not found")
	case errors.Is(err, services.ErrCardBurned):
		fail(c, http.StatusGone, ErrCodeCardBurned, "card has been burned")
	case errors.Is(err, services.ErrNotOffered):
		fail(c, http.StatusConflict, ErrCodeNotOffered, "card has not been offered yet")
	case errors.Is(err, services.ErrNotParticipant):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only conversation participants may claim")
	case errors.Is(err, services.ErrClaimClosed):
		fail(c, http.StatusConflict, ErrCodeClaimClosed, "claim window has closed")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// DeclineCard records that the current user passed on the offer. Declines
// are advisory: the claim window stays open for the rest of the roster
// until the deadline.
func (h *Handlers) DeclineCard(c *gin.Context) {
	err := h.cardSvc.Decline(c.Request.Context(), c.Param("id"), userID(c))
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrCardNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "card not found")
	case errors.Is(err, services.ErrNotParticipant):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only conversation participants may decline")
	case errors.Is(err, services.ErrNotOffered):
		fail(c, http.StatusConflict, ErrCodeNotOffered, "card has not been offered yet")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// BurnCard permanently retires a card. Burning is terminal: the card leaves
// public listings and accepts no further lifecycle actions.
func (h *Handlers) BurnCard(c *gin.Context) {
	uid := userID(c)
	err := h.cardSvc.Burn(c.Request.Context(), c.Param("id"), &uid)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrCardNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "card not found")
	case errors.Is(err, services.ErrCardBurned):
		fail(c, http.StatusGone, ErrCodeCardBurned, "card is already burned")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// PrintCard records a physical print of a card in the audit trail.
func (h *Handlers) PrintCard(c *gin.Context) {
	uid := userID(c)
	err := h.cardSvc.Print(c.Request.Context(), c.Param("id"), &uid)
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrCardNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "card not found")
	case errors.Is(err, services.ErrCardBurned):
		fail(c, http.StatusGone, ErrCodeCardBurned, "burned cards cannot be printed")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// TransferCard moves a card to a new owner as a purchase, superseding the
// current ownership.
func (h *Handlers) TransferCard(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.NewOwnerID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "new_owner_id is required")
		return
	}

	own, err := h.cardSvc.Transfer(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.NewOwnerID))
	switch {
	case err == nil:
		ok(c, http.StatusOK, own)
	case errors.Is(err, services.ErrCardNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "card not found")
	case errors.Is(err, services.ErrCardBurned):
		fail(c, http.StatusGone, ErrCodeCardBurned, "burned cards cannot be transferred")
	case errors.Is(err, services.ErrNoActiveOwner):
		fail(c, http.StatusConflict, ErrCodeConflict, "card has no owner to transfer from")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
