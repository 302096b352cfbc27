// Conversation HTTP handlers.
//
// This file exposes REST endpoints for conversation resources:
//   - POST /conversations                        (create with participant roster)
//   - POST /conversations/{id}/messages          (record a message; may trigger card generation)
//   - POST /conversations/{id}/participants/{uid}/notable  (flag a notable participant)
//   - GET  /conversations/{id}/card              (the conversation's card, when generated)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Card generation is a side effect
// of message recording and never blocks or fails the message endpoint.
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

//
// Service contracts (context-aware)
//

// ConversationService defines conversation lifecycle operations consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ConversationService interface {
	// Create starts a conversation for creatorID with the given roster.
	Create(ctx context.Context, creatorID string, participantIDs []string) (*domain.Conversation, error)
	// Get returns a conversation by id.
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	// SetNotable marks or unmarks a participant as notable.
	SetNotable(ctx context.Context, conversationID, userID string, notable bool) error
}

// MessageService records messages and owns the card-generation trigger.
type MessageService interface {
	// RecordMessage persists one message and bumps conversation counters.
	RecordMessage(ctx context.Context, conversationID, senderID, msgType, content string) (*domain.Message, error)
	// Evaluate runs the generation pipeline synchronously and returns the
	// conversation's card when one exists after the call.
	Evaluate(ctx context.Context, conversationID string) (*domain.Card, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for conversations, cards, and the museum.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	convSvc   ConversationService
	msgSvc    MessageService
	cardSvc   CardService
	museumSvc MuseumService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(convSvc ConversationService, msgSvc MessageService, cardSvc CardService, museumSvc MuseumService) *Handlers {
	return &Handlers{convSvc: convSvc, msgSvc: msgSvc, cardSvc: cardSvc, museumSvc: museumSvc}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// CreateConversationRequest is the JSON payload for creating a conversation.
type CreateConversationRequest struct {
	// ParticipantIDs lists the other members of the conversation. The caller
	// is always included and does not need to list themselves.
	ParticipantIDs []string `json:"participant_ids"`
}

// SendMessageRequest is the JSON payload for recording a message.
type SendMessageRequest struct {
	// Type is one of "text", "voice", "image"; defaults to "text".
	Type string `json:"type"`
	// Content is the message body (or media reference for voice/image).
	Content string `json:"content" binding:"required"`
}

// SetNotableRequest toggles a participant's notable flag.
type SetNotableRequest struct {
	Notable bool `json:"notable"`
}

//
// Handlers
//

// CreateConversation creates a conversation for the current user with the
// given roster and returns the conversation resource.
func (h *Handlers) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	conv, err := h.convSvc.Create(c.Request.Context(), userID(c), req.ParticipantIDs)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, conv)
}

// SendMessage records one message in a conversation. Crossing the generation
// threshold triggers card generation in the background; this endpoint never
// waits on it.
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.msgSvc.RecordMessage(c.Request.Context(), c.Param("id"), userID(c), req.Type, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		case errors.Is(err, services.ErrNotParticipant):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "sender is not a participant")
		case errors.Is(err, services.ErrInvalidMessageType), errors.Is(err, services.ErrEmptyContent):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, msg)
}

// SetNotable flags or unflags a conversation participant as notable.
func (h *Handlers) SetNotable(c *gin.Context) {
	var req SetNotableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	err := h.convSvc.SetNotable(c.Request.Context(), c.Param("id"), c.Param("uid"), req.Notable)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotParticipant):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "participant not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// GetConversationCard returns the card generated for a conversation. When no
// card exists yet, it runs an eligibility evaluation first so a qualifying
// conversation whose background trigger was lost still surfaces its card.
func (h *Handlers) GetConversationCard(c *gin.Context) {
	card, err := h.msgSvc.Evaluate(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		case errors.Is(err, services.ErrNotEligible):
			fail(c, http.StatusNotFound, ErrCodeNotEligible, "conversation has not earned a card yet")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, card)
}
