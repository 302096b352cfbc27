package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-cards-backend/internal/domain"
	"github.com/tbourn/go-cards-backend/internal/repo"
)

// ConversationService exposes conversation lifecycle operations: creation
// with a participant roster, lookup, and notable flagging. Message recording
// lives on the EligibilityGate because it owns the generation trigger.
type ConversationService struct {
	DB *gorm.DB
}

// NewConversationService wires a ConversationService to its database handle.
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{DB: db}
}

// Create starts a conversation owned by creatorID with the given additional
// participants. The creator is always part of the roster; blank and duplicate
// participant ids are dropped. Conversations with more than two distinct
// participants are group conversations.
func (s *ConversationService) Create(ctx context.Context, creatorID string, participantIDs []string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", creatorID)),
	)
	defer span.End()

	seen := map[string]struct{}{creatorID: {}}
	roster := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		roster = append(roster, id)
	}
	return repo.CreateConversation(ctx, s.DB, creatorID, roster, len(seen) > 2)
}

// Get returns a conversation by id.
func (s *ConversationService) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := repo.GetConversation(ctx, s.DB, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

// SetNotable marks or unmarks a participant as notable. Notability feeds the
// identity multiplier of any card generated for the conversation later; it
// has no retroactive effect on cards already scored.
func (s *ConversationService) SetNotable(ctx context.Context, conversationID, userID string, notable bool) error {
	err := repo.SetNotable(ctx, s.DB, conversationID, userID, notable)
	if repo.IsNotFound(err) {
		return ErrNotParticipant
	}
	return err
}
