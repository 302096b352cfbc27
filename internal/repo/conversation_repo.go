// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for conversations,
// their participant membership, and message bookkeeping.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return ErrNotFound.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-cards-backend/internal/domain"
)

// CreateConversation inserts a conversation row plus one membership row per
// participant, all in one transaction. The creator is added to the roster if
// absent from participantIDs. Duplicate user ids in participantIDs collapse
// to one membership row.
func CreateConversation(ctx context.Context, db *gorm.DB, creatorID string, participantIDs []string, isGroup bool) (*domain.Conversation, error) {
	now := time.Now().UTC()
	conv := &domain.Conversation{
		ID:        uuid.NewString(),
		CreatorID: creatorID,
		IsGroup:   isGroup,
		CreatedAt: now,
	}

	seen := map[string]struct{}{creatorID: {}}
	roster := []string{creatorID}
	for _, id := range participantIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		roster = append(roster, id)
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		for _, id := range roster {
			p := &domain.ConversationParticipant{
				ID:             uuid.NewString(),
				ConversationID: conv.ID,
				UserID:         id,
				JoinedAt:       now,
			}
			if err := tx.Create(p).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation fetches a conversation by ID, or ErrNotFound if missing.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListParticipants returns the membership rows of a conversation ordered by
// join time. An empty slice means the conversation has no roster (or does
// not exist — callers resolve that with GetConversation).
func ListParticipants(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.ConversationParticipant, error) {
	var out []domain.ConversationParticipant
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("joined_at asc").
		Find(&out).Error
	return out, err
}

// IsParticipant reports whether userID belongs to the conversation's roster.
func IsParticipant(ctx context.Context, db *gorm.DB, conversationID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&n).Error
	return n > 0, err
}

// SetNotable flags or unflags a participant as a notable identity.
// Returns ErrNotFound when the membership row does not exist.
func SetNotable(ctx context.Context, db *gorm.DB, conversationID, userID string, notable bool) error {
	res := db.WithContext(ctx).
		Model(&domain.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("notable", notable)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordMessage appends a message row and bumps the conversation's
// message_count and last_message_at, atomically. It returns the persisted
// message and the conversation's new message count.
func RecordMessage(ctx context.Context, db *gorm.DB, conversationID, senderID, msgType, content string) (*domain.Message, int, error) {
	now := time.Now().UTC()
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           msgType,
		Content:        content,
		CreatedAt:      now,
	}
	var count int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv domain.Conversation
		if err := tx.Where("id = ?", conversationID).First(&conv).Error; err != nil {
			return err
		}
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		count = conv.MessageCount + 1
		return tx.Model(&domain.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]any{
				"message_count":   count,
				"last_message_at": now,
			}).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return m, count, nil
}

// MessageTypeHistogram returns message counts per type for a conversation.
func MessageTypeHistogram(ctx context.Context, db *gorm.DB, conversationID string) (map[string]int, error) {
	var rows []struct {
		Type string
		N    int
	}
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("type, COUNT(*) AS n").
		Where("conversation_id = ?", conversationID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	hist := make(map[string]int, len(rows))
	for _, r := range rows {
		hist[r.Type] = r.N
	}
	return hist, nil
}

// MessageTimestamps returns the unix timestamps of a conversation's messages
// in send order, used for the timing-variance proxy.
func MessageTimestamps(ctx context.Context, db *gorm.DB, conversationID string) ([]int64, error) {
	var rows []struct {
		CreatedAt time.Time
	}
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("created_at").
		Where("conversation_id = ?", conversationID).
		Order("created_at asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.CreatedAt.Unix())
	}
	return out, nil
}

// ListMessages returns a conversation's messages in send order.
func ListMessages(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
