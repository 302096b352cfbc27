// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the cached
// sentiment analysis results.
//
// A conversation has at most one sentiment row (unique index). Rows are
// immutable once written: CreateSentiment returns the existing row when one
// is already present, which is what makes recomputation a no-op.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-cards-backend/internal/domain"
)

// GetSentiment fetches the sentiment row for a conversation, or ErrNotFound.
func GetSentiment(ctx context.Context, db *gorm.DB, conversationID string) (*domain.SentimentAnalysis, error) {
	var s domain.SentimentAnalysis
	if err := db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSentiment inserts a sentiment row for the conversation. If a row
// already exists the unique constraint fires and the existing row is
// returned instead — callers cannot tell a fresh insert from a cached hit,
// which is the intent.
func CreateSentiment(ctx context.Context, db *gorm.DB, s *domain.SentimentAnalysis) (*domain.SentimentAnalysis, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		if IsDuplicate(err) {
			return GetSentiment(ctx, db, s.ConversationID)
		}
		return nil, err
	}
	return s, nil
}
