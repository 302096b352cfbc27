// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Card model.
//
// Error semantics:
//   - CreateCard returns ErrDuplicate when a card already exists for the
//     conversation (unique index on conversation_id); callers fetch and
//     return the existing card.
//   - Lookups return ErrNotFound for missing rows.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-cards-backend/internal/domain"
)

// CreateCard inserts a card row. The unique index on conversation_id makes
// this an insert-if-absent: concurrent generation attempts for the same
// conversation resolve to exactly one row, the losers get ErrDuplicate.
func CreateCard(ctx context.Context, db *gorm.DB, c *domain.Card) (*domain.Card, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.GeneratedAt.IsZero() {
		c.GeneratedAt = now
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// GetCard fetches a card by ID, or ErrNotFound.
func GetCard(ctx context.Context, db *gorm.DB, id string) (*domain.Card, error) {
	var c domain.Card
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCardByConversation fetches the card generated for a conversation,
// or ErrNotFound.
func GetCardByConversation(ctx context.Context, db *gorm.DB, conversationID string) (*domain.Card, error) {
	var c domain.Card
	if err := db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// SetOfferDeadline stamps the claim deadline on a card. The stamp is
// write-once: a card that already carries a deadline is left untouched and
// the call returns false, in which case callers re-read the card for the
// authoritative deadline.
func SetOfferDeadline(ctx context.Context, db *gorm.DB, cardID string, deadline time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Card{}).
		Where("id = ? AND offer_deadline IS NULL", cardID).
		Update("offer_deadline", deadline.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkBurned flips the tombstone flag. Returns ErrNotFound when the card
// does not exist or is already burned.
func MarkBurned(ctx context.Context, db *gorm.DB, cardID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Card{}).
		Where("id = ? AND is_burned = ?", cardID, false).
		Update("is_burned", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpiredUnowned returns up to limit cards whose offer deadline has
// passed with no active ownership row and no burn tombstone — the sweep
// set for defaulting. Comparison happens in SQL against the caller-supplied
// authoritative now.
func ListExpiredUnowned(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Card, error) {
	var out []domain.Card
	err := db.WithContext(ctx).
		Where("offer_deadline IS NOT NULL AND offer_deadline < ? AND is_burned = ?", now.UTC(), false).
		Where("id NOT IN (?)", db.Model(&domain.CardOwnership{}).
			Select("card_id").
			Where("superseded = ?", false)).
		Order("offer_deadline asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
