// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// CardOwnership history.
//
// The partial unique index ux_card_ownership_active (card_id WHERE
// superseded = 0, created in AutoMigrate) is the single atomic primitive
// every ownership-affecting write races on: concurrent claims, a claim
// racing the deadline default, and a transfer superseding the current row
// all resolve through it. Application-level check-then-write is never the
// sole guard.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-cards-backend/internal/domain"
)

// InsertActiveOwnership attempts the conditional insert of a new active
// ownership row. Exactly one caller can win for a given card; the rest get
// ErrDuplicate and should read the winning row with GetActiveOwnership.
func InsertActiveOwnership(ctx context.Context, db *gorm.DB, o *domain.CardOwnership) (*domain.CardOwnership, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.AcquiredAt.IsZero() {
		o.AcquiredAt = now
	}
	o.Superseded = false
	if err := db.WithContext(ctx).Create(o).Error; err != nil {
		if IsDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return o, nil
}

// GetActiveOwnership fetches the single non-superseded ownership row for a
// card, or ErrNotFound while the claim window is still unresolved.
func GetActiveOwnership(ctx context.Context, db *gorm.DB, cardID string) (*domain.CardOwnership, error) {
	var o domain.CardOwnership
	err := db.WithContext(ctx).
		Where("card_id = ? AND superseded = ?", cardID, false).
		First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CountActiveOwnerships exists for invariant auditing: anything above one
// for a card means the atomic-write primitive was bypassed.
func CountActiveOwnerships(ctx context.Context, db *gorm.DB, cardID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.CardOwnership{}).
		Where("card_id = ? AND superseded = ?", cardID, false).
		Count(&n).Error
	return n, err
}

// ListOwnershipHistory returns every ownership row for a card, oldest first —
// the full transfer chain including superseded rows.
func ListOwnershipHistory(ctx context.Context, db *gorm.DB, cardID string) ([]domain.CardOwnership, error) {
	var out []domain.CardOwnership
	err := db.WithContext(ctx).
		Where("card_id = ?", cardID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// TransferOwnership supersedes the current active row and appends a new one
// carrying PreviousOwnerID, in one transaction. The unique index still
// guards the insert, so a concurrent transfer on the same card fails with
// ErrDuplicate rather than producing two active rows.
//
// Returns ErrNotFound when the card has no active ownership to transfer.
func TransferOwnership(ctx context.Context, db *gorm.DB, cardID, newOwnerID, acquisitionType string) (*domain.CardOwnership, error) {
	now := time.Now().UTC()
	next := &domain.CardOwnership{
		ID:              uuid.NewString(),
		CardID:          cardID,
		OwnerID:         newOwnerID,
		AcquisitionType: acquisitionType,
		AcquiredAt:      now,
		CreatedAt:       now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur domain.CardOwnership
		if err := tx.Where("card_id = ? AND superseded = ?", cardID, false).First(&cur).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.CardOwnership{}).
			Where("id = ? AND superseded = ?", cur.ID, false).
			Update("superseded", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost a concurrent transfer race.
			return ErrDuplicate
		}
		prev := cur.OwnerID
		next.PreviousOwnerID = &prev
		if err := tx.Create(next).Error; err != nil {
			if IsDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}
