// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// card event log.
//
// Events are never updated or deleted. IDs are ULIDs generated at append
// time from a process-wide monotonic source, so sorting a card's events by
// ID reproduces acceptance order.
package repo

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/tbourn/go-cards-backend/internal/domain"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEventID returns a fresh ULID string. Safe for concurrent use.
func NewEventID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// AppendEvent inserts one lifecycle event row. Missing ID/metadata/timestamp
// fields are filled in; everything else is stored as given.
func AppendEvent(ctx context.Context, db *gorm.DB, ev *domain.CardEvent) error {
	now := time.Now().UTC()
	if ev.ID == "" {
		ev.ID = NewEventID(now)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	if ev.Metadata == "" {
		ev.Metadata = "{}"
	}
	return db.WithContext(ctx).Create(ev).Error
}

// ListCardEvents returns a card's events in acceptance order.
func ListCardEvents(ctx context.Context, db *gorm.DB, cardID string) ([]domain.CardEvent, error) {
	var out []domain.CardEvent
	err := db.WithContext(ctx).
		Where("card_id = ?", cardID).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// CountEventsByType returns how many events of one type a card has. Used by
// analytics-style queries such as "claims pending" (offered with no terminal
// event before the deadline).
func CountEventsByType(ctx context.Context, db *gorm.DB, cardID, eventType string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.CardEvent{}).
		Where("card_id = ? AND event_type = ?", cardID, eventType).
		Count(&n).Error
	return n, err
}
