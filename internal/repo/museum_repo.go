// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the museum
// projection: the public, queryable ledger of generated cards.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-cards-backend/internal/domain"
)

// MuseumFilter narrows ListPublicEntries. Zero values mean "no filter".
type MuseumFilter struct {
	Rarity   string // matches the card's frame_style
	Featured *bool
	Limit    int
	Offset   int
}

// CreateMuseumEntry inserts the projection row for a card. Visibility
// defaults to public when empty.
func CreateMuseumEntry(ctx context.Context, db *gorm.DB, cardID, visibility string) (*domain.MuseumEntry, error) {
	if visibility == "" {
		visibility = domain.VisibilityPublic
	}
	e := &domain.MuseumEntry{
		ID:         uuid.NewString(),
		CardID:     cardID,
		Visibility: visibility,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		if IsDuplicate(err) {
			return GetMuseumEntry(ctx, db, cardID)
		}
		return nil, err
	}
	return e, nil
}

// GetMuseumEntry fetches a card's museum entry, or ErrNotFound.
func GetMuseumEntry(ctx context.Context, db *gorm.DB, cardID string) (*domain.MuseumEntry, error) {
	var e domain.MuseumEntry
	if err := db.WithContext(ctx).Where("card_id = ?", cardID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// ListPublicEntries returns public museum entries ordered by view_count
// descending, with optional rarity and featured filters. The rarity filter
// joins the cards table on frame_style.
func ListPublicEntries(ctx context.Context, db *gorm.DB, f MuseumFilter) ([]domain.MuseumEntry, int64, error) {
	q := db.WithContext(ctx).
		Model(&domain.MuseumEntry{}).
		Where("museum_entries.visibility = ?", domain.VisibilityPublic)
	if f.Rarity != "" {
		q = q.Joins("JOIN cards ON cards.id = museum_entries.card_id").
			Where("cards.frame_style = ?", f.Rarity)
	}
	if f.Featured != nil {
		q = q.Where("museum_entries.featured = ?", *f.Featured)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.MuseumEntry{}, 0, nil
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	var out []domain.MuseumEntry
	err := q.Order("museum_entries.view_count desc").
		Offset(f.Offset).
		Limit(limit).
		Find(&out).Error
	return out, total, err
}

// IncrementViewCount bumps a card's popularity counter with a single
// relative UPDATE. Lost updates under race are acceptable — this is a
// popularity signal, not a financial count.
func IncrementViewCount(ctx context.Context, db *gorm.DB, cardID string) error {
	return db.WithContext(ctx).
		Model(&domain.MuseumEntry{}).
		Where("card_id = ?", cardID).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}

// SetVisibility moves an entry to the given visibility state. Lattice rules
// (what may transition where) are enforced by the service layer; the repo
// only refuses to touch entries already burned, since nothing leaves that
// state.
func SetVisibility(ctx context.Context, db *gorm.DB, cardID, visibility string) error {
	res := db.WithContext(ctx).
		Model(&domain.MuseumEntry{}).
		Where("card_id = ? AND visibility <> ?", cardID, domain.VisibilityBurned).
		Update("visibility", visibility)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFeatured toggles the curation flag on a card's entry.
func SetFeatured(ctx context.Context, db *gorm.DB, cardID string, featured bool) error {
	res := db.WithContext(ctx).
		Model(&domain.MuseumEntry{}).
		Where("card_id = ?", cardID).
		Update("featured", featured)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
