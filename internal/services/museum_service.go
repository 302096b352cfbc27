// Package services – MuseumService
//
// This file implements the public museum ledger: listing visible cards by
// popularity, best-effort view counting, and the administrative visibility
// transitions. Visibility is a strict lattice — public may move to redacted
// or burned, private exists only from creation, and nothing leaves burned.
package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-cards-backend/internal/domain"
	"github.com/tbourn/go-cards-backend/internal/repo"
	"github.com/tbourn/go-cards-backend/internal/search"
)

// MuseumCard pairs a museum entry with its card for listing responses.
type MuseumCard struct {
	Entry domain.MuseumEntry `json:"entry"`
	Card  domain.Card        `json:"card"`
}

// MuseumService exposes the public card ledger.
type MuseumService struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// ListPublic returns public museum entries with their cards, ordered by
// view_count descending, honoring the rarity/featured filters and
// pagination. Total is the filtered count before paging.
func (s *MuseumService) ListPublic(ctx context.Context, f repo.MuseumFilter) ([]MuseumCard, int64, error) {
	tr := otel.Tracer("services/MuseumService")
	ctx, span := tr.Start(ctx, "ListPublic",
		trace.WithAttributes(
			attribute.String("filter.rarity", f.Rarity),
			attribute.Int("filter.limit", f.Limit),
			attribute.Int("filter.offset", f.Offset),
		),
	)
	defer span.End()

	if f.Rarity != "" && !domain.ValidTier(f.Rarity) {
		return []MuseumCard{}, 0, nil
	}

	entries, total, err := repo.ListPublicEntries(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	out := make([]MuseumCard, 0, len(entries))
	for _, e := range entries {
		card, err := repo.GetCard(ctx, s.DB, e.CardID)
		if err != nil {
			if repo.IsNotFound(err) {
				continue // projection row without a card; skip rather than fail the page
			}
			return nil, 0, err
		}
		out = append(out, MuseumCard{Entry: e, Card: *card})
	}
	return out, total, nil
}

// View bumps a card's view counter without blocking the caller. Lost
// updates and failed bumps are acceptable; failures are logged and
// otherwise ignored.
func (s *MuseumService) View(cardID string) {
	db := s.DB
	log := s.Log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := repo.IncrementViewCount(ctx, db, cardID); err != nil {
			log.Debug().Err(err).Str("card_id", cardID).Msg("view count bump failed")
		}
	}()
}

// Redact moves a public entry to redacted. Only public entries may be
// redacted; anything else is an invalid lattice transition.
func (s *MuseumService) Redact(ctx context.Context, cardID string) error {
	entry, err := repo.GetMuseumEntry(ctx, s.DB, cardID)
	if err != nil {
		if repo.IsNotFound(err) {
			return ErrCardNotFound
		}
		return err
	}
	if entry.Visibility != domain.VisibilityPublic {
		return ErrInvalidVisibility
	}
	if err := repo.SetVisibility(ctx, s.DB, cardID, domain.VisibilityRedacted); err != nil {
		if repo.IsNotFound(err) {
			return ErrInvalidVisibility
		}
		return err
	}
	return nil
}

// Feature toggles curation on a card's entry.
func (s *MuseumService) Feature(ctx context.Context, cardID string, featured bool) error {
	if err := repo.SetFeatured(ctx, s.DB, cardID, featured); err != nil {
		if repo.IsNotFound(err) {
			return ErrCardNotFound
		}
		return err
	}
	return nil
}

// searchCorpusLimit caps how many public entries one search indexes.
const searchCorpusLimit = 500

// Search ranks public museum cards against a free-text query by similarity
// over title, caption, and keywords. Results come back best match first;
// an empty or unmatched query yields an empty slice.
func (s *MuseumService) Search(ctx context.Context, query string, k int) ([]MuseumCard, error) {
	tr := otel.Tracer("services/MuseumService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(attribute.Int("search.k", k)),
	)
	defer span.End()

	entries, _, err := repo.ListPublicEntries(ctx, s.DB, repo.MuseumFilter{Limit: searchCorpusLimit})
	if err != nil {
		return nil, err
	}

	docs := make([]search.Doc, 0, len(entries))
	byID := make(map[string]MuseumCard, len(entries))
	for _, e := range entries {
		card, err := repo.GetCard(ctx, s.DB, e.CardID)
		if err != nil {
			if repo.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		docs = append(docs, search.Doc{
			CardID:   card.ID,
			Title:    card.Title,
			Caption:  card.Caption,
			Keywords: cardKeywords(ctx, s.DB, card),
		})
		byID[card.ID] = MuseumCard{Entry: e, Card: *card}
	}

	out := make([]MuseumCard, 0, k)
	for _, r := range search.New(docs).TopK(query, k) {
		if mc, ok := byID[r.CardID]; ok {
			out = append(out, mc)
		}
	}
	return out, nil
}

// cardKeywords pulls the extracted keywords of the card's sentiment row;
// absent or malformed data degrades to none.
func cardKeywords(ctx context.Context, db *gorm.DB, card *domain.Card) []string {
	sent, err := repo.GetSentiment(ctx, db, card.ConversationID)
	if err != nil {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(sent.Keywords), &out); err != nil {
		return nil
	}
	return out
}

// Events returns a card's full audit trail in acceptance order.
func (s *MuseumService) Events(ctx context.Context, cardID string) ([]domain.CardEvent, error) {
	if _, err := repo.GetCard(ctx, s.DB, cardID); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	return repo.ListCardEvents(ctx, s.DB, cardID)
}
