package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-cards-backend/internal/domain"
	"github.com/tbourn/go-cards-backend/internal/repo"
)

// seedPublicCard inserts a conversation, its card, and a public museum
// entry with the given popularity.
func seedPublicCard(t *testing.T, db *gorm.DB, tier string, views int64) *domain.Card {
	t.Helper()
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx, db, "u1", []string{"u2"}, false)
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	card, err := repo.CreateCard(ctx, db, &domain.Card{
		ConversationID: conv.ID,
		SentimentID:    uuid.NewString(),
		ArtworkURL:     "a",
		FrameStyle:     tier,
		Title:          "t",
		Caption:        "c",
		RarityData:     "{}",
	})
	if err != nil {
		t.Fatalf("seed card: %v", err)
	}
	if _, err := repo.CreateMuseumEntry(ctx, db, card.ID, ""); err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	if views > 0 {
		err := db.Model(&domain.MuseumEntry{}).
			Where("card_id = ?", card.ID).
			Update("view_count", views).Error
		if err != nil {
			t.Fatalf("seed views: %v", err)
		}
	}
	return card
}

func newMuseumService(t *testing.T) (*MuseumService, *gorm.DB) {
	t.Helper()
	db := newServiceDB(t)
	return &MuseumService{DB: db, Log: zerolog.Nop()}, db
}

func TestListPublic_OrdersByPopularity(t *testing.T) {
	svc, db := newMuseumService(t)
	ctx := context.Background()

	cold := seedPublicCard(t, db, domain.TierRare, 1)
	hot := seedPublicCard(t, db, domain.TierEpic, 40)

	out, total, err := svc.ListPublic(ctx, repo.MuseumFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListPublic: %v", err)
	}
	if total != 2 || len(out) != 2 {
		t.Fatalf("total=%d len=%d, want 2/2", total, len(out))
	}
	if out[0].Card.ID != hot.ID || out[1].Card.ID != cold.ID {
		t.Fatalf("wrong order: %s then %s", out[0].Card.ID, out[1].Card.ID)
	}
}

func TestListPublic_InvalidRarityIsEmpty(t *testing.T) {
	svc, db := newMuseumService(t)
	ctx := context.Background()

	seedPublicCard(t, db, domain.TierRare, 1)

	out, total, err := svc.ListPublic(ctx, repo.MuseumFilter{Rarity: "mythic", Limit: 10})
	if err != nil {
		t.Fatalf("ListPublic: %v", err)
	}
	if total != 0 || len(out) != 0 {
		t.Fatalf("expected empty page for unknown tier, got total=%d len=%d", total, len(out))
	}
}

func TestListPublic_RarityFilter(t *testing.T) {
	svc, db := newMuseumService(t)
	ctx := context.Background()

	seedPublicCard(t, db, domain.TierRare, 1)
	epic := seedPublicCard(t, db, domain.TierEpic, 1)

	out, total, err := svc.ListPublic(ctx, repo.MuseumFilter{Rarity: domain.TierEpic, Limit: 10})
	if err != nil {
		t.Fatalf("ListPublic: %v", err)
	}
	if total != 1 || len(out) != 1 || out[0].Card.ID != epic.ID {
		t.Fatalf("rarity filter mismatch: total=%d out=%+v", total, out)
	}
}

func TestSearch_RanksPublicCardsOnly(t *testing.T) {
	svc, db := newMuseumService(t)
	ctx := context.Background()

	love := seedPublicCard(t, db, domain.TierLegendary, 0)
	goodbye := seedPublicCard(t, db, domain.TierRare, 0)
	hidden := seedPublicCard(t, db, domain.TierRare, 0)

	for id, title := range map[string]string{
		love.ID:    "A Legendary Bond of Forever",
		goodbye.ID: "A Rare Exchange of Goodbye",
		hidden.ID:  "A Legendary Bond of Forever",
	} {
		if err := db.Model(&domain.Card{}).Where("id = ?", id).Update("title", title).Error; err != nil {
			t.Fatalf("retitle: %v", err)
		}
	}
	if err := repo.SetVisibility(ctx, db, hidden.ID, domain.VisibilityRedacted); err != nil {
		t.Fatalf("redact: %v", err)
	}

	out, err := svc.Search(ctx, "legendary forever", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(out) == 0 || out[0].Card.ID != love.ID {
		t.Fatalf("results = %+v, want the legendary card first", out)
	}
	for _, mc := range out {
		if mc.Card.ID == hidden.ID {
			t.Fatal("redacted card surfaced in search")
		}
	}

	empty, err := svc.Search(ctx, "zebra quantum", 10)
	if err != nil {
		t.Fatalf("Search unmatched: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("unmatched query returned %+v", empty)
	}
}

func TestView_BumpsCounterEventually(t *testing.T) {
	svc, db := newMuseumService(t)
	ctx := context.Background()

	card := seedPublicCard(t, db, domain.TierRare, 0)
	svc.View(card.ID)

	deadline := time.Now().Add(3 * time.Second)
	for {
		entry, err := repo.GetMuseumEntry(ctx, db, card.ID)
		if err == nil && entry.ViewCount == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("view count never reached 1: %+v err=%v", entry, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRedact_LatticeRules(t *testing.T) {
	svc, db := newMuseumService(t)
	ctx := context.Background()

	card := seedPublicCard(t, db, domain.TierRare, 0)

	if err := svc.Redact(ctx, card.ID); err != nil {
		t.Fatalf("Redact public: %v", err)
	}
	entry, err := repo.GetMuseumEntry(ctx, db, card.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Visibility != domain.VisibilityRedacted {
		t.Fatalf("visibility = %q, want redacted", entry.Visibility)
	}

	// Redacted is not public, so a second redaction is an invalid move.
	if err := svc.Redact(ctx, card.ID); !errors.Is(err, ErrInvalidVisibility) {
		t.Fatalf("repeat Redact err = %v, want ErrInvalidVisibility", err)
	}
	if err := svc.Redact(ctx, "no-such-card"); !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("missing card err = %v, want ErrCardNotFound", err)
	}
}

func TestFeature_TogglesCuration(t *testing.T) {
	svc, db := newMuseumService(t)
	ctx := context.Background()

	card := seedPublicCard(t, db, domain.TierRare, 0)

	if err := svc.Feature(ctx, card.ID, true); err != nil {
		t.Fatalf("Feature: %v", err)
	}
	entry, err := repo.GetMuseumEntry(ctx, db, card.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !entry.Featured {
		t.Fatal("entry not featured")
	}
	if err := svc.Feature(ctx, card.ID, false); err != nil {
		t.Fatalf("unfeature: %v", err)
	}
	if err := svc.Feature(ctx, "no-such-card", true); !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("missing card err = %v, want ErrCardNotFound", err)
	}
}

func TestEvents_RequiresCard(t *testing.T) {
	svc, db := newMuseumService(t)
	ctx := context.Background()

	card := seedPublicCard(t, db, domain.TierRare, 0)
	if err := repo.AppendEvent(ctx, db, &domain.CardEvent{
		CardID:    card.ID,
		EventType: domain.EventGenerated,
	}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	events, err := svc.Events(ctx, card.ID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 || events[0].EventType != domain.EventGenerated {
		t.Fatalf("unexpected trail: %+v", events)
	}
	if _, err := svc.Events(ctx, "no-such-card"); !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("missing card err = %v, want ErrCardNotFound", err)
	}
}
