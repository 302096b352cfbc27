package sweeper

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-cards-backend/internal/domain"
	"github.com/tbourn/go-cards-backend/internal/repo"
	"github.com/tbourn/go-cards-backend/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("sweeper_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA busy_timeout=5000;")
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newOwnership(db *gorm.DB) *services.OwnershipService {
	return &services.OwnershipService{
		DB:            db,
		Clock:         services.SystemClock{},
		Log:           zerolog.Nop(),
		ClaimDeadline: 24 * time.Hour,
		VaultOwnerID:  "vault",
	}
}

// seedOfferedCard creates a card whose claim window closes at the given
// deadline.
func seedOfferedCard(t *testing.T, db *gorm.DB, deadline time.Time) *domain.Card {
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
		FrameStyle:     "rare",
		Title:          "t",
		Caption:        "c",
		RarityData:     "{}",
	})
	if err != nil {
		t.Fatalf("seed card: %v", err)
	}
	if _, err := repo.SetOfferDeadline(ctx, db, card.ID, deadline); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	return card
}

func TestSweep_DefaultsExpiredOffers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	expiredA := seedOfferedCard(t, db, past)
	expiredB := seedOfferedCard(t, db, past)
	open := seedOfferedCard(t, db, future)

	sw := New(Config{BatchSize: 10, Workers: 2}, db, newOwnership(db), zerolog.Nop())
	if err := sw.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	for _, c := range []*domain.Card{expiredA, expiredB} {
		own, err := repo.GetActiveOwnership(ctx, db, c.ID)
		if err != nil {
			t.Fatalf("card %s has no owner after sweep: %v", c.ID, err)
		}
		if own.OwnerID != "vault" || own.AcquisitionType != domain.AcquisitionDefaulted {
			t.Fatalf("card %s resolved to %+v, want vault default", c.ID, own)
		}
		n, err := repo.CountEventsByType(ctx, db, c.ID, domain.EventDefaulted)
		if err != nil {
			t.Fatalf("count events: %v", err)
		}
		if n != 1 {
			t.Fatalf("card %s defaulted events = %d, want 1", c.ID, n)
		}
	}

	if _, err := repo.GetActiveOwnership(ctx, db, open.ID); !repo.IsNotFound(err) {
		t.Fatalf("open card gained an owner: %v", err)
	}
}

func TestSweep_EmptyBatchIsANoOp(t *testing.T) {
	db := newTestDB(t)

	sw := New(Config{}, db, newOwnership(db), zerolog.Nop())
	if err := sw.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep on empty store: %v", err)
	}
}

func TestSweep_HonorsBatchSize(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	seedOfferedCard(t, db, past)
	seedOfferedCard(t, db, past)
	seedOfferedCard(t, db, past)

	sw := New(Config{BatchSize: 2, Workers: 2}, db, newOwnership(db), zerolog.Nop())
	if err := sw.Sweep(ctx); err != nil {
		t.Fatalf("first Sweep: %v", err)
	}

	remaining, err := repo.ListExpiredUnowned(ctx, db, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("remaining expired = %d, want 1 after batch of 2", len(remaining))
	}

	if err := sw.Sweep(ctx); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	remaining, err = repo.ListExpiredUnowned(ctx, db, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("remaining expired = %d, want 0", len(remaining))
	}
}

func TestStartStop_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	card := seedOfferedCard(t, db, time.Now().UTC().Add(-time.Hour))

	sw := New(Config{Interval: 20 * time.Millisecond, BatchSize: 10, Workers: 2}, db, newOwnership(db), zerolog.Nop())
	errCh := make(chan error, 1)
	go func() { errCh <- sw.Start(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := repo.GetActiveOwnership(ctx, db, card.ID); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweeper never resolved the expired card")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := sw.Start(ctx); err == nil {
		t.Fatal("second Start should refuse while running")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sw.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Start returned: %v", err)
	}
}
