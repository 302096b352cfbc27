package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-cards-backend/internal/artwork"
	"github.com/tbourn/go-cards-backend/internal/domain"
	"github.com/tbourn/go-cards-backend/internal/rarity"
	"github.com/tbourn/go-cards-backend/internal/repo"
)

// failingArtwork always errors, forcing the placeholder fallback.
type failingArtwork struct{}

func (failingArtwork) Render(context.Context, artwork.Request) (string, error) {
	return "", context.DeadlineExceeded
}

// recordingArtwork returns a fixed reference and captures the request.
type recordingArtwork struct {
	last artwork.Request
	ref  string
}

func (a *recordingArtwork) Render(_ context.Context, req artwork.Request) (string, error) {
	a.last = req
	return a.ref, nil
}

// seedScoredConversation creates a conversation plus its cached sentiment
// row, ready for generation.
func seedScoredConversation(t *testing.T, db *gorm.DB, keywords ...string) (*domain.Conversation, *domain.SentimentAnalysis) {
	t.Helper()
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx, db, "alice", []string{"bob"}, false)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	raw, _ := json.Marshal(keywords)
	sent, err := repo.CreateSentiment(ctx, db, &domain.SentimentAnalysis{
		ConversationID: conv.ID,
		Score:          0.8,
		SurpriseFactor: 0.2,
		Keywords:       string(raw),
	})
	if err != nil {
		t.Fatalf("create sentiment: %v", err)
	}
	return conv, sent
}

func sampleCalc() rarity.Calculation {
	e := rarity.NewEngine(rarity.DefaultParams())
	return e.Calculate(rarity.Input{
		Score:              0.8,
		EmotionalIntensity: 0.4,
		Participants: []rarity.Participant{
			{UserID: "alice"}, {UserID: "bob"},
		},
		MessageTypes: map[string]int{"text": 10},
	})
}

func TestGenerate_PersistsCardProjectionAndEvent(t *testing.T) {
	db := newServiceDB(t)
	conv, sent := seedScoredConversation(t, db, "love", "forever")
	calc := sampleCalc()
	ctx := context.Background()

	art := &recordingArtwork{ref: "https://cdn.example/art/1.png"}
	svc := NewGeneratorService(db, art)

	card, err := svc.Generate(ctx, conv, sent, calc)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if card.ID == "" || card.ConversationID != conv.ID || card.SentimentID != sent.ID {
		t.Fatalf("unexpected card identity: %+v", card)
	}
	if card.FrameStyle != calc.FinalTier {
		t.Fatalf("frame style = %q, want final tier %q", card.FrameStyle, calc.FinalTier)
	}
	if card.ArtworkURL != art.ref {
		t.Fatalf("artwork url = %q, want %q", card.ArtworkURL, art.ref)
	}
	if art.last.ConversationID != conv.ID || art.last.Tier != calc.FinalTier {
		t.Fatalf("renderer saw wrong request: %+v", art.last)
	}

	var stored rarity.Calculation
	if err := json.Unmarshal([]byte(card.RarityData), &stored); err != nil {
		t.Fatalf("rarity_data not valid JSON: %v", err)
	}
	if stored != calc {
		t.Fatalf("stored calculation = %+v, want %+v", stored, calc)
	}

	entry, err := repo.GetMuseumEntry(ctx, db, card.ID)
	if err != nil {
		t.Fatalf("museum entry missing: %v", err)
	}
	if entry.Visibility != domain.VisibilityPublic {
		t.Fatalf("visibility = %q, want public", entry.Visibility)
	}

	events, err := repo.ListCardEvents(ctx, db, card.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].EventType != domain.EventGenerated {
		t.Fatalf("expected single generated event, got %+v", events)
	}
}

func TestGenerate_SecondCallReturnsExisting(t *testing.T) {
	db := newServiceDB(t)
	conv, sent := seedScoredConversation(t, db)
	calc := sampleCalc()
	ctx := context.Background()

	svc := NewGeneratorService(db, nil)

	first, err := svc.Generate(ctx, conv, sent, calc)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	second, err := svc.Generate(ctx, conv, sent, calc)
	if !errors.Is(err, ErrAlreadyGenerated) {
		t.Fatalf("second Generate err = %v, want ErrAlreadyGenerated", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second call returned a different card: %s vs %s", second.ID, first.ID)
	}

	n, err := repo.CountEventsByType(ctx, db, first.ID, domain.EventGenerated)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if n != 1 {
		t.Fatalf("generated events = %d, want 1", n)
	}
}

func TestGenerate_TitleAndCaptionFromTierAndKeywords(t *testing.T) {
	db := newServiceDB(t)
	conv, sent := seedScoredConversation(t, db, "forever", "love", "goodbye", "miss")
	ctx := context.Background()

	calc := sampleCalc()
	calc.FinalTier = domain.TierLegendary

	svc := NewGeneratorService(db, nil)
	card, err := svc.Generate(ctx, conv, sent, calc)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if card.Title != "A Legendary Bond of Forever" {
		t.Fatalf("title = %q", card.Title)
	}
	if !strings.HasPrefix(card.Caption, "A legendary conversation about forever, love, goodbye") {
		t.Fatalf("caption = %q", card.Caption)
	}
}

func TestGenerate_UnknownTierAndNoKeywords(t *testing.T) {
	db := newServiceDB(t)
	conv, sent := seedScoredConversation(t, db)
	ctx := context.Background()

	calc := sampleCalc()
	calc.FinalTier = "mythic" // outside the tier set

	svc := NewGeneratorService(db, nil)
	card, err := svc.Generate(ctx, conv, sent, calc)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if card.Title != "A Moment" {
		t.Fatalf("title = %q, want common fallback", card.Title)
	}
}

func TestGenerate_ArtworkFailureDegradesToPlaceholder(t *testing.T) {
	db := newServiceDB(t)
	conv, sent := seedScoredConversation(t, db)
	calc := sampleCalc()
	ctx := context.Background()

	svc := NewGeneratorService(db, failingArtwork{})
	card, err := svc.Generate(ctx, conv, sent, calc)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if want := artwork.PlaceholderURL(calc.FinalTier); card.ArtworkURL != want {
		t.Fatalf("artwork url = %q, want placeholder %q", card.ArtworkURL, want)
	}
}

func TestGenerate_ClipsLongTitles(t *testing.T) {
	db := newServiceDB(t)
	conv, sent := seedScoredConversation(t, db, strings.Repeat("x", 200))
	calc := sampleCalc()
	ctx := context.Background()

	svc := NewGeneratorService(db, nil)
	svc.TitleMaxLen = 20

	card, err := svc.Generate(ctx, conv, sent, calc)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := len([]rune(card.Title)); got != 20 {
		t.Fatalf("title rune length = %d, want 20", got)
	}
}
