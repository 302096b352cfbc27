// Package services – GeneratorService
//
// This file implements card generation: turning a conversation, its cached
// sentiment result, and a rarity calculation into a persisted Card with its
// museum projection and `generated` audit event, all in one transaction.
//
// Generation is idempotent per conversation. The unique index on
// cards.conversation_id is the guard: a concurrent or repeated generation
// attempt loses the insert, and the caller receives the existing card with
// ErrAlreadyGenerated (recoverable by design — never a duplicate object).
//
// Title and caption are templated deterministically from the tier and the
// top extracted keywords; richer creative copy is the artwork collaborator's
// problem, not ours.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-cards-backend/internal/artwork"
	"github.com/tbourn/go-cards-backend/internal/domain"
	"github.com/tbourn/go-cards-backend/internal/rarity"
	"github.com/tbourn/go-cards-backend/internal/repo"
)

// tierTitles seed the templated card title per tier.
var tierTitles = map[string]string{
	domain.TierCommon:    "A Moment",
	domain.TierUncommon:  "A Shared Spark",
	domain.TierRare:      "A Rare Exchange",
	domain.TierEpic:      "An Epic Thread",
	domain.TierLegendary: "A Legendary Bond",
}

// GeneratorService materializes cards from scored conversations.
type GeneratorService struct {
	DB      *gorm.DB
	Artwork artwork.Source

	// TitleMaxLen caps stored titles by rune length; 0 disables the cap.
	TitleMaxLen int
}

// NewGeneratorService constructs a GeneratorService with sane defaults.
func NewGeneratorService(db *gorm.DB, art artwork.Source) *GeneratorService {
	if art == nil {
		art = artwork.Placeholder{}
	}
	return &GeneratorService{DB: db, Artwork: art, TitleMaxLen: 80}
}

// Generate persists the card for a conversation. Side effects, atomically:
// one Card row, one `generated` CardEvent, one MuseumEntry in public
// visibility. Safe to call twice: the second call returns the existing card
// with ErrAlreadyGenerated.
//
// Artwork rendering happens outside the transaction and degrades to a
// placeholder reference; it never blocks or fails generation.
func (s *GeneratorService) Generate(ctx context.Context, conv *domain.Conversation, sent *domain.SentimentAnalysis, calc rarity.Calculation) (*domain.Card, error) {
	tr := otel.Tracer("services/GeneratorService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("conversation.id", conv.ID),
			attribute.String("rarity.final_tier", calc.FinalTier),
		),
	)
	defer span.End()

	// Cheap pre-check so the common retry path skips artwork rendering.
	if existing, err := repo.GetCardByConversation(ctx, s.DB, conv.ID); err == nil {
		return existing, ErrAlreadyGenerated
	} else if !repo.IsNotFound(err) {
		return nil, err
	}

	keywords := decodeKeywords(sent.Keywords)
	title := s.clip(buildTitle(calc.FinalTier, keywords))
	caption := buildCaption(calc, keywords, sent.BreakupDetected)

	artRef, err := s.Artwork.Render(ctx, artwork.Request{
		ConversationID: conv.ID,
		Tier:           calc.FinalTier,
		Title:          title,
		Keywords:       keywords,
	})
	if err != nil || artRef == "" {
		artRef = artwork.PlaceholderURL(calc.FinalTier)
	}

	rarityJSON, err := json.Marshal(calc)
	if err != nil {
		return nil, err
	}

	card := &domain.Card{
		ConversationID: conv.ID,
		SentimentID:    sent.ID,
		ArtworkURL:     artRef,
		FrameStyle:     calc.FinalTier,
		Title:          title,
		Caption:        caption,
		RarityData:     string(rarityJSON),
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.CreateCard(ctx, tx, card); err != nil {
			return err
		}
		if _, err := repo.CreateMuseumEntry(ctx, tx, card.ID, domain.VisibilityPublic); err != nil {
			return err
		}
		meta, _ := json.Marshal(map[string]any{
			"tier":        calc.FinalTier,
			"final_score": calc.FinalScore,
		})
		return repo.AppendEvent(ctx, tx, &domain.CardEvent{
			CardID:    card.ID,
			EventType: domain.EventGenerated,
			Metadata:  string(meta),
		})
	})
	if err != nil {
		if repo.IsDuplicate(err) {
			// Lost the generation race; the winner's card is the card.
			existing, gerr := repo.GetCardByConversation(ctx, s.DB, conv.ID)
			if gerr != nil {
				return nil, gerr
			}
			return existing, ErrAlreadyGenerated
		}
		return nil, err
	}
	return card, nil
}

// buildTitle templates a deterministic card title from tier and keywords.
func buildTitle(tier string, keywords []string) string {
	base := tierTitles[tier]
	if base == "" {
		base = tierTitles[domain.TierCommon]
	}
	if len(keywords) == 0 {
		return base
	}
	caser := cases.Title(language.English)
	return fmt.Sprintf("%s of %s", base, caser.String(keywords[0]))
}

// buildCaption templates the caption from the score breakdown and keywords.
func buildCaption(calc rarity.Calculation, keywords []string, breakup bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A %s conversation", calc.FinalTier)
	if len(keywords) > 0 {
		n := len(keywords)
		if n > 3 {
			n = 3
		}
		fmt.Fprintf(&b, " about %s", strings.Join(keywords[:n], ", "))
	}
	if breakup {
		b.WriteString(", marking a parting of ways")
	}
	b.WriteString(".")
	return b.String()
}

// decodeKeywords parses the stored JSON keyword array; malformed data
// degrades to no keywords.
func decodeKeywords(raw string) []string {
	var out []string
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// clip truncates a title to the configured maximum rune length.
func (s *GeneratorService) clip(title string) string {
	if s.TitleMaxLen > 0 {
		r := []rune(title)
		if len(r) > s.TitleMaxLen {
			return string(r[:s.TitleMaxLen])
		}
	}
	return title
}
