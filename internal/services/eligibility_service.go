// Package services – EligibilityGate
//
// This file implements the hook invoked on every message send. It records
// the message, checks whether the conversation has crossed the generation
// threshold, and — at most effectively once — runs the card pipeline:
// sentiment analysis (cached, idempotent), rarity calculation, card
// generation, and the opening offer.
//
// Triggering is fire-and-forget with respect to the message send: the
// pipeline runs on its own goroutine with its own timeout, and no pipeline
// failure ever fails or delays the send. Exactly-once materialization is
// the storage layer's job (unique indexes on sentiment and card rows), not
// the gate's; the gate's guards only keep the common path cheap.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-cards-backend/internal/domain"
	"github.com/tbourn/go-cards-backend/internal/rarity"
	"github.com/tbourn/go-cards-backend/internal/repo"
	"github.com/tbourn/go-cards-backend/internal/sentiment"
)

var cardsGenerated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cards_generated_total",
		Help: "Cards materialized by the generation pipeline, by final tier.",
	},
	[]string{"tier"},
)

func init() {
	prometheus.MustRegister(cardsGenerated)
}

// EligibilityGate drives the message-send hook and the generation pipeline.
type EligibilityGate struct {
	DB        *gorm.DB
	Engine    *rarity.Engine
	Sentiment sentiment.Source
	Generator *GeneratorService
	Ownership *OwnershipService
	Log       zerolog.Logger

	// MinMessages is the generation threshold.
	MinMessages int
	// PipelineTimeout bounds one asynchronous pipeline run.
	PipelineTimeout time.Duration
}

// RecordMessage persists a message, bumps the conversation counters, and
// fires the pipeline trigger when the threshold is crossed. The trigger is
// asynchronous and can never fail the send.
func (g *EligibilityGate) RecordMessage(ctx context.Context, conversationID, senderID, msgType, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/EligibilityGate")
	ctx, span := tr.Start(ctx, "RecordMessage",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	switch msgType {
	case "":
		msgType = domain.MessageTypeText
	case domain.MessageTypeText, domain.MessageTypeVoice, domain.MessageTypeImage:
	default:
		return nil, ErrInvalidMessageType
	}
	if content == "" {
		return nil, ErrEmptyContent
	}

	ok, err := repo.IsParticipant(ctx, g.DB, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotParticipant
	}

	msg, count, err := repo.RecordMessage(ctx, g.DB, conversationID, senderID, msgType, content)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	if count >= g.MinMessages {
		g.triggerAsync(conversationID)
	}
	return msg, nil
}

// triggerAsync runs the pipeline on its own goroutine. Panics are contained
// and logged; the caller has already returned.
func (g *EligibilityGate) triggerAsync(conversationID string) {
	log := g.Log
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("conversation_id", conversationID).
					Msg("card pipeline panicked")
			}
		}()
		timeout := g.PipelineTimeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := g.Evaluate(ctx, conversationID); err != nil &&
			!errors.Is(err, ErrNotEligible) && !errors.Is(err, ErrAlreadyGenerated) {
			log.Warn().
				Err(err).
				Str("conversation_id", conversationID).
				Msg("card pipeline did not complete; conversation stays eligible")
		}
	}()
}

// Evaluate runs the full pipeline synchronously and returns the card when
// one exists after the call. It is safe to call repeatedly and from
// concurrent triggers: every step is idempotent against the store.
//
// A sentiment collaborator failure leaves the conversation "not yet
// analyzed" — the next message send retries. It is never treated as
// "no card".
func (g *EligibilityGate) Evaluate(ctx context.Context, conversationID string) (*domain.Card, error) {
	tr := otel.Tracer("services/EligibilityGate")
	ctx, span := tr.Start(ctx, "Evaluate",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	conv, err := repo.GetConversation(ctx, g.DB, conversationID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if conv.MessageCount < g.MinMessages {
		return nil, ErrNotEligible
	}

	// Already-generated guard: the cheap early exit for repeat triggers.
	// A card that was generated but never offered (a crash between the two
	// writes) is healed here; Offer is write-once, so repeat triggers keep
	// the original window.
	if card, err := repo.GetCardByConversation(ctx, g.DB, conv.ID); err == nil {
		if card.OfferDeadline == nil && !card.IsBurned {
			offered, err := g.Ownership.Offer(ctx, card.ID)
			if err != nil {
				return card, err
			}
			return offered, nil
		}
		return card, nil
	} else if !repo.IsNotFound(err) {
		return nil, err
	}

	sent, intensity, err := g.analyzed(ctx, conv)
	if err != nil {
		return nil, err
	}

	calc, err := g.score(ctx, conv, sent, intensity)
	if err != nil {
		return nil, err
	}

	card, err := g.Generator.Generate(ctx, conv, sent, calc)
	if err != nil && !errors.Is(err, ErrAlreadyGenerated) {
		return nil, err
	}
	if err == nil {
		cardsGenerated.WithLabelValues(card.FrameStyle).Inc()
	}

	offered, err := g.Ownership.Offer(ctx, card.ID)
	if err != nil {
		return card, err
	}
	return offered, nil
}

// analyzed returns the conversation's sentiment row, analyzing and caching
// it when absent. The emotional intensity travels in the metadata JSON so
// cached rows reproduce the same rarity input.
func (g *EligibilityGate) analyzed(ctx context.Context, conv *domain.Conversation) (*domain.SentimentAnalysis, float64, error) {
	if cached, err := repo.GetSentiment(ctx, g.DB, conv.ID); err == nil {
		return cached, metadataIntensity(cached.Metadata), nil
	} else if !repo.IsNotFound(err) {
		return nil, 0, err
	}

	msgs, err := repo.ListMessages(ctx, g.DB, conv.ID)
	if err != nil {
		return nil, 0, err
	}
	views := make([]sentiment.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, sentiment.MessageView{
			Content:   m.Content,
			SenderID:  m.SenderID,
			Timestamp: m.CreatedAt,
		})
	}

	res, err := g.Sentiment.Analyze(ctx, views)
	if err != nil {
		return nil, 0, err
	}

	meta := res.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	meta["emotional_intensity"] = res.EmotionalIntensity
	metaJSON, _ := json.Marshal(meta)
	kwJSON, _ := json.Marshal(res.Keywords)

	row := &domain.SentimentAnalysis{
		ConversationID:  conv.ID,
		Score:           res.Score,
		SurpriseFactor:  res.SurpriseFactor,
		Keywords:        string(kwJSON),
		BreakupDetected: res.BreakupDetected,
		Metadata:        string(metaJSON),
	}
	stored, err := repo.CreateSentiment(ctx, g.DB, row)
	if err != nil {
		return nil, 0, err
	}
	return stored, metadataIntensity(stored.Metadata), nil
}

// score assembles the rarity input from the store and runs the engine.
func (g *EligibilityGate) score(ctx context.Context, conv *domain.Conversation, sent *domain.SentimentAnalysis, intensity float64) (rarity.Calculation, error) {
	participants, err := repo.ListParticipants(ctx, g.DB, conv.ID)
	if err != nil {
		return rarity.Calculation{}, err
	}
	roster := make([]rarity.Participant, 0, len(participants))
	for _, p := range participants {
		roster = append(roster, rarity.Participant{UserID: p.UserID, Notable: p.Notable})
	}

	hist, err := repo.MessageTypeHistogram(ctx, g.DB, conv.ID)
	if err != nil {
		return rarity.Calculation{}, err
	}
	stamps, err := repo.MessageTimestamps(ctx, g.DB, conv.ID)
	if err != nil {
		return rarity.Calculation{}, err
	}

	return g.Engine.Calculate(rarity.Input{
		Score:              sent.Score,
		EmotionalIntensity: intensity,
		TimingVariance:     rarity.TimingVariance(stamps),
		Participants:       roster,
		MessageTypes:       hist,
	}), nil
}

// metadataIntensity digs the stored emotional intensity out of the metadata
// JSON; absent or malformed metadata degrades to zero.
func metadataIntensity(raw string) float64 {
	var meta map[string]any
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return 0
	}
	if v, ok := meta["emotional_intensity"].(float64); ok {
		return v
	}
	return 0
}
