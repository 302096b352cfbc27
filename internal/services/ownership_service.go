// Package services – OwnershipService
//
// This file implements the ownership state machine of a card:
//
//	Generated → Offered → {Claimed | Declined-pending | Defaulted}
//	          → {Resolved | Burned | Printed}
//
// The offer is a logical broadcast (a deadline stamp plus an `offered`
// event, no per-user rows). Claiming, defaulting, and transferring all
// funnel through the partial unique index on active ownership rows, so "at
// most one active owner per card" holds under any interleaving without
// application-level locking. Declines are audit events only: default is
// purely deadline-driven, and a unanimous decline still waits for expiry.
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
	"github.com/tbourn/go-cards-backend/internal/events"
	"github.com/tbourn/go-cards-backend/internal/repo"
)

var (
	claimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_claims_total",
			Help: "Claim attempts by outcome.",
		},
		[]string{"outcome"}, // won | lost | closed | rejected
	)

	defaultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cards_defaulted_total",
			Help: "Cards defaulted to the vault after the claim deadline.",
		},
	)
)

func init() {
	prometheus.MustRegister(claimsTotal, defaultsTotal)
}

// OwnershipService manages the claim/decline/default lifecycle of cards.
type OwnershipService struct {
	DB      *gorm.DB
	Emitter *events.Emitter
	Clock   Clock
	Log     zerolog.Logger

	// ClaimDeadline is the offer window length (config-bounded upstream).
	ClaimDeadline time.Duration
	// VaultOwnerID receives unclaimed cards; empty blocks defaulting.
	VaultOwnerID string
}

// now returns Clock time, falling back to the system clock.
func (s *OwnershipService) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now()
	}
	return time.Now().UTC()
}

// Offer opens the claim window for a freshly generated card: it stamps
// offer_deadline (write-once) and appends the `offered` event carrying the
// participant count and deadline. No ownership rows are created.
func (s *OwnershipService) Offer(ctx context.Context, cardID string) (*domain.Card, error) {
	tr := otel.Tracer("services/OwnershipService")
	ctx, span := tr.Start(ctx, "Offer", trace.WithAttributes(attribute.String("card.id", cardID)))
	defer span.End()

	card, err := repo.GetCard(ctx, s.DB, cardID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	if card.IsBurned {
		return nil, ErrCardBurned
	}

	deadline := s.now().Add(s.ClaimDeadline)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stamped, err := repo.SetOfferDeadline(ctx, tx, card.ID, deadline)
		if err != nil {
			return err
		}
		if !stamped {
			// Already offered; keep the original window.
			return nil
		}
		card.OfferDeadline = &deadline

		participants, err := repo.ListParticipants(ctx, tx, card.ConversationID)
		if err != nil {
			return err
		}
		meta, _ := json.Marshal(map[string]any{
			"participant_count": len(participants),
			"claim_deadline":    deadline.Format(time.RFC3339Nano),
		})
		return repo.AppendEvent(ctx, tx, &domain.CardEvent{
			CardID:    card.ID,
			EventType: domain.EventOffered,
			Metadata:  string(meta),
		})
	})
	if err != nil {
		return nil, err
	}
	if card.OfferDeadline == nil {
		// Re-read for the authoritative deadline of the earlier offer.
		return repo.GetCard(ctx, s.DB, card.ID)
	}
	return card, nil
}

// Claim lets a conversation participant assert ownership before the
// deadline. First successful claim wins via the conditional insert; a loser
// receives the winner's record with a nil error (claiming is idempotent for
// the winner and informative for everyone else). A claim after the deadline
// resolves the default instead and returns the vault's record with
// ErrClaimClosed.
func (s *OwnershipService) Claim(ctx context.Context, cardID, userID string) (*domain.CardOwnership, error) {
	tr := otel.Tracer("services/OwnershipService")
	ctx, span := tr.Start(ctx, "Claim",
		trace.WithAttributes(
			attribute.String("card.id", cardID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	card, err := repo.GetCard(ctx, s.DB, cardID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	if card.IsBurned {
		claimsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrCardBurned
	}
	if card.OfferDeadline == nil {
		claimsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrNotOffered
	}

	ok, err := repo.IsParticipant(ctx, s.DB, card.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		claimsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrNotParticipant
	}

	if s.now().After(*card.OfferDeadline) {
		// Late claim: resolve the default lazily; the claimant learns who
		// (vault or an earlier winner) holds the card.
		own, derr := s.Default(ctx, card)
		if derr != nil && !errors.Is(derr, ErrVaultUnconfigured) {
			return nil, derr
		}
		claimsTotal.WithLabelValues("closed").Inc()
		if own == nil {
			return nil, ErrClaimClosed
		}
		return own, ErrClaimClosed
	}

	deadline := *card.OfferDeadline
	claim := &domain.CardOwnership{
		CardID:          card.ID,
		OwnerID:         userID,
		AcquisitionType: domain.AcquisitionClaimed,
		ClaimDeadline:   &deadline,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.InsertActiveOwnership(ctx, tx, claim); err != nil {
			return err
		}
		uid := userID
		return repo.AppendEvent(ctx, tx, &domain.CardEvent{
			CardID:    card.ID,
			EventType: domain.EventClaimed,
			UserID:    &uid,
		})
	})
	if err != nil {
		if repo.IsDuplicate(err) {
			// Lost the race: return the winning record, not an error.
			winner, gerr := repo.GetActiveOwnership(ctx, s.DB, card.ID)
			if gerr != nil {
				return nil, gerr
			}
			claimsTotal.WithLabelValues("lost").Inc()
			return winner, nil
		}
		return nil, err
	}
	claimsTotal.WithLabelValues("won").Inc()
	return claim, nil
}

// Decline records a participant's refusal for audit. It requires a card
// that has been offered; nothing structural changes — no per-user pending
// rows exist — and default remains purely deadline-driven, so declining
// never accelerates resolution. The event rides the best-effort emitter.
func (s *OwnershipService) Decline(ctx context.Context, cardID, userID string) error {
	card, err := repo.GetCard(ctx, s.DB, cardID)
	if err != nil {
		if repo.IsNotFound(err) {
			return ErrCardNotFound
		}
		return err
	}
	if card.IsBurned {
		return ErrCardBurned
	}
	if card.OfferDeadline == nil {
		return ErrNotOffered
	}
	ok, err := repo.IsParticipant(ctx, s.DB, card.ConversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	if s.Emitter != nil {
		uid := userID
		s.Emitter.Emit(card.ID, domain.EventDeclined, &uid, "")
	}
	return nil
}

// Default assigns an expired, unclaimed card to the vault. It races late
// claims on the same conditional insert, so "no claim succeeds after a
// default is recorded" (and vice versa) holds by construction: the
// already-resolved owner is returned with a nil error when the insert loses.
//
// A missing vault identity aborts only this transition: it is logged as an
// operational error and the card stays awaiting resolution.
func (s *OwnershipService) Default(ctx context.Context, card *domain.Card) (*domain.CardOwnership, error) {
	if card.OfferDeadline == nil {
		return nil, ErrNotOffered
	}
	if !s.now().After(*card.OfferDeadline) {
		return nil, ErrClaimClosed // window still open; nothing to default
	}
	if existing, err := repo.GetActiveOwnership(ctx, s.DB, card.ID); err == nil {
		return existing, nil
	} else if !repo.IsNotFound(err) {
		return nil, err
	}

	if s.VaultOwnerID == "" {
		s.Log.Error().
			Str("card_id", card.ID).
			Msg("cannot default card: vault owner is not configured")
		return nil, ErrVaultUnconfigured
	}

	deadline := *card.OfferDeadline
	own := &domain.CardOwnership{
		CardID:          card.ID,
		OwnerID:         s.VaultOwnerID,
		AcquisitionType: domain.AcquisitionDefaulted,
		ClaimDeadline:   &deadline,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.InsertActiveOwnership(ctx, tx, own); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, tx, &domain.CardEvent{
			CardID:    card.ID,
			EventType: domain.EventDefaulted,
		})
	})
	if err != nil {
		if repo.IsDuplicate(err) {
			// A claim (or a concurrent sweep) beat us to it.
			return repo.GetActiveOwnership(ctx, s.DB, card.ID)
		}
		return nil, err
	}
	defaultsTotal.Inc()
	return own, nil
}

// ResolveExpired defaults up to limit expired, unowned cards. Used by the
// periodic sweeper; safe to run concurrently with claims. Returns how many
// cards were resolved (by this call or a racing one).
func (s *OwnershipService) ResolveExpired(ctx context.Context, limit int) (int, error) {
	cards, err := repo.ListExpiredUnowned(ctx, s.DB, s.now(), limit)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for i := range cards {
		if _, err := s.Default(ctx, &cards[i]); err != nil {
			if errors.Is(err, ErrVaultUnconfigured) {
				// Already logged; the rest of the batch would fail the same way.
				return resolved, err
			}
			s.Log.Error().Err(err).Str("card_id", cards[i].ID).Msg("failed to default expired card")
			continue
		}
		resolved++
	}
	return resolved, nil
}

// Burn tombstones a card: is_burned is set, the museum entry moves to
// burned visibility, and the terminal `burned` event is appended. No
// ownership transition is valid afterward.
func (s *OwnershipService) Burn(ctx context.Context, cardID string, byUserID *string) error {
	tr := otel.Tracer("services/OwnershipService")
	ctx, span := tr.Start(ctx, "Burn", trace.WithAttributes(attribute.String("card.id", cardID)))
	defer span.End()

	card, err := repo.GetCard(ctx, s.DB, cardID)
	if err != nil {
		if repo.IsNotFound(err) {
			return ErrCardNotFound
		}
		return err
	}
	if card.IsBurned {
		return ErrCardBurned
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkBurned(ctx, tx, card.ID); err != nil {
			if repo.IsNotFound(err) {
				return ErrCardBurned // lost a concurrent burn
			}
			return err
		}
		if err := repo.SetVisibility(ctx, tx, card.ID, domain.VisibilityBurned); err != nil && !repo.IsNotFound(err) {
			return err
		}
		return repo.AppendEvent(ctx, tx, &domain.CardEvent{
			CardID:    card.ID,
			EventType: domain.EventBurned,
			UserID:    byUserID,
		})
	})
}

// Print records the external fulfillment trigger as an audit event; the
// card's state does not change. Any export/physical-print machinery lives
// outside this system.
func (s *OwnershipService) Print(ctx context.Context, cardID string, byUserID *string) error {
	card, err := repo.GetCard(ctx, s.DB, cardID)
	if err != nil {
		if repo.IsNotFound(err) {
			return ErrCardNotFound
		}
		return err
	}
	if card.IsBurned {
		return ErrCardBurned
	}
	return repo.AppendEvent(ctx, s.DB, &domain.CardEvent{
		CardID:    card.ID,
		EventType: domain.EventPrinted,
		UserID:    byUserID,
	})
}

// Transfer appends a purchased ownership row superseding the current one.
// Transfers are a distinct mechanism from claims: they require a resolved
// owner and are rejected on burned cards.
func (s *OwnershipService) Transfer(ctx context.Context, cardID, newOwnerID string) (*domain.CardOwnership, error) {
	card, err := repo.GetCard(ctx, s.DB, cardID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	if card.IsBurned {
		return nil, ErrCardBurned
	}
	own, err := repo.TransferOwnership(ctx, s.DB, cardID, newOwnerID, domain.AcquisitionPurchased)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrNoActiveOwner
		}
		return nil, err
	}
	return own, nil
}

// Card returns a card by id.
func (s *OwnershipService) Card(ctx context.Context, cardID string) (*domain.Card, error) {
	card, err := repo.GetCard(ctx, s.DB, cardID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	return card, nil
}

// History returns a card's full ownership lineage, oldest first.
func (s *OwnershipService) History(ctx context.Context, cardID string) ([]domain.CardOwnership, error) {
	return repo.ListOwnershipHistory(ctx, s.DB, cardID)
}

// CurrentOwner returns a card's active ownership, resolving an expired
// offer to the vault first when needed (the lazy variant of the sweep).
func (s *OwnershipService) CurrentOwner(ctx context.Context, cardID string) (*domain.CardOwnership, error) {
	card, err := repo.GetCard(ctx, s.DB, cardID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	if own, err := repo.GetActiveOwnership(ctx, s.DB, cardID); err == nil {
		return own, nil
	} else if !repo.IsNotFound(err) {
		return nil, err
	}
	if card.OfferDeadline != nil && s.now().After(*card.OfferDeadline) && !card.IsBurned {
		own, err := s.Default(ctx, card)
		if err != nil {
			if errors.Is(err, ErrVaultUnconfigured) {
				return nil, ErrNoActiveOwner
			}
			return nil, err
		}
		return own, nil
	}
	return nil, ErrNoActiveOwner
}

// AuditInvariant verifies the at-most-one-active-owner invariant for a
// card. A violation means the conditional-insert primitive was bypassed;
// it is logged loudly and reported as a hard error.
func (s *OwnershipService) AuditInvariant(ctx context.Context, cardID string) error {
	n, err := repo.CountActiveOwnerships(ctx, s.DB, cardID)
	if err != nil {
		return err
	}
	if n > 1 {
		s.Log.Error().
			Str("card_id", cardID).
			Int64("active_rows", n).
			Msg("INVARIANT VIOLATION: multiple active ownerships for one card")
		return errors.New("ownership invariant violated: multiple active rows")
	}
	return nil
}
