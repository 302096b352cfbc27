// Package events provides the best-effort, non-blocking emission path for
// card lifecycle events.
//
// State transitions must never fail or slow down because audit logging is
// struggling, but silent loss is not acceptable either: every drop and every
// failed write is counted in Prometheus and logged, so the best-effort
// semantics stay observable.
//
// The Emitter accepts events on a bounded channel and persists them from a
// single background goroutine, preserving per-card acceptance order.
// Transitions that must be atomic with their event (generation, claims)
// bypass the Emitter and append inside their own transaction; the Emitter
// carries the purely informational events (declines, offers, view-adjacent
// signals).
package events

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-cards-backend/internal/domain"
	"github.com/tbourn/go-cards-backend/internal/repo"
)

var (
	emitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_events_emitted_total",
			Help: "Card lifecycle events accepted for persistence.",
		},
		[]string{"type"},
	)

	dropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_events_dropped_total",
			Help: "Card lifecycle events lost to a full buffer, a closed emitter, or a failed write.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(emitted, dropped)
}

// Emitter is the non-blocking event sink. Construct with NewEmitter and stop
// with Close; Emit never blocks the caller.
type Emitter struct {
	db     *gorm.DB
	log    zerolog.Logger
	ch     chan domain.CardEvent
	errs   chan error
	done   chan struct{}
	closed chan struct{}
}

// NewEmitter starts an Emitter with the given buffer size. A buffer of zero
// or less is coerced to 64.
func NewEmitter(db *gorm.DB, log zerolog.Logger, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 64
	}
	e := &Emitter{
		db:     db,
		log:    log,
		ch:     make(chan domain.CardEvent, buffer),
		errs:   make(chan error, buffer),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go e.run()
	return e
}

// Emit queues one event for persistence. When the buffer is full, or the
// Emitter has been closed, the event is dropped, counted, and logged; the
// caller is never delayed. The emitted counter only moves for events the
// writer will actually see.
func (e *Emitter) Emit(cardID, eventType string, userID *string, metadata string) {
	select {
	case <-e.done:
		dropped.WithLabelValues("closed").Inc()
		e.log.Warn().
			Str("card_id", cardID).
			Str("event_type", eventType).
			Msg("emitter closed, dropping card event")
		return
	default:
	}

	ev := domain.CardEvent{
		ID:        repo.NewEventID(time.Now().UTC()),
		CardID:    cardID,
		EventType: eventType,
		UserID:    userID,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	select {
	case e.ch <- ev:
		emitted.WithLabelValues(eventType).Inc()
	default:
		dropped.WithLabelValues("buffer_full").Inc()
		e.log.Warn().
			Str("card_id", cardID).
			Str("event_type", eventType).
			Msg("event buffer full, dropping card event")
	}
}

// Errors exposes persistence failures for observation (tests, alerting
// shims). The channel is buffered and never blocks the writer; un-drained
// errors are discarded.
func (e *Emitter) Errors() <-chan error {
	return e.errs
}

// Close stops accepting events, flushes what is queued, and waits for the
// writer goroutine to exit.
func (e *Emitter) Close() {
	close(e.done)
	<-e.closed
}

func (e *Emitter) run() {
	defer close(e.closed)
	for {
		select {
		case ev := <-e.ch:
			e.persist(ev)
		case <-e.done:
			// Drain whatever was accepted before Close.
			for {
				select {
				case ev := <-e.ch:
					e.persist(ev)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) persist(ev domain.CardEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := repo.AppendEvent(ctx, e.db, &ev); err != nil {
		dropped.WithLabelValues("write_failed").Inc()
		e.log.Error().
			Err(err).
			Str("card_id", ev.CardID).
			Str("event_type", ev.EventType).
			Msg("failed to persist card event")
		select {
		case e.errs <- err:
		default:
		}
	}
}
