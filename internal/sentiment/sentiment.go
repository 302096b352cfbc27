// Package sentiment defines the contract for the external conversation
// scoring collaborator and ships a deterministic rule-based implementation
// used as the in-process default.
//
// The Source interface is the seam: the rule-based analyzer here can be
// swapped for an ML-backed client without touching the rarity engine or the
// generation pipeline, which only consume the Result shape.
package sentiment

import (
	"context"
	"sort"
	"strings"
	"time"
)

// MessageView is one conversation utterance as the collaborator sees it.
type MessageView struct {
	Content   string
	SenderID  string
	Timestamp time.Time
}

// Result is the collaborator's output contract.
type Result struct {
	// Score is the overall emotional-content score in [0,1]; it becomes the
	// rarity base score.
	Score float64
	// SurpriseFactor in [0,1].
	SurpriseFactor float64
	// EmotionalIntensity in [0,1]; drives the dynamics multiplier.
	EmotionalIntensity float64
	// Keywords holds at most ten extracted keywords.
	Keywords        []string
	BreakupDetected bool
	// Metadata is free-form analyzer detail, persisted alongside the result.
	Metadata map[string]any
}

// Source scores a conversation's messages. Implementations must be safe for
// concurrent use and deterministic for identical input; idempotency per
// conversation is provided by the caching layer above, not here.
type Source interface {
	Analyze(ctx context.Context, messages []MessageView) (*Result, error)
}

const maxKeywords = 10

// Term weights for the rule-based analyzer. Heavier terms signal stronger
// emotional content.
var emotionTerms = map[string]float64{
	"love":         0.9,
	"hate":         0.8,
	"miss":         0.7,
	"sorry":        0.6,
	"always":       0.4,
	"never":        0.5,
	"forever":      0.7,
	"goodbye":      0.8,
	"please":       0.4,
	"why":          0.3,
	"cry":          0.7,
	"happy":        0.5,
	"angry":        0.6,
	"scared":       0.6,
	"beautiful":    0.5,
	"wow":          0.4,
	"amazing":      0.5,
	"unbelievable": 0.6,
}

var breakupTerms = []string{
	"break up", "breakup", "it's over", "its over", "we're done", "were done",
	"i'm leaving", "im leaving", "never see you again",
}

var surpriseTerms = []string{
	"what", "really", "no way", "can't believe", "cant believe", "wow",
	"unbelievable", "seriously", "!?", "?!",
}

// RuleBased is the keyword-matching reference analyzer. Zero value ready.
type RuleBased struct{}

// Analyze scores the messages with fixed term weights. It never fails for
// valid input; an empty conversation scores zero everywhere.
func (RuleBased) Analyze(_ context.Context, messages []MessageView) (*Result, error) {
	if len(messages) == 0 {
		return &Result{Keywords: []string{}, Metadata: map[string]any{"analyzer": "rule-based"}}, nil
	}

	var weight float64
	hits := map[string]int{}
	surprises := 0
	breakup := false

	for _, m := range messages {
		low := strings.ToLower(m.Content)
		for term, w := range emotionTerms {
			if n := strings.Count(low, term); n > 0 {
				weight += w * float64(n)
				hits[term] += n
			}
		}
		for _, term := range surpriseTerms {
			surprises += strings.Count(low, term)
		}
		if !breakup {
			for _, term := range breakupTerms {
				if strings.Contains(low, term) {
					breakup = true
					break
				}
			}
		}
	}

	n := float64(len(messages))
	score := squash(weight / n)
	surprise := squash(float64(surprises) / n * 2)
	intensity := squash(weight / n * 1.5)
	if breakup {
		score = min(score+0.25, 1)
		intensity = min(intensity+0.3, 1)
	}

	return &Result{
		Score:              score,
		SurpriseFactor:     surprise,
		EmotionalIntensity: intensity,
		Keywords:           topKeywords(hits),
		BreakupDetected:    breakup,
		Metadata: map[string]any{
			"analyzer":      "rule-based",
			"message_count": len(messages),
			"term_weight":   weight,
		},
	}, nil
}

// squash maps [0,inf) into [0,1) smoothly; small inputs stay near-linear.
func squash(v float64) float64 {
	if v <= 0 {
		return 0
	}
	out := v / (v + 1)
	// v/(v+1) compresses hard; stretch the useful low range.
	out *= 1.6
	if out > 1 {
		out = 1
	}
	return out
}

// topKeywords returns up to maxKeywords terms ordered by hit count, ties
// broken alphabetically so output is deterministic.
func topKeywords(hits map[string]int) []string {
	terms := make([]string, 0, len(hits))
	for t := range hits {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if hits[terms[i]] != hits[terms[j]] {
			return hits[terms[i]] > hits[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxKeywords {
		terms = terms[:maxKeywords]
	}
	return terms
}
