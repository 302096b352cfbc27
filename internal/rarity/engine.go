// Package rarity implements the deterministic scoring engine that turns a
// conversation's sentiment result, participant roster, and message-type
// histogram into a rarity tier.
//
// The engine is a pure function of its inputs: no I/O, no clock, no
// randomness. Valid inputs never produce an error; malformed inputs (empty
// histogram, nil roster) degrade the affected multipliers to zero instead of
// failing.
//
// Scoring model:
//
//  1. baseScore  = sentiment score clamped into [0,1]
//  2. baseTier   = threshold lookup, highest-first
//  3. multipliers: identity, dynamics, voice, group size, surprise —
//     each independently capped
//  4. finalScore = baseScore × Π(1 + multiplier_i)
//  5. finalTier  = threshold lookup over min(finalScore, 1)
//
// The multiplicative combination means several simultaneous strong signals
// compound super-linearly. The raw finalScore is kept uncapped in the output
// for analytics; only the tier lookup clamps.
package rarity

import "math"

// Group-size boost steps. Two-party conversations get nothing; the boost
// saturates at ten or more participants.
const (
	groupBoostSmall  = 0.1 // 3–4 participants
	groupBoostMedium = 0.3 // 5–9 participants
	groupBoostLarge  = 0.5 // >= 10 participants
)

// Params are the operator-tunable scoring constants. See config.RarityConfig
// for the environment surface and defaults.
type Params struct {
	LegendaryMin float64
	EpicMin      float64
	RareMin      float64
	UncommonMin  float64

	IdentityStep float64
	IdentityCap  float64
	VoiceWeight  float64
	VoiceCap     float64
}

// DefaultParams returns the documented tier boundaries and multiplier caps.
func DefaultParams() Params {
	return Params{
		LegendaryMin: 0.95,
		EpicMin:      0.85,
		RareMin:      0.70,
		UncommonMin:  0.50,
		IdentityStep: 0.5,
		IdentityCap:  2.0,
		VoiceWeight:  0.3,
		VoiceCap:     0.3,
	}
}

// Participant is the roster entry the engine sees. Notable marks identities
// whose presence boosts rarity (verified/celebrity accounts upstream).
type Participant struct {
	UserID  string
	Notable bool
}

// Input is everything the engine scores over.
type Input struct {
	// Score is the sentiment-derived base score; clamped into [0,1].
	Score float64
	// EmotionalIntensity drives the dynamics multiplier, expected in [0,1].
	EmotionalIntensity float64
	// TimingVariance is the normalized message-timing-variance proxy in
	// [0,1]; it drives the surprise multiplier.
	TimingVariance float64
	// Participants is the conversation roster.
	Participants []Participant
	// MessageTypes is the histogram of message type → count.
	MessageTypes map[string]int
}

// Multipliers is the named multiplier vector of a calculation.
type Multipliers struct {
	Identity  float64 `json:"identity"`
	Dynamics  float64 `json:"dynamics"`
	Voice     float64 `json:"voice"`
	GroupSize float64 `json:"group_size"`
	Surprise  float64 `json:"surprise"`
}

// Calculation is the full scoring breakdown. It is embedded verbatim into
// Card.rarity_data, so field names are part of the stored format.
type Calculation struct {
	BaseScore   float64     `json:"base_score"`
	BaseTier    string      `json:"base_tier"`
	Multipliers Multipliers `json:"multipliers"`
	// FinalScore is the raw multiplied score, deliberately not clamped.
	FinalScore float64 `json:"final_score"`
	FinalTier  string  `json:"final_tier"`
}

// Engine computes rarity calculations with a fixed parameter set.
type Engine struct {
	params Params
}

// NewEngine constructs an Engine from params.
func NewEngine(params Params) *Engine {
	return &Engine{params: params}
}

// Calculate scores one conversation. It is deterministic: identical inputs
// yield identical outputs across calls.
func (e *Engine) Calculate(in Input) Calculation {
	base := clamp01(in.Score)

	m := Multipliers{
		Identity:  e.identityBoost(in.Participants),
		Dynamics:  clamp01(in.EmotionalIntensity),
		Voice:     e.voiceBoost(in.MessageTypes),
		GroupSize: groupBoost(len(in.Participants)),
		Surprise:  clamp01(in.TimingVariance),
	}

	final := base *
		(1 + m.Identity) *
		(1 + m.Dynamics) *
		(1 + m.Voice) *
		(1 + m.GroupSize) *
		(1 + m.Surprise)

	return Calculation{
		BaseScore:   base,
		BaseTier:    e.ScoreToTier(base),
		Multipliers: m,
		FinalScore:  final,
		FinalTier:   e.ScoreToTier(math.Min(final, 1)),
	}
}

// ScoreToTier maps a [0,1] score onto a tier name. Thresholds are evaluated
// highest-first; anything below the uncommon boundary is common.
func (e *Engine) ScoreToTier(score float64) string {
	switch {
	case score >= e.params.LegendaryMin:
		return "legendary"
	case score >= e.params.EpicMin:
		return "epic"
	case score >= e.params.RareMin:
		return "rare"
	case score >= e.params.UncommonMin:
		return "uncommon"
	default:
		return "common"
	}
}

// TierRank orders tiers for monotonicity comparisons; unknown tiers rank
// below common.
func TierRank(tier string) int {
	switch tier {
	case "legendary":
		return 5
	case "epic":
		return 4
	case "rare":
		return 3
	case "uncommon":
		return 2
	case "common":
		return 1
	default:
		return 0
	}
}

// identityBoost scales linearly with the number of notable participants,
// capped at IdentityCap.
func (e *Engine) identityBoost(roster []Participant) float64 {
	notable := 0
	for _, p := range roster {
		if p.Notable {
			notable++
		}
	}
	return math.Min(float64(notable)*e.params.IdentityStep, e.params.IdentityCap)
}

// voiceBoost is the voice-message ratio scaled by VoiceWeight and capped at
// VoiceCap. An empty histogram yields zero, not an error.
func (e *Engine) voiceBoost(types map[string]int) float64 {
	total := 0
	for _, n := range types {
		if n > 0 {
			total += n
		}
	}
	if total == 0 {
		return 0
	}
	ratio := float64(types["voice"]) / float64(total)
	return math.Min(ratio*e.params.VoiceWeight, e.params.VoiceCap)
}

// groupBoost is a step function of participant count.
func groupBoost(n int) float64 {
	switch {
	case n >= 10:
		return groupBoostLarge
	case n >= 5:
		return groupBoostMedium
	case n >= 3:
		return groupBoostSmall
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// TimingVariance normalizes the spread of message timestamps into [0,1],
// the surprise proxy. It is exported so the eligibility gate and the engine
// share one definition. Fewer than three timestamps carry no signal.
//
// The spread is measured as the coefficient of variation of inter-message
// gaps, squashed with 1 - 1/(1+cv) so bursty conversations approach 1.
func TimingVariance(unixTimes []int64) float64 {
	if len(unixTimes) < 3 {
		return 0
	}
	gaps := make([]float64, 0, len(unixTimes)-1)
	for i := 1; i < len(unixTimes); i++ {
		d := float64(unixTimes[i] - unixTimes[i-1])
		if d < 0 {
			d = -d
		}
		gaps = append(gaps, d)
	}
	var sum float64
	for _, g := range gaps {
		sum += g
	}
	mean := sum / float64(len(gaps))
	if mean == 0 {
		return 0
	}
	var varSum float64
	for _, g := range gaps {
		varSum += (g - mean) * (g - mean)
	}
	cv := math.Sqrt(varSum/float64(len(gaps))) / mean
	return clamp01(1 - 1/(1+cv))
}
