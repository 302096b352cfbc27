package rarity

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculate_Deterministic(t *testing.T) {
	e := NewEngine(DefaultParams())
	in := Input{
		Score:              0.72,
		EmotionalIntensity: 0.4,
		TimingVariance:     0.25,
		Participants: []Participant{
			{UserID: "u1"},
			{UserID: "u2", Notable: true},
			{UserID: "u3"},
		},
		MessageTypes: map[string]int{"text": 12, "voice": 4},
	}

	first := e.Calculate(in)
	for i := 0; i < 5; i++ {
		got := e.Calculate(in)
		if got != first {
			t.Fatalf("calculation %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestCalculate_KnownScenario(t *testing.T) {
	// 3 participants, 7 text + 3 voice, no notable identities,
	// dynamics=0.6, base=0.55, no timing signal.
	e := NewEngine(DefaultParams())
	got := e.Calculate(Input{
		Score:              0.55,
		EmotionalIntensity: 0.6,
		TimingVariance:     0,
		Participants: []Participant{
			{UserID: "u1"}, {UserID: "u2"}, {UserID: "u3"},
		},
		MessageTypes: map[string]int{"text": 7, "voice": 3},
	})

	if !almostEqual(got.Multipliers.Voice, 0.09) {
		t.Fatalf("voice multiplier = %v, want 0.09", got.Multipliers.Voice)
	}
	if !almostEqual(got.Multipliers.GroupSize, 0.1) {
		t.Fatalf("group multiplier = %v, want 0.1", got.Multipliers.GroupSize)
	}
	if got.Multipliers.Identity != 0 {
		t.Fatalf("identity multiplier = %v, want 0", got.Multipliers.Identity)
	}
	if got.Multipliers.Surprise != 0 {
		t.Fatalf("surprise multiplier = %v, want 0", got.Multipliers.Surprise)
	}

	want := 0.55 * 1.09 * 1.1 * 1.6
	if !almostEqual(got.FinalScore, want) {
		t.Fatalf("final score = %v, want %v", got.FinalScore, want)
	}
	if got.FinalScore <= 1 {
		t.Fatalf("final score should exceed 1 before tier clamp, got %v", got.FinalScore)
	}
	if got.FinalTier != "legendary" {
		t.Fatalf("final tier = %q, want legendary", got.FinalTier)
	}
	if got.BaseTier != "uncommon" {
		t.Fatalf("base tier = %q, want uncommon", got.BaseTier)
	}
}

func TestCalculate_MonotoneInBaseScore(t *testing.T) {
	e := NewEngine(DefaultParams())
	in := Input{
		EmotionalIntensity: 0.5,
		Participants:       []Participant{{UserID: "a"}, {UserID: "b"}},
		MessageTypes:       map[string]int{"text": 10},
	}

	prevScore := -1.0
	prevRank := 0
	for _, s := range []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0} {
		in.Score = s
		got := e.Calculate(in)
		if got.FinalScore < prevScore {
			t.Fatalf("final score decreased at base=%v: %v < %v", s, got.FinalScore, prevScore)
		}
		if TierRank(got.FinalTier) < prevRank {
			t.Fatalf("tier decreased at base=%v: %q", s, got.FinalTier)
		}
		prevScore, prevRank = got.FinalScore, TierRank(got.FinalTier)
	}
}

func TestScoreToTier_Boundaries(t *testing.T) {
	e := NewEngine(DefaultParams())
	cases := map[float64]string{
		0:     "common",
		0.499: "common",
		0.50:  "uncommon",
		0.699: "uncommon",
		0.70:  "rare",
		0.849: "rare",
		0.85:  "epic",
		0.949: "epic",
		0.95:  "legendary",
		1.0:   "legendary",
	}
	for score, want := range cases {
		if got := e.ScoreToTier(score); got != want {
			t.Fatalf("ScoreToTier(%v) = %q, want %q", score, got, want)
		}
	}
}

func TestIdentityBoost_StepAndCap(t *testing.T) {
	e := NewEngine(DefaultParams())

	roster := func(notable int) []Participant {
		out := make([]Participant, notable)
		for i := range out {
			out[i] = Participant{UserID: "n", Notable: true}
		}
		return out
	}

	if got := e.identityBoost(roster(1)); !almostEqual(got, 0.5) {
		t.Fatalf("1 notable = %v, want 0.5", got)
	}
	if got := e.identityBoost(roster(3)); !almostEqual(got, 1.5) {
		t.Fatalf("3 notable = %v, want 1.5", got)
	}
	// Cap at 2.0 regardless of how many notables pile on.
	if got := e.identityBoost(roster(40)); !almostEqual(got, 2.0) {
		t.Fatalf("40 notable = %v, want cap 2.0", got)
	}
}

func TestVoiceBoost_EmptyAndAllVoice(t *testing.T) {
	e := NewEngine(DefaultParams())

	if got := e.voiceBoost(nil); got != 0 {
		t.Fatalf("nil histogram = %v, want 0", got)
	}
	if got := e.voiceBoost(map[string]int{}); got != 0 {
		t.Fatalf("empty histogram = %v, want 0", got)
	}
	// 100% voice hits the cap exactly (1.0 × 0.3).
	if got := e.voiceBoost(map[string]int{"voice": 8}); !almostEqual(got, 0.3) {
		t.Fatalf("all-voice = %v, want 0.3", got)
	}
}

func TestGroupBoost_Steps(t *testing.T) {
	cases := map[int]float64{
		1:  0,
		2:  0,
		3:  0.1,
		4:  0.1,
		5:  0.3,
		9:  0.3,
		10: 0.5,
		50: 0.5,
	}
	for n, want := range cases {
		if got := groupBoost(n); got != want {
			t.Fatalf("groupBoost(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestCalculate_ClampsMalformedInputs(t *testing.T) {
	e := NewEngine(DefaultParams())
	got := e.Calculate(Input{
		Score:              1.7,
		EmotionalIntensity: -3,
		TimingVariance:     math.NaN(),
	})
	if got.BaseScore != 1 {
		t.Fatalf("base score = %v, want clamp to 1", got.BaseScore)
	}
	if got.Multipliers.Dynamics != 0 || got.Multipliers.Surprise != 0 {
		t.Fatalf("negative/NaN multipliers not clamped: %+v", got.Multipliers)
	}
}

func TestTimingVariance(t *testing.T) {
	if got := TimingVariance(nil); got != 0 {
		t.Fatalf("nil input = %v, want 0", got)
	}
	if got := TimingVariance([]int64{100, 200}); got != 0 {
		t.Fatalf("two timestamps = %v, want 0", got)
	}
	// Perfectly even cadence carries no surprise.
	if got := TimingVariance([]int64{0, 60, 120, 180, 240}); got != 0 {
		t.Fatalf("even cadence = %v, want 0", got)
	}
	// Bursts then silence must score above an even cadence and stay in [0,1].
	bursty := TimingVariance([]int64{0, 1, 2, 3, 7200, 7201, 7202})
	if bursty <= 0 || bursty >= 1 {
		t.Fatalf("bursty cadence = %v, want in (0,1)", bursty)
	}
}
