package sentiment

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func msgs(contents ...string) []MessageView {
	out := make([]MessageView, 0, len(contents))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, c := range contents {
		out = append(out, MessageView{
			Content:   c,
			SenderID:  "u1",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestRuleBased_EmptyConversation(t *testing.T) {
	res, err := RuleBased{}.Analyze(context.Background(), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Score != 0 || res.SurpriseFactor != 0 || res.EmotionalIntensity != 0 {
		t.Fatalf("empty conversation should score zero everywhere: %+v", res)
	}
	if res.BreakupDetected {
		t.Fatal("empty conversation flagged as breakup")
	}
	if len(res.Keywords) != 0 {
		t.Fatalf("keywords = %v, want none", res.Keywords)
	}
}

func TestRuleBased_Deterministic(t *testing.T) {
	in := msgs("i love you", "i will always miss you", "goodbye forever")

	first, err := RuleBased{}.Analyze(context.Background(), in)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := RuleBased{}.Analyze(context.Background(), in)
		if err != nil {
			t.Fatalf("Analyze repeat %d: %v", i, err)
		}
		if again.Score != first.Score ||
			again.SurpriseFactor != first.SurpriseFactor ||
			again.EmotionalIntensity != first.EmotionalIntensity ||
			again.BreakupDetected != first.BreakupDetected ||
			!reflect.DeepEqual(again.Keywords, first.Keywords) {
			t.Fatalf("repeat %d diverged: %+v vs %+v", i, again, first)
		}
	}
}

func TestRuleBased_EmotionRaisesScore(t *testing.T) {
	flat, err := RuleBased{}.Analyze(context.Background(), msgs("ok", "sure", "fine"))
	if err != nil {
		t.Fatalf("Analyze flat: %v", err)
	}
	charged, err := RuleBased{}.Analyze(context.Background(), msgs("i love you", "i will miss you forever", "please don't cry"))
	if err != nil {
		t.Fatalf("Analyze charged: %v", err)
	}
	if charged.Score <= flat.Score {
		t.Fatalf("charged score %v not above flat %v", charged.Score, flat.Score)
	}
	if charged.EmotionalIntensity <= flat.EmotionalIntensity {
		t.Fatalf("charged intensity %v not above flat %v", charged.EmotionalIntensity, flat.EmotionalIntensity)
	}
}

func TestRuleBased_BreakupDetection(t *testing.T) {
	cases := map[string]bool{
		"i think we should break up":  true,
		"it's over between us":        true,
		"I'M LEAVING tonight":         true,
		"let's talk it over tomorrow": false,
	}
	for content, want := range cases {
		res, err := RuleBased{}.Analyze(context.Background(), msgs(content))
		if err != nil {
			t.Fatalf("Analyze %q: %v", content, err)
		}
		if res.BreakupDetected != want {
			t.Fatalf("breakup(%q) = %v, want %v", content, res.BreakupDetected, want)
		}
	}
}

func TestRuleBased_BreakupBoostsScore(t *testing.T) {
	plain, err := RuleBased{}.Analyze(context.Background(), msgs("goodbye, i will miss you"))
	if err != nil {
		t.Fatalf("Analyze plain: %v", err)
	}
	breakup, err := RuleBased{}.Analyze(context.Background(), msgs("goodbye, i will miss you, we're done"))
	if err != nil {
		t.Fatalf("Analyze breakup: %v", err)
	}
	if breakup.Score <= plain.Score {
		t.Fatalf("breakup score %v not above plain %v", breakup.Score, plain.Score)
	}
}

func TestRuleBased_SurpriseSignals(t *testing.T) {
	res, err := RuleBased{}.Analyze(context.Background(), msgs("no way!? i can't believe it, seriously"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.SurpriseFactor <= 0 || res.SurpriseFactor > 1 {
		t.Fatalf("surprise factor = %v, want in (0,1]", res.SurpriseFactor)
	}
}

func TestRuleBased_KeywordsCappedAndOrdered(t *testing.T) {
	// Every emotion term once, plus "love" repeated so it sorts first.
	in := msgs(
		"love love love",
		"hate miss sorry always never forever goodbye please why",
		"cry happy angry scared beautiful wow amazing unbelievable",
	)
	res, err := RuleBased{}.Analyze(context.Background(), in)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Keywords) != 10 {
		t.Fatalf("keywords = %d, want cap of 10", len(res.Keywords))
	}
	if res.Keywords[0] != "love" {
		t.Fatalf("top keyword = %q, want most frequent term first", res.Keywords[0])
	}
}

func TestRuleBased_ScoresStayInRange(t *testing.T) {
	in := msgs(
		"love love love love love hate hate hate goodbye goodbye",
		"forever forever never never cry cry angry angry scared scared",
	)
	res, err := RuleBased{}.Analyze(context.Background(), in)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for name, v := range map[string]float64{
		"score":     res.Score,
		"surprise":  res.SurpriseFactor,
		"intensity": res.EmotionalIntensity,
	} {
		if v < 0 || v > 1 {
			t.Fatalf("%s = %v, want within [0,1]", name, v)
		}
	}
}

// flakySource fails a fixed number of times before succeeding.
type flakySource struct {
	failures int
	calls    int
}

func (f *flakySource) Analyze(context.Context, []MessageView) (*Result, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient")
	}
	return &Result{Score: 0.5}, nil
}

func TestRetrying_RecoversFromTransientFailures(t *testing.T) {
	src := &flakySource{failures: 2}
	r := &Retrying{Inner: src, MaxElapsed: 2 * time.Second}

	res, err := r.Analyze(context.Background(), msgs("hi"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Score != 0.5 {
		t.Fatalf("score = %v, want inner result", res.Score)
	}
	if src.calls != 3 {
		t.Fatalf("inner calls = %d, want 3", src.calls)
	}
}

func TestRetrying_ExhaustionWrapsErrUnavailable(t *testing.T) {
	src := &flakySource{failures: 1 << 30}
	r := &Retrying{Inner: src, MaxElapsed: 50 * time.Millisecond}

	if _, err := r.Analyze(context.Background(), msgs("hi")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestRetrying_ContextCancellationIsPermanent(t *testing.T) {
	src := &flakySource{failures: 1 << 30}
	r := &Retrying{Inner: src, MaxElapsed: 10 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if _, err := r.Analyze(ctx, msgs("hi")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("cancelled context should stop retries immediately")
	}
}
