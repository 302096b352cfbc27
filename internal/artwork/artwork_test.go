package artwork

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPlaceholderURL(t *testing.T) {
	if got := PlaceholderURL("legendary"); got != "asset://cards/placeholder/legendary.png" {
		t.Fatalf("PlaceholderURL = %q", got)
	}
	// Tier strings come from the rarity engine, but an escaped reference
	// must stay well formed even for unexpected input.
	if got := PlaceholderURL("odd tier"); got != "asset://cards/placeholder/odd%20tier.png" {
		t.Fatalf("PlaceholderURL escaped = %q", got)
	}
}

func TestPlaceholder_Render(t *testing.T) {
	ref, err := Placeholder{}.Render(context.Background(), Request{Tier: "rare"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if ref != PlaceholderURL("rare") {
		t.Fatalf("ref = %q", ref)
	}
}

// flakyRenderer fails a fixed number of times before succeeding.
type flakyRenderer struct {
	failures int
	calls    int
}

func (f *flakyRenderer) Render(context.Context, Request) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("renderer busy")
	}
	return "https://cdn.example/out.png", nil
}

// emptyRenderer succeeds with an empty reference, which counts as a failure.
type emptyRenderer struct{}

func (emptyRenderer) Render(context.Context, Request) (string, error) { return "", nil }

func TestDegrading_RetriesThenSucceeds(t *testing.T) {
	inner := &flakyRenderer{failures: 2}
	d := &Degrading{Inner: inner, MaxElapsed: 2 * time.Second}

	ref, err := d.Render(context.Background(), Request{Tier: "epic"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if ref != "https://cdn.example/out.png" {
		t.Fatalf("ref = %q, want inner result", ref)
	}
	if inner.calls != 3 {
		t.Fatalf("inner calls = %d, want 3", inner.calls)
	}
}

func TestDegrading_ExhaustionFallsBackWithoutError(t *testing.T) {
	inner := &flakyRenderer{failures: 1 << 30}
	d := &Degrading{Inner: inner, MaxElapsed: 50 * time.Millisecond}

	ref, err := d.Render(context.Background(), Request{Tier: "epic"})
	if err != nil {
		t.Fatalf("Render should degrade, not fail: %v", err)
	}
	if ref != PlaceholderURL("epic") {
		t.Fatalf("ref = %q, want placeholder", ref)
	}
}

func TestDegrading_EmptyReferenceIsAFailure(t *testing.T) {
	d := &Degrading{Inner: emptyRenderer{}, MaxElapsed: 50 * time.Millisecond}

	ref, err := d.Render(context.Background(), Request{Tier: "rare"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if ref != PlaceholderURL("rare") {
		t.Fatalf("ref = %q, want placeholder for empty renderer output", ref)
	}
}

func TestDegrading_CancelledContextStopsImmediately(t *testing.T) {
	inner := &flakyRenderer{failures: 1 << 30}
	d := &Degrading{Inner: inner, MaxElapsed: 10 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	ref, err := d.Render(ctx, Request{Tier: "rare"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if ref != PlaceholderURL("rare") {
		t.Fatalf("ref = %q, want placeholder", ref)
	}
	if time.Since(start) > time.Second {
		t.Fatal("cancelled context should stop retries immediately")
	}
}
