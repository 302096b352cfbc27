package search

import (
	"fmt"
	"testing"
)

func sampleDocs() []Doc {
	return []Doc{
		{CardID: "c1", Title: "A Legendary Bond of Forever", Caption: "A legendary conversation about forever, love.", Keywords: []string{"forever", "love"}},
		{CardID: "c2", Title: "A Rare Exchange of Goodbye", Caption: "A rare conversation about goodbye.", Keywords: []string{"goodbye"}},
		{CardID: "c3", Title: "A Moment", Caption: "A common conversation.", Keywords: nil},
	}
}

func TestTopK_RanksByOverlap(t *testing.T) {
	idx := New(sampleDocs())

	got := idx.TopK("legendary love forever", 2)
	if len(got) == 0 {
		t.Fatal("no results")
	}
	if got[0].CardID != "c1" {
		t.Fatalf("top result = %s, want c1", got[0].CardID)
	}
	if got[0].Score <= 0 || got[0].Score > 1 {
		t.Fatalf("score = %v, want in (0,1]", got[0].Score)
	}
}

func TestTopK_NoMatches(t *testing.T) {
	idx := New(sampleDocs())

	if got := idx.TopK("zebra quantum", 5); got != nil {
		t.Fatalf("unrelated query returned %v", got)
	}
	if got := idx.TopK("", 5); got != nil {
		t.Fatalf("empty query returned %v", got)
	}
	if got := idx.TopK("   ", 5); got != nil {
		t.Fatalf("blank query returned %v", got)
	}
}

func TestTopK_KBoundsAndDefault(t *testing.T) {
	idx := New(sampleDocs())

	// Every doc mentions "conversation"; k caps the page.
	if got := idx.TopK("conversation", 2); len(got) != 2 {
		t.Fatalf("k=2 returned %d results", len(got))
	}
	// k above the match count returns everything once.
	if got := idx.TopK("conversation", 50); len(got) != 3 {
		t.Fatalf("k=50 returned %d results", len(got))
	}
	// Non-positive k falls back to the default cap.
	if got := idx.TopK("conversation", 0); len(got) != 3 {
		t.Fatalf("k=0 returned %d results", len(got))
	}
}

func TestTopK_Deterministic(t *testing.T) {
	idx := New(sampleDocs())

	first := idx.TopK("conversation about love", 3)
	for i := 0; i < 5; i++ {
		again := idx.TopK("conversation about love", 3)
		if len(again) != len(first) {
			t.Fatalf("run %d: %d results, want %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("run %d diverged at %d: %+v vs %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestTopK_TieBreaksTowardTighterMatch(t *testing.T) {
	idx := New([]Doc{
		{CardID: "wordy", Title: "love story", Caption: "an unrelated extra wordy caption full of filler"},
		{CardID: "tight", Title: "love story"},
	})

	got := idx.TopK("love story", 2)
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	if got[0].CardID != "tight" {
		t.Fatalf("top result = %s, want the tighter match", got[0].CardID)
	}
}

func TestNew_SkipsEmptyDocs(t *testing.T) {
	idx := New([]Doc{
		{CardID: ""},
		{CardID: "blank", Title: "   ", Caption: ""},
		{CardID: "ok", Title: "hello"},
	})

	got := idx.TopK("hello", 5)
	if len(got) != 1 || got[0].CardID != "ok" {
		t.Fatalf("results = %+v, want only the non-empty doc", got)
	}
}

func TestWithStopwords(t *testing.T) {
	idx := New(sampleDocs(), WithStopwords([]string{"a", "about", "conversation"}))

	// "conversation" is stopped out of both docs and queries.
	if got := idx.TopK("conversation", 5); got != nil {
		t.Fatalf("stopped query returned %v", got)
	}
	if got := idx.TopK("goodbye", 5); len(got) != 1 || got[0].CardID != "c2" {
		t.Fatalf("goodbye results = %+v", got)
	}
}

func TestWithMaxDocs(t *testing.T) {
	docs := make([]Doc, 0, 10)
	for i := 0; i < 10; i++ {
		docs = append(docs, Doc{CardID: fmt.Sprintf("c%d", i), Title: "shared title"})
	}
	idx := New(docs, WithMaxDocs(4))

	if got := idx.TopK("shared title", 50); len(got) != 4 {
		t.Fatalf("results = %d, want maxDocs cap of 4", len(got))
	}
}
