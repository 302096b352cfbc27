package search

import "testing"

func TestSearchableText_FlattensAndNormalizes(t *testing.T) {
	d := Doc{
		CardID:   "c1",
		Title:    "  A   Rare\tExchange ",
		Caption:  "about\ngoodbye.",
		Keywords: []string{" goodbye ", "", "miss"},
	}
	if got := SearchableText(d); got != "A Rare Exchange about goodbye. goodbye miss" {
		t.Fatalf("SearchableText = %q", got)
	}
}

func TestSearchableText_EmptyDoc(t *testing.T) {
	if got := SearchableText(Doc{CardID: "c1"}); got != "" {
		t.Fatalf("SearchableText = %q, want empty", got)
	}
}

func TestTokenize(t *testing.T) {
	toks := tokenize("Love, LOVE! café42 ... 123", nil)
	for _, want := range []string{"love", "café42"} {
		if _, ok := toks[want]; !ok {
			t.Fatalf("token %q missing from %v", want, toks)
		}
	}
	if len(toks) != 2 {
		t.Fatalf("tokens = %v, want exactly love and café42", toks)
	}

	stopped := tokenize("love and loss", map[string]struct{}{"and": {}})
	if _, ok := stopped["and"]; ok {
		t.Fatal("stopword survived tokenization")
	}
	if len(stopped) != 2 {
		t.Fatalf("tokens = %v, want love and loss", stopped)
	}

	if got := tokenize("!!! ???", nil); got != nil {
		t.Fatalf("punctuation-only input returned %v", got)
	}
}
