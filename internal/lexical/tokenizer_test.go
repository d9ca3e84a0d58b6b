package lexical

import (
	"reflect"
	"testing"
)

func TestTokenizeLowercasesAndSplits(t *testing.T) {
	got := Tokenize("Red-SHOES, size:42!")
	want := []string{"red", "sho", "42"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize() = %v, want %v", got, want)
	}
}

func TestTokenizeRemovesStopWords(t *testing.T) {
	got := Tokenize("the cat and the hat")
	want := []string{"cat", "hat"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize() = %v, want %v", got, want)
	}
}

func TestTokenizeDropsShortFragments(t *testing.T) {
	got := Tokenize("x y running")
	want := []string{"runn"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize() = %v, want %v", got, want)
	}
}

func TestTokenizeQueryAndDocumentAgree(t *testing.T) {
	// The same function runs at build and query time, so inflected forms
	// must collapse to the same term.
	doc := Tokenize("running shoes for athletes")
	query := Tokenize("run shoes")
	if doc[1] != query[1] {
		t.Errorf("document term %q does not match query term %q", doc[1], query[1])
	}
}

func TestTokenizeEmpty(t *testing.T) {
	if got := Tokenize(""); len(got) != 0 {
		t.Errorf("Tokenize(\"\") = %v, want empty", got)
	}
	if got := Tokenize("the of and"); len(got) != 0 {
		t.Errorf("Tokenize(stop words only) = %v, want empty", got)
	}
}

func TestStemRules(t *testing.T) {
	cases := map[string]string{
		"dependencies": "dependence",
		"payments":     "payment",
		"optimizing":   "optimize",
		"flying":       "fly",
		"stories":      "story",
		"fastest":      "fast",
		"cat":          "cat",
	}
	for in, want := range cases {
		if got := stem(in); got != want {
			t.Errorf("stem(%q) = %q, want %q", in, got, want)
		}
	}
}
