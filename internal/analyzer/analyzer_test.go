package analyzer

import (
	"reflect"
	"testing"
)

func TestDefaultPipelinePositionsSurviveFiltering(t *testing.T) {
	a := Default()
	// "Magic is a stone Kingdom": "is" and "a" are stop words, so the
	// surviving tokens keep their pre-filter (tokenizer-time) positions:
	// magic@0, stone@3, kingdom@4.
	tokens := a.Analyze("Magic is a stone Kingdom")

	want := []Token{
		{Term: "magic", Pos: 0},
		{Term: "stone", Pos: 3},
		{Term: "kingdom", Pos: 4},
	}
	if !reflect.DeepEqual(tokens, want) {
		t.Fatalf("got %+v, want %+v", tokens, want)
	}
}

func TestDefaultPipelineLowercaseAndStem(t *testing.T) {
	a := Default()
	tokens := a.Analyze("Running RUNNERS quickly")
	if len(tokens) != 3 {
		t.Fatalf("expected 3 surviving tokens, got %d: %+v", len(tokens), tokens)
	}
	for _, tok := range tokens {
		for _, r := range tok.Term {
			if r >= 'A' && r <= 'Z' {
				t.Fatalf("token %q not lowercased", tok.Term)
			}
		}
	}
}

func TestNumericDropFilter(t *testing.T) {
	a := Default()
	tokens := a.Analyze("the year 2024 was fine")
	for _, tok := range tokens {
		if tok.Term == "2024" {
			t.Fatalf("expected purely numeric token to be dropped, got %+v", tokens)
		}
	}
}

func TestPunctuationStripFilterDropsShortAndEmpty(t *testing.T) {
	filter := PunctuationStripFilter(2)
	in := []Token{
		{Term: "a", Pos: 0},
		{Term: "...", Pos: 1},
		{Term: "ok", Pos: 2},
		{Term: "--hi--", Pos: 3},
	}
	out := filter(in)
	want := []Token{
		{Term: "ok", Pos: 2},
		{Term: "hi", Pos: 3},
	}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("got %+v, want %+v", out, want)
	}
}

func TestStripHTMLDropsScriptAndBoilerplate(t *testing.T) {
	doc := `<html><body>
		<nav class="site-nav">skip this nav text</nav>
		<script>var x = 1;</script>
		<p>keep this paragraph</p>
	</body></html>`
	out := StripHTML(doc)
	if containsWord(out, "skip") || containsWord(out, "nav") {
		t.Fatalf("expected nav boilerplate to be dropped, got %q", out)
	}
	if containsWord(out, "var") {
		t.Fatalf("expected script content to be dropped, got %q", out)
	}
	if !containsWord(out, "keep") {
		t.Fatalf("expected paragraph content to survive, got %q", out)
	}
}

func containsWord(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
