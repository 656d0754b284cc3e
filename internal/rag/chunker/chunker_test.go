package chunker

import (
	"strings"
	"testing"
)

func TestProcess_SeparatesTOCAndTables(t *testing.T) {
	doc := "# Intro\nSome intro text here.\n\n" +
		"1 Getting started..................3\n" +
		"2 Advanced usage...................8\n\n" +
		"## Advanced usage\nMore body text about advanced usage that is long enough to matter.\n\n" +
		"| A | B |\n| --- | --- |\n| 1 | 2 |\n"

	a := New()
	text, toc, table := a.Process(doc, Options{MaxTokens: 50})

	if len(text) == 0 {
		t.Fatalf("expected text chunks")
	}
	if len(toc) == 0 {
		t.Fatalf("expected toc chunks")
	}
	if len(table) == 0 {
		t.Fatalf("expected table chunks")
	}
	for _, c := range toc {
		if c.Category != CategoryTOC {
			t.Fatalf("expected toc category, got %v", c.Category)
		}
	}
	for _, c := range table {
		if c.Category != CategoryTable {
			t.Fatalf("expected table category, got %v", c.Category)
		}
	}
}

func TestChunkHierarchical_AssignsSectionNumbers(t *testing.T) {
	doc := "# One\nBody one.\n## Sub\nBody sub.\n# Two\nBody two.\n"
	a := New()
	text, _, _ := a.Process(doc, Options{MaxTokens: 100})

	var sawNested bool
	for _, c := range text {
		if c.ParentSection != "" {
			sawNested = true
		}
	}
	if !sawNested {
		t.Fatalf("expected at least one nested section with a parent, got %+v", text)
	}
}

func TestSplitToTarget_RespectsTarget(t *testing.T) {
	text := strings.Repeat("word ", 200)
	pieces := splitToTarget(text, 100, 0)
	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces, got %d", len(pieces))
	}
}
