// Package chunker splits a document's markdown-normalized text into
// categorized, hierarchy-aware chunks for indexing.
package chunker

import (
	"regexp"
	"strconv"
	"strings"
)

// Category distinguishes the three chunk collections a document produces.
type Category string

const (
	CategoryText  Category = "text"
	CategoryTOC   Category = "toc"
	CategoryTable Category = "table"
)

// Chunk is one produced unit of text plus its hierarchical placement.
type Chunk struct {
	Index          int
	Text           string
	Category       Category
	HierarchyLevel int
	SectionNumber  string
	ParentSection  string
}

// Options controls chunk sizing. MaxTokens/Overlap are approximate; the
// adapter treats tokens as ~4 characters, matching the rest of the corpus's
// token-estimation heuristics.
type Options struct {
	MaxTokens int
	Overlap   int
}

// Adapter turns normalized document text into (text, toc, table) chunk
// collections. Treated as a black box by the indexer: callers don't care
// how boundaries are chosen, only that each collection is hierarchy-aware.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

var headingRe = regexp.MustCompile(`(?m)^(#{1,6})\s+(.*)$`)
var tocLineRe = regexp.MustCompile(`(?m)^\s*(\d+(\.\d+)*)[.)]?\s+.+\.{2,}\s*\d+\s*$`)
var tableRowRe = regexp.MustCompile(`(?m)^\s*\|.*\|\s*$`)

// Process splits text into its three chunk collections. The input is
// expected to already be markdown (see html-to-markdown normalization in
// the indexer for HTML sources).
func (a *Adapter) Process(text string, opt Options) (textChunks, tocChunks, tableChunks []Chunk) {
	tocBlock, tableBlocks, remainder := extractSpecialBlocks(text)

	textChunks = a.chunkHierarchical(remainder, opt)
	if tocBlock != "" {
		tocChunks = a.chunkFlat(tocBlock, CategoryTOC)
	}
	for _, tb := range tableBlocks {
		tableChunks = append(tableChunks, a.chunkFlat(tb, CategoryTable)...)
	}
	return textChunks, tocChunks, tableChunks
}

// extractSpecialBlocks pulls out a table-of-contents block (detected by a
// run of dotted-leader lines) and any markdown table blocks, returning the
// remaining body text for hierarchical chunking.
func extractSpecialBlocks(text string) (toc string, tables []string, body string) {
	lines := strings.Split(text, "\n")
	var bodyLines []string
	var tocLines []string
	var curTable []string
	flushTable := func() {
		if len(curTable) > 0 {
			tables = append(tables, strings.Join(curTable, "\n"))
			curTable = nil
		}
	}
	for _, ln := range lines {
		switch {
		case tocLineRe.MatchString(ln):
			tocLines = append(tocLines, ln)
		case tableRowRe.MatchString(ln):
			curTable = append(curTable, ln)
		default:
			flushTable()
			bodyLines = append(bodyLines, ln)
		}
	}
	flushTable()
	return strings.Join(tocLines, "\n"), tables, strings.Join(bodyLines, "\n")
}

// chunkHierarchical splits on markdown headings, carrying section number
// and parent-section metadata derived from heading nesting.
func (a *Adapter) chunkHierarchical(text string, opt Options) []Chunk {
	tgt := targetLen(opt)
	sections := splitHeadings(text)

	var out []Chunk
	idx := 0
	var stack []string // section numbers per level, 1-indexed by heading depth
	counters := make([]int, 7)

	for _, sec := range sections {
		level := sec.level
		if level == 0 {
			level = 1
		}
		counters[level]++
		for l := level + 1; l < len(counters); l++ {
			counters[l] = 0
		}
		for len(stack) < level {
			stack = append(stack, "0")
		}
		stack = stack[:level]
		stack[level-1] = strconv.Itoa(counters[level])
		sectionNumber := strings.Join(stack, ".")
		parent := ""
		if level > 1 {
			parent = strings.Join(stack[:level-1], ".")
		}

		for _, piece := range splitToTarget(sec.body, tgt, opt.Overlap) {
			out = append(out, Chunk{
				Index:          idx,
				Text:           piece,
				Category:       CategoryText,
				HierarchyLevel: level,
				SectionNumber:  sectionNumber,
				ParentSection:  parent,
			})
			idx++
		}
	}
	return out
}

func (a *Adapter) chunkFlat(text string, cat Category) []Chunk {
	var out []Chunk
	for i, piece := range splitToTarget(text, targetLen(Options{}), 0) {
		out = append(out, Chunk{Index: i, Text: piece, Category: cat, HierarchyLevel: 1})
	}
	return out
}

type heading struct {
	level int
	body  string
}

// splitHeadings breaks text into heading-delimited sections. Text before
// the first heading is treated as a level-1 section.
func splitHeadings(text string) []heading {
	matches := headingRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []heading{{level: 1, body: text}}
	}
	var out []heading
	if matches[0][0] > 0 {
		out = append(out, heading{level: 1, body: text[:matches[0][0]]})
	}
	for i, m := range matches {
		level := len(text[m[2]:m[3]])
		start := m[0]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		out = append(out, heading{level: level, body: text[start:end]})
	}
	return out
}

func targetLen(opt Options) int {
	n := opt.MaxTokens
	if n <= 0 {
		n = 512
	}
	return n * 4 // ~4 chars per token
}

// splitToTarget makes contiguous pieces of target size with optional
// overlap, cutting at whitespace boundaries where possible.
func splitToTarget(text string, tgt, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if tgt < 32 {
		tgt = 32
	}
	if overlap < 0 {
		overlap = 0
	}
	ovChars := overlap * 4

	var out []string
	start := 0
	for start < len(text) {
		end := start + tgt
		if end > len(text) {
			end = len(text)
		} else if i := strings.LastIndex(text[start:end], " "); i > tgt/2 {
			end = start + i
		}
		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			out = append(out, piece)
		}
		if end == len(text) {
			break
		}
		next := end - ovChars
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}
