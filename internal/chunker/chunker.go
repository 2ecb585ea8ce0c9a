// Package chunker implements the core's context-enrichment chunking
// strategy (C2): turning one parsed law article or case section into one
// or more embedding-ready chunk texts, headed by their hierarchical
// context and segmented with overlap when long.
package chunker

import (
	"strings"
	"unicode"

	"github.com/legatoo/legal-semantic-search/internal/model"
)

// Defaults for segment size and overlap.
const (
	DefaultSegChars = 1200
	DefaultOverlap  = 150

	lookbackWords   = 10
	approxWordChars = 6 // heuristic Arabic word length in runes, sizes the lookback window
)

// sentenceTerminators are the boundary characters the segmenter prefers to
// break on.
var sentenceTerminators = map[rune]bool{
	'.': true,
	'۔': true,
	'؟': true,
	'!': true,
	'،': true,
}

// sectionLabels gives each case-section type its Arabic display label.
var sectionLabels = map[model.SectionType]string{
	model.SectionSummary:    "الملخص",
	model.SectionFacts:      "الوقائع",
	model.SectionArguments:  "الحجج",
	model.SectionRuling:     "الحكم",
	model.SectionLegalBasis: "الأساس القانوني",
}

// Config tunes segmentation size and overlap.
type Config struct {
	SegChars int
	Overlap  int
}

// DefaultConfig returns the default segment size and overlap.
func DefaultConfig() Config {
	return Config{SegChars: DefaultSegChars, Overlap: DefaultOverlap}
}

// Formatter produces chunk texts from parsed articles and case sections.
type Formatter struct {
	cfg Config
}

// New builds a Formatter. A zero-value Config falls back to the defaults.
func New(cfg Config) *Formatter {
	if cfg.SegChars <= 0 {
		cfg.SegChars = DefaultSegChars
	}
	if cfg.Overlap <= 0 || cfg.Overlap >= cfg.SegChars {
		cfg.Overlap = DefaultOverlap
	}
	return &Formatter{cfg: cfg}
}

// FormatArticle returns the list of context-headed, overlap-segmented
// chunk texts for one article.
// An empty or whitespace-only body produces zero segments; an empty
// law name produces a header with only the article line (no bracketed
// context).
func (f *Formatter) FormatArticle(lawName, branchName, chapterName, articleNumber, articleTitle, articleContent string) []string {
	if strings.TrimSpace(articleContent) == "" {
		return nil
	}

	header := buildLawHeader(lawName, branchName, chapterName, articleNumber, articleTitle)
	return headEachSegment(header, segmentBody(articleContent, f.cfg.SegChars, f.cfg.Overlap))
}

// FormatCaseSection returns the list of context-headed, overlap-segmented
// chunk texts for one case section.
func (f *Formatter) FormatCaseSection(caseTitle string, sectionType model.SectionType, sectionContent string) []string {
	if strings.TrimSpace(sectionContent) == "" {
		return nil
	}

	header := buildCaseHeader(caseTitle, sectionType)
	return headEachSegment(header, segmentBody(sectionContent, f.cfg.SegChars, f.cfg.Overlap))
}

func headEachSegment(header string, segments []string) []string {
	out := make([]string, len(segments))
	for i, seg := range segments {
		out[i] = header + seg
	}
	return out
}

// buildLawHeader renders the bracketed context line plus the article line.
func buildLawHeader(lawName, branchName, chapterName, articleNumber, articleTitle string) string {
	var b strings.Builder

	if lawName != "" {
		parts := []string{"📜 " + lawName}
		if branchName != "" {
			parts = append(parts, "الباب: "+branchName)
		}
		if chapterName != "" {
			parts = append(parts, "الفصل: "+chapterName)
		}
		b.WriteString(strings.Join(parts, " - "))
		b.WriteString("\n\n")
	}

	b.WriteString("المادة " + articleNumber)
	if articleTitle != "" {
		b.WriteString(" - " + articleTitle)
	}
	b.WriteString("\n\n")

	return b.String()
}

// buildCaseHeader renders the case-title context line plus the
// section-type line, analogous to buildLawHeader.
func buildCaseHeader(caseTitle string, sectionType model.SectionType) string {
	var b strings.Builder

	if caseTitle != "" {
		b.WriteString("📜 " + caseTitle)
		b.WriteString("\n\n")
	}

	label := sectionLabels[sectionType]
	if label == "" {
		label = string(sectionType)
	}
	b.WriteString(label)
	b.WriteString("\n\n")

	return b.String()
}

// segmentBody splits body into overlapping segments of at most segChars
// runes, preferring the nearest prior sentence terminator within a
// lookback window, falling back to a word boundary. A body that already
// fits in one segment is returned unsplit.
func segmentBody(body string, segChars, overlap int) []string {
	runes := []rune(body)
	if len(runes) <= segChars {
		return []string{body}
	}

	var segments []string
	start := 0
	for start < len(runes) {
		end := start + segChars
		if end >= len(runes) {
			segments = append(segments, string(runes[start:]))
			break
		}

		boundary := findBoundary(runes, start, end)
		if boundary <= start {
			boundary = end
		}
		segments = append(segments, string(runes[start:boundary]))

		next := boundary - overlap
		if next <= start {
			next = boundary
		}
		start = next
	}

	return segments
}

// findBoundary looks backward from end, within a lookback window of about
// lookbackWords words, for the nearest sentence terminator. If none is
// found it falls back to the nearest word boundary; failing that, end.
func findBoundary(runes []rune, start, end int) int {
	lookback := lookbackWords * approxWordChars
	low := end - lookback
	if low < start {
		low = start
	}

	for i := end; i > low; i-- {
		if sentenceTerminators[runes[i-1]] {
			return i
		}
	}

	for i := end; i > start; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}

	return end
}
