package chunker

import (
	"strings"
	"testing"

	"github.com/legatoo/legal-semantic-search/internal/model"
)

func TestFormatArticle_HeaderLiftsContext(t *testing.T) {
	f := New(DefaultConfig())
	segs := f.FormatArticle(
		"نظام العمل السعودي",
		"التعريفات / الأحكام العامة",
		"التعريفات",
		"الأولى",
		"اسم النظام",
		"يسمى هذا النظام نظام العمل.",
	)

	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	seg := segs[0]

	if !strings.Contains(seg, "نظام العمل السعودي") {
		t.Errorf("segment missing law name header: %q", seg)
	}
	if !strings.Contains(seg, "الباب: التعريفات / الأحكام العامة") {
		t.Errorf("segment missing branch header: %q", seg)
	}
	if !strings.Contains(seg, "الفصل: التعريفات") {
		t.Errorf("segment missing chapter header: %q", seg)
	}
	if !strings.Contains(seg, "المادة الأولى - اسم النظام") {
		t.Errorf("segment missing article line: %q", seg)
	}
	if !strings.Contains(seg, "يسمى هذا النظام نظام العمل.") {
		t.Errorf("segment missing article body: %q", seg)
	}
}

func TestFormatArticle_EmptyContentProducesNothing(t *testing.T) {
	f := New(DefaultConfig())
	for _, body := range []string{"", "   ", "\n\t"} {
		segs := f.FormatArticle("law", "", "", "1", "", body)
		if segs != nil {
			t.Errorf("FormatArticle(body=%q) = %v, want nil", body, segs)
		}
	}
}

func TestFormatArticle_EmptyLawNameOmitsBracketedHeader(t *testing.T) {
	f := New(DefaultConfig())
	segs := f.FormatArticle("", "branch", "chapter", "5", "", "some content.")
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if strings.Contains(segs[0], "📜") {
		t.Errorf("expected no bracketed header when law name empty: %q", segs[0])
	}
	if !strings.HasPrefix(segs[0], "المادة 5") {
		t.Errorf("expected article line first, got %q", segs[0])
	}
}

func TestFormatArticle_OmitsTitleDashWhenEmpty(t *testing.T) {
	f := New(DefaultConfig())
	segs := f.FormatArticle("law", "", "", "9", "", "content.")
	if strings.Contains(segs[0], "المادة 9 -") {
		t.Errorf("unexpected dash with empty title: %q", segs[0])
	}
}

func TestFormatCaseSection_Header(t *testing.T) {
	f := New(DefaultConfig())
	segs := f.FormatCaseSection("قضية رقم 12", model.SectionRuling, "حكمت المحكمة بالرفض.")
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if !strings.Contains(segs[0], "قضية رقم 12") {
		t.Errorf("missing case title: %q", segs[0])
	}
	if !strings.Contains(segs[0], "الحكم") {
		t.Errorf("missing section label: %q", segs[0])
	}
}

func TestSegmentation_OverlapCoversOriginalBody(t *testing.T) {
	sentence := "هذا نص طويل يكرر نفسه لاختبار التقسيم الى اجزاء متراكبة. "
	var body strings.Builder
	for i := 0; i < 60; i++ {
		body.WriteString(sentence)
	}
	content := body.String()

	f := New(Config{SegChars: 1200, Overlap: 150})
	segs := f.FormatArticle("", "", "", "1", "", content)
	if len(segs) < 2 {
		t.Fatalf("expected multiple segments for long body, got %d", len(segs))
	}

	runes := []rune(content)
	const window = 200
	for start := 0; start+window <= len(runes); start += 50 {
		sample := string(runes[start : start+window])
		found := false
		for _, seg := range segs {
			if strings.Contains(seg, sample) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("window at rune %d not found verbatim in any segment", start)
		}
	}
}

func TestSegmentation_NoSegmentExceedsTargetSizePlusHeader(t *testing.T) {
	sentence := "جملة قصيرة هنا. "
	var body strings.Builder
	for i := 0; i < 200; i++ {
		body.WriteString(sentence)
	}

	f := New(Config{SegChars: 500, Overlap: 80})
	header := buildLawHeader("", "", "", "1", "")
	bodySegs := segmentBody(body.String(), 500, 80)
	for _, seg := range bodySegs {
		if len([]rune(seg)) > 500 {
			t.Errorf("segment of %d runes exceeds SegChars", len([]rune(seg)))
		}
	}
	limit := 500 + len([]rune(header))
	for _, seg := range f.FormatArticle("", "", "", "1", "", body.String()) {
		if len([]rune(seg)) > limit {
			t.Errorf("headed segment of %d runes exceeds SegChars plus header (%d)", len([]rune(seg)), limit)
		}
	}
}

func TestFormatArticle_DeterministicAcrossRuns(t *testing.T) {
	f := New(DefaultConfig())
	a := f.FormatArticle("law", "b", "c", "1", "t", "content that repeats. content that repeats.")
	b := f.FormatArticle("law", "b", "c", "1", "t", "content that repeats. content that repeats.")
	if len(a) != len(b) {
		t.Fatalf("non-deterministic segment count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic segment %d: %q vs %q", i, a[i], b[i])
		}
	}
}
