package normalize

import "testing"

func TestText_PreservesTaMarbuta(t *testing.T) {
	got := Text("أَلْكَلِمَةُ الْعَرَبِيَّةُ")
	want := "الكلمة العربية"
	if got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestText_EmptyAndWhitespace(t *testing.T) {
	for _, in := range []string{"", "   ", "\t\n"} {
		if got := Text(in); got != "" {
			t.Errorf("Text(%q) = %q, want empty", in, got)
		}
	}
}

func TestText_Idempotent(t *testing.T) {
	cases := []string{
		"أَلْكَلِمَةُ الْعَرَبِيَّةُ",
		"النظام الأساسي للحكم",
		"مرحبا   بالعالم",
		"plain english text",
		"مزيج Mixed نص 123",
	}
	for _, in := range cases {
		once := Text(in)
		twice := Text(once)
		if once != twice {
			t.Errorf("Text not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestText_AlifFolding(t *testing.T) {
	got := Text("أحمد إبراهيم آدم")
	want := "احمد ابراهيم ادم"
	if got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestText_AlifMaqsuraFolding(t *testing.T) {
	got := Text("على الفتى")
	want := "علي الفتي"
	if got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestText_TatweelRemoved(t *testing.T) {
	got := Text("السّــلام")
	if got == "" {
		t.Fatal("expected non-empty normalized text")
	}
	for _, r := range got {
		if r == tatweel {
			t.Fatalf("tatweel not stripped: %q", got)
		}
	}
}

func TestText_CollapsesWhitespace(t *testing.T) {
	got := Text("حقوق   العامل\n\tفي   النظام")
	want := "حقوق العامل في النظام"
	if got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestText_NonArabicPassesThrough(t *testing.T) {
	got := Text("Article 74: termination clause")
	want := "Article 74: termination clause"
	if got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}
