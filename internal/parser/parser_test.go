package parser

import (
	"slices"
	"sort"
	"testing"

	"github.com/starford/folio/internal/models"
)

func TestSplitTitleAuthor_Separator(t *testing.T) {
	title, author := SplitTitleAuthor("Rudin - Principles of Mathematical Analysis.pdf")
	if title != "Rudin" {
		t.Errorf("title = %q, want %q", title, "Rudin")
	}
	if author != "Principles of Mathematical Analysis" {
		t.Errorf("author = %q", author)
	}
}

func TestSplitTitleAuthor_NoSeparator(t *testing.T) {
	title, author := SplitTitleAuthor("real-analysis-notes.pdf")
	if title != "real-analysis-notes" {
		t.Errorf("title = %q", title)
	}
	if author != models.Unknown {
		t.Errorf("author = %q, want %q", author, models.Unknown)
	}
}

func TestSplitTitleAuthor_FirstSeparatorOnly(t *testing.T) {
	title, author := SplitTitleAuthor("A - B - C.epub")
	if title != "A" || author != "B - C" {
		t.Errorf("got (%q, %q), want (A, B - C)", title, author)
	}
}

func TestSplitTitleAuthor_EmptyPieces(t *testing.T) {
	title, author := SplitTitleAuthor(" - Someone.pdf")
	if title != "Someone" || author != models.Unknown {
		t.Errorf("blank title = (%q, %q), want (Someone, Unknown)", title, author)
	}

	title, author = SplitTitleAuthor(" - .pdf")
	if title != "-" || author != models.Unknown {
		t.Errorf("blank both = (%q, %q), want (-, Unknown)", title, author)
	}

	_, author = SplitTitleAuthor("Lonely - .pdf")
	if author != models.Unknown {
		t.Errorf("empty author = %q, want Unknown", author)
	}
}

func TestExt_LeadingDotIsNotExtension(t *testing.T) {
	tests := map[string]string{
		"Topology.pdf":     ".pdf",
		"archive.tar.gz":   ".gz",
		".pdf":             "",
		".hidden":          "",
		"Field/.pdf":       "",
		"Field/.notes.pdf": ".pdf",
		"no-extension":     "",
	}
	for in, want := range tests {
		if got := Ext(in); got != want {
			t.Errorf("Ext(%q) = %q, want %q", in, got, want)
		}
	}

	title, _ := SplitTitleAuthor(".pdf")
	if title != ".pdf" {
		t.Errorf("SplitTitleAuthor(.pdf) title = %q, want .pdf", title)
	}
}

func TestExtractTags_BracketGroup(t *testing.T) {
	tags := ExtractTags("Analysis [calculus, proofs].pdf", FormatField("Real_Analysis"))
	got := slices.Clone(tags)
	sort.Strings(got)
	want := []string{"Real Analysis", "calculus", "proofs"}
	if !slices.Equal(got, want) {
		t.Errorf("tags = %v, want %v", tags, want)
	}
}

func TestExtractTags_FieldOnlyAndDedupe(t *testing.T) {
	tags := ExtractTags("Topology.pdf", "Topology")
	if !slices.Equal(tags, []string{"Topology"}) {
		t.Errorf("tags = %v", tags)
	}

	tags = ExtractTags("x [Topology, , a, a].pdf", "Topology")
	if !slices.Equal(tags, []string{"Topology", "a"}) {
		t.Errorf("tags = %v, want [Topology a]", tags)
	}
}

func TestFormatField(t *testing.T) {
	cases := map[string]string{
		"Real_Analysis":    "Real Analysis",
		"complex-analysis": "Complex Analysis",
		"topology":         "Topology",
		"already Spaced":   "Already Spaced",
		"iOS_dev":          "IOS Dev",
		"2nd_year_notes":   "2nd Year Notes",
		"3d-graphics":      "3d Graphics",
		"AI&ml":            "AI&ml",
		"o'reilly_books":   "O'reilly Books",
		"dr.who":           "Dr.who",
		"\ufb01nance":      "\ufb01nance",
		"élan_vital":       "Élan Vital",
		"":                 "",
	}
	for in, want := range cases {
		if got := FormatField(in); got != want {
			t.Errorf("FormatField(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatField_Idempotent(t *testing.T) {
	inputs := []string{
		"Real_Analysis", "a-b_c", "__x__", "mixed-Case_words here",
		"numbers_2nd-edition", "ünïcode_wörds", "", "---",
	}
	for _, in := range inputs {
		once := FormatField(in)
		if twice := FormatField(once); twice != once {
			t.Errorf("FormatField not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestClassifyType(t *testing.T) {
	cases := map[string]models.BookType{
		"a.pdf":  models.TypeBook,
		"a.EPUB": models.TypeBook,
		"a.mobi": models.TypeBook,
		"a.txt":  models.TypeNote,
		"a.md":   models.TypeNote,
		"a.doc":  models.TypeArticle,
		"a.docx": models.TypeArticle,
		"a.djvu": models.TypeBook,
	}
	for name, want := range cases {
		if got := ClassifyType(name); got != want {
			t.Errorf("ClassifyType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSanitizeID(t *testing.T) {
	if got := SanitizeID("Real_Analysis"); got != "real_analysis" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeID("Maths & Physics!"); got != "maths___physics_" {
		t.Errorf("got %q", got)
	}
}

func TestParse(t *testing.T) {
	r := Parse("Ahlfors - Complex Analysis [classic].pdf", "Complex_Analysis")
	if r.Title != "Ahlfors" || r.Author != "Complex Analysis [classic]" {
		t.Errorf("title/author = %q/%q", r.Title, r.Author)
	}
	if !slices.Equal(r.Tags, []string{"classic", "Complex Analysis"}) {
		t.Errorf("tags = %v", r.Tags)
	}
	if r.Type != models.TypeBook {
		t.Errorf("type = %q", r.Type)
	}
}
