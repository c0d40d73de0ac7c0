package query

import (
	"slices"
	"strings"
	"testing"

	"github.com/starford/folio/internal/models"
)

func book(id, title, author, field string, tags ...string) models.Book {
	return models.Book{ID: id, Title: title, Author: author, Field: field, Tags: tags, Type: models.TypeBook}
}

func sample() []models.Book {
	return []models.Book{
		book("real_analysis_1", "Principles of Mathematical Analysis", "Rudin", "Real Analysis", "Real Analysis", "calculus"),
		book("real_analysis_2", "Measure Theory", "Halmos", "Real Analysis", "Real Analysis", "measure"),
		book("topology_3", "Topology", "Munkres", "Topology", "Topology", "calculus", "point-set"),
		book("algebra_4", "Algebra", "Unknown", "Algebra", "Algebra"),
	}
}

func ids(books []models.Book) []string {
	out := []string{}
	for _, b := range books {
		out = append(out, b.ID)
	}
	return out
}

func TestSearch_EmptyStateReturnsAll(t *testing.T) {
	e := New(sample())
	got := e.Search(State{}, 0)
	if !slices.Equal(ids(got), ids(sample())) {
		t.Errorf("got %v", ids(got))
	}
}

func TestSearch_Term(t *testing.T) {
	e := New(sample())
	tests := []struct {
		term string
		want []string
	}{
		{"rudin", []string{"real_analysis_1"}},
		{"MEASURE", []string{"real_analysis_2"}},
		{"calc", []string{"real_analysis_1", "topology_3"}},
		{"analysis", []string{"real_analysis_1", "real_analysis_2"}},
		{"nothing-matches", []string{}},
	}
	for _, tt := range tests {
		got := e.Search(State{Term: tt.term}, 0)
		if !slices.Equal(ids(got), tt.want) {
			t.Errorf("term %q: got %v, want %v", tt.term, ids(got), tt.want)
		}
	}
}

func TestSearch_FieldIsExact(t *testing.T) {
	e := New(sample())
	if got := ids(e.Search(State{Field: "Topology"}, 0)); !slices.Equal(got, []string{"topology_3"}) {
		t.Errorf("got %v", got)
	}
	if got := e.Search(State{Field: "topology"}, 0); len(got) != 0 {
		t.Errorf("field match should be case-sensitive, got %v", ids(got))
	}
}

func TestSearch_TagsAreORed(t *testing.T) {
	e := New([]models.Book{
		book("a", "A", "x", "F", "x"),
		book("b", "B", "x", "F", "y"),
		book("c", "C", "x", "F", "x", "y"),
	})
	if got := ids(e.Search(NewState("", "", "x", "y"), 0)); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("{x,y}: got %v", got)
	}
	if got := ids(e.Search(NewState("", "", "x"), 0)); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("{x}: got %v", got)
	}
}

func TestSearch_CombinedFilters(t *testing.T) {
	e := New(sample())
	s := NewState("o", "Topology", "calculus")
	if got := ids(e.Search(s, 0)); !slices.Equal(got, []string{"topology_3"}) {
		t.Errorf("got %v", got)
	}
}

func TestSearch_Limit(t *testing.T) {
	e := New(sample())
	if got := e.Search(State{}, 2); len(got) != 2 || got[0].ID != "real_analysis_1" {
		t.Errorf("got %v", ids(got))
	}
}

func TestSearch_EmptyCatalog(t *testing.T) {
	e := New(nil)
	got := e.Search(NewState("x", "F", "t"), 0)
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil", got)
	}
	f := e.Facets()
	if f.Fields == nil || f.Tags == nil || len(f.Fields)+len(f.Tags) != 0 {
		t.Errorf("facets = %+v", f)
	}
}

func TestSearch_ToleratesNilTags(t *testing.T) {
	e := New([]models.Book{{ID: "n", Title: "Untagged", Author: "Nobody", Field: "F"}})
	if got := ids(e.Search(State{Term: "untag"}, 0)); !slices.Equal(got, []string{"n"}) {
		t.Errorf("got %v", got)
	}
	if got := e.Search(NewState("", "", "any"), 0); len(got) != 0 {
		t.Errorf("got %v", ids(got))
	}
}

// Every returned record satisfies the state and no matching record is dropped.
func TestSearch_ResultsAreExactlyTheMatches(t *testing.T) {
	books := sample()
	e := New(books)
	states := []State{
		{},
		{Term: "a"},
		{Field: "Real Analysis"},
		NewState("", "", "calculus", "Algebra"),
		NewState("m", "Real Analysis", "measure"),
	}
	for _, s := range states {
		var want []string
		for i := range books {
			if Match(&books[i], s, strings.ToLower(s.Term)) {
				want = append(want, books[i].ID)
			}
		}
		got := ids(e.Search(s, 0))
		if len(want) == 0 {
			want = []string{}
		}
		if !slices.Equal(got, want) {
			t.Errorf("state %+v: got %v, want %v", s, got, want)
		}
	}
}

func TestFacets(t *testing.T) {
	f := New(sample()).Facets()
	if !slices.Equal(f.Fields, []string{"Real Analysis", "Topology", "Algebra"}) {
		t.Errorf("fields = %v", f.Fields)
	}
	wantTags := []string{"Real Analysis", "calculus", "measure", "Topology", "point-set", "Algebra"}
	if !slices.Equal(f.Tags, wantTags) {
		t.Errorf("tags = %v, want %v", f.Tags, wantTags)
	}
}

func TestToggleTag(t *testing.T) {
	var s State
	if !s.ToggleTag("x") || !s.TagActive("x") {
		t.Fatal("first toggle should activate")
	}
	if s.ToggleTag("x") || s.TagActive("x") {
		t.Fatal("second toggle should deactivate")
	}
	s.AddTag("y")
	s.Reset()
	if len(s.Tags) != 0 || s.Term != "" {
		t.Errorf("reset left %+v", s)
	}
}

func TestEngineIsolatedFromCaller(t *testing.T) {
	books := sample()
	e := New(books)
	books[0].Title = "mutated"
	if b, ok := e.Get("real_analysis_1"); !ok || b.Title == "mutated" {
		t.Errorf("engine shares caller slice: %+v", b)
	}
	if _, ok := e.Get("missing"); ok {
		t.Error("Get(missing) should be false")
	}
}
