package hierarchy

import (
	"testing"

	"github.com/courseforge/courseforge/internal/content"
	"github.com/courseforge/courseforge/internal/errors"
)

func item(id, parent string, t content.Type) *content.Item {
	return &content.Item{ID: id, ParentID: parent, Type: t}
}

func TestSort_LinearChain(t *testing.T) {
	items := []*content.Item{
		item("c1", "", content.TypeCourse),
		item("p1", "c1", content.TypePage),
		item("b1", "p1", content.TypeBlock),
		item("k1", "b1", content.TypeComponent),
	}
	sorted, err := Sort(items, "c1")
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	want := [][]string{{"c1"}, {"p1"}, {"b1"}, {"k1"}}
	if len(sorted.Levels) != len(want) {
		t.Fatalf("levels = %v, want %v", sorted.Levels, want)
	}
	for i := range want {
		if len(sorted.Levels[i]) != 1 || sorted.Levels[i][0] != want[i][0] {
			t.Fatalf("level %d = %v, want %v", i, sorted.Levels[i], want[i])
		}
	}
}

func TestSort_LevelsPartitionInput(t *testing.T) {
	items := []*content.Item{
		item("c1", "", content.TypeCourse),
		item("p1", "c1", content.TypePage),
		item("p2", "c1", content.TypePage),
		item("a1", "p1", content.TypeArticle),
		item("a2", "p2", content.TypeArticle),
		item("b1", "a1", content.TypeBlock),
	}
	sorted, err := Sort(items, "c1")
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	seen := map[string]int{}
	total := 0
	for lvl, ids := range sorted.Levels {
		for _, id := range ids {
			seen[id] = lvl
			total++
		}
	}
	if total != len(items) {
		t.Fatalf("levels hold %d items, input has %d", total, len(items))
	}
	for _, it := range items {
		if it.ID == "c1" {
			continue
		}
		if seen[it.ID] != seen[it.ParentID]+1 && seen[it.ID] <= seen[it.ParentID] {
			t.Fatalf("item %s at level %d, parent %s at level %d", it.ID, seen[it.ID], it.ParentID, seen[it.ParentID])
		}
	}
}

func TestSort_OrphanParentFailsInsteadOfLooping(t *testing.T) {
	items := []*content.Item{
		item("c1", "", content.TypeCourse),
		item("p1", "c1", content.TypePage),
		item("ghost", "nonexistent", content.TypeBlock),
	}
	_, err := Sort(items, "c1")
	if !errors.IsKind(err, errors.KindStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestSort_CycleFails(t *testing.T) {
	items := []*content.Item{
		item("c1", "", content.TypeCourse),
		item("x", "y", content.TypePage),
		item("y", "x", content.TypePage),
	}
	_, err := Sort(items, "c1")
	if !errors.IsKind(err, errors.KindStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestSort_MissingRootFails(t *testing.T) {
	_, err := Sort([]*content.Item{item("p1", "c1", content.TypePage)}, "c1")
	if !errors.IsKind(err, errors.KindStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestSort_SiblingOrderExplicitWins(t *testing.T) {
	o1, o2, o3 := 1, 2, 3
	items := []*content.Item{
		item("c1", "", content.TypeCourse),
		{ID: "p3", ParentID: "c1", Type: content.TypePage, SortOrder: &o3},
		{ID: "p1", ParentID: "c1", Type: content.TypePage, SortOrder: &o1},
		{ID: "p2", ParentID: "c1", Type: content.TypePage, SortOrder: &o2},
	}
	sorted, err := Sort(items, "c1")
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	got := sorted.Children["c1"]
	want := []string{"p1", "p2", "p3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("children = %v, want %v", got, want)
		}
	}
}

func TestSort_SiblingOrderFallsBackToInputOrder(t *testing.T) {
	items := []*content.Item{
		item("c1", "", content.TypeCourse),
		item("pb", "c1", content.TypePage),
		item("pa", "c1", content.TypePage),
	}
	sorted, err := Sort(items, "c1")
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	got := sorted.Children["c1"]
	if got[0] != "pb" || got[1] != "pa" {
		t.Fatalf("children = %v, want input order [pb pa]", got)
	}
}

func TestSort_DuplicateIDFails(t *testing.T) {
	items := []*content.Item{
		item("c1", "", content.TypeCourse),
		item("p1", "c1", content.TypePage),
		item("p1", "c1", content.TypePage),
	}
	_, err := Sort(items, "c1")
	if !errors.IsKind(err, errors.KindStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
}
