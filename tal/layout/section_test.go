package layout_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/railnet/grid"
	"nyiyui.ca/hato/railnet/tal/layout"
)

func TestSectionsLine(t *testing.T) {
	n := build(grid.InitTestbench1())
	expected := []*layout.Section[Pos]{
		{
			ID:       Pos{1, 0, 0},
			Members:  []Pos{{1, 0, 0}, {2, 0, 0}},
			Boundary: []Pos{{3, 0, 0}},
		},
		{
			ID:       Pos{3, 0, 0},
			Members:  []Pos{{3, 0, 0}, {4, 0, 0}, {5, 0, 0}},
			Signals:  []Pos{{3, 0, -1}},
			Boundary: []Pos{{2, 0, 0}},
		},
	}
	if diff := cmp.Diff(expected, n.Sections()); diff != "" {
		t.Fatalf("sections (-want +got):\n%s", diff)
	}
	id, ok := n.ProtectedSection(Pos{3, 0, -1})
	if !ok || id != (Pos{3, 0, 0}) {
		t.Fatalf("expected signal to protect 3,0,0, got %s %t", id, ok)
	}
	if diff := cmp.Diff([]Pos{{3, 0, -1}}, n.Signals()); diff != "" {
		t.Fatalf("signals (-want +got):\n%s", diff)
	}
}

func TestSectionsUnbroken(t *testing.T) {
	n := build(grid.InitTestbench2())
	expected := []*layout.Section[Pos]{
		{
			ID:      Pos{1, 0, 0},
			Members: []Pos{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}, {4, 0, 0}, {5, 0, 0}},
		},
	}
	if diff := cmp.Diff(expected, n.Sections()); diff != "" {
		t.Fatalf("sections (-want +got):\n%s", diff)
	}
}

func TestSectionsTurnout(t *testing.T) {
	n := build(grid.InitTestbench3())
	var ids []Pos
	for _, s := range n.Sections() {
		ids = append(ids, s.ID)
	}
	expected := []Pos{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}, {3, 0, 1}, {4, 0, 0}}
	if diff := cmp.Diff(expected, ids); diff != "" {
		t.Fatalf("section ids (-want +got):\n%s", diff)
	}
	junction, _ := n.Section(Pos{3, 0, 0})
	if diff := cmp.Diff([]Pos{{3, 0, 0}}, junction.Members); diff != "" {
		t.Fatalf("junction members (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Pos{{2, 0, 0}, {3, 0, 1}, {4, 0, 0}}, junction.Boundary); diff != "" {
		t.Fatalf("junction boundary (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Pos{{3, 0, 0}}, n.NextSections(Pos{2, 0, -1})); diff != "" {
		t.Fatalf("next sections (-want +got):\n%s", diff)
	}
}

func TestNextSections(t *testing.T) {
	n := build(grid.InitTestbench5())
	if diff := cmp.Diff([]Pos{{7, 0, 0}}, n.NextSections(Pos{4, 0, -1})); diff != "" {
		t.Fatalf("after 4 (-want +got):\n%s", diff)
	}
	if got := n.NextSections(Pos{7, 0, -1}); len(got) != 0 {
		t.Fatalf("expected nothing after the last signal, got %v", got)
	}
}

// TestPartitionTotal checks that every rail is a member of exactly one section.
func TestPartitionTotal(t *testing.T) {
	for name, w := range testbenches() {
		t.Run(name, func(t *testing.T) {
			n := build(w)
			owner := map[Pos]Pos{}
			for _, s := range n.Sections() {
				for _, m := range s.Members {
					if prev, ok := owner[m]; ok {
						t.Fatalf("%s is in %s and %s", m, prev, s.ID)
					}
					owner[m] = s.ID
					if id, ok := n.SectionOf(m); !ok || id != s.ID {
						t.Fatalf("SectionOf(%s) = %s, want %s", m, id, s.ID)
					}
				}
			}
			for _, o := range n.Objects() {
				if o.Kind() != layout.KindRail {
					continue
				}
				if _, ok := owner[o.Pos()]; !ok {
					t.Fatalf("%s is in no section", o.Pos())
				}
			}
		})
	}
}
