package layout_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/grid"
	"nyiyui.ca/hato/railnet/tal/layout"
)

func TestFindRoute(t *testing.T) {
	type setup struct {
		name     string
		w        *grid.World
		start    Pos
		heading  railnet.Heading
		pattern  string
		expected layout.Route[Pos]
	}
	line := layout.Route[Pos]{
		Positions:   []Pos{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}, {4, 0, 0}, {5, 0, 0}},
		Sections:    []Pos{{1, 0, 0}, {3, 0, 0}},
		Destination: "terminus",
	}
	setups := []setup{
		{"line", grid.InitTestbench1(), Pos{1, 0, 0}, railnet.East, "terminus", line},
		{"line-glob", grid.InitTestbench1(), Pos{1, 0, 0}, railnet.East, "term*", line},
		{"line-backwards", grid.InitTestbench1(), Pos{1, 0, 0}, railnet.West, "terminus", line},
		{"already-there", grid.InitTestbench1(), Pos{5, 0, 0}, railnet.East, "terminus", layout.Route[Pos]{
			Positions:   []Pos{{5, 0, 0}},
			Sections:    []Pos{{3, 0, 0}},
			Destination: "terminus",
		}},
		{"turnout-branch", grid.InitTestbench3(), Pos{1, 0, 0}, railnet.East, "branch-b", layout.Route[Pos]{
			Positions:   []Pos{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}, {3, 0, 1}, {3, 0, 2}},
			Sections:    []Pos{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}, {3, 0, 1}},
			Destination: "branch-b",
		}},
		// the turnout only leads west from the branch, so the train reverses on rail 2
		{"turnout-reverse", grid.InitTestbench3(), Pos{3, 0, 2}, railnet.North, "main-*", layout.Route[Pos]{
			Positions:   []Pos{{3, 0, 2}, {3, 0, 1}, {3, 0, 0}, {2, 0, 0}, {3, 0, 0}, {4, 0, 0}, {5, 0, 0}},
			Sections:    []Pos{{3, 0, 1}, {3, 0, 0}, {2, 0, 0}, {4, 0, 0}},
			Destination: "main-a",
		}},
		{"ramp-link", grid.InitTestbench4(), Pos{1, 0, 0}, railnet.East, "island", layout.Route[Pos]{
			Positions:   []Pos{{1, 0, 0}, {2, 0, 0}, {3, 1, 0}, {4, 1, 0}, {10, 0, 0}, {11, 0, 0}},
			Sections:    []Pos{{1, 0, 0}, {10, 0, 0}},
			Destination: "island",
		}},
	}
	for _, s := range setups {
		t.Run(s.name, func(t *testing.T) {
			n := build(s.w)
			got, err := layout.FindRoute(n, s.start, s.heading, s.pattern, nil)
			if err != nil {
				t.Fatalf("FindRoute: %s", err)
			}
			if diff := cmp.Diff(s.expected, got); diff != "" {
				t.Fatalf("route (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFindRouteBlocked(t *testing.T) {
	n := build(grid.InitTestbench1())
	blocked := func(id Pos) bool { return id == Pos{3, 0, 0} }
	_, err := layout.FindRoute(n, Pos{1, 0, 0}, railnet.East, "terminus", blocked)
	if !errors.Is(err, layout.ErrNoRouteFound) {
		t.Fatalf("expected ErrNoRouteFound, got %v", err)
	}
}

func TestFindRouteNoMatch(t *testing.T) {
	n := build(grid.InitTestbench1())
	for _, pattern := range []string{"nowhere", "terminus?"} {
		_, err := layout.FindRoute(n, Pos{1, 0, 0}, railnet.East, pattern, nil)
		if !errors.Is(err, layout.ErrNoRouteFound) {
			t.Fatalf("%s: expected ErrNoRouteFound, got %v", pattern, err)
		}
	}
	_, err := layout.FindRoute(n, Pos{100, 0, 0}, railnet.East, "terminus", nil)
	if !errors.Is(err, layout.ErrNoRouteFound) {
		t.Fatalf("off-network start: expected ErrNoRouteFound, got %v", err)
	}
}

func TestFindRouteDeterministic(t *testing.T) {
	n := build(grid.InitTestbench3())
	first, err := layout.FindRoute(n, Pos{3, 0, 2}, railnet.North, "main-a", nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		got, err := layout.FindRoute(n, Pos{3, 0, 2}, railnet.North, "main-a", nil)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(first, got); diff != "" {
			t.Fatalf("run %d differs (-first +got):\n%s", i, diff)
		}
	}
}
