package layout_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/grid"
	"nyiyui.ca/hato/railnet/tal/layout"
)

type Pos = grid.Pos

func build(w *grid.World) *layout.Network[Pos] {
	return layout.Build[Pos](w.Snapshot(), w.Anchors())
}

func testbenches() map[string]*grid.World {
	return map[string]*grid.World{
		"1": grid.InitTestbench1(),
		"2": grid.InitTestbench2(),
		"3": grid.InitTestbench3(),
		"4": grid.InitTestbench4(),
		"5": grid.InitTestbench5(),
	}
}

func TestBuildLine(t *testing.T) {
	n := build(grid.InitTestbench1())
	if got := n.Len(); got != 7 {
		t.Fatalf("expected 7 objects, got %d", got)
	}
	r := n.MustRail(Pos{3, 0, 0})
	expected := map[Pos]railnet.Heading{
		{2, 0, 0}: railnet.West,
		{4, 0, 0}: railnet.East,
	}
	if diff := cmp.Diff(expected, r.Neighbors()); diff != "" {
		t.Fatalf("neighbours (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Pos{{3, 0, -1}}, r.Attached()); diff != "" {
		t.Fatalf("attached (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"terminus"}, n.MustRail(Pos{5, 0, 0}).Stations()); diff != "" {
		t.Fatalf("stations (-want +got):\n%s", diff)
	}
	if n.Version() != 1 {
		t.Fatalf("expected version 1, got %d", n.Version())
	}
}

func TestNeighborsMutual(t *testing.T) {
	for name, w := range testbenches() {
		t.Run(name, func(t *testing.T) {
			n := build(w)
			for _, o := range n.Objects() {
				a, ok := o.(*layout.Rail[Pos])
				if !ok {
					continue
				}
				for bp, d := range a.Neighbors() {
					b, ok := n.Rail(bp)
					if !ok {
						t.Fatalf("%s lists %s which is not in the network", a.Pos(), bp)
					}
					back, ok := b.Neighbors()[a.Pos()]
					if !ok {
						t.Fatalf("%s lists %s but not the other way", a.Pos(), bp)
					}
					if back != d.Opposite() {
						t.Fatalf("%s→%s is %s but %s→%s is %s", a.Pos(), bp, d, bp, a.Pos(), back)
					}
				}
			}
		})
	}
}

func TestTurnoutExits(t *testing.T) {
	n := build(grid.InitTestbench3())
	type setup struct {
		name     string
		entry    railnet.Heading
		expected map[Pos]railnet.Heading
	}
	for _, s := range []setup{
		{"from-west", railnet.East, map[Pos]railnet.Heading{
			{2, 0, 0}: railnet.West,
			{4, 0, 0}: railnet.East,
			{3, 0, 1}: railnet.South,
		}},
		{"from-east", railnet.West, map[Pos]railnet.Heading{
			{2, 0, 0}: railnet.West,
			{4, 0, 0}: railnet.East,
		}},
		{"from-branch", railnet.North, map[Pos]railnet.Heading{
			{2, 0, 0}: railnet.West,
			{3, 0, 1}: railnet.South,
		}},
		{"any", railnet.HeadingNone, map[Pos]railnet.Heading{
			{2, 0, 0}: railnet.West,
			{4, 0, 0}: railnet.East,
			{3, 0, 1}: railnet.South,
		}},
	} {
		t.Run(s.name, func(t *testing.T) {
			got, ok := n.NeighborsForEntry(Pos{3, 0, 0}, s.entry)
			if !ok {
				t.Fatal("no rail")
			}
			if diff := cmp.Diff(s.expected, got); diff != "" {
				t.Fatalf("exits (-want +got):\n%s", diff)
			}
		})
	}
	if !n.MustRail(Pos{3, 0, 0}).IsJunction() {
		t.Fatal("turnout is not a junction")
	}
}

func TestRampAndLink(t *testing.T) {
	w := grid.InitTestbench4()
	n := build(w)
	expected := map[Pos]railnet.Heading{
		{1, 0, 0}: railnet.West,
		{3, 1, 0}: railnet.East,
	}
	if diff := cmp.Diff(expected, n.MustRail(Pos{2, 0, 0}).Neighbors()); diff != "" {
		t.Fatalf("ramp neighbours (-want +got):\n%s", diff)
	}
	if d, ok := n.MustRail(Pos{4, 1, 0}).Neighbors()[Pos{10, 0, 0}]; !ok || d != railnet.HeadingNone {
		t.Fatalf("expected link edge, got %s %t", d, ok)
	}

	// a link without one pointing back is not an edge
	w.Remove(Pos{10, 0, -1})
	n = build(w)
	if _, ok := n.MustRail(Pos{4, 1, 0}).Neighbors()[Pos{10, 0, 0}]; ok {
		t.Fatal("one-sided link became an edge")
	}
}

func TestUnloadedIsAbsent(t *testing.T) {
	w := grid.InitTestbench2()
	w.SetLoaded(Pos{5, 0, 0}, false)
	n := build(w)
	if _, ok := n.Object(Pos{5, 0, 0}); ok {
		t.Fatal("unloaded rail is in the network")
	}
	if _, ok := n.Object(Pos{5, 0, -1}); ok {
		t.Fatal("station on unloaded rail was kept")
	}
	if _, ok := n.MustRail(Pos{4, 0, 0}).Neighbors()[Pos{5, 0, 0}]; ok {
		t.Fatal("rail 4 still lists the unloaded rail")
	}
}

func TestDescribe(t *testing.T) {
	n := build(grid.InitTestbench1())
	o, ok := n.Object(Pos{3, 0, -1})
	if !ok {
		t.Fatal("no signal")
	}
	expected := grid.Signal(Pos{3, 0, 0}, railnet.East)
	if diff := cmp.Diff(expected, layout.Describe(o)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}
