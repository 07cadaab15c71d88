package grid

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/tal/layout"
)

func TestTestbenchAnchors(t *testing.T) {
	for name, w := range map[string]*World{
		"1": InitTestbench1(),
		"2": InitTestbench2(),
		"3": InitTestbench3(),
		"4": InitTestbench4(),
		"5": InitTestbench5(),
	} {
		t.Run(name, func(t *testing.T) {
			anchors := w.Anchors()
			if len(anchors) == 0 {
				t.Fatal("no anchors")
			}
			for _, p := range anchors {
				d, _ := w.Resolve(p)
				r, ok := w.Resolve(d.Rail)
				if !ok || r.Kind != layout.KindRail {
					t.Errorf("%s %s: anchor %s is not a rail", d.Kind, p, d.Rail)
				}
				if d.Kind == layout.KindLink {
					if target, ok := w.Resolve(d.Target); !ok || target.Kind != layout.KindRail {
						t.Errorf("link %s: target %s is not a rail", p, d.Target)
					}
				}
			}
		})
	}
}

func TestLine(t *testing.T) {
	w := NewWorld()
	got := w.Line(Pos{0, 0, 0}, railnet.North, 3)
	want := []Pos{{0, 0, 0}, {0, 0, -1}, {0, 0, -2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	d, _ := w.Resolve(Pos{0, 0, -1})
	if diff := cmp.Diff([]railnet.Shape{railnet.NorthSouth}, d.Shapes); diff != "" {
		t.Fatalf("shapes (-want +got):\n%s", diff)
	}
}
