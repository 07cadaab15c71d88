package layout_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/grid"
	"nyiyui.ca/hato/railnet/tal/layout"
)

type view struct {
	Objects   map[Pos]layout.Descriptor[Pos]
	Neighbors map[Pos]map[Pos]railnet.Heading
	Sections  []*layout.Section[Pos]
	Signals   map[Pos]Pos
}

func viewOf(n *layout.Network[Pos]) view {
	v := view{
		Objects:   map[Pos]layout.Descriptor[Pos]{},
		Neighbors: map[Pos]map[Pos]railnet.Heading{},
		Sections:  n.Sections(),
		Signals:   map[Pos]Pos{},
	}
	for _, o := range n.Objects() {
		v.Objects[o.Pos()] = layout.Describe(o)
		if r, ok := o.(*layout.Rail[Pos]); ok {
			v.Neighbors[o.Pos()] = r.Neighbors()
		}
	}
	for _, s := range n.Signals() {
		v.Signals[s], _ = n.ProtectedSection(s)
	}
	return v
}

type harness struct {
	t *testing.T
	w *grid.World
	u *layout.Updater[Pos]
	n *layout.Network[Pos]
}

func newHarness(t *testing.T, w *grid.World) *harness {
	h := &harness{t: t, w: w, u: layout.NewUpdater[Pos](w), n: build(w)}
	w.OnChange(h.u.MarkDirty)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.u.Run(ctx)
	return h
}

func (h *harness) rebuild() layout.Diff[Pos] {
	r := h.u.Submit(h.n)
	if r == nil {
		return layout.Diff[Pos]{}
	}
	next, diff := r.Wait()
	h.n = next
	return diff
}

// checkFresh compares the incrementally maintained network with one built from scratch.
func (h *harness) checkFresh() {
	h.t.Helper()
	if diff := cmp.Diff(viewOf(build(h.w)), viewOf(h.n)); diff != "" {
		h.t.Fatalf("incremental network differs from a full build (-full +incremental):\n%s", diff)
	}
}

func TestApplyIdempotent(t *testing.T) {
	w := grid.InitTestbench3()
	n := build(w)
	if got, _ := layout.Apply[Pos](w, n, nil); got != n {
		t.Fatal("empty dirty set made a new snapshot")
	}
	var all []Pos
	for p := range w.Cells() {
		all = append(all, p)
	}
	got, diff := layout.Apply[Pos](w, n, all)
	if got != n || !diff.Empty() {
		t.Fatalf("re-deriving an unchanged world made a new snapshot: %+v", diff)
	}
}

func TestRemoveSplitsSection(t *testing.T) {
	h := newHarness(t, grid.InitTestbench2())
	before := h.n
	if _, err := layout.FindRoute(h.n, Pos{1, 0, 0}, railnet.East, "east", nil); err != nil {
		t.Fatalf("FindRoute before removal: %s", err)
	}

	h.w.Remove(Pos{3, 0, 0})
	diff := h.rebuild()
	expected := layout.Diff[Pos]{
		Changed:   []Pos{{2, 0, 0}, {4, 0, 0}},
		Removed:   []Pos{{3, 0, 0}},
		Regrouped: []Pos{{5, 0, 0}},
	}
	if d := cmp.Diff(expected, diff); d != "" {
		t.Fatalf("diff (-want +got):\n%s", d)
	}
	sections := []*layout.Section[Pos]{
		{ID: Pos{1, 0, 0}, Members: []Pos{{1, 0, 0}, {2, 0, 0}}},
		{ID: Pos{4, 0, 0}, Members: []Pos{{4, 0, 0}, {5, 0, 0}}},
	}
	if d := cmp.Diff(sections, h.n.Sections()); d != "" {
		t.Fatalf("sections (-want +got):\n%s", d)
	}
	if _, err := layout.FindRoute(h.n, Pos{1, 0, 0}, railnet.East, "east", nil); !errors.Is(err, layout.ErrNoRouteFound) {
		t.Fatalf("expected ErrNoRouteFound across the gap, got %v", err)
	}
	h.checkFresh()

	// the previous snapshot is untouched
	if _, ok := before.Rail(Pos{3, 0, 0}); !ok {
		t.Fatal("old snapshot lost rail 3")
	}
	if got := len(before.Sections()); got != 1 {
		t.Fatalf("old snapshot has %d sections", got)
	}
	if h.n.Version() != before.Version()+1 {
		t.Fatalf("version %d after %d", h.n.Version(), before.Version())
	}
}

func TestRemovePrunesSignal(t *testing.T) {
	h := newHarness(t, grid.InitTestbench1())
	h.w.Remove(Pos{3, 0, 0})
	diff := h.rebuild()
	if d := cmp.Diff([]Pos{{3, 0, -1}, {3, 0, 0}}, diff.Removed); d != "" {
		t.Fatalf("removed (-want +got):\n%s", d)
	}
	if got := h.n.Signals(); len(got) != 0 {
		t.Fatalf("expected no signals, got %v", got)
	}

	// putting the rail back brings the signal with it
	h.w.Set(Pos{3, 0, 0}, grid.Rail(railnet.EastWest))
	h.rebuild()
	if d := cmp.Diff([]Pos{{3, 0, -1}}, h.n.Signals()); d != "" {
		t.Fatalf("signals (-want +got):\n%s", d)
	}
	h.checkFresh()
}

func TestAddSignalSplitsSection(t *testing.T) {
	h := newHarness(t, grid.InitTestbench2())
	h.w.Set(Pos{3, 0, 1}, grid.Signal(Pos{3, 0, 0}, railnet.West))
	h.rebuild()
	var ids []Pos
	for _, s := range h.n.Sections() {
		ids = append(ids, s.ID)
	}
	if d := cmp.Diff([]Pos{{1, 0, 0}, {4, 0, 0}}, ids); d != "" {
		t.Fatalf("section ids (-want +got):\n%s", d)
	}
	id, _ := h.n.ProtectedSection(Pos{3, 0, 1})
	if id != (Pos{1, 0, 0}) {
		t.Fatalf("signal protects %s", id)
	}
	h.checkFresh()
}

func TestIncrementalMatchesFull(t *testing.T) {
	h := newHarness(t, grid.InitTestbench3())
	edits := []func(w *grid.World){
		func(w *grid.World) { w.Remove(Pos{3, 0, 0}) },
		func(w *grid.World) { w.Set(Pos{3, 0, 0}, grid.Rail(railnet.EastWest, railnet.SouthWest)) },
		func(w *grid.World) { w.Set(Pos{3, 0, 0}, grid.Rail(railnet.EastWest)) },
		func(w *grid.World) { w.Remove(Pos{2, 0, -1}) },
		func(w *grid.World) { w.Line(Pos{6, 0, 0}, railnet.East, 3) },
		func(w *grid.World) { w.Set(Pos{8, 0, -1}, grid.Station(Pos{8, 0, 0}, "far")) },
		func(w *grid.World) { w.SetLoaded(Pos{7, 0, 0}, false) },
		func(w *grid.World) { w.SetLoaded(Pos{7, 0, 0}, true) },
		func(w *grid.World) { w.Remove(Pos{5, 0, -1}) },
	}
	for _, edit := range edits {
		edit(h.w)
		h.rebuild()
		h.checkFresh()
	}
	if _, err := layout.FindRoute(h.n, Pos{1, 0, 0}, railnet.East, "far", nil); err != nil {
		t.Fatalf("FindRoute: %s", err)
	}
}

func TestManyRebuilds(t *testing.T) {
	h := newHarness(t, grid.InitTestbench2())
	for i := 0; i < 31; i++ {
		if i%2 == 0 {
			h.w.Remove(Pos{5, 0, -1})
		} else {
			h.w.Set(Pos{5, 0, -1}, grid.Station(Pos{5, 0, 0}, "east"))
		}
		h.rebuild()
	}
	// an odd number of toggles leaves the station removed
	if got := h.n.Len(); got != 6 {
		t.Fatalf("expected 6 objects, got %d", got)
	}
	h.checkFresh()
}

func TestSubmitNothing(t *testing.T) {
	h := newHarness(t, grid.InitTestbench1())
	if r := h.u.Submit(h.n); r != nil {
		t.Fatal("expected no rebuild without dirty positions")
	}
	h.u.MarkDirty(Pos{1, 0, 0})
	h.u.MarkDirty(Pos{1, 0, 0})
	if got := h.u.Pending(); got != 1 {
		t.Fatalf("duplicate marks did not collapse: %d pending", got)
	}
	r := h.u.Submit(h.n)
	if r == nil {
		t.Fatal("expected a rebuild")
	}
	next, diff := r.Wait()
	if next != h.n || !diff.Empty() {
		t.Fatal("rebuild of an unchanged position changed the network")
	}
	if h.u.Pending() != 0 {
		t.Fatal("dirty set not consumed")
	}
}

func TestRunFinishesQueuedRebuild(t *testing.T) {
	w := grid.InitTestbench1()
	u := layout.NewUpdater[Pos](w)
	n := build(w)

	w.Remove(Pos{5, 0, -1})
	u.MarkDirty(Pos{5, 0, -1})
	queued := u.Submit(n)
	if queued == nil {
		t.Fatal("expected a rebuild")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := u.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: %v", err)
	}
	if !queued.Ready() {
		t.Fatal("Run returned with a submitted rebuild still pending")
	}
	n, _ = queued.Wait()

	// with the worker gone, Submit does the work itself
	w.Remove(Pos{3, 0, -1})
	u.MarkDirty(Pos{3, 0, -1})
	r := u.Submit(n)
	if r == nil || !r.Ready() {
		t.Fatal("rebuild after Run returned is not done")
	}
	next, diff := r.Wait()
	if d := cmp.Diff([]Pos{{3, 0, -1}}, diff.Removed); d != "" {
		t.Fatalf("removed (-want +got):\n%s", d)
	}
	if got := len(next.Signals()); got != 0 {
		t.Fatalf("%d signals left", got)
	}
}
