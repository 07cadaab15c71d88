package grid

import (
	"sync"

	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railnet/tal/layout"
)

type Descriptor = layout.Descriptor[Pos]

// World is a mutable set of descriptors keyed by position. It implements layout.Oracle and
// layout.Snapshotter; snapshots are copy-on-write, so taking one is cheap.
type World struct {
	lock sync.RWMutex
	// cells and unloaded are shared with snapshots while shared is set.
	cells     map[Pos]Descriptor
	unloaded  map[Pos]bool
	shared    bool
	listeners []func(Pos)
}

func NewWorld() *World {
	return &World{
		cells:    map[Pos]Descriptor{},
		unloaded: map[Pos]bool{},
	}
}

// OnChange registers f to be called with every position that changes. f is called without the world
// locked. Typically f marks the position dirty.
func (w *World) OnChange(f func(Pos)) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.listeners = append(w.listeners, f)
}

func (w *World) Resolve(pos Pos) (Descriptor, bool) {
	w.lock.RLock()
	defer w.lock.RUnlock()
	d, ok := w.cells[pos]
	return d, ok
}

func (w *World) IsLoaded(pos Pos) bool {
	w.lock.RLock()
	defer w.lock.RUnlock()
	return !w.unloaded[pos]
}

type frozen struct {
	cells    map[Pos]Descriptor
	unloaded map[Pos]bool
}

func (f frozen) Resolve(pos Pos) (Descriptor, bool) {
	d, ok := f.cells[pos]
	return d, ok
}

func (f frozen) IsLoaded(pos Pos) bool { return !f.unloaded[pos] }

// Snapshot returns an oracle that keeps answering as the world is now.
func (w *World) Snapshot() layout.Oracle[Pos] {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.shared = true
	return frozen{w.cells, w.unloaded}
}

// unshare must be called with the lock held before writing.
func (w *World) unshare() {
	if !w.shared {
		return
	}
	cells := make(map[Pos]Descriptor, len(w.cells))
	for k, v := range w.cells {
		cells[k] = v
	}
	unloaded := make(map[Pos]bool, len(w.unloaded))
	for k, v := range w.unloaded {
		unloaded[k] = v
	}
	w.cells, w.unloaded, w.shared = cells, unloaded, false
}

func (w *World) notify(ps []Pos) {
	w.lock.RLock()
	listeners := w.listeners
	w.lock.RUnlock()
	for _, p := range ps {
		for _, f := range listeners {
			f(p)
		}
	}
}

func (w *World) Set(pos Pos, d Descriptor) {
	w.lock.Lock()
	w.unshare()
	w.cells[pos] = d
	w.lock.Unlock()
	w.notify([]Pos{pos})
}

func (w *World) Remove(pos Pos) {
	w.lock.Lock()
	_, ok := w.cells[pos]
	if ok {
		w.unshare()
		delete(w.cells, pos)
	}
	w.lock.Unlock()
	if ok {
		w.notify([]Pos{pos})
	}
}

// SetLoaded marks pos as loaded or not. Unloaded positions resolve as empty to the network.
func (w *World) SetLoaded(pos Pos, loaded bool) {
	w.lock.Lock()
	w.unshare()
	if loaded {
		delete(w.unloaded, pos)
	} else {
		w.unloaded[pos] = true
	}
	w.lock.Unlock()
	w.notify([]Pos{pos})
}

// Replace swaps the whole world for cells and notifies only the positions that differ.
func (w *World) Replace(cells map[Pos]Descriptor) {
	w.lock.Lock()
	var changed []Pos
	for p, d := range cells {
		if old, ok := w.cells[p]; !ok || !sameDescriptor(old, d) {
			changed = append(changed, p)
		}
	}
	for p := range w.cells {
		if _, ok := cells[p]; !ok {
			changed = append(changed, p)
		}
	}
	if len(changed) > 0 {
		w.unshare()
		w.cells = make(map[Pos]Descriptor, len(cells))
		for p, d := range cells {
			w.cells[p] = d
		}
	}
	w.lock.Unlock()
	slices.SortFunc(changed, Pos.Compare)
	w.notify(changed)
}

// Cells returns a copy of every descriptor.
func (w *World) Cells() map[Pos]Descriptor {
	w.lock.RLock()
	defer w.lock.RUnlock()
	res := make(map[Pos]Descriptor, len(w.cells))
	for k, v := range w.cells {
		res[k] = v
	}
	return res
}

// Anchors returns the positions of every signal, station marker, and link, ordered. Flooding from these
// finds every rail that matters to trains.
func (w *World) Anchors() []Pos {
	w.lock.RLock()
	defer w.lock.RUnlock()
	var res []Pos
	for p, d := range w.cells {
		if d.Kind != layout.KindRail {
			res = append(res, p)
		}
	}
	slices.SortFunc(res, Pos.Compare)
	return res
}

func sameDescriptor(a, b Descriptor) bool {
	return a.Kind == b.Kind &&
		slices.Equal(a.Shapes, b.Shapes) &&
		a.Rail == b.Rail &&
		a.Facing == b.Facing &&
		a.Name == b.Name &&
		a.Target == b.Target
}
