package layout

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nyiyui.ca/hato/railnet"
)

// Diff lists what one rebuild changed, ordered by position.
type Diff[P railnet.Position[P]] struct {
	// Changed holds objects that were added or re-derived differently.
	Changed []P
	Removed []P
	// Regrouped holds rails that are not in Changed but now belong to a different section.
	Regrouped []P
}

func (d Diff[P]) Empty() bool {
	return len(d.Changed) == 0 && len(d.Removed) == 0 && len(d.Regrouped) == 0
}

// Rebuild is one submitted unit of work. It always runs to completion.
type Rebuild[P railnet.Position[P]] struct {
	prev   *Network[P]
	oracle Oracle[P]
	dirty  []P
	done   chan struct{}

	net      *Network[P]
	diff     Diff[P]
	duration time.Duration
}

// Done is closed once the rebuild finished.
func (r *Rebuild[P]) Done() <-chan struct{} { return r.done }

// Ready reports whether the rebuild finished, without blocking.
func (r *Rebuild[P]) Ready() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the rebuild finished and returns its result.
func (r *Rebuild[P]) Wait() (*Network[P], Diff[P]) {
	<-r.done
	return r.net, r.diff
}

// Dirty returns the positions this rebuild was made from.
func (r *Rebuild[P]) Dirty() []P { return r.dirty }

// Duration returns how long Apply took. Only valid once Ready.
func (r *Rebuild[P]) Duration() time.Duration { return r.duration }

// Updater keeps the network in step with the oracle. Positions are marked dirty from anywhere; Submit hands
// them to the single worker started by Run.
type Updater[P railnet.Position[P]] struct {
	oracle Oracle[P]

	dirtyLock sync.Mutex
	dirty     map[P]struct{}

	work     chan *Rebuild[P]
	inFlight *Rebuild[P]
	// stopped is set once Run returned; later rebuilds run inside Submit.
	stopLock sync.Mutex
	stopped  bool
}

func NewUpdater[P railnet.Position[P]](o Oracle[P]) *Updater[P] {
	if o == nil {
		panic("NewUpdater: nil oracle")
	}
	return &Updater[P]{
		oracle: o,
		dirty:  map[P]struct{}{},
		work:   make(chan *Rebuild[P], 1),
	}
}

// MarkDirty adds pos to the next rebuild. Safe to call from any goroutine.
func (u *Updater[P]) MarkDirty(pos P) {
	u.dirtyLock.Lock()
	defer u.dirtyLock.Unlock()
	u.dirty[pos] = struct{}{}
}

// Pending returns how many positions are waiting for the next rebuild.
func (u *Updater[P]) Pending() int {
	u.dirtyLock.Lock()
	defer u.dirtyLock.Unlock()
	return len(u.dirty)
}

func (u *Updater[P]) takeDirty() []P {
	u.dirtyLock.Lock()
	defer u.dirtyLock.Unlock()
	if len(u.dirty) == 0 {
		return nil
	}
	res := make([]P, 0, len(u.dirty))
	for p := range u.dirty {
		res = append(res, p)
	}
	u.dirty = map[P]struct{}{}
	sortPositions(res)
	return res
}

// Submit queues a rebuild of prev with the positions marked dirty so far. At most one rebuild is in flight:
// while one is running it is returned instead. Submit returns nil when there is nothing to do.
// Submit must be called from one goroutine only.
func (u *Updater[P]) Submit(prev *Network[P]) *Rebuild[P] {
	if u.inFlight != nil && !u.inFlight.Ready() {
		return u.inFlight
	}
	dirty := u.takeDirty()
	if dirty == nil {
		return nil
	}
	o := u.oracle
	if s, ok := o.(Snapshotter[P]); ok {
		o = s.Snapshot()
	}
	r := &Rebuild[P]{prev: prev, oracle: o, dirty: dirty, done: make(chan struct{})}
	u.inFlight = r
	u.stopLock.Lock()
	defer u.stopLock.Unlock()
	if u.stopped {
		r.run()
		return r
	}
	u.work <- r
	return r
}

// Run is the rebuild worker. It returns when ctx is done, finishing a rebuild already submitted; rebuilds
// submitted afterwards run inside Submit.
func (u *Updater[P]) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			u.stopLock.Lock()
			defer u.stopLock.Unlock()
			u.stopped = true
			select {
			case r := <-u.work:
				r.run()
			default:
			}
			return ctx.Err()
		case r := <-u.work:
			r.run()
		}
	}
}

func (r *Rebuild[P]) run() {
	start := time.Now()
	r.net, r.diff = Apply(r.oracle, r.prev, r.dirty)
	r.duration = time.Since(start)
	close(r.done)
	zap.S().Debugw("rebuild done",
		"dirty", len(r.dirty),
		"changed", len(r.diff.Changed),
		"removed", len(r.diff.Removed),
		"regrouped", len(r.diff.Regrouped),
		"version", r.net.Version(),
		"took", r.duration)
}

// Build constructs a network from scratch by flooding out from starts.
func Build[P railnet.Position[P]](o Oracle[P], starts []P) *Network[P] {
	n, _ := Apply(o, Empty[P](), starts)
	return n
}

// Apply re-derives the objects at dirty from o and floods outward until re-derived rails stop changing.
// The result shares everything untouched with prev, which is not modified. An empty dirty set returns prev.
func Apply[P railnet.Position[P]](o Oracle[P], prev *Network[P], dirty []P) (*Network[P], Diff[P]) {
	if prev == nil {
		prev = Empty[P]()
	}
	if len(dirty) == 0 {
		return prev, Diff[P]{}
	}

	changed := map[P]Object[P]{}
	removed := map[P]bool{}
	// affected rails need their sections recomputed
	affected := map[P]bool{}
	visited := map[P]bool{}
	queue := append([]P(nil), dirty...)
	push := func(ps ...P) { queue = append(queue, ps...) }
	pushAround := func(obj Object[P]) {
		switch obj := obj.(type) {
		case *Rail[P]:
			for p := range obj.neighbors {
				push(p)
			}
			push(obj.attached...)
		case Anchored[P]:
			push(obj.Anchor())
		}
	}
	for _, p := range dirty {
		if old, ok := prev.Object(p); ok {
			pushAround(old)
		}
	}

	for len(queue) > 0 {
		pos := queue[0]
		queue = queue[1:]
		if visited[pos] {
			continue
		}
		visited[pos] = true
		old, hadOld := prev.Object(pos)
		desc, ok := resolve(o, pos)
		if !ok {
			if hadOld {
				if !o.IsLoaded(pos) {
					zap.S().Debugw("treating unloaded position as absent", "pos", pos, "err", ErrOracleUnavailable)
				}
				removed[pos] = true
				pushAround(old)
				markAffected(affected, old)
			}
			continue
		}
		var obj Object[P]
		if desc.Kind == KindRail {
			obj = deriveRail(o, pos, desc)
		} else {
			obj = newAnchored(pos, desc)
		}
		if hadOld && sameObject(old, obj) {
			continue
		}
		changed[pos] = obj
		markAffected(affected, obj)
		pushAround(obj)
		if hadOld {
			markAffected(affected, old)
			pushAround(old)
		}
	}

	next := &Network[P]{version: prev.version + 1}
	next.objects = prev.objects.with(changed, setKeys(removed))
	// anchored objects only stay while their rail lists them
	for p := range visited {
		obj, ok := next.objects.get(p)
		if !ok {
			continue
		}
		a, ok := obj.(Anchored[P])
		if !ok || attachedTo(next, a) {
			continue
		}
		zap.S().Debugw("pruning orphaned object", "pos", p, "kind", a.Kind(), "rail", a.Anchor())
		delete(changed, p)
		if _, had := prev.Object(p); had {
			removed[p] = true
		}
	}
	next.objects = prev.objects.with(changed, setKeys(removed))

	if len(changed) == 0 && len(removed) == 0 {
		return prev, Diff[P]{}
	}

	var aff []P
	for p := range affected {
		aff = append(aff, p)
	}
	sortPositions(aff)
	moved := next.regroup(prev, aff)

	var diff Diff[P]
	for p := range changed {
		diff.Changed = append(diff.Changed, p)
	}
	for _, p := range moved {
		if _, ok := changed[p]; !ok {
			diff.Regrouped = append(diff.Regrouped, p)
		}
	}
	for p := range removed {
		diff.Removed = append(diff.Removed, p)
	}
	sortPositions(diff.Changed)
	sortPositions(diff.Removed)
	return next, diff
}

func attachedTo[P railnet.Position[P]](n *Network[P], a Anchored[P]) bool {
	r, ok := n.Rail(a.Anchor())
	if !ok {
		return false
	}
	for _, p := range r.attached {
		if p == a.Pos() {
			return true
		}
	}
	return false
}

// markAffected records the rails whose sections may change because obj changed.
func markAffected[P railnet.Position[P]](affected map[P]bool, obj Object[P]) {
	switch obj := obj.(type) {
	case *Rail[P]:
		affected[obj.pos] = true
		for p := range obj.neighbors {
			affected[p] = true
		}
	case Anchored[P]:
		affected[obj.Anchor()] = true
	}
}

func setKeys[P comparable](m map[P]bool) []P {
	res := make([]P, 0, len(m))
	for p := range m {
		res = append(res, p)
	}
	return res
}
