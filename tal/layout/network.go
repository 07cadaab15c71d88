package layout

import (
	"fmt"

	"nyiyui.ca/hato/railnet"
)

// Network is an immutable snapshot of the rail network. A new snapshot is made by Updater.Apply and shares
// everything it did not change with the snapshot it was derived from.
// A Network is safe for concurrent reads.
type Network[P railnet.Position[P]] struct {
	version   uint64
	objects   *overlay[P, Object[P]]
	sections  *overlay[P, *Section[P]]
	sectionOf *overlay[P, P]
	// protects maps each signal to the id of the section it guards.
	protects *overlay[P, P]
}

// Empty returns a network with no objects.
func Empty[P railnet.Position[P]]() *Network[P] {
	return &Network[P]{
		objects:   newOverlay[P, Object[P]](nil),
		sections:  newOverlay[P, *Section[P]](nil),
		sectionOf: newOverlay[P, P](nil),
		protects:  newOverlay[P, P](nil),
	}
}

// Version increases by one with each rebuild that changed something.
func (n *Network[P]) Version() uint64 { return n.version }

// Len returns the number of objects.
func (n *Network[P]) Len() int { return n.objects.len() }

func (n *Network[P]) Object(pos P) (Object[P], bool) {
	return n.objects.get(pos)
}

// Rail returns the rail at pos, if any.
func (n *Network[P]) Rail(pos P) (*Rail[P], bool) {
	o, ok := n.objects.get(pos)
	if !ok {
		return nil, false
	}
	r, ok := o.(*Rail[P])
	return r, ok
}

func (n *Network[P]) MustRail(pos P) *Rail[P] {
	r, ok := n.Rail(pos)
	if !ok {
		panic(fmt.Sprintf("no rail at %s", pos))
	}
	return r
}

// Objects returns every object, ordered by position.
func (n *Network[P]) Objects() []Object[P] {
	m := n.objects.flat()
	keys := make([]P, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortPositions(keys)
	res := make([]Object[P], len(keys))
	for i, k := range keys {
		res[i] = m[k]
	}
	return res
}

// NeighborsForEntry returns the neighbours a train may leave pos to, having entered it travelling toward
// entry. HeadingNone gives every neighbour.
// A rail without exits for entry is a stale reference; it is reported and answered with every neighbour.
func (n *Network[P]) NeighborsForEntry(pos P, entry railnet.Heading) (map[P]railnet.Heading, bool) {
	r, ok := n.Rail(pos)
	if !ok {
		return nil, false
	}
	exits, ok := r.ExitsFor(entry)
	if !ok {
		reportStale(&StaleNeighborError[P]{Pos: pos, Heading: entry})
		return r.Neighbors(), true
	}
	return exits, true
}

// Section returns the section with the given id.
func (n *Network[P]) Section(id P) (*Section[P], bool) {
	return n.sections.get(id)
}

// SectionOf returns the id of the section the rail at pos belongs to.
func (n *Network[P]) SectionOf(pos P) (P, bool) {
	return n.sectionOf.get(pos)
}

// Sections returns every section, ordered by id.
func (n *Network[P]) Sections() []*Section[P] {
	m := n.sections.flat()
	ids := make([]P, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sortPositions(ids)
	res := make([]*Section[P], len(ids))
	for i, id := range ids {
		res[i] = m[id]
	}
	return res
}

// ProtectedSection returns the id of the section the signal at pos guards.
func (n *Network[P]) ProtectedSection(signal P) (P, bool) {
	return n.protects.get(signal)
}

// Signals returns the positions of every signal, ordered.
func (n *Network[P]) Signals() []P {
	m := n.protects.flat()
	res := make([]P, 0, len(m))
	for p := range m {
		res = append(res, p)
	}
	sortPositions(res)
	return res
}

// signalsOn returns the signals attached to r.
func (n *Network[P]) signalsOn(r *Rail[P]) []*Signal[P] {
	var res []*Signal[P]
	for _, a := range r.attached {
		if o, ok := n.objects.get(a); ok {
			if s, ok := o.(*Signal[P]); ok {
				res = append(res, s)
			}
		}
	}
	return res
}
