package layout

import (
	"nyiyui.ca/hato/railnet"
)

// Section is a run of rails reserved as a unit. Sections partition the rails of a network.
type Section[P railnet.Position[P]] struct {
	// ID is the least member position.
	ID P
	// Members are ordered along the track from one end to the other.
	Members []P
	// Signals guarding entry into this section.
	Signals []P
	// Boundary holds rails of other sections directly connected to a member.
	Boundary []P
}

func (s *Section[P]) Contains(pos P) bool {
	for _, m := range s.Members {
		if m == pos {
			return true
		}
	}
	return false
}

// cut reports whether the edge from a toward b (travelling d) separates two sections.
// Links and junctions always cut, and so does entering a rail past a signal facing the direction of travel.
func (n *Network[P]) cut(a, b *Rail[P], d railnet.Heading) bool {
	if d == railnet.HeadingNone || a.IsJunction() || b.IsJunction() {
		return true
	}
	for _, s := range n.signalsOn(b) {
		if s.Facing == d {
			return true
		}
	}
	for _, s := range n.signalsOn(a) {
		if s.Facing == d.Opposite() {
			return true
		}
	}
	return false
}

// group floods from start over uncut edges and returns the section it lies in.
func (n *Network[P]) group(start *Rail[P]) *Section[P] {
	members := map[P]*Rail[P]{start.pos: start}
	boundary := map[P]struct{}{}
	queue := []*Rail[P]{start}
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		for np, d := range r.neighbors {
			nr, ok := n.Rail(np)
			if !ok {
				continue
			}
			if n.cut(r, nr, d) {
				boundary[np] = struct{}{}
				continue
			}
			if _, seen := members[np]; !seen {
				members[np] = nr
				queue = append(queue, nr)
			}
		}
	}
	s := &Section[P]{Members: chain(n, members)}
	s.ID = s.Members[0]
	for _, m := range s.Members {
		if m.Compare(s.ID) < 0 {
			s.ID = m
		}
		delete(boundary, m)
		for _, sig := range n.signalsOn(members[m]) {
			s.Signals = append(s.Signals, sig.pos)
		}
	}
	for b := range boundary {
		s.Boundary = append(s.Boundary, b)
	}
	sortPositions(s.Signals)
	sortPositions(s.Boundary)
	return s
}

// chain orders the members of a section end to end. A section without ends (a loop) starts at its least
// member.
func chain[P railnet.Position[P]](n *Network[P], members map[P]*Rail[P]) []P {
	inner := func(p P) []P {
		var res []P
		for np, d := range members[p].neighbors {
			if _, ok := members[np]; ok && !n.cut(members[p], members[np], d) {
				res = append(res, np)
			}
		}
		sortPositions(res)
		return res
	}
	var start P
	first := true
	for p := range members {
		if len(inner(p)) >= 2 {
			continue
		}
		if first || p.Compare(start) < 0 {
			start, first = p, false
		}
	}
	if first {
		for p := range members {
			if first || p.Compare(start) < 0 {
				start, first = p, false
			}
		}
	}
	res := make([]P, 0, len(members))
	seen := map[P]bool{}
	for cur, ok := start, true; ok; {
		res = append(res, cur)
		seen[cur] = true
		ok = false
		for _, next := range inner(cur) {
			if !seen[next] {
				cur, ok = next, true
				break
			}
		}
	}
	return res
}

// regroup recomputes the sections touching affected, reusing every other section from prev. It returns the
// rails whose section id differs from prev, including rails new to the network.
func (n *Network[P]) regroup(prev *Network[P], affected []P) (moved []P) {
	dropped := map[P]*Section[P]{}
	var pending []P
	drop := func(p P) {
		id, ok := prev.sectionOf.get(p)
		if !ok {
			return
		}
		if _, done := dropped[id]; done {
			return
		}
		s, _ := prev.sections.get(id)
		dropped[id] = s
		pending = append(pending, s.Members...)
	}
	for _, p := range affected {
		drop(p)
		pending = append(pending, p)
	}

	made := map[P]*Section[P]{}
	placed := map[P]bool{}
	for len(pending) > 0 {
		p := pending[0]
		pending = pending[1:]
		if placed[p] {
			continue
		}
		r, ok := n.Rail(p)
		if !ok {
			continue
		}
		s := n.group(r)
		made[s.ID] = s
		for _, m := range s.Members {
			placed[m] = true
			// a flood reaching into an untouched section merges it
			drop(m)
		}
	}

	var delSections, delMembers, delSignals []P
	for id, s := range dropped {
		delSections = append(delSections, id)
		delMembers = append(delMembers, s.Members...)
		delSignals = append(delSignals, s.Signals...)
	}
	setMembers := map[P]P{}
	setSignals := map[P]P{}
	for id, s := range made {
		for _, m := range s.Members {
			setMembers[m] = id
			if old, ok := prev.sectionOf.get(m); !ok || old != id {
				moved = append(moved, m)
			}
		}
		for _, sig := range s.Signals {
			setSignals[sig] = id
		}
	}
	n.sections = prev.sections.with(made, delSections)
	n.sectionOf = prev.sectionOf.with(setMembers, delMembers)
	n.protects = prev.protects.with(setSignals, delSignals)
	sortPositions(moved)
	return moved
}

// forward returns the neighbours of r a train entering with heading h can continue to, excluding the
// way back.
func forward[P railnet.Position[P]](r *Rail[P], h railnet.Heading) map[P]railnet.Heading {
	exits, ok := r.ExitsFor(h)
	if !ok {
		exits = r.neighbors
	}
	res := make(map[P]railnet.Heading, len(exits))
	for p, d := range exits {
		if h != railnet.HeadingNone && d == h.Opposite() {
			continue
		}
		res[p] = d
	}
	return res
}

// NextSections returns the ids of the sections a train reaches after passing the signal at pos and leaving
// the section it protects, ordered.
func (n *Network[P]) NextSections(signal P) []P {
	o, ok := n.Object(signal)
	if !ok {
		return nil
	}
	sig, ok := o.(*Signal[P])
	if !ok {
		return nil
	}
	protected, ok := n.ProtectedSection(signal)
	if !ok {
		return nil
	}
	r, ok := n.Rail(sig.Rail)
	if !ok {
		return nil
	}
	next := map[P]struct{}{}
	seen := map[P]bool{}
	h := sig.Facing
	for r != nil && !seen[r.pos] {
		seen[r.pos] = true
		var cont *Rail[P]
		var contH railnet.Heading
		for np, d := range forward(r, h) {
			id, ok := n.SectionOf(np)
			if !ok {
				continue
			}
			if id != protected {
				next[id] = struct{}{}
				continue
			}
			if nr, ok := n.Rail(np); ok {
				cont, contH = nr, d
			}
		}
		r, h = cont, contH
	}
	res := make([]P, 0, len(next))
	for id := range next {
		res = append(res, id)
	}
	sortPositions(res)
	return res
}
