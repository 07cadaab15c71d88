package layout

import (
	"fmt"

	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railnet"
)

// resolve returns the descriptor at pos, treating unloaded positions as empty.
func resolve[P railnet.Position[P]](o Oracle[P], pos P) (Descriptor[P], bool) {
	if !o.IsLoaded(pos) {
		return Descriptor[P]{}, false
	}
	return o.Resolve(pos)
}

// probe finds the rail reached by leaving pos toward d. Ramps put the next rail one step down or up,
// so those are tried after the level position.
func probe[P railnet.Position[P]](o Oracle[P], pos P, d railnet.Heading) (P, Descriptor[P], bool) {
	level := pos.Offset(d)
	for _, c := range [3]P{level, level.Offset(railnet.Down), level.Offset(railnet.Up)} {
		desc, ok := resolve(o, c)
		if ok && desc.Kind == KindRail {
			return c, desc, true
		}
	}
	var zero P
	return zero, Descriptor[P]{}, false
}

func hasDirection(shapes []railnet.Shape, d railnet.Heading) bool {
	return slices.IndexFunc(shapes, func(s railnet.Shape) bool { return s.Has(d) }) != -1
}

// adjacent returns the rail connected to pos toward d. Both rails must agree: the other rail needs a shape
// ending toward pos, and probing back from it must land on pos.
func adjacent[P railnet.Position[P]](o Oracle[P], pos P, d railnet.Heading) (P, bool) {
	n, desc, ok := probe(o, pos, d)
	if !ok || !hasDirection(desc.Shapes, d.Opposite()) {
		return n, false
	}
	back, _, ok := probe(o, n, d.Opposite())
	if !ok || back != pos {
		return n, false
	}
	return n, true
}

// linkedBack reports whether the rail at target has a link pointing at pos.
func linkedBack[P railnet.Position[P]](o Oracle[P], target, pos P) bool {
	desc, ok := resolve(o, target)
	if !ok || desc.Kind != KindRail {
		return false
	}
	for _, h := range railnet.Headings {
		ld, ok := resolve(o, target.Offset(h))
		if ok && ld.Kind == KindLink && ld.Rail == target && ld.Target == pos {
			return true
		}
	}
	return false
}

// deriveRail builds the rail at pos from the oracle: its neighbours, per-entry exits, and attached objects.
func deriveRail[P railnet.Position[P]](o Oracle[P], pos P, desc Descriptor[P]) *Rail[P] {
	if desc.Kind != KindRail {
		panic(fmt.Sprintf("deriveRail: %s is a %s", pos, desc.Kind))
	}
	r := &Rail[P]{
		pos:       pos,
		shapes:    slices.Clone(desc.Shapes),
		neighbors: map[P]railnet.Heading{},
		exits:     map[railnet.Heading]map[P]railnet.Heading{},
	}
	slices.Sort(r.shapes)
	r.shapes = slices.Compact(r.shapes)

	for _, d := range railnet.Horizontals {
		if !hasDirection(r.shapes, d) {
			continue
		}
		if n, ok := adjacent(o, pos, d); ok {
			r.neighbors[n] = d
		}
	}

	var links []P
	for _, h := range railnet.Headings {
		ap := pos.Offset(h)
		ad, ok := resolve(o, ap)
		if !ok || ad.Kind == KindRail || ad.Rail != pos {
			continue
		}
		r.attached = append(r.attached, ap)
		switch ad.Kind {
		case KindStation:
			r.stations = append(r.stations, ad.Name)
		case KindLink:
			if ad.Target != pos && linkedBack(o, ad.Target, pos) {
				r.neighbors[ad.Target] = railnet.HeadingNone
				links = append(links, ad.Target)
			}
		}
	}
	sortPositions(r.attached)
	slices.Sort(r.stations)
	r.stations = slices.Compact(r.stations)

	for _, d := range r.neighbors {
		if d == railnet.HeadingNone {
			continue
		}
		// A train coming from n travels d.Opposite() into this rail, through a shape that ends toward d.
		exits := map[P]railnet.Heading{}
		for _, s := range r.shapes {
			if !s.Has(d) {
				continue
			}
			for m, md := range r.neighbors {
				if s.Has(md) {
					exits[m] = md
				}
			}
		}
		for _, l := range links {
			exits[l] = railnet.HeadingNone
		}
		r.exits[d.Opposite()] = exits
	}
	return r
}
