package layout

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railnet"
)

// Kind is the variant of a network object.
type Kind uint8

const (
	KindRail Kind = iota + 1
	KindSignal
	KindStation
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindRail:
		return "rail"
	case KindSignal:
		return "signal"
	case KindStation:
		return "station"
	case KindLink:
		return "link"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for _, c := range []Kind{KindRail, KindSignal, KindStation, KindLink} {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown kind %q", text)
}

// Descriptor is what the oracle knows about one position.
// Which fields are used depends on Kind:
//   - rail: Shapes
//   - signal: Rail, Facing
//   - station: Rail, Name
//   - link: Rail, Target
//
// Rail is the rail position the object is anchored to. Anchored objects must be adjacent to their rail.
type Descriptor[P railnet.Position[P]] struct {
	Kind   Kind            `json:"kind"`
	Shapes []railnet.Shape `json:"shapes,omitempty"`
	Rail   P               `json:"rail,omitempty"`
	Facing railnet.Heading `json:"facing,omitempty"`
	Name   string          `json:"name,omitempty"`
	Target P               `json:"target,omitempty"`
}

// Oracle answers questions about the world around a position.
// Answers must not change for the duration of one rebuild.
type Oracle[P railnet.Position[P]] interface {
	Resolve(pos P) (Descriptor[P], bool)
	IsLoaded(pos P) bool
}

// Snapshotter is implemented by oracles that can freeze their current state for a rebuild.
type Snapshotter[P railnet.Position[P]] interface {
	Snapshot() Oracle[P]
}

// Object is a node in the rail network, keyed by its position.
type Object[P railnet.Position[P]] interface {
	Pos() P
	Kind() Kind
}

// Anchored is an object attached to a rail.
type Anchored[P railnet.Position[P]] interface {
	Object[P]
	Anchor() P
}

// Rail is a piece of track. Its neighbour sets are derived from the oracle when the rail is derived and
// never change afterwards; re-deriving the rail is the only way to refresh them.
type Rail[P railnet.Position[P]] struct {
	pos    P
	shapes []railnet.Shape
	// neighbors maps each neighbour to the heading travelled to reach it.
	// Link neighbours use railnet.HeadingNone.
	neighbors map[P]railnet.Heading
	// exits maps the heading a train travels when entering this rail to the neighbours it may leave to.
	exits    map[railnet.Heading]map[P]railnet.Heading
	attached []P
	stations []string
}

func (r *Rail[P]) Pos() P     { return r.pos }
func (r *Rail[P]) Kind() Kind { return KindRail }

// Shapes returns the valid shapes of this rail. The slice must not be modified.
func (r *Rail[P]) Shapes() []railnet.Shape { return r.shapes }

// IsJunction reports whether this rail can be switched between shapes.
func (r *Rail[P]) IsJunction() bool { return len(r.shapes) > 1 }

// Neighbors returns all neighbours regardless of entry. This is for connectivity discovery, not routing.
// The map must not be modified.
func (r *Rail[P]) Neighbors() map[P]railnet.Heading { return r.neighbors }

// Attached returns the positions of signals, station markers, and links anchored to this rail.
func (r *Rail[P]) Attached() []P { return r.attached }

// Stations returns the names of station markers anchored to this rail.
func (r *Rail[P]) Stations() []string { return r.stations }

// ExitsFor returns the neighbours reachable when entering this rail travelling toward entry.
// For a straight rail this is both ends; for a junction only the ends of shapes that include the entry.
// HeadingNone returns all neighbours.
func (r *Rail[P]) ExitsFor(entry railnet.Heading) (exits map[P]railnet.Heading, ok bool) {
	if entry == railnet.HeadingNone {
		return r.neighbors, true
	}
	exits, ok = r.exits[entry]
	return
}

func (r *Rail[P]) String() string {
	return fmt.Sprintf("rail(%s %v)", r.pos, r.shapes)
}

func (r *Rail[P]) equal(o *Rail[P]) bool {
	return r.pos == o.pos &&
		slices.Equal(r.shapes, o.shapes) &&
		maps.Equal(r.neighbors, o.neighbors) &&
		slices.Equal(r.attached, o.attached) &&
		slices.Equal(r.stations, o.stations)
}

// Signal guards entry into the section containing its rail, for trains travelling toward Facing.
type Signal[P railnet.Position[P]] struct {
	pos    P
	Rail   P
	Facing railnet.Heading
}

func (s *Signal[P]) Pos() P     { return s.pos }
func (s *Signal[P]) Kind() Kind { return KindSignal }
func (s *Signal[P]) Anchor() P  { return s.Rail }

// Station marks its rail as part of a named station.
type Station[P railnet.Position[P]] struct {
	pos  P
	Rail P
	Name string
}

func (s *Station[P]) Pos() P     { return s.pos }
func (s *Station[P]) Kind() Kind { return KindStation }
func (s *Station[P]) Anchor() P  { return s.Rail }

// Link connects its rail to a rail that is not adjacent. A link edge only exists when the target rail has a
// link pointing back.
type Link[P railnet.Position[P]] struct {
	pos    P
	Rail   P
	Target P
}

func (l *Link[P]) Pos() P     { return l.pos }
func (l *Link[P]) Kind() Kind { return KindLink }
func (l *Link[P]) Anchor() P  { return l.Rail }

// newAnchored makes a signal, station, or link from its descriptor.
func newAnchored[P railnet.Position[P]](pos P, d Descriptor[P]) Anchored[P] {
	switch d.Kind {
	case KindSignal:
		return &Signal[P]{pos: pos, Rail: d.Rail, Facing: d.Facing}
	case KindStation:
		return &Station[P]{pos: pos, Rail: d.Rail, Name: d.Name}
	case KindLink:
		return &Link[P]{pos: pos, Rail: d.Rail, Target: d.Target}
	default:
		panic(fmt.Sprintf("newAnchored: %s is not anchored", d.Kind))
	}
}

// sameObject reports whether two objects are interchangeable in a snapshot.
func sameObject[P railnet.Position[P]](a, b Object[P]) bool {
	switch a := a.(type) {
	case *Rail[P]:
		b, ok := b.(*Rail[P])
		return ok && a.equal(b)
	case *Signal[P]:
		b, ok := b.(*Signal[P])
		return ok && *a == *b
	case *Station[P]:
		b, ok := b.(*Station[P])
		return ok && *a == *b
	case *Link[P]:
		b, ok := b.(*Link[P])
		return ok && *a == *b
	}
	return false
}

// Describe turns an object back into the descriptor it was derived from.
// Rails lose nothing but their derived neighbour sets.
func Describe[P railnet.Position[P]](o Object[P]) Descriptor[P] {
	switch o := o.(type) {
	case *Rail[P]:
		return Descriptor[P]{Kind: KindRail, Shapes: o.shapes}
	case *Signal[P]:
		return Descriptor[P]{Kind: KindSignal, Rail: o.Rail, Facing: o.Facing}
	case *Station[P]:
		return Descriptor[P]{Kind: KindStation, Rail: o.Rail, Name: o.Name}
	case *Link[P]:
		return Descriptor[P]{Kind: KindLink, Rail: o.Rail, Target: o.Target}
	}
	panic(fmt.Sprintf("Describe: unknown object %T", o))
}

func sortPositions[P railnet.Position[P]](ps []P) {
	slices.SortFunc(ps, func(a, b P) int { return a.Compare(b) })
}
