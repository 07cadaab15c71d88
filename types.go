package railnet

import "fmt"

// Heading is a direction of travel through a node.
// HeadingNone is used for link edges and for "any entry".
type Heading int8

const (
	HeadingNone Heading = iota
	North
	East
	South
	West
	Up
	Down
)

// Horizontals are the headings a rail shape can be made of.
var Horizontals = []Heading{North, East, South, West}

// Headings are all six probe directions around a position.
var Headings = []Heading{North, East, South, West, Up, Down}

var headingNames = map[Heading]string{
	HeadingNone: "none",
	North:       "north",
	East:        "east",
	South:       "south",
	West:        "west",
	Up:          "up",
	Down:        "down",
}

func (h Heading) Opposite() Heading {
	switch h {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	case Up:
		return Down
	case Down:
		return Up
	default:
		return HeadingNone
	}
}

func (h Heading) String() string {
	if s, ok := headingNames[h]; ok {
		return s
	}
	return fmt.Sprintf("heading(%d)", int8(h))
}

func (h Heading) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Heading) UnmarshalText(text []byte) error {
	for k, v := range headingNames {
		if v == string(text) {
			*h = k
			return nil
		}
	}
	return fmt.Errorf("unknown heading %q", text)
}

// Shape is one way a rail can be laid. A junction has more than one valid Shape.
type Shape uint8

const (
	NorthSouth Shape = iota + 1
	EastWest
	AscendingNorth
	AscendingSouth
	AscendingEast
	AscendingWest
	SouthEast
	SouthWest
	NorthWest
	NorthEast
)

var shapeNames = map[Shape]string{
	NorthSouth:     "north-south",
	EastWest:       "east-west",
	AscendingNorth: "ascending-north",
	AscendingSouth: "ascending-south",
	AscendingEast:  "ascending-east",
	AscendingWest:  "ascending-west",
	SouthEast:      "south-east",
	SouthWest:      "south-west",
	NorthWest:      "north-west",
	NorthEast:      "north-east",
}

// Directions returns the two ends of the shape.
func (s Shape) Directions() [2]Heading {
	switch s {
	case NorthSouth, AscendingNorth, AscendingSouth:
		return [2]Heading{North, South}
	case EastWest, AscendingEast, AscendingWest:
		return [2]Heading{East, West}
	case SouthEast:
		return [2]Heading{South, East}
	case SouthWest:
		return [2]Heading{South, West}
	case NorthWest:
		return [2]Heading{North, West}
	case NorthEast:
		return [2]Heading{North, East}
	default:
		return [2]Heading{}
	}
}

// Has reports whether one end of the shape points toward h.
func (s Shape) Has(h Heading) bool {
	d := s.Directions()
	return h != HeadingNone && (d[0] == h || d[1] == h)
}

func (s Shape) String() string {
	if n, ok := shapeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("shape(%d)", uint8(s))
}

func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Shape) UnmarshalText(text []byte) error {
	for k, v := range shapeNames {
		if v == string(text) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown shape %q", text)
}

// Position identifies a node. Equality defines node identity, and Compare must be a total order.
type Position[P any] interface {
	comparable
	fmt.Stringer
	// Offset returns the adjacent position toward h.
	Offset(h Heading) P
	// Compare returns -1, 0, or 1.
	Compare(other P) int
}

// Aspect is a signal lamp state. The zero value is AspectStop.
type Aspect uint8

const (
	AspectStop Aspect = iota
	AspectCaution
	AspectClear
)

func (a Aspect) String() string {
	switch a {
	case AspectStop:
		return "stop"
	case AspectCaution:
		return "caution"
	case AspectClear:
		return "clear"
	default:
		return fmt.Sprintf("aspect(%d)", uint8(a))
	}
}

func (a Aspect) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
