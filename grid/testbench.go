package grid

import (
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/tal/layout"
)

func Rail(shapes ...railnet.Shape) Descriptor {
	return Descriptor{Kind: layout.KindRail, Shapes: shapes}
}

func Signal(rail Pos, facing railnet.Heading) Descriptor {
	return Descriptor{Kind: layout.KindSignal, Rail: rail, Facing: facing}
}

func Station(rail Pos, name string) Descriptor {
	return Descriptor{Kind: layout.KindStation, Rail: rail, Name: name}
}

func Link(rail, target Pos) Descriptor {
	return Descriptor{Kind: layout.KindLink, Rail: rail, Target: target}
}

// Line lays n straight rails starting at start toward h and returns their positions.
func (w *World) Line(start Pos, h railnet.Heading, n int) []Pos {
	shape := railnet.EastWest
	if h == railnet.North || h == railnet.South {
		shape = railnet.NorthSouth
	}
	res := make([]Pos, n)
	p := start
	for i := range res {
		w.Set(p, Rail(shape))
		res[i] = p
		p = p.Offset(h)
	}
	return res
}

// InitTestbench1 is a straight line of five rails (1,0,0)…(5,0,0) running east. A signal at rail 3 faces
// east and rail 5 is the station "terminus".
func InitTestbench1() *World {
	w := NewWorld()
	w.Line(Pos{1, 0, 0}, railnet.East, 5)
	w.Set(Pos{3, 0, -1}, Signal(Pos{3, 0, 0}, railnet.East))
	w.Set(Pos{5, 0, -1}, Station(Pos{5, 0, 0}, "terminus"))
	return w
}

// InitTestbench2 is the line of InitTestbench1 without a signal, with stations "west" at rail 1 and
// "east" at rail 5.
func InitTestbench2() *World {
	w := NewWorld()
	w.Line(Pos{1, 0, 0}, railnet.East, 5)
	w.Set(Pos{1, 0, -1}, Station(Pos{1, 0, 0}, "west"))
	w.Set(Pos{5, 0, -1}, Station(Pos{5, 0, 0}, "east"))
	return w
}

// InitTestbench3 has a turnout at (3,0,0) on an east-west line of five rails. Trains coming from the west
// may continue east or turn south onto a two-rail branch; trains from the branch can only go west.
// Stations: "main-a" at (5,0,0), "branch-b" at (3,0,2). A signal at (2,0,0) faces east.
func InitTestbench3() *World {
	w := NewWorld()
	w.Line(Pos{1, 0, 0}, railnet.East, 5)
	w.Set(Pos{3, 0, 0}, Rail(railnet.EastWest, railnet.SouthWest))
	w.Line(Pos{3, 0, 1}, railnet.South, 2)
	w.Set(Pos{2, 0, -1}, Signal(Pos{2, 0, 0}, railnet.East))
	w.Set(Pos{5, 0, -1}, Station(Pos{5, 0, 0}, "main-a"))
	w.Set(Pos{4, 0, 2}, Station(Pos{3, 0, 2}, "branch-b"))
	return w
}

// InitTestbench4 climbs a ramp and jumps through a link.
// (1,0,0) → ramp (2,0,0) → (3,1,0) → (4,1,0) "upper", linked to (10,0,0) → (11,0,0) "island".
func InitTestbench4() *World {
	w := NewWorld()
	w.Set(Pos{1, 0, 0}, Rail(railnet.EastWest))
	w.Set(Pos{2, 0, 0}, Rail(railnet.AscendingEast))
	w.Line(Pos{3, 1, 0}, railnet.East, 2)
	w.Set(Pos{4, 1, -1}, Station(Pos{4, 1, 0}, "upper"))
	w.Line(Pos{10, 0, 0}, railnet.East, 2)
	w.Set(Pos{11, 0, -1}, Station(Pos{11, 0, 0}, "island"))
	w.Set(Pos{4, 1, 1}, Link(Pos{4, 1, 0}, Pos{10, 0, 0}))
	w.Set(Pos{10, 0, -1}, Link(Pos{10, 0, 0}, Pos{4, 1, 0}))
	return w
}

// InitTestbench5 is a ten-rail line with two signals facing east at rails 4 and 7, splitting it into three
// sections, and stations "alpha" at rail 1 and "omega" at rail 10. Used to run two trains after each other.
func InitTestbench5() *World {
	w := NewWorld()
	w.Line(Pos{1, 0, 0}, railnet.East, 10)
	w.Set(Pos{4, 0, -1}, Signal(Pos{4, 0, 0}, railnet.East))
	w.Set(Pos{7, 0, -1}, Signal(Pos{7, 0, 0}, railnet.East))
	w.Set(Pos{1, 0, -1}, Station(Pos{1, 0, 0}, "alpha"))
	w.Set(Pos{10, 0, -1}, Station(Pos{10, 0, 0}, "omega"))
	return w
}
