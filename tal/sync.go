package tal

import (
	"fmt"

	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/tal/layout"
)

type EventKind string

const (
	// EventClear tells viewers to forget every object.
	EventClear EventKind = "clear"
	// EventNodes carries the full object set.
	EventNodes        EventKind = "nodes"
	EventDelta        EventKind = "delta"
	EventTrainAdded   EventKind = "train-added"
	EventTrainUpdated EventKind = "train-updated"
	EventTrainRemoved EventKind = "train-removed"
	EventAspects      EventKind = "aspects"
)

// Event is one viewer-sync message.
type Event[P railnet.Position[P]] struct {
	Kind    EventKind `json:"kind"`
	Version uint64    `json:"version"`
	// Objects is set for nodes and delta.
	Objects []ObjectView[P] `json:"objects,omitempty"`
	// Removed is set for delta.
	Removed []P `json:"removed,omitempty"`
	// Train is set for train events. Only the ID is set for train-removed.
	Train   *TrainView[P]   `json:"train,omitempty"`
	Aspects []AspectView[P] `json:"aspects,omitempty"`
}

func (e Event[P]) String() string {
	return fmt.Sprintf("%s v%d (%d objects, %d removed)", e.Kind, e.Version, len(e.Objects), len(e.Removed))
}

type ObjectView[P railnet.Position[P]] struct {
	Pos P `json:"pos"`
	layout.Descriptor[P]
	Neighbors []P `json:"neighbors,omitempty"`
	// Section is the section a rail belongs to.
	Section *P `json:"section,omitempty"`
}

type TrainView[P railnet.Position[P]] struct {
	ID          TrainID         `json:"id"`
	Positions   []P             `json:"positions,omitempty"`
	Heading     railnet.Heading `json:"heading"`
	Destination string          `json:"destination,omitempty"`
	Route       []P             `json:"route,omitempty"`
	Claims      []P             `json:"claims,omitempty"`
}

type AspectView[P railnet.Position[P]] struct {
	Signal P              `json:"signal"`
	Aspect railnet.Aspect `json:"aspect"`
}

// GuideSnapshot is the state of a guide after one tick.
type GuideSnapshot[P railnet.Position[P]] struct {
	Version uint64          `json:"version"`
	Trains  []TrainView[P]  `json:"trains"`
	Aspects []AspectView[P] `json:"aspects"`
	// Sections lists every section id with its holder, if any.
	Sections []SectionView[P] `json:"sections"`
}

type SectionView[P railnet.Position[P]] struct {
	ID      P        `json:"id"`
	Members []P      `json:"members"`
	Holder  *TrainID `json:"holder,omitempty"`
}

func objectView[P railnet.Position[P]](net *layout.Network[P], o layout.Object[P]) ObjectView[P] {
	v := ObjectView[P]{Pos: o.Pos(), Descriptor: layout.Describe(o)}
	if r, ok := o.(*layout.Rail[P]); ok {
		for n := range r.Neighbors() {
			v.Neighbors = append(v.Neighbors, n)
		}
		sortPositions(v.Neighbors)
		if s, ok := net.SectionOf(r.Pos()); ok {
			v.Section = &s
		}
	}
	return v
}

func nodesEvent[P railnet.Position[P]](net *layout.Network[P]) Event[P] {
	e := Event[P]{Kind: EventNodes, Version: net.Version()}
	for _, o := range net.Objects() {
		e.Objects = append(e.Objects, objectView(net, o))
	}
	return e
}

func deltaEvent[P railnet.Position[P]](net *layout.Network[P], diff layout.Diff[P]) Event[P] {
	e := Event[P]{Kind: EventDelta, Version: net.Version(), Removed: diff.Removed}
	ps := append(slices.Clone(diff.Changed), diff.Regrouped...)
	sortPositions(ps)
	for _, p := range ps {
		if o, ok := net.Object(p); ok {
			e.Objects = append(e.Objects, objectView(net, o))
		}
	}
	return e
}

// trainView must be called with the lock held.
func (g *Guide[P]) trainView(t *Train[P]) *TrainView[P] {
	v := &TrainView[P]{
		ID:          t.ID,
		Positions:   t.Positions,
		Heading:     t.Heading,
		Destination: t.Destination,
		Claims:      g.claimsOf(t.ID),
	}
	if t.Route != nil {
		v.Route = t.Route.Positions
	}
	return v
}

// aspectViews must be called with the lock held.
func (g *Guide[P]) aspectViews() []AspectView[P] {
	res := make([]AspectView[P], 0, len(g.aspects))
	for s, a := range g.aspects {
		res = append(res, AspectView[P]{s, a})
	}
	slices.SortFunc(res, func(a, b AspectView[P]) int { return a.Signal.Compare(b.Signal) })
	return res
}

// snapshot must be called with the lock held.
func (g *Guide[P]) snapshot(net *layout.Network[P]) GuideSnapshot[P] {
	gs := GuideSnapshot[P]{Version: net.Version(), Aspects: g.aspectViews()}
	for _, id := range g.trainIDs() {
		gs.Trains = append(gs.Trains, *g.trainView(g.trains[id]))
	}
	for _, s := range net.Sections() {
		sv := SectionView[P]{ID: s.ID, Members: s.Members}
		if holder, ok := g.claims[s.ID]; ok {
			sv.Holder = &holder
		}
		gs.Sections = append(gs.Sections, sv)
	}
	return gs
}
