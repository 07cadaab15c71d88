package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/grid"
	"nyiyui.ca/hato/railnet/tal/layout"
)

// Layout is the JSON description of a world.
type Layout struct {
	Comment  string    `json:"comment,omitempty"`
	Rails    []Rail    `json:"rails"`
	Signals  []Signal  `json:"signals,omitempty"`
	Stations []Station `json:"stations,omitempty"`
	Links    []Link    `json:"links,omitempty"`
	Trains   Trains    `json:"trains"`
}

type Rail struct {
	Pos    grid.Pos        `json:"pos"`
	Shapes []railnet.Shape `json:"shapes"`
}

type Signal struct {
	Pos    grid.Pos        `json:"pos"`
	Rail   grid.Pos        `json:"rail"`
	Facing railnet.Heading `json:"facing"`
}

type Station struct {
	Pos  grid.Pos `json:"pos"`
	Rail grid.Pos `json:"rail"`
	Name string   `json:"name"`
}

type Link struct {
	Pos    grid.Pos `json:"pos"`
	Rail   grid.Pos `json:"rail"`
	Target grid.Pos `json:"target"`
}

// ReadLayout reads and checks a layout file.
func ReadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var l Layout
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&l); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := l.Descriptors(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &l, nil
}

// Descriptors returns the world cells the layout describes. Two objects at one position, or a rail with no
// shapes, is an error.
func (l *Layout) Descriptors() (map[grid.Pos]grid.Descriptor, error) {
	res := map[grid.Pos]grid.Descriptor{}
	put := func(p grid.Pos, d grid.Descriptor) error {
		if old, ok := res[p]; ok {
			return fmt.Errorf("%s: both %s and %s", p, old.Kind, d.Kind)
		}
		res[p] = d
		return nil
	}
	for _, r := range l.Rails {
		if len(r.Shapes) == 0 {
			return nil, fmt.Errorf("rail %s: no shapes", r.Pos)
		}
		if err := put(r.Pos, grid.Rail(r.Shapes...)); err != nil {
			return nil, err
		}
	}
	for _, s := range l.Signals {
		if err := put(s.Pos, grid.Signal(s.Rail, s.Facing)); err != nil {
			return nil, err
		}
	}
	for _, s := range l.Stations {
		if err := put(s.Pos, grid.Station(s.Rail, s.Name)); err != nil {
			return nil, err
		}
	}
	for _, k := range l.Links {
		if err := put(k.Pos, grid.Link(k.Rail, k.Target)); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Observations returns the trains of the layout, ordered by id.
func (l *Layout) Observations() []grid.Observation {
	ids := maps.Keys(l.Trains.Trains)
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	res := make([]grid.Observation, 0, len(ids))
	for _, id := range ids {
		t := l.Trains.Trains[id]
		res = append(res, grid.Observation{
			ID:          id,
			Positions:   slices.Clone(t.Positions),
			Heading:     t.Heading,
			Destination: t.Destination,
		})
	}
	return res
}

// FromCells describes cells as a layout, ordered by position.
func FromCells(cells map[grid.Pos]grid.Descriptor) *Layout {
	l := &Layout{Trains: Trains{Trains: map[uuid.UUID]Train{}}}
	ps := maps.Keys(cells)
	slices.SortFunc(ps, grid.Pos.Compare)
	for _, p := range ps {
		d := cells[p]
		switch d.Kind {
		case layout.KindRail:
			l.Rails = append(l.Rails, Rail{Pos: p, Shapes: slices.Clone(d.Shapes)})
		case layout.KindSignal:
			l.Signals = append(l.Signals, Signal{Pos: p, Rail: d.Rail, Facing: d.Facing})
		case layout.KindStation:
			l.Stations = append(l.Stations, Station{Pos: p, Rail: d.Rail, Name: d.Name})
		case layout.KindLink:
			l.Links = append(l.Links, Link{Pos: p, Rail: d.Rail, Target: d.Target})
		}
	}
	return l
}
