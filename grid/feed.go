package grid

import (
	"bytes"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/tal"
)

type Observation = tal.Observation[Pos]

// Feed is an actor feed whose trains are placed by hand. Simulations and tests move trains with Put.
type Feed struct {
	lock   sync.Mutex
	trains map[tal.TrainID]Observation
}

var _ tal.ActorFeed[Pos] = (*Feed)(nil)

func NewFeed() *Feed {
	return &Feed{trains: map[tal.TrainID]Observation{}}
}

// Put adds the train or replaces what is known about it.
func (f *Feed) Put(o Observation) {
	f.lock.Lock()
	defer f.lock.Unlock()
	o.Positions = slices.Clone(o.Positions)
	f.trains[o.ID] = o
}

// Move places the train on positions, keeping its heading and destination.
func (f *Feed) Move(id tal.TrainID, positions ...Pos) bool {
	return f.update(id, func(o *Observation) { o.Positions = slices.Clone(positions) })
}

// Steer changes the direction the train is travelling.
func (f *Feed) Steer(id tal.TrainID, h railnet.Heading) bool {
	return f.update(id, func(o *Observation) { o.Heading = h })
}

func (f *Feed) update(id tal.TrainID, apply func(o *Observation)) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	o, ok := f.trains[id]
	if !ok {
		return false
	}
	apply(&o)
	f.trains[id] = o
	return true
}

func (f *Feed) Remove(id tal.TrainID) {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.trains, id)
}

// Observe returns every train, ordered by id.
func (f *Feed) Observe() []Observation {
	f.lock.Lock()
	defer f.lock.Unlock()
	res := maps.Values(f.trains)
	slices.SortFunc(res, func(a, b Observation) int { return bytes.Compare(a.ID[:], b.ID[:]) })
	for i := range res {
		res[i].Positions = slices.Clone(res[i].Positions)
	}
	return res
}
