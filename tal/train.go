package tal

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/tal/layout"
)

type TrainID = uuid.UUID

// Observation is what the actor feed knows about one physical train.
type Observation[P railnet.Position[P]] struct {
	ID TrainID
	// Positions are the rails the train is on, front first.
	Positions []P
	// Heading is the direction the front of the train is travelling.
	Heading railnet.Heading
	// Destination is a station name pattern. Trains without one are not routed.
	Destination string
}

// ActorFeed enumerates the live trains. It is polled once per tick.
type ActorFeed[P railnet.Position[P]] interface {
	Observe() []Observation[P]
}

type Train[P railnet.Position[P]] struct {
	ID          TrainID
	Positions   []P
	Heading     railnet.Heading
	Destination string
	// Route is nil when the train has no valid route.
	Route *layout.Route[P]
}

func (t *Train[P]) String() string {
	b := new(strings.Builder)
	fmt.Fprintf(b, "train %s at %v heading %s", t.ID, t.Positions, t.Heading)
	if t.Route != nil {
		fmt.Fprintf(b, " routed to %s", t.Route.Destination)
	} else if t.Destination != "" {
		fmt.Fprintf(b, " wants %s", t.Destination)
	}
	return b.String()
}

// front returns the rail the front of the train is on.
func (t *Train[P]) front() (P, bool) {
	if len(t.Positions) == 0 {
		var zero P
		return zero, false
	}
	return t.Positions[0], true
}

// ahead returns the part of the route from the front of the train on. ok is false when the train left
// its route.
func (t *Train[P]) ahead() (positions []P, ok bool) {
	if t.Route == nil {
		return nil, false
	}
	f, has := t.front()
	if !has {
		return nil, false
	}
	i := slices.Index(t.Route.Positions, f)
	if i == -1 {
		return nil, false
	}
	return t.Route.Positions[i:], true
}

// reconcile applies observations to the train set. It returns the ids of added, updated, and removed trains,
// ordered.
func (g *Guide[P]) reconcile(obs []Observation[P]) (added, updated, removed []TrainID) {
	seen := map[TrainID]bool{}
	for _, o := range obs {
		if seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		t, ok := g.trains[o.ID]
		if !ok {
			g.trains[o.ID] = &Train[P]{
				ID:          o.ID,
				Positions:   slices.Clone(o.Positions),
				Heading:     o.Heading,
				Destination: o.Destination,
			}
			added = append(added, o.ID)
			continue
		}
		changed := false
		if !slices.Equal(t.Positions, o.Positions) || t.Heading != o.Heading {
			t.Positions = slices.Clone(o.Positions)
			t.Heading = o.Heading
			changed = true
		}
		if t.Destination != o.Destination {
			t.Destination = o.Destination
			t.Route = nil
			changed = true
		}
		if changed {
			updated = append(updated, o.ID)
		}
	}
	for id := range g.trains {
		if !seen[id] {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		g.releaseAll(id)
		delete(g.trains, id)
	}
	sortIDs(added)
	sortIDs(updated)
	sortIDs(removed)
	return
}

// trainIDs returns the ids of every train, ordered.
func (g *Guide[P]) trainIDs() []TrainID {
	ids := make([]TrainID, 0, len(g.trains))
	for id := range g.trains {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}
