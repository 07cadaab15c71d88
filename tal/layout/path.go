package layout

import (
	"container/heap"
	"fmt"

	"github.com/tidwall/match"
	"nyiyui.ca/hato/railnet"
)

// Route is a path from a train's position to a station.
type Route[P railnet.Position[P]] struct {
	Positions []P `json:"positions"`
	// Sections are the ids of the sections along Positions, in order of traversal.
	Sections []P `json:"sections"`
	// Destination is the station name that matched the pattern.
	Destination string `json:"destination"`
}

func (r Route[P]) String() string {
	return fmt.Sprintf("route(%v to %s)", r.Positions, r.Destination)
}

// Blocked reports whether a train may not enter the section with the given id.
type Blocked[P railnet.Position[P]] func(section P) bool

type state[P railnet.Position[P]] struct {
	pos P
	// heading the train was travelling when it entered pos
	heading railnet.Heading
}

type cost struct {
	steps     int
	reversals int
}

func (c cost) less(o cost) bool {
	if c.steps != o.steps {
		return c.steps < o.steps
	}
	return c.reversals < o.reversals
}

type item[P railnet.Position[P]] struct {
	state[P]
	cost cost
}

type frontier[P railnet.Position[P]] []item[P]

func (f frontier[P]) Len() int { return len(f) }
func (f frontier[P]) Less(i, j int) bool {
	a, b := f[i], f[j]
	if a.cost != b.cost {
		return a.cost.less(b.cost)
	}
	if c := a.pos.Compare(b.pos); c != 0 {
		return c < 0
	}
	return a.heading < b.heading
}
func (f frontier[P]) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier[P]) Push(x any)   { *f = append(*f, x.(item[P])) }
func (f *frontier[P]) Pop() any {
	old := *f
	x := old[len(old)-1]
	*f = old[:len(old)-1]
	return x
}

// matchStation returns the first station name on r matching pattern.
func matchStation[P railnet.Position[P]](r *Rail[P], pattern string) (string, bool) {
	for _, name := range r.stations {
		if match.Match(name, pattern) {
			return name, true
		}
	}
	return "", false
}

// FindRoute searches for the cheapest route from start to a rail with a station name matching pattern
// (a glob: * and ? are wildcards). heading is the direction the train is travelling.
// Cost is the number of rails traversed, then the number of reversals. Rails in sections for which blocked
// returns true are never entered; a nil blocked allows everything.
// The result only depends on its arguments. ErrNoRouteFound is returned when nothing matches.
func FindRoute[P railnet.Position[P]](n *Network[P], start P, heading railnet.Heading, pattern string, blocked Blocked[P]) (Route[P], error) {
	sr, ok := n.Rail(start)
	if !ok {
		return Route[P]{}, fmt.Errorf("start %s: %w", start, ErrNoRouteFound)
	}
	if name, ok := matchStation(sr, pattern); ok {
		return n.route([]P{start}, name), nil
	}

	s0 := state[P]{start, heading}
	best := map[state[P]]cost{s0: {}}
	prev := map[state[P]]state[P]{}
	done := map[state[P]]bool{}
	f := &frontier[P]{{state: s0}}
	for f.Len() > 0 {
		it := heap.Pop(f).(item[P])
		if done[it.state] {
			continue
		}
		done[it.state] = true
		r, ok := n.Rail(it.pos)
		if !ok {
			continue
		}
		if it.state != s0 {
			if name, ok := matchStation(r, pattern); ok {
				return n.route(backtrack(prev, it.state), name), nil
			}
		}

		var exits map[P]railnet.Heading
		if it.state == s0 {
			// the start heading comes from outside and may not match any entry
			if exits, ok = r.ExitsFor(heading); !ok {
				exits = r.neighbors
			}
		} else {
			exits, _ = n.NeighborsForEntry(it.pos, it.heading)
		}
		for np, d := range exits {
			if _, ok := n.Rail(np); !ok {
				reportStale(&StaleNeighborError[P]{Pos: it.pos, Heading: it.heading, Neighbor: np, NeighborSet: true})
				continue
			}
			if blocked != nil {
				if id, ok := n.SectionOf(np); ok && blocked(id) {
					continue
				}
			}
			c := cost{it.cost.steps + 1, it.cost.reversals}
			if d != railnet.HeadingNone && it.heading != railnet.HeadingNone && d == it.heading.Opposite() {
				c.reversals++
			}
			ns := state[P]{np, d}
			if done[ns] {
				continue
			}
			if old, ok := best[ns]; ok && !c.less(old) {
				continue
			}
			best[ns] = c
			prev[ns] = it.state
			heap.Push(f, item[P]{state: ns, cost: c})
		}
	}
	return Route[P]{}, ErrNoRouteFound
}

func backtrack[P railnet.Position[P]](prev map[state[P]]state[P], end state[P]) []P {
	var rev []P
	for s, ok := end, true; ok; s, ok = prev[s] {
		rev = append(rev, s.pos)
	}
	res := make([]P, len(rev))
	for i, p := range rev {
		res[len(rev)-1-i] = p
	}
	return res
}

func (n *Network[P]) route(positions []P, destination string) Route[P] {
	r := Route[P]{Positions: positions, Destination: destination}
	seen := map[P]bool{}
	for _, p := range positions {
		id, ok := n.SectionOf(p)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		r.Sections = append(r.Sections, id)
	}
	return r
}
