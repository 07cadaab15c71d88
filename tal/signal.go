package tal

import (
	"github.com/google/uuid"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/tal/layout"
)

// NoContext is the aspect context of an observer that controls no train.
var NoContext = uuid.Nil

// heldAgainst reports whether section is claimed by, or contains, a train other than ctx.
func (g *Guide[P]) heldAgainst(section P, ctx TrainID) bool {
	if holder, ok := g.claims[section]; ok && holder != ctx {
		return true
	}
	for _, id := range g.occupancy[section] {
		if id != ctx {
			return true
		}
	}
	return false
}

// aspect evaluates the signal at pos as seen by the train ctx.
//   - stop: the protected section is held by another train, or the signal is unknown
//   - caution: the protected section is free but a section right after it is held
//   - clear: otherwise
func (g *Guide[P]) aspect(net *layout.Network[P], pos P, ctx TrainID) railnet.Aspect {
	protected, ok := net.ProtectedSection(pos)
	if !ok {
		return railnet.AspectStop
	}
	if g.heldAgainst(protected, ctx) {
		return railnet.AspectStop
	}
	for _, next := range net.NextSections(pos) {
		if g.heldAgainst(next, ctx) {
			return railnet.AspectCaution
		}
	}
	return railnet.AspectClear
}

// viewerContext picks the context the cached lamp state is shown for: the train that claimed the protected
// section while it has not entered it yet, so an approaching train sees its own route as proceed.
func (g *Guide[P]) viewerContext(net *layout.Network[P], pos P) TrainID {
	protected, ok := net.ProtectedSection(pos)
	if !ok {
		return NoContext
	}
	holder, ok := g.claims[protected]
	if !ok {
		return NoContext
	}
	for _, id := range g.occupancy[protected] {
		if id == holder {
			return NoContext
		}
	}
	return holder
}

// evaluateSignals recomputes every cached lamp state and reports whether any changed.
func (g *Guide[P]) evaluateSignals(net *layout.Network[P]) bool {
	next := map[P]railnet.Aspect{}
	changed := false
	for _, s := range net.Signals() {
		a := g.aspect(net, s, g.viewerContext(net, s))
		next[s] = a
		if old, ok := g.aspects[s]; !ok || old != a {
			changed = true
		}
	}
	if len(next) != len(g.aspects) {
		changed = true
	}
	g.aspects = next
	return changed
}

// computeOccupancy maps each section to the trains on it.
func (g *Guide[P]) computeOccupancy(net *layout.Network[P]) {
	g.occupancy = map[P][]TrainID{}
	for _, id := range g.trainIDs() {
		for _, s := range sectionsOf(net, g.trains[id].Positions) {
			g.occupancy[s] = append(g.occupancy[s], id)
		}
	}
}

// Aspect evaluates the signal at pos as seen by the train ctx against the current claims. Use NoContext for
// observers without a train.
func (g *Guide[P]) Aspect(pos P, ctx TrainID) railnet.Aspect {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.aspect(g.Network(), pos, ctx)
}

// LampStatus returns the lamp state computed for viewers on the last tick.
func (g *Guide[P]) LampStatus(pos P) (railnet.Aspect, bool) {
	g.lock.RLock()
	defer g.lock.RUnlock()
	a, ok := g.aspects[pos]
	return a, ok
}
