package tal

import (
	"fmt"

	"go.uber.org/zap"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/tal/layout"
)

// claim reserves section for id. It fails if another train holds it.
func (g *Guide[P]) claim(section P, id TrainID) error {
	if holder, ok := g.claims[section]; ok && holder != id {
		return fmt.Errorf("section %s held by %s: %w", section, holder, layout.ErrClaimConflict)
	}
	g.claims[section] = id
	return nil
}

func (g *Guide[P]) releaseAll(id TrainID) {
	for s, holder := range g.claims {
		if holder == id {
			delete(g.claims, s)
		}
	}
}

// claimsOf returns the sections held by id, ordered.
func (g *Guide[P]) claimsOf(id TrainID) []P {
	var res []P
	for s, holder := range g.claims {
		if holder == id {
			res = append(res, s)
		}
	}
	sortPositions(res)
	return res
}

// sectionsOf returns the ids of the sections the positions lie in, in order of first appearance.
func sectionsOf[P railnet.Position[P]](net *layout.Network[P], positions []P) []P {
	var res []P
	seen := map[P]bool{}
	for _, p := range positions {
		id, ok := net.SectionOf(p)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		res = append(res, id)
	}
	return res
}

// settle makes the claims of t match where it is: every section it occupies is claimed if free, and every
// claim that is neither occupied nor ahead on its route is released.
// Trains that left their route lose it.
func (g *Guide[P]) settle(net *layout.Network[P], t *Train[P]) {
	keep := map[P]bool{}
	for _, s := range sectionsOf(net, t.Positions) {
		keep[s] = true
		if err := g.claim(s, t.ID); err != nil {
			// two trains physically in one section; nothing to do but report it
			zap.S().Warnw("occupied section held by another train", "train", t.ID, "err", err)
			g.conf.Metrics.ClaimConflict()
		}
	}
	if t.Route != nil {
		ahead, ok := t.ahead()
		if !ok {
			zap.S().Infow("train left its route", "train", t.ID, "positions", t.Positions)
			t.Route = nil
		} else {
			for _, s := range sectionsOf(net, ahead) {
				keep[s] = true
			}
		}
	}
	for _, s := range g.claimsOf(t.ID) {
		if !keep[s] {
			delete(g.claims, s)
		}
	}
}

// replaceClaims swaps the claims of id for want in one step. If any section in want is held by another
// train, nothing changes.
func (g *Guide[P]) replaceClaims(id TrainID, want []P) error {
	for _, s := range want {
		if holder, ok := g.claims[s]; ok && holder != id {
			return fmt.Errorf("section %s held by %s: %w", s, holder, layout.ErrClaimConflict)
		}
	}
	g.releaseAll(id)
	for _, s := range want {
		g.claims[s] = id
	}
	return nil
}

// revalidate drops claims on sections that no longer exist and routes that cross anything diff touched.
func (g *Guide[P]) revalidate(net *layout.Network[P], diff layout.Diff[P]) {
	for s, holder := range g.claims {
		if _, ok := net.Section(s); !ok {
			zap.S().Infow("dropping claim on vanished section", "section", s, "train", holder)
			delete(g.claims, s)
		}
	}
	touched := map[P]bool{}
	for _, p := range diff.Changed {
		touched[p] = true
	}
	for _, p := range diff.Removed {
		touched[p] = true
	}
	for _, p := range diff.Regrouped {
		touched[p] = true
	}
	for _, id := range g.trainIDs() {
		t := g.trains[id]
		if t.Route == nil {
			continue
		}
		valid := true
		for _, p := range t.Route.Positions {
			if touched[p] {
				valid = false
				break
			}
		}
		for _, s := range t.Route.Sections {
			if _, ok := net.Section(s); !ok {
				valid = false
			}
		}
		if !valid {
			zap.S().Infow("route invalidated by network change", "train", id)
			t.Route = nil
		}
	}
}
