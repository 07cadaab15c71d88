package grid

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/tal"
	"nyiyui.ca/hato/railnet/tal/layout"
)

// Simulator drives the trains of a Feed along the routes a guide gives them, one rail per step. A train
// only moves into a section it has claimed.
type Simulator struct {
	Comment string
	feed    *Feed
}

func NewSimulator(comment string, feed *Feed) *Simulator {
	return &Simulator{Comment: comment, feed: feed}
}

// Step moves every routed train one rail ahead and returns how many moved.
func (s *Simulator) Step(gs tal.GuideSnapshot[Pos], net *layout.Network[Pos]) (moved int) {
	for _, tv := range gs.Trains {
		if len(tv.Positions) == 0 {
			continue
		}
		front := tv.Positions[0]
		i := slices.Index(tv.Route, front)
		if i == -1 || i+1 >= len(tv.Route) {
			continue
		}
		next := tv.Route[i+1]
		section, ok := net.SectionOf(next)
		if !ok || !slices.Contains(tv.Claims, section) {
			continue
		}
		heading := tv.Heading
		if r, ok := net.Rail(front); ok {
			// links keep the heading the train had
			if h := r.Neighbors()[next]; h != railnet.HeadingNone {
				heading = h
			}
		}
		positions := append([]Pos{next}, tv.Positions[:len(tv.Positions)-1]...)
		s.feed.update(tv.ID, func(o *Observation) {
			o.Positions = positions
			o.Heading = heading
		})
		zap.S().Debugw("train moved",
			"sim", s.Comment,
			"train", tv.ID,
			"from", front,
			"to", next,
			"heading", heading)
		moved++
	}
	return
}

// Run steps every interval using the latest state of g until ctx is done.
func (s *Simulator) Run(ctx context.Context, g *tal.Guide[Pos], interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Step(g.Snapshot(), g.Network())
		}
	}
}
