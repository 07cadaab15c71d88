package tal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nyiyui.ca/hato/railnet"
	"nyiyui.ca/hato/railnet/metrics"
	"nyiyui.ca/hato/railnet/notify"
	"nyiyui.ca/hato/railnet/tal/layout"
)

type GuideConf[P railnet.Position[P]] struct {
	// Comment names the guide in logs.
	Comment string
	Oracle  layout.Oracle[P]
	// Feed is polled every tick. A nil Feed means there are no trains.
	Feed ActorFeed[P]
	// Starts seeds the initial build. Only rails connected to a start are part of the network.
	Starts  []P
	Metrics *metrics.Collector
}

// Guide owns one rail network and the trains on it. Each context (e.g. a simulation and a viewer) has its own
// Guide.
//
// Tick must only be called from one goroutine. Everything else is safe for concurrent use.
type Guide[P railnet.Position[P]] struct {
	conf    GuideConf[P]
	net     atomic.Pointer[layout.Network[P]]
	updater *layout.Updater[P]

	rebuildLock sync.Mutex
	rebuild     *layout.Rebuild[P]

	lock      sync.RWMutex
	trains    map[TrainID]*Train[P]
	claims    map[P]TrainID
	occupancy map[P][]TrainID
	aspects   map[P]railnet.Aspect

	// SnapshotMux receives a GuideSnapshot after every tick.
	SnapshotMux *notify.Multiplexer[GuideSnapshot[P]]
	snapshotS   *notify.MultiplexerSender[GuideSnapshot[P]]
	// EventMux receives viewer-sync events.
	EventMux *notify.Multiplexer[Event[P]]
	eventS   *notify.MultiplexerSender[Event[P]]
}

func snapshotOf[P railnet.Position[P]](o layout.Oracle[P]) layout.Oracle[P] {
	if s, ok := o.(layout.Snapshotter[P]); ok {
		return s.Snapshot()
	}
	return o
}

// NewGuide builds the initial network by a full traversal from conf.Starts.
func NewGuide[P railnet.Position[P]](conf GuideConf[P]) *Guide[P] {
	if conf.Oracle == nil {
		panic("NewGuide: nil oracle")
	}
	g := &Guide[P]{
		conf:      conf,
		updater:   layout.NewUpdater(conf.Oracle),
		trains:    map[TrainID]*Train[P]{},
		claims:    map[P]TrainID{},
		occupancy: map[P][]TrainID{},
		aspects:   map[P]railnet.Aspect{},
	}
	g.snapshotS, g.SnapshotMux = notify.NewMultiplexerSender[GuideSnapshot[P]](conf.Comment + " snapshots")
	g.eventS, g.EventMux = notify.NewMultiplexerSender[Event[P]](conf.Comment + " events")

	start := time.Now()
	net := layout.Build(snapshotOf(conf.Oracle), conf.Starts)
	took := time.Since(start)
	g.net.Store(net)
	g.conf.Metrics.ObserveRebuild(took, net.Len(), 0)
	g.conf.Metrics.SetNetwork(net.Len(), len(net.Sections()))
	zap.S().Infow("built network",
		"guide", conf.Comment,
		"starts", len(conf.Starts),
		"objects", net.Len(),
		"took", took)
	g.lock.Lock()
	g.evaluateSignals(net)
	g.lock.Unlock()
	g.eventS.Send(Event[P]{Kind: EventClear})
	g.eventS.Send(nodesEvent(net))
	return g
}

// Network returns the published snapshot.
func (g *Guide[P]) Network() *layout.Network[P] {
	return g.net.Load()
}

// MarkDirty queues pos for the next rebuild.
func (g *Guide[P]) MarkDirty(pos P) {
	g.updater.MarkDirty(pos)
}

// RunUpdater runs the rebuild worker until ctx is done. Run calls it; use it directly when driving Tick
// yourself.
func (g *Guide[P]) RunUpdater(ctx context.Context) error {
	return g.updater.Run(ctx)
}

// Run runs the rebuild worker and ticks every interval until ctx is done.
func (g *Guide[P]) Run(ctx context.Context, interval time.Duration) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return g.RunUpdater(ctx) })
	eg.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				g.Tick()
			}
		}
	})
	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops event delivery.
func (g *Guide[P]) Close() {
	g.snapshotS.Close()
	g.eventS.Close()
}

// swap publishes next. rebuildLock must be held.
func (g *Guide[P]) swap(r *layout.Rebuild[P]) {
	next, diff := r.Wait()
	cur := g.net.Load()
	if next == cur {
		return
	}
	g.net.Store(next)
	g.lock.Lock()
	g.revalidate(next, diff)
	g.lock.Unlock()
	g.conf.Metrics.ObserveRebuild(r.Duration(), len(diff.Changed), len(diff.Removed))
	g.conf.Metrics.SetNetwork(next.Len(), len(next.Sections()))
	zap.S().Infow("swapped network",
		"guide", g.conf.Comment,
		"version", next.Version(),
		"dirty", len(r.Dirty()),
		"changed", len(diff.Changed),
		"removed", len(diff.Removed),
		"regrouped", len(diff.Regrouped))
	g.eventS.Send(deltaEvent(next, diff))
}

// poll swaps in a finished rebuild and submits the next one.
func (g *Guide[P]) poll() {
	g.rebuildLock.Lock()
	defer g.rebuildLock.Unlock()
	if g.rebuild != nil && g.rebuild.Ready() {
		g.swap(g.rebuild)
		g.rebuild = nil
	}
	if g.rebuild == nil {
		g.rebuild = g.updater.Submit(g.net.Load())
	}
}

// Flush blocks until every position marked dirty so far is reflected in the published snapshot and returns
// it. The rebuild worker must be running.
func (g *Guide[P]) Flush() *layout.Network[P] {
	g.rebuildLock.Lock()
	defer g.rebuildLock.Unlock()
	if g.rebuild != nil {
		g.swap(g.rebuild)
		g.rebuild = nil
	}
	if r := g.updater.Submit(g.net.Load()); r != nil {
		g.swap(r)
	}
	return g.net.Load()
}

// Tick advances the network state by one step:
//  1. swap in a finished rebuild and submit pending dirty positions
//  2. reconcile trains with the actor feed
//  3. claim occupied sections and release the ones left behind
//  4. recompute signal aspects
//  5. route trains without a valid route
func (g *Guide[P]) Tick() {
	g.poll()
	net := g.net.Load()
	var obs []Observation[P]
	if g.conf.Feed != nil {
		obs = g.conf.Feed.Observe()
	}

	g.lock.Lock()
	defer g.lock.Unlock()
	added, updated, removed := g.reconcile(obs)
	for _, id := range g.trainIDs() {
		g.settle(net, g.trains[id])
	}
	g.computeOccupancy(net)
	aspectsChanged := g.evaluateSignals(net)
	routed := g.route(net)

	isAdded := map[TrainID]bool{}
	for _, id := range added {
		isAdded[id] = true
		g.eventS.Send(Event[P]{Kind: EventTrainAdded, Version: net.Version(), Train: g.trainView(g.trains[id])})
	}
	isUpdated := map[TrainID]bool{}
	for _, id := range updated {
		isUpdated[id] = true
	}
	for _, id := range routed {
		isUpdated[id] = true
	}
	for _, id := range g.trainIDs() {
		if isUpdated[id] && !isAdded[id] {
			g.eventS.Send(Event[P]{Kind: EventTrainUpdated, Version: net.Version(), Train: g.trainView(g.trains[id])})
		}
	}
	for _, id := range removed {
		g.eventS.Send(Event[P]{Kind: EventTrainRemoved, Version: net.Version(), Train: &TrainView[P]{ID: id}})
	}
	if aspectsChanged {
		g.eventS.Send(Event[P]{Kind: EventAspects, Version: net.Version(), Aspects: g.aspectViews()})
	}
	g.conf.Metrics.SetTrains(len(g.trains))
	g.snapshotS.Send(g.snapshot(net))
}

// route finds routes for trains that want one and claims their sections. A train whose route cannot be
// claimed keeps what it had.
func (g *Guide[P]) route(net *layout.Network[P]) (routed []TrainID) {
	for _, id := range g.trainIDs() {
		t := g.trains[id]
		if t.Route != nil || t.Destination == "" {
			continue
		}
		front, ok := t.front()
		if !ok {
			continue
		}
		start := time.Now()
		r, err := layout.FindRoute(net, front, t.Heading, t.Destination, func(s P) bool {
			return g.heldAgainst(s, id)
		})
		g.conf.Metrics.ObservePathfind(time.Since(start), err)
		if err != nil {
			zap.S().Debugw("no route yet", "train", id, "destination", t.Destination, "err", err)
			continue
		}
		want := sectionsOf(net, t.Positions)
		for _, s := range r.Sections {
			if !contains(want, s) {
				want = append(want, s)
			}
		}
		if err := g.replaceClaims(id, want); err != nil {
			g.conf.Metrics.ClaimConflict()
			zap.S().Infow("route found but not claimable", "train", id, "err", err)
			continue
		}
		t.Route = &r
		routed = append(routed, id)
	}
	return
}

// Pathfind finds a route from pos without changing any claims. Sections claimed by any train are avoided.
func (g *Guide[P]) Pathfind(pos P, heading railnet.Heading, pattern string) (layout.Route[P], error) {
	net := g.net.Load()
	g.lock.RLock()
	defer g.lock.RUnlock()
	start := time.Now()
	r, err := layout.FindRoute(net, pos, heading, pattern, func(s P) bool {
		_, held := g.claims[s]
		return held
	})
	g.conf.Metrics.ObservePathfind(time.Since(start), err)
	return r, err
}

// Snapshot returns the current state of trains, claims, and signals.
func (g *Guide[P]) Snapshot() GuideSnapshot[P] {
	net := g.net.Load()
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.snapshot(net)
}

// Nodes returns every object of the published snapshot as a nodes event.
func (g *Guide[P]) Nodes() Event[P] {
	return nodesEvent(g.net.Load())
}

// RequestFullSync sends everything a new viewer needs: a clear, the full object set, every train, and the
// signal aspects.
func (g *Guide[P]) RequestFullSync() {
	net := g.net.Load()
	g.lock.RLock()
	defer g.lock.RUnlock()
	g.eventS.Send(Event[P]{Kind: EventClear, Version: net.Version()})
	g.eventS.Send(nodesEvent(net))
	for _, id := range g.trainIDs() {
		g.eventS.Send(Event[P]{Kind: EventTrainAdded, Version: net.Version(), Train: g.trainView(g.trains[id])})
	}
	g.eventS.Send(Event[P]{Kind: EventAspects, Version: net.Version(), Aspects: g.aspectViews()})
}

// ClearNetwork publishes an empty network and drops every claim and route. An in-flight rebuild is waited for
// and discarded. The network grows back from positions marked dirty afterwards.
func (g *Guide[P]) ClearNetwork() {
	g.rebuildLock.Lock()
	defer g.rebuildLock.Unlock()
	if g.rebuild != nil {
		g.rebuild.Wait()
		g.rebuild = nil
	}
	net := layout.Empty[P]()
	g.net.Store(net)
	g.lock.Lock()
	g.claims = map[P]TrainID{}
	for _, t := range g.trains {
		t.Route = nil
	}
	g.occupancy = map[P][]TrainID{}
	g.aspects = map[P]railnet.Aspect{}
	g.lock.Unlock()
	g.conf.Metrics.SetNetwork(0, 0)
	zap.S().Infow("cleared network", "guide", g.conf.Comment)
	g.eventS.Send(Event[P]{Kind: EventClear})
}

func contains[P comparable](ps []P, p P) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}
