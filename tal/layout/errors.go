package layout

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"nyiyui.ca/hato/railnet"
)

var (
	// ErrNoRouteFound is returned by FindRoute when the frontier is exhausted. Callers retry on a later tick.
	ErrNoRouteFound = errors.New("no route found")
	// ErrClaimConflict means a section is already held by another train.
	ErrClaimConflict = errors.New("section claimed by another train")
	// ErrOracleUnavailable means the oracle has no loaded data for a position; it is treated as absent.
	ErrOracleUnavailable = errors.New("oracle unavailable")
)

// StaleNeighborError describes a neighbour lookup that disagreed with the snapshot it was made against.
type StaleNeighborError[P railnet.Position[P]] struct {
	Pos     P
	Heading railnet.Heading
	// Neighbor is set when the lookup referenced a node missing from the snapshot.
	Neighbor    P
	NeighborSet bool
}

func (e *StaleNeighborError[P]) Error() string {
	if e.NeighborSet {
		return fmt.Sprintf("stale neighbour: %s (entry %s) references missing %s", e.Pos, e.Heading, e.Neighbor)
	}
	return fmt.Sprintf("stale neighbour: %s has no exits for entry %s", e.Pos, e.Heading)
}

// StrictStale makes stale neighbour lookups panic instead of falling back.
// Test binaries switch it on.
var StrictStale bool

var staleLookups atomic.Uint64

// StaleLookups returns how many stale neighbour lookups have been seen by this process.
func StaleLookups() uint64 {
	return staleLookups.Load()
}

func reportStale(err error) {
	staleLookups.Add(1)
	if StrictStale {
		panic(err)
	}
	zap.S().Errorw("falling back to unrestricted neighbours", "err", err)
}
