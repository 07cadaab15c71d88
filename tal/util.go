package tal

import (
	"bytes"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/railnet"
)

func sortIDs(ids []uuid.UUID) {
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
}

func sortPositions[P railnet.Position[P]](ps []P) {
	slices.SortFunc(ps, func(a, b P) int { return a.Compare(b) })
}
