package guide

import (
	"time"

	"github.com/gridcast/grid-cast/internal/catalog"
)

// NowNext resolves the currently-airing and following programme from a
// start-ordered programme sequence. "Current" is the first entry whose
// [Start, Stop) interval contains asOf; first match wins when source entries
// overlap. When current exists, "next" is its successor in sequence order,
// whether or not it is temporally adjacent. When it does not, "next" is the
// first entry with Start after asOf. Missing guide data yields (nil, nil).
func NowNext(progs []catalog.Programme, asOf time.Time) (current, next *catalog.Programme) {
	for i := range progs {
		p := &progs[i]
		if !asOf.Before(p.Start) && asOf.Before(p.Stop) {
			current = p
			if i+1 < len(progs) {
				next = &progs[i+1]
			}
			return current, next
		}
	}
	for i := range progs {
		if progs[i].Start.After(asOf) {
			return nil, &progs[i]
		}
	}
	return nil, nil
}

// Resolve looks up guideID in the snapshot and resolves now/next at asOf.
// Unknown guide IDs and empty guides yield (nil, nil), never an error.
func Resolve(snap *catalog.Snapshot, guideID string, asOf time.Time) (current, next *catalog.Programme) {
	return NowNext(snap.ProgrammesFor(guideID), asOf)
}
