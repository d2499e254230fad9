package competition

import (
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// ResultDelta is an immutable record of one pilot's change between two
// leaderboard polls. One batch of deltas is produced per poll cycle; it
// is the unit consumed by time-update achievement rules.
type ResultDelta struct {
	PilotID    shared.PilotID
	OldLapTime shared.LapTime
	NewLapTime shared.LapTime
	OldRank    shared.Rank
	NewRank    shared.Rank
}

// IsNewEntry reports whether the pilot appeared on the board this poll.
func (d ResultDelta) IsNewEntry() bool {
	return d.OldLapTime.IsZero() && !d.NewLapTime.IsZero()
}

// Improved reports whether the pilot's lap time got faster.
func (d ResultDelta) Improved() bool {
	return d.NewLapTime.FasterThan(d.OldLapTime)
}

// RankGained returns how many positions the pilot moved up (negative
// when the pilot dropped). A previously unranked pilot gains nothing here;
// use IsNewEntry for that case.
func (d ResultDelta) RankGained() int {
	if d.OldRank == 0 || d.NewRank == 0 {
		return 0
	}
	return d.OldRank.Int() - d.NewRank.Int()
}

// DiffResults compares two result snapshots and returns one delta per
// pilot whose lap time or rank changed, including pilots appearing for
// the first time. Pilots present in old but absent from new produce no
// delta - the external source never removes entries mid-competition, so
// a disappearance means a partial fetch, not a change.
func DiffResults(old, current []ResultEntry) []ResultDelta {
	prev := make(map[shared.PilotID]ResultEntry, len(old))
	for _, e := range old {
		prev[e.PilotID] = e
	}

	var deltas []ResultDelta
	for _, e := range current {
		before, existed := prev[e.PilotID]
		if existed && before.LapTime == e.LapTime && before.Rank == e.Rank {
			continue
		}

		deltas = append(deltas, ResultDelta{
			PilotID:    e.PilotID,
			OldLapTime: before.LapTime,
			NewLapTime: e.LapTime,
			OldRank:    before.Rank,
			NewRank:    e.Rank,
		})
	}

	return deltas
}

// PilotsIn returns the distinct pilot IDs appearing in a delta batch,
// in batch order.
func PilotsIn(deltas []ResultDelta) []shared.PilotID {
	seen := make(map[shared.PilotID]struct{}, len(deltas))
	var ids []shared.PilotID
	for _, d := range deltas {
		if _, ok := seen[d.PilotID]; ok {
			continue
		}
		seen[d.PilotID] = struct{}{}
		ids = append(ids, d.PilotID)
	}
	return ids
}

// DeltasFor returns the deltas in a batch belonging to one pilot.
func DeltasFor(deltas []ResultDelta, pilotID shared.PilotID) []ResultDelta {
	var out []ResultDelta
	for _, d := range deltas {
		if d.PilotID == pilotID {
			out = append(out, d)
		}
	}
	return out
}
