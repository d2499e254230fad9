package competition

import (
	"sort"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// SeasonResult is one pilot's aggregated standing over a season of
// closed competitions for a single tenant.
type SeasonResult struct {
	PilotID      shared.PilotID
	TotalPoints  shared.Points
	Wins         int
	Podiums      int
	Competitions int
	BestLapTime  shared.LapTime
	Rank         shared.Rank
}

// Season identifies one scoring period for a tenant.
type Season struct {
	TenantID shared.TenantID
	Year     int
	Month    time.Month
}

// SeasonOf returns the season containing the given instant.
func SeasonOf(tenantID shared.TenantID, t time.Time) Season {
	t = t.UTC()
	return Season{TenantID: tenantID, Year: t.Year(), Month: t.Month()}
}

// ComputeStandings aggregates closed competitions into ranked season
// standings. Cancelled or still-running competitions are ignored.
// Ordering: total points desc, then wins desc, then best lap time asc.
func ComputeStandings(competitions []*Competition) []SeasonResult {
	byPilot := make(map[shared.PilotID]*SeasonResult)

	for _, c := range competitions {
		if c.State != StateClosed {
			continue
		}
		for _, entry := range c.Results {
			sr, ok := byPilot[entry.PilotID]
			if !ok {
				sr = &SeasonResult{PilotID: entry.PilotID}
				byPilot[entry.PilotID] = sr
			}

			sr.TotalPoints += entry.Points
			sr.Competitions++
			if entry.Rank == 1 {
				sr.Wins++
			}
			if entry.Rank.IsPodium() {
				sr.Podiums++
			}
			if entry.LapTime.FasterThan(sr.BestLapTime) {
				sr.BestLapTime = entry.LapTime
			}
		}
	}

	standings := make([]SeasonResult, 0, len(byPilot))
	for _, sr := range byPilot {
		standings = append(standings, *sr)
	}

	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		return a.BestLapTime.FasterThan(b.BestLapTime)
	})
	for i := range standings {
		standings[i].Rank = shared.Rank(i + 1)
	}

	return standings
}

// Winners returns the pilot IDs on the season podium, best first.
func Winners(standings []SeasonResult) []shared.PilotID {
	var winners []shared.PilotID
	for _, sr := range standings {
		if sr.Rank.IsPodium() {
			winners = append(winners, sr.PilotID)
		}
	}
	return winners
}
