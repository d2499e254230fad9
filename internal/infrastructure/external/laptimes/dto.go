package laptimes

import (
	"github.com/rotorcup/rotorcup-hub/internal/application/orchestrator"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DATA TRANSFER OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// TrackResultsDTO is the board's response for one track's lap list.
type TrackResultsDTO struct {
	TrackRef  string   `json:"track_ref"`
	UpdatedAt string   `json:"updated_at"`
	Laps      []LapDTO `json:"laps"`
}

// LapDTO is one pilot's best lap on the track.
type LapDTO struct {
	PilotRef  string `json:"pilot_ref"`
	BestLapMs int64  `json:"best_lap_ms"`
	LapCount  int    `json:"lap_count"`
}

// mapLapRecords converts board laps into orchestrator lap records.
// Rows without a pilot ref or with a non-positive lap time are dropped -
// the board emits those for pilots who registered but never finished
// a clean lap.
func mapLapRecords(dto TrackResultsDTO) []orchestrator.LapRecord {
	records := make([]orchestrator.LapRecord, 0, len(dto.Laps))
	for _, lap := range dto.Laps {
		if lap.PilotRef == "" || lap.BestLapMs <= 0 {
			continue
		}
		records = append(records, orchestrator.LapRecord{
			PilotRef: lap.PilotRef,
			LapTime:  shared.LapTime(lap.BestLapMs),
		})
	}
	return records
}
