package schedule

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

func TestParseStartTime(t *testing.T) {
	tests := []struct {
		input   string
		want    StartTime
		wantErr bool
	}{
		{"15:00", StartTime{Hour: 15, Minute: 0}, false},
		{"00:00", StartTime{Hour: 0, Minute: 0}, false},
		{"23:59", StartTime{Hour: 23, Minute: 59}, false},
		{"9:30", StartTime{Hour: 9, Minute: 30}, false},
		{"24:00", StartTime{}, true},
		{"12:60", StartTime{}, true},
		{"noon", StartTime{}, true},
		{"", StartTime{}, true},
		{"12:5", StartTime{}, true},
		{"12-30", StartTime{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStartTime(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, shared.ErrInvalidScheduleFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name      string
		start     StartTime
		wantStart CronSpec
		wantStop  CronSpec
	}{
		{
			name:      "afternoon start",
			start:     StartTime{Hour: 15, Minute: 0},
			wantStart: CronSpec{Minute: 0, Hour: 15},
			wantStop:  CronSpec{Minute: 58, Hour: 14},
		},
		{
			name:      "midnight wrap",
			start:     StartTime{Hour: 0, Minute: 1},
			wantStart: CronSpec{Minute: 1, Hour: 0},
			wantStop:  CronSpec{Minute: 59, Hour: 23},
		},
		{
			name:      "exact midnight",
			start:     StartTime{Hour: 0, Minute: 0},
			wantStart: CronSpec{Minute: 0, Hour: 0},
			wantStop:  CronSpec{Minute: 58, Hour: 23},
		},
		{
			name:      "top of hour",
			start:     StartTime{Hour: 20, Minute: 0},
			wantStart: CronSpec{Minute: 0, Hour: 20},
			wantStop:  CronSpec{Minute: 58, Hour: 19},
		},
		{
			name:      "mid hour",
			start:     StartTime{Hour: 20, Minute: 30},
			wantStart: CronSpec{Minute: 30, Hour: 20},
			wantStop:  CronSpec{Minute: 28, Hour: 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tt.start)
			assert.Equal(t, tt.wantStart, got.Start)
			assert.Equal(t, tt.wantStop, got.Stop)
			assert.Equal(t, got.Stop, got.Poll, "poll and stop share the trigger time")
		})
	}
}

// TestDerive_AllMinutes verifies stop = (start - 2min) mod 24h for every
// minute of the day.
func TestDerive_AllMinutes(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		for minute := 0; minute < 60; minute++ {
			got := Derive(StartTime{Hour: hour, Minute: minute})

			wantTotal := (hour*60 + minute - 2 + 24*60) % (24 * 60)
			assert.Equal(t, wantTotal/60, got.Stop.Hour)
			assert.Equal(t, wantTotal%60, got.Stop.Minute)
		}
	}
}

func TestDerive_Deterministic(t *testing.T) {
	st := StartTime{Hour: 15, Minute: 0}
	assert.Equal(t, Derive(st), Derive(st))
}

func TestCronSpec_Expression(t *testing.T) {
	assert.Equal(t, "0 15 * * *", CronSpec{Minute: 0, Hour: 15}.Expression())
	assert.Equal(t, "58 14 * * *", CronSpec{Minute: 58, Hour: 14}.Expression())
}

func TestDeriveFrom(t *testing.T) {
	ds, err := DeriveFrom("15:00")
	require.NoError(t, err)
	assert.Equal(t, "0 15 * * *", ds.Start.Expression())
	assert.Equal(t, "58 14 * * *", ds.Stop.Expression())

	_, err = DeriveFrom("25:00")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidScheduleFormat))
}

func ExampleDerive() {
	ds := Derive(StartTime{Hour: 15, Minute: 0})
	fmt.Println(ds.Start.Expression())
	fmt.Println(ds.Stop.Expression())
	// Output:
	// 0 15 * * *
	// 58 14 * * *
}
