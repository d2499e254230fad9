package competition

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

var testNow = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func TestNew(t *testing.T) {
	c, err := New("alpha-cup", "canyon-run", testNow)
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, shared.TenantID("alpha-cup"), c.TenantID)
	assert.Equal(t, "canyon-run", c.TrackRef)
	assert.Equal(t, StateRunning, c.State)
	assert.Empty(t, c.Results)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("", "canyon-run", testNow)
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = New("alpha-cup", "", testNow)
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

func TestClose_RanksAndPoints(t *testing.T) {
	c, err := New("alpha-cup", "canyon-run", testNow)
	require.NoError(t, err)

	require.NoError(t, c.UpdateResults([]ResultEntry{
		{PilotID: "b", LapTime: 52100},
		{PilotID: "a", LapTime: 48250},
		{PilotID: "c", LapTime: 60000},
	}, testNow))

	require.NoError(t, c.Close(testNow))

	assert.Equal(t, StateClosed, c.State)
	require.NotNil(t, c.ClosedAt)

	require.Len(t, c.Results, 3)
	assert.Equal(t, shared.PilotID("a"), c.Results[0].PilotID)
	assert.Equal(t, shared.Rank(1), c.Results[0].Rank)
	assert.Equal(t, shared.Points(25), c.Results[0].Points)
	assert.Equal(t, shared.PilotID("b"), c.Results[1].PilotID)
	assert.Equal(t, shared.Points(20), c.Results[1].Points)
	assert.Equal(t, shared.PilotID("c"), c.Results[2].PilotID)
	assert.Equal(t, shared.Points(16), c.Results[2].Points)

	winner, ok := c.Winner()
	assert.True(t, ok)
	assert.Equal(t, shared.PilotID("a"), winner.PilotID)
}

func TestClose_ExactlyOnce(t *testing.T) {
	c, err := New("alpha-cup", "canyon-run", testNow)
	require.NoError(t, err)

	require.NoError(t, c.Close(testNow))

	err = c.Close(testNow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrStateTransition))
}

func TestUpdateResults_AfterClose(t *testing.T) {
	c, err := New("alpha-cup", "canyon-run", testNow)
	require.NoError(t, err)
	require.NoError(t, c.Close(testNow))

	err = c.UpdateResults([]ResultEntry{{PilotID: "a", LapTime: 48250}}, testNow)
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestCancel(t *testing.T) {
	c, err := New("alpha-cup", "canyon-run", testNow)
	require.NoError(t, err)

	require.NoError(t, c.Cancel(testNow))
	assert.Equal(t, StateCancelled, c.State)

	// Terminal: no resurrection and no double cancel.
	assert.ErrorIs(t, c.Close(testNow), shared.ErrStateTransition)
	assert.ErrorIs(t, c.Cancel(testNow), shared.ErrStateTransition)
}

func TestPointsForRank(t *testing.T) {
	assert.Equal(t, shared.Points(25), PointsForRank(1))
	assert.Equal(t, shared.Points(6), PointsForRank(10))
	assert.Equal(t, shared.Points(1), PointsForRank(11))
	assert.Equal(t, shared.Points(1), PointsForRank(42))
	assert.Equal(t, shared.Points(0), PointsForRank(0))
}
