package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfDay_NormalizesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	in := time.Date(2026, 5, 11, 2, 30, 0, 0, loc) // 2026-05-10 21:30 UTC

	got := StartOfDay(in)

	assert.Equal(t, time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC), got)
}

func TestNextDay_CrossesMonthBoundary(t *testing.T) {
	in := time.Date(2026, 5, 31, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), NextDay(in))
}

func TestStartOfMonth(t *testing.T) {
	in := time.Date(2026, 5, 17, 14, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), StartOfMonth(in))
}

func TestNextMonth_CrossesYearBoundary(t *testing.T) {
	in := time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), NextMonth(in))
}

func TestSameDay(t *testing.T) {
	a := time.Date(2026, 5, 10, 1, 0, 0, 0, time.UTC)
	b := time.Date(2026, 5, 10, 23, 0, 0, 0, time.UTC)
	c := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)

	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(a, c))
}
