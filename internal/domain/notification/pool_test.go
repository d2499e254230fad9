package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessagePool_PickDeterministic(t *testing.T) {
	pool := NewMessagePool(nil)

	first := pool.Pick(CategoryStartAnnouncement, 42)
	assert.NotEmpty(t, first)

	// Same (category, seed) always picks the same template.
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, pool.Pick(CategoryStartAnnouncement, 42))
	}
}

func TestMessagePool_ConfiguredOverridesDefaults(t *testing.T) {
	pool := NewMessagePool(map[MessageCategory][]string{
		CategoryStopReminder: {"only this one"},
	})

	assert.Equal(t, "only this one", pool.Pick(CategoryStopReminder, 1))
	assert.Equal(t, "only this one", pool.Pick(CategoryStopReminder, 99))

	// Other categories keep their defaults.
	assert.NotEmpty(t, pool.Pick(CategoryWinnerCongrats, 7))
}

func TestMessagePool_UnknownCategory(t *testing.T) {
	pool := NewMessagePool(nil)
	assert.Empty(t, pool.Pick(MessageCategory("bogus"), 1))
}

func TestMessagePool_EmptyConfiguredListKeepsDefaults(t *testing.T) {
	pool := NewMessagePool(map[MessageCategory][]string{
		CategoryAchievement: {},
	})
	assert.NotEmpty(t, pool.Pick(CategoryAchievement, 3))
}
