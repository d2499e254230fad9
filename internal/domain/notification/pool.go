package notification

import (
	"math/rand"
)

// MessageCategory keys one pool of interchangeable announcement phrases.
type MessageCategory string

const (
	CategoryStartAnnouncement MessageCategory = "start_announcement"
	CategoryStopReminder      MessageCategory = "stop_reminder"
	CategoryWinnerCongrats    MessageCategory = "winner_congrats"
	CategoryAchievement       MessageCategory = "achievement_unlocked"
	CategoryStreakMilestone   MessageCategory = "streak_milestone"
)

// MessagePool is a read-only table of message templates keyed by category,
// loaded once from configuration at process start. Selection is a pure
// function of (category, seed) so compositions are testable.
type MessagePool struct {
	messages map[MessageCategory][]string
}

// defaultMessages backs categories the configuration leaves empty.
var defaultMessages = map[MessageCategory][]string{
	CategoryStartAnnouncement: {
		"A new competition is up! Today's track: %s. Go fly!",
		"Gates are hot - today we race %s.",
		"Props on! The daily cup starts now on %s.",
	},
	CategoryStopReminder: {
		"Two minutes left! Last chance to post a time.",
		"The gate closes in two minutes - final laps now!",
	},
	CategoryWinnerCongrats: {
		"Huge congrats to %s, today's fastest pilot!",
		"%s takes the win - what a flight!",
	},
	CategoryAchievement: {
		"%s unlocked: %s",
		"New achievement for %s: %s",
	},
	CategoryStreakMilestone: {
		"%s is on fire: %d days straight!",
		"Respect - %s just hit a %d day streak!",
	},
}

// NewMessagePool creates a pool from configuration, filling categories
// the configuration omits with built-in defaults.
func NewMessagePool(configured map[MessageCategory][]string) *MessagePool {
	messages := make(map[MessageCategory][]string, len(defaultMessages))
	for cat, defaults := range defaultMessages {
		messages[cat] = defaults
	}
	for cat, msgs := range configured {
		if len(msgs) > 0 {
			messages[cat] = msgs
		}
	}
	return &MessagePool{messages: messages}
}

// Pick selects one template from a category deterministically for a given
// seed. Unknown categories return the empty string.
func (p *MessagePool) Pick(category MessageCategory, seed int64) string {
	msgs := p.messages[category]
	if len(msgs) == 0 {
		return ""
	}

	r := rand.New(rand.NewSource(seed))
	return msgs[r.Intn(len(msgs))]
}

// Categories returns the categories present in the pool.
func (p *MessagePool) Categories() []MessageCategory {
	cats := make([]MessageCategory, 0, len(p.messages))
	for cat := range p.messages {
		cats = append(cats, cat)
	}
	return cats
}
