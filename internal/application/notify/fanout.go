// Package notify implements the notification fan-out: it turns lifecycle
// and achievement events into channel messages and delivers them through
// the configured messengers with pacing between sends. Delivery is
// best-effort; a failed send is logged and counted, never retried here
// and never allowed to abort the rest of the queue.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/domain/achievement"
	"github.com/rotorcup/rotorcup-hub/internal/domain/competition"
	"github.com/rotorcup/rotorcup-hub/internal/domain/notification"
	"github.com/rotorcup/rotorcup-hub/internal/domain/pilot"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// defaultPacing is the delay between sequential sends to the same
// audience, keeping channel rate limiters happy.
const defaultPacing = 3 * time.Second

// Config contains fan-out dependencies.
type Config struct {
	Messengers []notification.Messenger
	Pilots     pilot.Repository
	Pool       *notification.MessagePool

	// Pacing is the delay between sequential sends (default 3s).
	Pacing time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// FanOut subscribes to events and delivers notifications.
type FanOut struct {
	messengers []notification.Messenger
	pilots     pilot.Repository
	pool       *notification.MessagePool
	pacing     time.Duration
	logger     *slog.Logger
	sleep      func(time.Duration)
	now        func() time.Time

	mu       sync.Mutex
	lastSend map[string]time.Time

	sent   atomic.Int64
	failed atomic.Int64
}

// New creates a FanOut.
func New(cfg Config) (*FanOut, error) {
	if len(cfg.Messengers) == 0 {
		return nil, fmt.Errorf("notify: at least one messenger is required")
	}
	if cfg.Pilots == nil {
		return nil, fmt.Errorf("notify: pilot repository is required")
	}
	if cfg.Pool == nil {
		cfg.Pool = notification.NewMessagePool(nil)
	}
	if cfg.Pacing < 0 {
		return nil, fmt.Errorf("notify: pacing cannot be negative")
	}
	if cfg.Pacing == 0 {
		cfg.Pacing = defaultPacing
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &FanOut{
		messengers: cfg.Messengers,
		pilots:     cfg.Pilots,
		pool:       cfg.Pool,
		pacing:     cfg.Pacing,
		logger:     cfg.Logger,
		sleep:      time.Sleep,
		now:        time.Now,
		lastSend:   make(map[string]time.Time),
	}, nil
}

// Subscribe wires the fan-out's handlers into the event bus.
func (f *FanOut) Subscribe(bus shared.EventSubscriber) error {
	handlers := map[shared.EventType]shared.EventHandler{
		shared.EventCompetitionStarted:   f.handleStarted,
		shared.EventStopReminder:         f.handleStopReminder,
		shared.EventCompetitionStopped:   f.handleStopped,
		shared.EventCompetitionCancelled: f.handleCancelled,
		shared.EventAchievementsGranted:  f.handleGranted,
		shared.EventSupporterTierGranted: f.handleSupporterTier,
	}
	for eventType, handler := range handlers {
		if err := bus.Subscribe(eventType, handler); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns the delivery counters.
func (f *FanOut) Stats() (sent, failed int64) {
	return f.sent.Load(), f.failed.Load()
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (f *FanOut) handleStarted(event shared.Event) error {
	ev, ok := event.(competition.StartedEvent)
	if !ok {
		return fmt.Errorf("notify: unexpected event type %T", event)
	}

	seed := ev.OccurredAt().UnixNano()
	tenantID := ev.Competition.TenantID.String()

	f.deliverToTenant(tenantID, func(ch notification.ChannelType) string {
		template := f.pool.Pick(notification.CategoryStartAnnouncement, seed)
		return fmt.Sprintf(template, emphasize(ch, ev.Track))
	})
	return nil
}

func (f *FanOut) handleStopReminder(event shared.Event) error {
	ev, ok := event.(competition.StopReminderEvent)
	if !ok {
		return fmt.Errorf("notify: unexpected event type %T", event)
	}

	seed := ev.OccurredAt().UnixNano()
	text := f.pool.Pick(notification.CategoryStopReminder, seed)

	f.deliverToTenant(ev.TenantID.String(), func(notification.ChannelType) string {
		return text
	})
	return nil
}

func (f *FanOut) handleStopped(event shared.Event) error {
	ev, ok := event.(competition.StoppedEvent)
	if !ok {
		return fmt.Errorf("notify: unexpected event type %T", event)
	}

	seed := ev.OccurredAt().UnixNano()
	tenantID := ev.Competition.TenantID.String()

	f.deliverToTenant(tenantID, func(ch notification.ChannelType) string {
		return f.composeFinalStandings(ev.Competition, ch, seed)
	})
	return nil
}

func (f *FanOut) handleCancelled(event shared.Event) error {
	ev, ok := event.(competition.CancelledEvent)
	if !ok {
		return fmt.Errorf("notify: unexpected event type %T", event)
	}

	text := "Today's competition was cancelled."
	if ev.Reason != "" {
		text += " Reason: " + ev.Reason + "."
	}

	f.deliverToTenant(ev.Competition.TenantID.String(), func(notification.ChannelType) string {
		return text
	})
	return nil
}

func (f *FanOut) handleGranted(event shared.Event) error {
	ev, ok := event.(achievement.GrantedEvent)
	if !ok {
		return fmt.Errorf("notify: unexpected event type %T", event)
	}

	seed := ev.OccurredAt().UnixNano()

	for tenantID, grants := range ev.GrantsByTenant {
		for _, grant := range grants {
			text := f.composeGrant(grant, seed)
			if text == "" {
				continue
			}

			if tenantID == "" {
				// No tenant attribution: announce everywhere.
				f.deliverToAll(func(notification.ChannelType) string { return text })
				continue
			}
			f.deliverToTenant(tenantID.String(), func(notification.ChannelType) string { return text })
		}
	}
	return nil
}

func (f *FanOut) handleSupporterTier(event shared.Event) error {
	ev, ok := event.(pilot.SupporterTierGrantedEvent)
	if !ok {
		return fmt.Errorf("notify: unexpected event type %T", event)
	}

	handle := f.handleFor(ev.PilotID)
	text := fmt.Sprintf("%s is now supporting the cup at %s. Thank you!", handle, ev.TierName)

	f.deliverToAll(func(notification.ChannelType) string { return text })
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITION
// ══════════════════════════════════════════════════════════════════════════════

// composeFinalStandings builds the close announcement: winner congrats
// plus a podium summary. Markdown channels get emphasis, plain channels
// get the same data undecorated.
func (f *FanOut) composeFinalStandings(c *competition.Competition, ch notification.ChannelType, seed int64) string {
	var b strings.Builder

	if winner, ok := c.Winner(); ok {
		template := f.pool.Pick(notification.CategoryWinnerCongrats, seed)
		fmt.Fprintf(&b, template, emphasize(ch, f.handleFor(winner.PilotID)))
	} else {
		b.WriteString("Competition closed with no finishers today.")
	}

	podium := 0
	for _, entry := range c.Results {
		if !entry.Rank.IsPodium() {
			continue
		}
		if podium == 0 {
			b.WriteString("\nPodium:")
		}
		podium++
		fmt.Fprintf(&b, "\n%d. %s - %s (%d pts)",
			entry.Rank.Int(),
			f.handleFor(entry.PilotID),
			entry.LapTime.String(),
			entry.Points.Int(),
		)
	}

	return b.String()
}

// composeGrant builds one achievement announcement line.
func (f *FanOut) composeGrant(grant achievement.Grant, seed int64) string {
	def, ok := achievement.GetDefinition(grant.AchievementName)
	if !ok {
		f.logger.Warn("grant for unknown achievement, not announcing",
			"achievement", grant.AchievementName,
		)
		return ""
	}

	var days int
	if _, err := fmt.Sscanf(grant.AchievementName, "streak-%d", &days); err == nil {
		template := f.pool.Pick(notification.CategoryStreakMilestone, seed)
		return fmt.Sprintf(template, f.handleFor(grant.PilotID), days)
	}

	template := f.pool.Pick(notification.CategoryAchievement, seed)
	return fmt.Sprintf(template, f.handleFor(grant.PilotID), def.Emoji+" "+def.Title)
}

// handleFor resolves a pilot's display handle, falling back to a neutral
// placeholder when the pilot is unknown.
func (f *FanOut) handleFor(pilotID shared.PilotID) string {
	p, err := f.pilots.GetByID(context.Background(), pilotID)
	if err != nil {
		return "a pilot"
	}
	return p.Handle
}

// emphasize decorates text for markdown-capable channels.
func emphasize(ch notification.ChannelType, text string) string {
	if ch.SupportsMarkdown() {
		return "**" + text + "**"
	}
	return text
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY
// ══════════════════════════════════════════════════════════════════════════════

// deliverToTenant sends the composed text through every messenger to one
// tenant's audience, pacing between sends.
func (f *FanOut) deliverToTenant(tenantID string, compose func(notification.ChannelType) string) {
	f.paced(func(m notification.Messenger) error {
		return m.SendToTenant(context.Background(), tenantID, compose(m.Channel()))
	}, tenantID)
}

// deliverToAll sends the composed text through every messenger to every
// configured audience.
func (f *FanOut) deliverToAll(compose func(notification.ChannelType) string) {
	f.paced(func(m notification.Messenger) error {
		return m.SendToAll(context.Background(), compose(m.Channel()))
	}, "all")
}

// paced runs one send per messenger sequentially, keeping the pacing
// delay between consecutive sends to the same audience. The delay spans
// delivery calls, so a burst of per-grant announcements to one tenant
// is still paced.
func (f *FanOut) paced(send func(notification.Messenger) error, audience string) {
	for _, m := range f.messengers {
		f.pace(audience)

		err := send(m)

		f.mu.Lock()
		f.lastSend[audience] = f.now()
		f.mu.Unlock()

		if err != nil {
			f.failed.Add(1)
			f.logger.Error("notification send failed",
				"channel", m.Channel(),
				"audience", audience,
				"error", err,
			)
			continue
		}
		f.sent.Add(1)
	}
}

// pace blocks until the pacing window since the audience's previous
// send has elapsed.
func (f *FanOut) pace(audience string) {
	f.mu.Lock()
	last, ok := f.lastSend[audience]
	f.mu.Unlock()

	if !ok {
		return
	}
	if wait := f.pacing - f.now().Sub(last); wait > 0 {
		f.sleep(wait)
	}
}
