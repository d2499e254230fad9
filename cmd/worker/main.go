// Package main is the entry point for the RotorCup Hub worker.
//
// The worker owns the whole competition lifecycle:
//   - starting and stopping each cup's daily competition on schedule
//   - polling the lap-time boards and diffing standings
//   - granting achievements and announcing them
//   - daily streak/freeze accounting and monthly season close
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotorcup/rotorcup-hub/config"
	"github.com/rotorcup/rotorcup-hub/internal/application/engine"
	"github.com/rotorcup/rotorcup-hub/internal/application/notify"
	"github.com/rotorcup/rotorcup-hub/internal/application/orchestrator"
	"github.com/rotorcup/rotorcup-hub/internal/application/registrar"
	"github.com/rotorcup/rotorcup-hub/internal/application/seasonjob"
	"github.com/rotorcup/rotorcup-hub/internal/application/streakjob"
	"github.com/rotorcup/rotorcup-hub/internal/domain/achievement"
	"github.com/rotorcup/rotorcup-hub/internal/domain/notification"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
	"github.com/rotorcup/rotorcup-hub/internal/infrastructure/external/discord"
	"github.com/rotorcup/rotorcup-hub/internal/infrastructure/external/laptimes"
	"github.com/rotorcup/rotorcup-hub/internal/infrastructure/external/telegram"
	"github.com/rotorcup/rotorcup-hub/internal/infrastructure/messaging"
	"github.com/rotorcup/rotorcup-hub/internal/infrastructure/persistence/postgres"
	"github.com/rotorcup/rotorcup-hub/internal/infrastructure/persistence/redis"
	"github.com/rotorcup/rotorcup-hub/internal/infrastructure/scheduler"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting RotorCup Hub worker",
		"env", cfg.App.Environment,
		"debug", cfg.App.Debug,
		"tenants", len(cfg.Tenants),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	if cfg.Database.Migrate {
		log.Info("checking database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional, standings snapshots)
	// ─────────────────────────────────────────────────────────────────────────
	var snapshots orchestrator.SnapshotCache

	if cfg.Redis.Enabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB

		redisCache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, snapshot diffing falls back to persisted results", "error", err)
		} else {
			defer redisCache.Close()
			snapshots = redis.NewSnapshotCache(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	competitionRepo := postgres.NewCompetitionRepository(dbConn)
	pilotRepo := postgres.NewPilotRepository(dbConn)
	grantRepo := postgres.NewGrantRepository(dbConn)
	streakRepo := postgres.NewStreakRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EXTERNAL CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing lap-time board client...")
	boardConfig := laptimes.DefaultClientConfig(cfg.Board.BaseURL)
	boardConfig.APIKey = cfg.Board.APIKey
	boardConfig.Timeout = cfg.Board.Timeout
	boardConfig.Logger = log
	boardClient := laptimes.NewClient(boardConfig)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ACHIEVEMENT ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	tenantIDs := make([]shared.TenantID, 0, len(cfg.Tenants))
	for _, t := range cfg.Tenants {
		if t.Enabled {
			tenantIDs = append(tenantIDs, shared.TenantID(t.ID))
		}
	}

	scan := &streakjob.Scan{
		Competitions: competitionRepo,
		Tenants:      tenantIDs,
	}

	rules := achievement.NewRegistry().
		RegisterTimeUpdate(
			achievement.FirstEntryRule{},
			achievement.RankClimbRule{},
		).
		RegisterCompetition(
			achievement.DailyWinnerRule{},
			achievement.PodiumRule{},
		).
		RegisterSeason(
			achievement.SeasonPodiumRule{},
			achievement.EverPresentRule{},
		).
		RegisterGlobal(
			achievement.StreakMilestoneRule{
				Streaks:       streakRepo,
				Participation: scan,
				Logger:        log,
			},
			achievement.FirstEverWinRule{
				Grants: grantRepo,
				Wins:   scan,
			},
		)

	achievementEngine, err := engine.New(engine.Config{
		Rules:     rules,
		Grants:    grantRepo,
		Pilots:    pilotRepo,
		Publisher: eventBus,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("failed to build achievement engine: %w", err)
	}
	if err := achievementEngine.Subscribe(eventBus); err != nil {
		return fmt.Errorf("failed to subscribe achievement engine: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. NOTIFICATION FAN-OUT
	// ─────────────────────────────────────────────────────────────────────────
	var messengers []notification.Messenger

	if cfg.Discord.Enabled {
		messengers = append(messengers, discord.NewMessenger(discord.Config{
			Webhooks:        cfg.DiscordWebhooks(),
			AnnounceWebhook: cfg.Discord.AnnounceWebhook,
			Logger:          log,
		}))
	}
	if cfg.Telegram.Enabled {
		messengers = append(messengers, telegram.NewMessenger(telegram.Config{
			Token:          cfg.Telegram.Token,
			ChatIDs:        cfg.TelegramChatIDs(),
			AnnounceChatID: cfg.Telegram.AnnounceChatID,
			Logger:         log,
		}))
	}
	if len(messengers) == 0 {
		log.Warn("no messenger channels enabled, notifications will be dropped")
	}

	fanOut, err := notify.New(notify.Config{
		Messengers: messengers,
		Pilots:     pilotRepo,
		Pool:       notification.NewMessagePool(messagePools(cfg.Messages)),
		Pacing:     cfg.Notify.Pacing,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("failed to build notification fan-out: %w", err)
	}
	if err := fanOut.Subscribe(eventBus); err != nil {
		return fmt.Errorf("failed to subscribe notification fan-out: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. DAILY STREAK ACCOUNTING AND SEASON CLOSE
	// ─────────────────────────────────────────────────────────────────────────
	accountant, err := streakjob.New(streakjob.Config{
		Streaks:        streakRepo,
		Pilots:         pilotRepo,
		Competitions:   competitionRepo,
		Tenants:        tenantIDs,
		EvaluateGlobal: achievementEngine.EvaluateGlobal,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("failed to build streak accountant: %w", err)
	}
	if err := accountant.Subscribe(eventBus); err != nil {
		return fmt.Errorf("failed to subscribe streak accountant: %w", err)
	}

	seasonCloser, err := seasonjob.New(seasonjob.Config{
		Competitions: competitionRepo,
		Tenants:      tenantIDs,
		Publisher:    eventBus,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("failed to build season closer: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. COMPETITION ORCHESTRATOR
	// ─────────────────────────────────────────────────────────────────────────
	tenantSettings := make([]orchestrator.TenantSettings, 0, len(cfg.Tenants))
	for _, t := range cfg.Tenants {
		if t.Enabled {
			tenantSettings = append(tenantSettings, orchestrator.TenantSettings{
				ID:        shared.TenantID(t.ID),
				TrackPool: t.TrackPool,
			})
		}
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Competitions: competitionRepo,
		Pilots:       pilotRepo,
		Source:       boardClient,
		Snapshots:    snapshots,
		Publisher:    eventBus,
		Tenants:      tenantSettings,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. SCHEDULER AND JOB REGISTRATION
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing scheduler...")
	schedConfig := scheduler.DefaultSchedulerConfig()
	schedConfig.Logger = log
	sched := scheduler.NewScheduler(schedConfig)

	reg, err := registrar.New(registrar.Config{
		Scheduler:      sched,
		Orchestrator:   orch,
		DailyStreakJob: accountant.RunDaily,
		CloseSeasonJob: seasonCloser.Run,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("failed to build registrar: %w", err)
	}

	tenants := make([]registrar.Tenant, 0, len(cfg.Tenants))
	for _, t := range cfg.Tenants {
		tenants = append(tenants, registrar.Tenant{
			ID:        shared.TenantID(t.ID),
			StartTime: t.StartTime,
			Enabled:   t.Enabled,
		})
	}
	if err := reg.Sync(ctx, tenants); err != nil {
		return fmt.Errorf("failed to sync schedules: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 13. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("RotorCup Hub worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(cfg.App.ShutdownTimeout):
		log.Warn("shutdown timeout exceeded, exiting anyway")
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures structured logging and installs it as the
// process default.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.App.LogLevel),
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() {
		// JSON for production, plays well with log aggregators.
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// messagePools converts the raw config phrase pools to typed categories.
func messagePools(raw map[string][]string) map[notification.MessageCategory][]string {
	pools := make(map[notification.MessageCategory][]string, len(raw))
	for category, phrases := range raw {
		pools[notification.MessageCategory(category)] = phrases
	}
	return pools
}
