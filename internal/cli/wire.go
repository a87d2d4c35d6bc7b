package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/config"
	"exam-arena-service/internal/infra/memory"
	"exam-arena-service/internal/infra/postgres"
	redisinfra "exam-arena-service/internal/infra/redis"
	transport "exam-arena-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

const devJWTSecret = "dev-secret"

// application is the wired service graph shared by the commands.
type application struct {
	cfg      config.Config
	settings app.Settings
	store    app.Store
	services transport.Services
	sweeper  *app.Sweeper
	closers  []func()
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func settingsFromConfig(cfg config.Config) (app.Settings, error) {
	settings := app.DefaultSettings()
	loc, err := cfg.Location()
	if err != nil {
		return settings, fmt.Errorf("load timezone: %w", err)
	}
	settings.Location = loc
	settings.RoomExpiry = config.TTLDuration(cfg.Rooms.Expiry, settings.RoomExpiry)
	settings.MinTimePerQuestion = config.TTLDuration(cfg.Rooms.MinTimePerQuestion, settings.MinTimePerQuestion)
	settings.MaxTimePerQuestion = config.TTLDuration(cfg.Rooms.MaxTimePerQuestion, settings.MaxTimePerQuestion)
	if cfg.Rooms.InitialCredits > 0 {
		settings.InitialRoomCredits = cfg.Rooms.InitialCredits
	}
	if cfg.Gamification.WeeklyGoal > 0 {
		settings.WeeklyGoal = cfg.Gamification.WeeklyGoal
	}
	return settings, nil
}

// buildApplication picks Postgres or in-memory storage and Redis or in-process fan-out
// depending on what the config provides.
func buildApplication(ctx context.Context, cfg config.Config) (*application, error) {
	settings, err := settingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	a := &application{cfg: cfg, settings: settings}

	var bank app.QuestionBank
	if cfg.Postgres.URL != "" {
		db := postgres.Open(cfg.Postgres.URL)
		a.closers = append(a.closers, func() { db.Close() })
		a.store = postgres.NewStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect question bank: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		bank = postgres.NewQuestionBank(pool)
	} else {
		log.Printf("postgres not configured, using in-memory store with sample questions")
		a.store = memory.NewStore()
		bank = memory.NewQuestionBank(sampleQuestions()...)
	}

	cacheTTL := config.TTLDuration(cfg.Questions.CacheTTL, 10*time.Minute)
	var (
		notifier app.Notifier
		hub      app.RoomHub
		locker   app.Locker
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() { client.Close() })
		bank = redisinfra.NewQuestionCache(client, bank, cacheTTL)
		notifier = redisinfra.NewOutbox(client, cfg.Notifications.Queue, config.TTLDuration(cfg.Notifications.DedupeTTL, 7*24*time.Hour))
		hub = redisinfra.NewRoomHub(client)
		locker = redisinfra.NewLocker(client)
	} else {
		bank = memory.NewQuestionCache(bank, cacheTTL)
		notifier = memory.NewOutbox()
		hub = memory.NewRoomHub()
	}

	ledger := app.NewLedger(a.store, settings)
	rooms := app.NewRoomService(a.store, bank, notifier, hub, settings)
	a.services = transport.Services{
		Attempts:  app.NewAttemptService(a.store, bank, ledger, settings),
		Rooms:     rooms,
		Tests:     app.NewTestGenerator(a.store, bank, settings),
		Ledger:    ledger,
		Referrals: app.NewReferralService(a.store, notifier, settings),
	}
	a.sweeper = app.NewSweeper(a.store, rooms, locker, settings)
	return a, nil
}

func jwtSecret(cfg config.Config) string {
	if cfg.Auth.JWTSecret == "" {
		log.Printf("auth.jwt_secret not set, falling back to the development secret")
		return devJWTSecret
	}
	return cfg.Auth.JWTSecret
}
