// Package main contains the entrypoint for the piyasabot behavior engine.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/piyasasohbet/piyasabot/internal/bot"
	"github.com/piyasasohbet/piyasabot/internal/bot/handlers"
	"github.com/piyasasohbet/piyasabot/internal/bot/tasks"
	"github.com/piyasasohbet/piyasabot/internal/cache"
	"github.com/piyasasohbet/piyasabot/internal/config"
	"github.com/piyasasohbet/piyasabot/internal/configbus"
	"github.com/piyasasohbet/piyasabot/internal/database"
	"github.com/piyasasohbet/piyasabot/internal/dedup"
	"github.com/piyasasohbet/piyasabot/internal/engine"
	"github.com/piyasasohbet/piyasabot/internal/gemini"
	"github.com/piyasasohbet/piyasabot/internal/llm"
	"github.com/piyasasohbet/piyasabot/internal/logger"
	"github.com/piyasasohbet/piyasabot/internal/metrics"
	"github.com/piyasasohbet/piyasabot/internal/news"
	"github.com/piyasasohbet/piyasabot/internal/queue"
	"github.com/piyasasohbet/piyasabot/internal/ratelimit"
	"github.com/piyasasohbet/piyasabot/internal/secrets"
	"github.com/piyasasohbet/piyasabot/internal/settings"
	"github.com/piyasasohbet/piyasabot/internal/telegram"
)

const (
	l1CacheSize      = 1000
	settingsInterval = 15 * time.Second
	redisPingTimeout = 3 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component and blocks until shutdown. It returns the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load env file", "path", *envPath, "error", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	rec := metrics.New(log)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log, database.WithQueryObserver(rec.DBQuery))

	var box *secrets.Box
	if cfg.Security.EncryptionKey != "" {
		if box, err = secrets.NewBox(cfg.Security.EncryptionKey); err != nil {
			log.Error("Invalid encryption key", "error", err)
			return 1
		}
	} else {
		log.Warn("No encryption key configured, bot tokens are read as plain text")
	}

	redisClient := connectRedis(ctx, cfg.Redis, log)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Warn("Error closing redis client", "error", err)
			}
		}()
	}

	cacheManager := cache.New(l1CacheSize, redisClient, log)
	var backend queue.Backend = queue.NewMemoryBackend()
	if redisClient != nil {
		backend = queue.NewRedisBackend(redisClient)
	}
	priority := queue.NewPriorityQueue(backend, log)
	outbound := queue.NewMessageQueue(backend, log)

	settingsCache := settings.NewCache(store, log, settingsInterval)
	if err := settingsCache.Refresh(ctx); err != nil {
		log.Warn("Initial settings load failed, using defaults", "error", err)
	}

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}
	var embedder llm.Embedder
	if cfg.Gemini.EmbeddingModel != "" {
		embedder = gemClient
	}
	guard := dedup.NewGuard(
		dedup.NewSemantic(embedder, cacheManager, log),
		dedup.NewLLMParaphraser(gemClient, cacheManager, log),
		log,
	)

	briefer := news.NewBriefer(cfg.News, settingsCache.Current().NewsFeedURLs, cacheManager, log)

	tg := telegram.NewClient(cfg.Telegram, log)
	defer func() {
		if err := tg.Close(); err != nil {
			log.Warn("Error closing telegram client", "error", err)
		}
	}()

	deps := engine.Deps{
		Store:    store,
		Settings: settingsCache,
		Cache:    cacheManager,
		Gate:     ratelimit.NewGate(store, log),
		LLM:      gemClient,
		Dedup:    guard,
		News:     briefer,
		Priority: priority,
		Outbound: outbound,
		Typing:   tg,
		Metrics:  rec,
	}
	var creds queue.Decrypter
	if box != nil {
		deps.Secrets = box
		creds = box
	}
	eng := engine.New(deps, engine.Options{
		WorkerID:         cfg.Engine.WorkerID,
		TotalWorkers:     cfg.Engine.TotalWorkers,
		Location:         cfg.Engine.Location(),
		ConsistencyGuard: cfg.Engine.ConsistencyGuard,
	}, log)

	processor := queue.NewProcessor(outbound, tg, ratelimit.NewTokenBucket(), store, creds, rec, queue.ProcessorConfig{}, log)

	hDeps := handlers.HandlerDeps{
		Logger:   log,
		Store:    store,
		Cache:    cacheManager,
		Priority: priority,
		Outbound: outbound,
		Metrics:  rec,
	}
	intake, err := telegram.NewIntake(cfg.Telegram, handlers.RegisterAllHandlers(hDeps), handlers.NewHealthHandler(hDeps), log)
	if err != nil {
		log.Error("Failed to create Telegram intake", "error", err)
		return 1
	}

	components := []bot.Component{
		{Name: "engine", Run: eng.Run},
		{Name: "queue_processor", Run: processor.Run},
		{Name: "telegram_intake", Run: intake.Run},
	}
	sub, err := newSubscriber(ctx, cfg.ConfigBus, redisClient, log)
	if err != nil {
		log.Error("Failed to create config bus subscriber", "backend", cfg.ConfigBus.Backend, "error", err)
		return 1
	}
	if sub != nil {
		defer func() {
			if err := sub.Close(); err != nil {
				log.Warn("Error closing config bus subscriber", "error", err)
			}
		}()
		listener := configbus.NewListener(sub, settingsCache, briefer, log)
		components = append(components, bot.Component{Name: "config_listener", Run: listener.Run})
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, cfg.Engine.Location(), tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:   log,
		Store:    store,
		Settings: settingsCache,
		Priority: priority,
		Outbound: outbound,
		Metrics:  rec,
	}))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, sched, components...)
	log.Info("Starting piyasabot", "worker_id", cfg.Engine.WorkerID, "total_workers", cfg.Engine.TotalWorkers,
		"telegram_mode", cfg.Telegram.Mode, "config_bus", cfg.ConfigBus.Backend, "redis", redisClient != nil)

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("piyasabot stopped due to error", "error", err)
		return 1
	}
	log.Info("piyasabot stopped gracefully")
	return 0
}

// connectRedis returns nil when no address is configured or the server does not answer;
// the process then runs with in-process queues and an L1-only cache.
func connectRedis(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) redis.UniversalClient {
	if cfg.Addr == "" {
		log.Info("No redis address configured, using in-process queues")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis unavailable, degrading to in-process queues and L1 cache", "addr", cfg.Addr, "error", err)
		_ = client.Close()
		return nil
	}
	log.Info("Connected to redis", "addr", cfg.Addr)
	return client
}

func newSubscriber(ctx context.Context, cfg config.ConfigBusConfig, client redis.UniversalClient, log *slog.Logger) (configbus.Subscriber, error) {
	switch cfg.Backend {
	case "redis":
		if client == nil {
			log.Warn("Config bus backend is redis but redis is unavailable, config events disabled")
			return nil, nil
		}
		bus, err := configbus.NewRedisBus(ctx, client, cfg.Channel)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case "kafka":
		return configbus.NewKafkaSubscriber(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID), nil
	default:
		return nil, nil
	}
}
