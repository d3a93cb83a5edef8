package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/partsgrid/parts-exchange/internal/clients"
	"github.com/partsgrid/parts-exchange/internal/config"
	"github.com/partsgrid/parts-exchange/internal/engine"
	"github.com/partsgrid/parts-exchange/internal/events"
	"github.com/partsgrid/parts-exchange/internal/httpapi"
	"github.com/partsgrid/parts-exchange/internal/store"
)

func main() {
	// .env is convenience for local development; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Environment == "development" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting parts-exchange engine",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"store_type", cfg.StoreType,
		"tiers", len(cfg.Engine.Tiers),
	)

	var st store.Store
	var mongoClient *mongo.Client

	switch cfg.StoreType {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		clientOpts := options.Client().ApplyURI(cfg.MongoURI)
		var mongoErr error
		mongoClient, mongoErr = mongo.Connect(ctx, clientOpts)
		if mongoErr != nil {
			slog.Error("failed to connect to mongodb", "error", mongoErr)
			os.Exit(1)
		}
		if err := mongoClient.Ping(ctx, nil); err != nil {
			slog.Error("failed to ping mongodb", "error", err)
			os.Exit(1)
		}

		mongoStore := store.NewMongoStore(mongoClient, cfg.MongoDB)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			slog.Warn("failed to create indexes", "error", err)
		}
		st = mongoStore
		slog.Info("using mongodb store", "uri", cfg.MongoURI, "db", cfg.MongoDB)

	case "firestore":
		fsStore, storeErr := store.NewFirestoreStore(cfg.FirestoreProjectID, cfg.FirestoreCollection)
		if storeErr != nil {
			slog.Error("failed to initialize firestore", "error", storeErr)
			os.Exit(1)
		}
		st = fsStore
		slog.Info("using firestore store", "project", cfg.FirestoreProjectID, "prefix", cfg.FirestoreCollection)

	default:
		st = store.NewMemoryStore()
		slog.Info("using in-memory store (development mode)")
	}
	defer func() { _ = st.Close() }()
	if mongoClient != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoClient.Disconnect(ctx); err != nil {
				slog.Error("failed to disconnect mongodb", "error", err)
			}
		}()
	}

	publisher := events.NewPublisher("parts-exchange-engine")
	if cfg.NotifyWebhookURL != "" {
		for _, intent := range []string{
			events.IntentNotifyAdvisors,
			events.IntentNotifyClient,
			events.IntentClientReminder,
			events.IntentWinnerSelected,
			events.IntentRequestClosed,
		} {
			publisher.RegisterEndpoint(intent, cfg.NotifyWebhookURL)
		}
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		publisher.WithRedisStream(rdb, cfg.RedisStream)
		defer func() { _ = rdb.Close() }()
		slog.Info("publishing intents to redis stream", "addr", cfg.RedisAddr, "stream", cfg.RedisStream)
	}

	directory := clients.NewDirectoryClient(cfg.DirectoryURL, cfg.DirectoryAPIKey)

	eng := engine.New(st, directory, publisher, config.Static{S: cfg.Engine})

	// Re-arm timers for requests that were in flight before the restart.
	if err := eng.Recover(context.Background()); err != nil {
		slog.Error("timer recovery failed", "error", err)
		os.Exit(1)
	}
	sweeper := eng.StartSweeper(cfg.SweepInterval)
	defer sweeper.Stop()

	router := httpapi.NewRouter(eng)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
