package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"inkstone/api/internal/app"
	"inkstone/api/internal/authpw"
	"inkstone/api/internal/completion"
	"inkstone/api/internal/config"
	"inkstone/api/internal/notes"
	"inkstone/api/internal/search"
	"inkstone/api/internal/session"
	"inkstone/api/internal/store"
	"inkstone/api/internal/web"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if strings.TrimSpace(cfg.OpenAIKey) == "" {
		logger.Fatal("OPENAI_API_KEY is required")
	}
	persona, err := completion.LookupPersona(cfg.ChatPersona)
	if err != nil {
		logger.Fatal("invalid chat persona", zap.String("persona", cfg.ChatPersona), zap.Error(err))
	}

	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, logger); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	dataStore := store.NewPostgresStore(db)

	// Redis backs refresh sessions and fans note changes out across
	// instances. Without it, both fall back to single-instance Postgres.
	var sessions interface {
		SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
		LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
		RevokeRefreshSession(ctx context.Context, tokenHash string) error
	}
	var redisStore *session.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err = session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisStore.Close()
		sessions = redisStore
		logger.Info("using redis for refresh sessions and note fanout")
	} else {
		sessions = app.NewPGSessionStore(dataStore)
		logger.Info("using postgres for refresh sessions")
	}

	hub := notes.NewHub(dataStore, redisClientOrNil(redisStore), logger)
	defer hub.Close()

	pgfts := search.NewPgFTS(dataStore)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, logger)
	searchService.ReindexAllFromPG(ctx)

	noteService := notes.NewService(dataStore, hub, searchService, logger)
	pwAuth := authpw.NewService(dataStore)
	chatClient := completion.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, logger)

	service := app.New(cfg, logger, dataStore, sessions, pwAuth, noteService, hub, searchService, chatClient, persona)

	pages, err := web.New(logger)
	if err != nil {
		logger.Fatal("template parse failed", zap.Error(err))
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger, pages)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: the note stream holds its connection open.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("inkstone api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}

func redisClientOrNil(s *session.RedisStore) *redis.Client {
	if s == nil {
		return nil
	}
	return s.Client()
}
