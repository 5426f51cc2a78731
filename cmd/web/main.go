package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JoshiWorld/bierpongv2/internal/archive"
	"github.com/JoshiWorld/bierpongv2/internal/config"
	"github.com/JoshiWorld/bierpongv2/internal/db"
	"github.com/JoshiWorld/bierpongv2/internal/lock"
	"github.com/JoshiWorld/bierpongv2/internal/middleware"
	"github.com/JoshiWorld/bierpongv2/internal/notify"
	"github.com/JoshiWorld/bierpongv2/internal/service"
	"github.com/JoshiWorld/bierpongv2/internal/store"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.InitDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.RunMigrations(database.DB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	middleware.InitAuth(cfg.OAuth)

	sessionManager := scs.New()
	sessionManager.Lifetime = cfg.SessionLifetime
	sessionManager.Store = sqlite3store.New(database.DB)

	hub := notify.NewHub(logger, cfg.CORSOrigins)
	go hub.Run(ctx)

	publishers := []notify.Publisher{hub}
	var locker lock.Locker = lock.NewMemory()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		locker = lock.NewRedis(rdb, lock.DefaultLeaseTTL)
		publishers = append(publishers, notify.NewRedisPublisher(rdb))
		logger.Info("redis connected", "addr", cfg.RedisAddr)
	}

	var archiver service.Archiver
	if cfg.R2.Enabled() {
		uploader, err := archive.NewR2Uploader(ctx, cfg.R2)
		if err != nil {
			return fmt.Errorf("failed to configure archive: %w", err)
		}
		archiver = archive.New(uploader)
		logger.Info("tournament archive enabled", "bucket", cfg.R2.BucketName)
	}

	app := newApplication(database, deps{
		logger:    logger,
		sessions:  sessionManager,
		locker:    locker,
		notifier:  notify.NewFanout(logger, publishers...),
		archiver:  archiver,
		hub:       hub,
		jwtSecret: cfg.JWTSecret,
		tokenTTL:  cfg.TokenLifetime,
		adminHash: cfg.AdminPasswordHash,
		origins:   cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type deps struct {
	logger    *slog.Logger
	sessions  *scs.SessionManager
	locker    lock.Locker
	notifier  service.Notifier
	archiver  service.Archiver
	hub       *notify.Hub
	jwtSecret string
	tokenTTL  time.Duration
	adminHash string
	origins   []string
}

type application struct {
	logger   *slog.Logger
	sessions *scs.SessionManager
	auth     *middleware.Authenticator
	hub      *notify.Hub
	origins  []string

	users       *service.UserService
	tournaments *service.TournamentService
	brackets    *service.BracketService
	matches     *service.MatchService
}

func newApplication(database *sqlx.DB, d deps) *application {
	tournamentStore := store.NewTournamentStore(database)
	matchStore := store.NewMatchStore(database)
	userStore := store.NewUserStore(database)

	users := service.NewUserService(userStore, d.adminHash)
	brackets := service.NewBracketService(database, tournamentStore, matchStore, d.notifier, d.archiver, d.logger)

	return &application{
		logger:      d.logger,
		sessions:    d.sessions,
		auth:        middleware.NewAuthenticator(d.sessions, users, d.jwtSecret, d.tokenTTL),
		hub:         d.hub,
		origins:     d.origins,
		users:       users,
		tournaments: service.NewTournamentService(database, tournamentStore, matchStore, userStore, d.notifier, d.logger),
		brackets:    brackets,
		matches:     service.NewMatchService(database, tournamentStore, matchStore, d.locker, brackets, d.notifier, d.logger),
	}
}
