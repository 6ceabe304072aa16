// Package app assembles configuration, storage, services, and the HTTP
// server into a runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	authhttp "github.com/taskpadhq/taskpad/internal/auth/http"
	"github.com/taskpadhq/taskpad/internal/auth/service"
	"github.com/taskpadhq/taskpad/internal/auth/store"
	"github.com/taskpadhq/taskpad/internal/auth/store/drivers/postgres"
	"github.com/taskpadhq/taskpad/internal/auth/store/drivers/sqlite"
	"github.com/taskpadhq/taskpad/pkg/jwtx"
	"github.com/taskpadhq/taskpad/pkg/slogx"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

type Application struct {
	cfg    Config
	logger *slog.Logger
	db     store.Store
	server *http.Server

	housekeeping *service.HousekeepingService
	stopTasks    context.CancelFunc
}

// New wires the application. The returned Application owns the store
// and server; call Run to serve and Shutdown to tear down.
func New(cfg Config) (*Application, error) {
	logger := slogx.New(slogx.Config{
		Service: "taskpad-auth",
		Version: Version,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	codec, err := jwtx.NewCodec([]byte(cfg.JWTSecret), cfg.AccessTokenTTL)
	if err != nil {
		db.Close()
		return nil, err
	}

	users := &service.UserService{Store: db}
	tokens := &service.TokenService{
		Codec:           codec,
		Store:           db,
		RefreshTTL:      cfg.RefreshTokenTTL,
		RotationEnabled: cfg.RefreshRotationEnabled,
	}
	verifier := &service.HybridVerifier{
		Codec:      codec,
		Store:      db,
		JWTEnabled: cfg.JWTAuthEnabled,
	}

	router := &authhttp.Router{
		Logger:   logger,
		Version:  Version,
		Store:    db,
		Users:    users,
		Tokens:   tokens,
		Verifier: verifier,
	}

	return &Application{
		cfg:    cfg,
		logger: logger,
		db:     db,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		housekeeping: &service.HousekeepingService{
			Store:    db,
			Interval: cfg.HousekeepingInterval,
			Logger:   logger,
		},
	}, nil
}

func openStore(cfg Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		return postgres.New(cfg.DatabaseDSN)
	default:
		return sqlite.New(cfg.DatabaseDSN)
	}
}

// Run starts background tasks and serves HTTP until the server is shut
// down.
func (a *Application) Run() error {
	taskCtx, cancel := context.WithCancel(context.Background())
	a.stopTasks = cancel
	go a.housekeeping.Run(taskCtx)

	a.logger.Info("listening",
		"addr", a.server.Addr,
		"env", a.cfg.Env,
		"jwt_auth_enabled", a.cfg.JWTAuthEnabled,
		"refresh_rotation", a.cfg.RefreshRotationEnabled,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, stops background tasks, and
// closes the store.
func (a *Application) Shutdown(ctx context.Context) error {
	if a.stopTasks != nil {
		a.stopTasks()
	}

	err := a.server.Shutdown(ctx)
	if cerr := a.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
