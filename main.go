package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	_ "github.com/lib/pq"

	"github.com/lumen-im/lumen/internal/auth"
	"github.com/lumen-im/lumen/internal/config"
	"github.com/lumen-im/lumen/internal/delivery"
	"github.com/lumen-im/lumen/internal/handler"
	"github.com/lumen-im/lumen/internal/registry"
	"github.com/lumen-im/lumen/store/message"
	"github.com/lumen-im/lumen/store/user"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config: ", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatal("logger: ", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	sugar := logger.Sugar()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		sugar.Fatalw("failed to open database", "error", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			sugar.Warnw("error closing db", "error", err)
		}
	}()

	if err := db.Ping(); err != nil {
		// The DB may still be starting (Docker); requests will surface
		// store errors until it comes up.
		sugar.Warnw("database unreachable", "error", err)
	} else {
		sugar.Infow("connected to database")
	}

	userStore := user.NewSQLStore(db)
	messageStore := message.NewSQLStore(db)

	reg := registry.New()
	engine := delivery.NewEngine(userStore, messageStore, reg, sugar)
	authenticator := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)

	h := handler.New(userStore, messageStore, engine, reg, authenticator, cfg, sugar)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: h.Routes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		sugar.Infow("server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("listen and serve", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("shutdown", "error", err)
	}
	reg.CloseAll()
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
