// Command duelserver is the process entrypoint: it wires presence → pool
// → matchmaker → gateway and serves the duel websocket plus the
// leaderboard/history HTTP surfaces (spec.md §2, generalizing the
// teacher's root main.go).
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

	"github.com/joho/godotenv"

	"quizduel-server/api"
	"quizduel-server/auth"
	"quizduel-server/config"
	"quizduel-server/gateway"
	"quizduel-server/loghandler"
	"quizduel-server/matchmaker"
	"quizduel-server/pool"
	"quizduel-server/presence"
	"quizduel-server/problems"
	"quizduel-server/storage"
)

const shutdownGrace = 10 * time.Second

var errAuthNotConfigured = errors.New("auth: no JWKS issuer configured")

func main() {
	log := slog.New(loghandler.NewCompactHandler(os.Stdout, slog.LevelInfo))

	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found; using environment variables", "tag", "main")
	}

	cfg := config.Load()

	var resolver auth.Resolver
	if cfg.AuthJWKSBaseURL == "" {
		log.Warn("AUTH_JWKS_BASE_URL is not set; every connection will be rejected with invalid token", "tag", "main")
		resolver = rejectAllResolver{}
	} else {
		r, err := auth.NewJWKSResolver(cfg.AuthJWKSBaseURL)
		if err != nil {
			log.Error("failed to build JWKS resolver", "tag", "main", "error", err)
			os.Exit(1)
		}
		resolver = r
		log.Info("auth configured", "tag", "main", "jwks_base_url", cfg.AuthJWKSBaseURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgStore, err := storage.NewStore(ctx, cfg.DatabaseURL, cfg)
	if err != nil {
		log.Error("failed to connect to database", "tag", "main", "error", err)
		os.Exit(1)
	}
	var ratingStore storage.RatingStore
	if pgStore != nil {
		defer pgStore.Close()
		ratingStore = pgStore
		log.Info("persistence: Postgres", "tag", "main")
	} else {
		ratingStore = storage.NewMemStore(cfg)
		log.Info("persistence: in-memory (DATABASE_URL not set)", "tag", "main")
	}

	source := problems.NewStaticSource(problems.DefaultProblems())

	p := pool.New()
	reg := presence.New(p)
	mm := matchmaker.New(cfg, p, reg, source, ratingStore, log)
	go mm.Run(ctx)

	hub := gateway.NewHub(resolver, reg, log)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)

	if pgStore != nil {
		apiHandler := api.NewHandler(resolver, pgStore, log)
		mux.HandleFunc("/api/leaderboard", apiHandler.Leaderboard)
		mux.HandleFunc("/api/history", apiHandler.History)
	}

	addr := fmt.Sprintf(":%d", cfg.WSPort)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info("duel server listening", "tag", "main", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "tag", "main", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received", "tag", "main")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "tag", "main", "error", err)
	}
}

// rejectAllResolver is used when no JWKS issuer is configured: every
// token is rejected, matching the teacher's "Server auth not configured"
// fail-closed convention.
type rejectAllResolver struct{}

func (rejectAllResolver) ResolveToken(_ context.Context, _ string) (string, string, float64, error) {
	return "", "", 0, errAuthNotConfigured
}
