package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/suPer8Hu/healthyai/internal/account"
	"github.com/suPer8Hu/healthyai/internal/ai"
	"github.com/suPer8Hu/healthyai/internal/chat"
	"github.com/suPer8Hu/healthyai/internal/config"
	"github.com/suPer8Hu/healthyai/internal/db"
	"github.com/suPer8Hu/healthyai/internal/email"
	"github.com/suPer8Hu/healthyai/internal/health"
	"github.com/suPer8Hu/healthyai/internal/httpapi"
	"github.com/suPer8Hu/healthyai/internal/httpapi/handlers"
	"github.com/suPer8Hu/healthyai/internal/logger"
	"github.com/suPer8Hu/healthyai/internal/reminder"
	"github.com/suPer8Hu/healthyai/internal/store/redisstore"
)

const workspaceSweepInterval = 10 * time.Minute

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.L.Warn("load .env", "err", err)
	}
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logger.L.Error("db connect", "err", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb,
		&account.User{}, &account.Settings{},
		&chat.Session{}, &chat.Message{},
		&health.Profile{}, &reminder.Reminder{},
	); err != nil {
		logger.L.Error("db migrate", "err", err)
		os.Exit(1)
	}

	healthy := ai.NewHealthyAIProvider(cfg.HealthyAIBaseURL, cfg.InferenceTimeout, cfg.ReadyTimeout)
	reg := ai.NewRegistry()
	reg.Register("healthyai", func(context.Context) (ai.Provider, error) {
		return healthy, nil
	})
	reg.Register("openrouter", func(context.Context) (ai.Provider, error) {
		if cfg.OpenRouterAPIKey == "" {
			return nil, errors.New("OPENROUTER_API_KEY is not set")
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, cfg.OpenRouterModel, cfg.InferenceTimeout), nil
	})

	if !slices.Contains(reg.Names(), strings.ToLower(strings.TrimSpace(cfg.AIProvider))) {
		logger.L.Error("unsupported AI_PROVIDER", "provider", cfg.AIProvider, "known", reg.Names())
		os.Exit(1)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rds.Ping(pingCtx); err != nil {
		logger.L.Warn("redis unavailable, password reset cooldown will fail", "addr", cfg.RedisAddr, "err", err)
	}
	cancelPing()

	mailer := email.NewSMTPSender(email.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	})

	chatSvc := chat.NewService(chat.NewRepo(gdb), reg, cfg.AIProvider)
	h := handlers.NewHandler(
		account.NewService(account.NewRepo(gdb), cfg.JWTSecret, mailer, rds),
		chatSvc,
		// exercise advice always comes from the HealthyAI backend
		health.NewService(health.NewRepo(gdb), healthy),
		reminder.NewService(reminder.NewRepo(gdb), cfg.ReminderLocation),
	)
	defer h.Workspaces.CloseAll()

	go func() {
		r := chatSvc.CheckReady(context.Background())
		logger.L.Info("ai provider readiness", "provider", cfg.AIProvider, "ready", r.Ready, "status", r.Status)
	}()

	router := httpapi.NewRouter(cfg, h)
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Workspaces outlive their tokens when a client never logs out.
	go h.Workspaces.RunJanitor(ctx, workspaceSweepInterval, account.TokenTTL)

	go func() {
		logger.L.Info("api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("http server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.L.Info("api shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("http shutdown", "err", err)
	}
}
