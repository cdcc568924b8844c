package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/apartment-reservations/pkg/config"
	"github.com/diagnosis/apartment-reservations/pkg/logger"
	mw "github.com/diagnosis/apartment-reservations/pkg/middleware"
	"github.com/diagnosis/apartment-reservations/services/gateway/internal/handlers"
	"github.com/diagnosis/apartment-reservations/services/gateway/internal/proxy"
	"github.com/go-chi/chi/v5"
)

func main() {
	cfg := config.Load()
	port := getEnv("GATEWAY_PORT", "8080")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authProxy := proxy.NewServiceProxy("auth", getEnv("AUTH_SERVICE_URL", "http://localhost:8081"))
	reservationsProxy := proxy.NewServiceProxy("reservations", getEnv("RESERVATIONS_SERVICE_URL", "http://localhost:8082"))
	h := handlers.New(authProxy, reservationsProxy)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("gateway"))
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)
	r.Use(mw.CORS(cfg.Server.AllowedOrigins))
	r.Use(mw.Health)

	h.Routes(r, cfg.Auth.JWTSecret)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down gateway service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Gateway shutdown error", "error", err)
		}
	}()

	logger.Info("Starting gateway service", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Gateway server error", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
