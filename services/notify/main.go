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
	"github.com/diagnosis/apartment-reservations/pkg/events"
	"github.com/diagnosis/apartment-reservations/pkg/logger"
	"github.com/diagnosis/apartment-reservations/pkg/mailer"
	mw "github.com/diagnosis/apartment-reservations/pkg/middleware"
	"github.com/diagnosis/apartment-reservations/services/notify/internal/notifier"
	"github.com/go-chi/chi/v5"
)

func main() {
	cfg := config.Load()
	port := os.Getenv("NOTIFY_PORT")
	if port == "" {
		port = "8086"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL, "notify")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	n := notifier.New(mailer.New(cfg.Email), cfg.Property)
	for _, subject := range notifier.Subjects {
		err := eventBus.QueueSubscribe(subject, cfg.NATS.Queue, func(msg *events.Message) {
			mctx, cancel := context.WithTimeout(context.WithValue(ctx, logger.RequestIDKey, msg.ID), 30*time.Second)
			defer cancel()
			n.Handle(mctx, msg)
		})
		if err != nil {
			logger.Error("Failed to subscribe", "subject", subject, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("Subscribed to reservation events", "queue", cfg.NATS.Queue, "dev_mode", cfg.Email.DevMode)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("notify"))
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)
	r.Use(mw.Health)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down notify service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Notify service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting notify service", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Notify service error", "error", err)
		os.Exit(1)
	}
}
