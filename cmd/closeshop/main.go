package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/closeshop/internal/auth"
	"github.com/dukerupert/closeshop/internal/config"
	"github.com/dukerupert/closeshop/internal/database"
	"github.com/dukerupert/closeshop/internal/email"
	"github.com/dukerupert/closeshop/internal/geocode"
	"github.com/dukerupert/closeshop/internal/logging"
	"github.com/dukerupert/closeshop/internal/push"
	"github.com/dukerupert/closeshop/internal/server"
	"github.com/dukerupert/closeshop/internal/sweeper"
)

func main() {
	configPath := flag.String("config", os.Getenv("CLOSESHOP_CONFIG"), "path to YAML config file")
	genVAPID := flag.Bool("gen-vapid-keys", false, "print a new VAPID key pair and exit")
	flag.Parse()

	if *genVAPID {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			slog.Error("failed to generate VAPID keys", "error", err)
			os.Exit(1)
		}
		fmt.Printf("CLOSESHOP_VAPID_PUBLIC_KEY=%s\nCLOSESHOP_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	cfg, err := config.Load(*configPath, os.LookupEnv)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.EmailFrom, "Closeshop")
	if !emailClient.Configured() {
		logger.Warn("postmark not configured, password recovery codes will not be sent")
	}

	geocoder := geocode.NewService(geocode.Config{
		BaseURL:   cfg.GeocodeBaseURL,
		UserAgent: cfg.GeocodeUserAgent,
		CacheTTL:  cfg.GeocodeCacheTTL.Std(),
	})

	var fcm push.Sender
	if sender := push.NewFCMSender(cfg.FCMServerKey, cfg.FCMEndpoint); sender.Enabled() {
		fcm = sender
	} else {
		logger.Warn("fcm server key not set, mobile push disabled")
	}
	webPush := push.NewWebPushService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)

	srv := server.New(db, server.Deps{
		Tokens:       auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.AccessTokenTTL.Std()),
		IsAdminEmail: cfg.IsAdminEmail,
		Mailer:       emailClient,
		Geocoder:     geocoder,
		FCM:          fcm,
		WebPush:      webPush,
	}, logger)

	sweep := sweeper.New(cfg.SweepInterval.Std(), logger.With("component", "sweeper"),
		sweeper.Task{Name: "sessions", Run: srv.SessionStore().DeleteExpired},
		sweeper.Task{Name: "recovery_codes", Run: srv.RecoveryStore().DeleteExpired},
		sweeper.Counted("rate_limiter", srv.RateLimiter().Cleanup),
		sweeper.Counted("geocode_cache", geocoder.Cleanup),
	)
	sweep.Start(context.Background())

	// No WriteTimeout: realtime websockets stay open for the whole session.
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("closeshop running", "addr", httpServer.Addr, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	sweep.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
