package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukerupert/closeshop/internal/client/httpapi"
	"github.com/dukerupert/closeshop/internal/logging"
)

func main() {
	serverURL := flag.String("server", envOr("CLOSESHOP_SERVER", "http://localhost:8080"), "closeshop backend URL")
	logLevel := flag.String("log-level", envOr("CLOSESHOP_LOG_LEVEL", "warn"), "log level")
	flag.Parse()

	logger := logging.Setup(*logLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := httpapi.New(*serverURL, httpapi.WithLogger(logger.With("component", "api")))
	a := newApp(api, bufio.NewReader(os.Stdin), os.Stdout, logger)
	defer a.close()

	a.run(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
