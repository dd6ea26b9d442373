package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rallypoint/server/internal/app"
	"rallypoint/server/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, app.Config{
		ConfigPath: *configPath,
		Logger:     telemetry.WrapLogger(log.Default()),
	}); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
