package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/config"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Locator.RegistryAddr, "registry", cfg.Locator.RegistryAddr, "Broker registry address")
	flag.StringVar(&cfg.Locator.ListenAddr, "listen", cfg.Locator.ListenAddr, "Address serving the recover listener")
	flag.StringVar(&cfg.Locator.AdvertiseAddr, "advertise", cfg.Locator.AdvertiseAddr, "Address the broker dials back (default: bound listen address)")
	flag.StringVar(&cfg.Locator.HTTPAddr, "http", cfg.Locator.HTTPAddr, "Admin API address")
	userID := flag.Int("user", int(cfg.Locator.UserID), "User id; 0 or below follows the default user")
	flag.BoolVar(&cfg.Locator.Lite, "lite", cfg.Locator.Lite, "Resolve the lite domain and screen services")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.Parse()
	cfg.Locator.UserID = int32(*userID)

	srv, err := server.NewLocatord(cfg)
	if err != nil {
		log.Fatalf("Failed to create locator daemon: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Locator daemon error: %v", err)
	}
}
