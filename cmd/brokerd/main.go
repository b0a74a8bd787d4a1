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
	flag.StringVar(&cfg.Broker.ListenAddr, "listen", cfg.Broker.ListenAddr, "Address serving broker objects")
	flag.StringVar(&cfg.Broker.AdvertiseAddr, "advertise", cfg.Broker.AdvertiseAddr, "Address locators dial")
	flag.StringVar(&cfg.Broker.AdminAddr, "admin", cfg.Broker.AdminAddr, "Admin API address")
	defaultUser := flag.Int("default-user", int(cfg.Broker.DefaultUserID), "Initial default user")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.Parse()
	cfg.Broker.DefaultUserID = int32(*defaultUser)

	srv, err := server.NewBrokerd(cfg)
	if err != nil {
		log.Fatalf("Failed to create broker daemon: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Broker daemon error: %v", err)
	}
}
