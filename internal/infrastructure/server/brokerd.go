package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apihttp "github.com/openharmony/window-window-manager-sub028/internal/api/http"
	"github.com/openharmony/window-window-manager-sub028/internal/broker"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/config"
)

// Brokerd serves the reference broker and its admin API.
type Brokerd struct {
	*daemon
	server *broker.Server
}

// NewBrokerd binds the listeners, publishes the broker objects and
// connects the configured users.
func NewBrokerd(cfg *config.Config) (*Brokerd, error) {
	bc := cfg.Broker
	d, err := newDaemon(cfg, "brokerd", bc.ListenAddr, bc.AdvertiseAddr, bc.AdminAddr, cfg.Locator.DialTimeout)
	if err != nil {
		return nil, err
	}

	server := broker.NewServer(d.endpoint, bc.DefaultUserID, d.logger.Logger, d.metrics)
	for _, userID := range bc.Users {
		// No listener can be registered yet, so nothing is pushed.
		if err := server.AddUser(context.Background(), userID, 0); err != nil {
			d.objects.Close()
			d.adminLis.Close()
			return nil, fmt.Errorf("add user %d: %w", userID, err)
		}
	}
	d.serveAdmin(cfg, apihttp.NewBrokerHandlers(server))

	d.logger.Info("Broker daemon initialized",
		zap.String("advertise", d.endpoint.Address()),
		zap.Int32("default_user", bc.DefaultUserID),
		zap.Int("users", len(bc.Users)),
	)
	return &Brokerd{daemon: d, server: server}, nil
}

// Server returns the broker.
func (s *Brokerd) Server() *broker.Server { return s.server }

// Address returns the address locators dial to reach the registry.
func (s *Brokerd) Address() string { return s.endpoint.Address() }

// AdminAddr returns the bound admin API address.
func (s *Brokerd) AdminAddr() string { return s.adminAddr }

// Run serves until ctx is done.
func (s *Brokerd) Run(ctx context.Context) error {
	return s.run(ctx, nil)
}
