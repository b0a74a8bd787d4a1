package broker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/openharmony/window-window-manager-sub028/internal/binder"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/logging"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/monitoring"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

// userObjects are the objects published for one user session.
type userObjects struct {
	generation int
	session    *binder.Local
	domain     *binder.Local
	domainLite *binder.Local
}

// Server assembles a complete reference broker on one endpoint: the
// registry, the bootstrap broker, a lite screen broker and one session
// broker with its domain services per user.
type Server struct {
	endpoint  *binder.Endpoint
	registry  *RegistryStub
	bootstrap *BootstrapBrokerStub
	logger    *zap.Logger

	mu    sync.Mutex
	users map[int32]*userObjects
}

// NewServer publishes the registry and bootstrap broker on endpoint.
func NewServer(endpoint *binder.Endpoint, defaultUser int32, logger *zap.Logger, metrics *monitoring.Metrics) *Server {
	logger = logging.OrNop(logger).Named("broker")

	s := &Server{
		endpoint:  endpoint,
		registry:  NewRegistryStub(),
		bootstrap: NewBootstrapBrokerStub(defaultUser, logger, metrics),
		logger:    logger,
		users:     make(map[int32]*userObjects),
	}

	endpoint.PublishAs(remote.RegistryObjectID, s.registry)
	bootstrap := endpoint.Publish(s.bootstrap)
	s.registry.Add(remote.WindowManagerServiceID, bootstrap)
	s.bootstrap.SetScreenBrokerLite(endpoint.Publish(NewScreenBrokerLiteStub("screen-lite")))
	return s
}

// Bootstrap returns the bootstrap broker.
func (s *Server) Bootstrap() *BootstrapBrokerStub { return s.bootstrap }

// Registry returns the service registry.
func (s *Server) Registry() *RegistryStub { return s.registry }

func (s *Server) publishUser(userID int32, generation int) *userObjects {
	label := fmt.Sprintf("user-%d/gen-%d", userID, generation)
	objs := &userObjects{
		generation: generation,
		domain:     s.endpoint.Publish(NewDomainStub(label)),
		domainLite: s.endpoint.Publish(NewDomainLiteStub(label)),
	}
	objs.session = s.endpoint.Publish(NewSessionBrokerStub(objs.domain, objs.domainLite))
	return objs
}

func (s *Server) unpublishUser(objs *userObjects) {
	s.endpoint.Unpublish(objs.session)
	s.endpoint.Unpublish(objs.domain)
	s.endpoint.Unpublish(objs.domainLite)
}

// AddUser publishes a session for userID and connects it.
func (s *Server) AddUser(ctx context.Context, userID, screenID int32) error {
	if remote.IsDefaultUser(userID) {
		return fmt.Errorf("%w: user %d is not a tenant", remote.ErrInvalidArgument, userID)
	}
	s.mu.Lock()
	if _, ok := s.users[userID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: user %d already has a session", remote.ErrInvalidArgument, userID)
	}
	objs := s.publishUser(userID, 1)
	s.users[userID] = objs
	s.mu.Unlock()

	return s.bootstrap.Connect(ctx, userID, screenID, objs.session)
}

// RestartSession replaces userID's session broker and domain services with
// new objects, as if the session process had restarted, and pushes
// ServiceRecovered.
func (s *Server) RestartSession(ctx context.Context, userID int32) error {
	s.mu.Lock()
	old, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoSession, userID)
	}
	objs := s.publishUser(userID, old.generation+1)
	s.users[userID] = objs
	s.mu.Unlock()

	s.unpublishUser(old)
	s.logger.Info("Session restarted", zap.Int32("user_id", userID), zap.Int("generation", objs.generation))
	return s.bootstrap.Recover(ctx, userID, objs.session)
}

// SessionListeners lists the session listeners registered with userID's
// current lite domain service.
func (s *Server) SessionListeners(userID int32) ([]SessionListener, error) {
	s.mu.Lock()
	objs, ok := s.users[userID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSession, userID)
	}
	return objs.domainLite.Stub().(*DomainStub).SessionListeners(), nil
}

// SwitchUser makes userID the default user.
func (s *Server) SwitchUser(ctx context.Context, userID int32) error {
	return s.bootstrap.SwitchUser(ctx, userID)
}

// Disconnect ends userID's session.
func (s *Server) Disconnect(ctx context.Context, userID int32) error {
	s.mu.Lock()
	objs, ok := s.users[userID]
	delete(s.users, userID)
	s.mu.Unlock()
	if ok {
		s.unpublishUser(objs)
	}
	return s.bootstrap.Disconnect(ctx, userID)
}
