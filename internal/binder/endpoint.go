package binder

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/logging"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/monitoring"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
	"github.com/openharmony/window-window-manager-sub028/internal/shared/id"
)

// Endpoint serves the objects published by this process.
type Endpoint struct {
	addr     string
	instance string
	pool     *Pool
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	server *grpc.Server
	health *health.Server

	mu      sync.RWMutex
	objects map[string]*Local
}

// NewEndpoint creates an endpoint advertised to peers as addr. Handles that
// arrive in requests and point elsewhere are resolved through pool, which
// in turn learns to map references to this endpoint back to Local handles.
func NewEndpoint(addr string, pool *Pool, logger *zap.Logger, metrics *monitoring.Metrics) *Endpoint {
	e := &Endpoint{
		addr:     addr,
		instance: uuid.NewString(),
		pool:     pool,
		logger:   logging.OrNop(logger).Named("endpoint"),
		metrics:  metrics,
		objects:  make(map[string]*Local),
		health:   health.NewServer(),
	}

	opts := append(serverKeepalive(), grpc.ChainUnaryInterceptor(e.intercept))
	e.server = grpc.NewServer(opts...)
	e.server.RegisterService(&serviceDesc, e)
	healthpb.RegisterHealthServer(e.server, e.health)
	e.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	if pool != nil {
		pool.attach(e)
	}
	return e
}

// Address returns the advertised address.
func (e *Endpoint) Address() string { return e.addr }

// Instance returns the random id of this incarnation.
func (e *Endpoint) Instance() string { return e.instance }

// Publish makes stub reachable under a fresh object id.
func (e *Endpoint) Publish(stub remote.Stub) *Local {
	return e.PublishAs(id.NewObjectID().String(), stub)
}

// PublishAs makes stub reachable under a fixed object id, replacing any
// stub already published there.
func (e *Endpoint) PublishAs(object string, stub remote.Stub) *Local {
	l := &Local{
		ref: Ref{
			Address:    e.addr,
			Instance:   e.instance,
			Object:     object,
			Descriptor: stub.Descriptor(),
		},
		stub: stub,
	}
	e.mu.Lock()
	e.objects[object] = l
	e.mu.Unlock()

	e.logger.Debug("Published object",
		zap.String("object", object),
		zap.String("descriptor", stub.Descriptor()),
	)
	return l
}

// Unpublish removes l. Later transactions on it fail with NotFound.
func (e *Endpoint) Unpublish(l *Local) {
	e.mu.Lock()
	if e.objects[l.ref.Object] == l {
		delete(e.objects, l.ref.Object)
	}
	e.mu.Unlock()
}

func (e *Endpoint) lookup(object string) (*Local, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.objects[object]
	return l, ok
}

// lookupRef reports whether r names an object of this endpoint.
func (e *Endpoint) lookupRef(r Ref) (remote.Handle, bool) {
	if r.Address != e.addr || (r.Instance != "" && r.Instance != e.instance) {
		return nil, false
	}
	l, ok := e.lookup(r.Object)
	if !ok {
		return nil, false
	}
	return l, true
}

func (e *Endpoint) resolve(ctx context.Context, r Ref) remote.Handle {
	if h, ok := e.lookupRef(r); ok {
		return h
	}
	if e.pool == nil {
		return nil
	}
	return e.pool.resolve(ctx, r)
}

// Serve accepts connections on lis until Stop.
func (e *Endpoint) Serve(lis net.Listener) error {
	e.logger.Info("Serving objects",
		zap.String("listen", lis.Addr().String()),
		zap.String("advertise", e.addr),
		zap.String("instance", e.instance),
	)
	return e.server.Serve(lis)
}

// GracefulStop stops accepting transactions and waits for running ones.
func (e *Endpoint) GracefulStop() {
	e.health.Shutdown()
	e.server.GracefulStop()
}

// Stop closes every connection immediately. Peers observe it as death.
func (e *Endpoint) Stop() {
	e.health.Shutdown()
	e.server.Stop()
}

func (e *Endpoint) transact(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	object, err := stringField(req, keyObject)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	instance, err := stringField(req, keyInstance)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	token, err := stringField(req, keyToken)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	code, err := codeField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if instance != "" && instance != e.instance {
		return nil, status.Errorf(codes.NotFound, "stale reference to %s from instance %s", object, instance)
	}
	target, ok := e.lookup(object)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no object %s", object)
	}
	if token != target.Descriptor() {
		return nil, status.Errorf(codes.FailedPrecondition, "interface token %q does not match %q", token, target.Descriptor())
	}

	data, err := decodeParcel(ctx, req, e.resolve)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	reply, err := target.Transact(ctx, code, data)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := encodeReply(reply)
	if err != nil {
		return nil, toStatus(fmt.Errorf("encode reply: %w", err))
	}
	return out, nil
}

func (e *Endpoint) intercept(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	timer := monitoring.NewTimer(e.metrics, info.FullMethod)
	resp, err := handler(ctx, req)
	code := status.Code(err)
	timer.Stop(code.String())
	if err != nil {
		e.logger.Debug("Transaction failed",
			zap.String("method", info.FullMethod),
			zap.Stringer("code", code),
			zap.Error(err),
		)
	}
	return resp, err
}
