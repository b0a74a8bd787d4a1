package remote

import "context"

// User and screen identifiers.
const (
	InvalidUserID   int32 = -1
	SystemUserID    int32 = 0
	DefaultScreenID int32 = 0
)

// WindowManagerServiceID is the registry key of the bootstrap broker.
const WindowManagerServiceID int32 = 4606

// IsDefaultUser reports whether userID addresses the default (system) user
// rather than a specific tenant.
func IsDefaultUser(userID int32) bool {
	return userID <= SystemUserID
}

// Interface descriptors.
const (
	RegistryDescriptor          = "wm.IServiceRegistry"
	BootstrapBrokerDescriptor   = "wm.IBootstrapBroker"
	SessionBrokerDescriptor     = "wm.ISessionBroker"
	RecoverListenerDescriptor   = "wm.IRecoverListener"
	DomainServiceDescriptor     = "wm.IDomainService"
	DomainServiceLiteDescriptor = "wm.IDomainServiceLite"
	ScreenBrokerLiteDescriptor  = "wm.IScreenBrokerLite"
	SessionListenerDescriptor   = "wm.ISessionListener"
)

// RegistryObjectID is the well-known object id the registry is published
// under, so clients can address it knowing only its endpoint address.
const RegistryObjectID = "registry"

// Registry transaction codes.
const (
	CodeResolve uint32 = 1
)

// Bootstrap broker transaction codes.
const (
	CodeGetSessionBroker          uint32 = 1
	CodeGetScreenBrokerLite       uint32 = 2
	CodeRegisterRecoverListener   uint32 = 3
	CodeUnregisterRecoverListener uint32 = 4
)

// Session broker transaction codes.
const (
	CodeGetDomainProxy     uint32 = 1
	CodeGetDomainProxyLite uint32 = 2
)

// Recover listener transaction codes, pushed by the bootstrap broker.
const (
	CodeServiceRecovered  uint32 = 1
	CodeConnectionChanged uint32 = 2
)

// Domain service transaction codes. Session listeners are served by the
// lite domain service only.
const (
	CodePing                      uint32 = 1
	CodeRegisterSessionListener   uint32 = 2
	CodeUnregisterSessionListener uint32 = 3
)

// Parcel keys.
const (
	KeyServiceID     = "service_id"
	KeyObject        = "object"
	KeyUserID        = "user_id"
	KeyScreenID      = "screen_id"
	KeyConnected     = "connected"
	KeyLite          = "lite"
	KeyListener      = "listener"
	KeySessionBroker = "session_broker"
	KeyScreenBroker  = "screen_broker"
	KeyDomain        = "domain"
	KeyLabel         = "label"
	KeyRecover       = "recover"
)

// Registry resolves service ids to handles.
type Registry interface {
	// Resolve returns nil without error when nothing is registered.
	Resolve(ctx context.Context, serviceID int32) (Handle, error)
}

// BootstrapBroker is the first object a locator obtains. It vends session
// brokers and accepts recover listeners.
type BootstrapBroker interface {
	AsObject() Handle
	GetSessionBroker(ctx context.Context, userID int32) (Handle, error)
	GetScreenBrokerLite(ctx context.Context) (Handle, error)
	RegisterRecoverListener(ctx context.Context, listener Handle, userID int32, lite bool) error
	UnregisterRecoverListener(ctx context.Context, listener Handle, userID int32, lite bool) error
}

// SessionBroker vends the domain service proxies of one user session.
type SessionBroker interface {
	AsObject() Handle
	GetDomainProxy(ctx context.Context) (Handle, error)
	GetDomainProxyLite(ctx context.Context) (Handle, error)
}
