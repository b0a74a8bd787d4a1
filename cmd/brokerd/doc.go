// Command brokerd runs the reference window manager broker.
//
// It publishes the service registry, the bootstrap broker and, per user, a
// session broker with its domain services. Sessions are administered over
// the admin API; each change is pushed to the recover listeners of
// connected locators.
//
// Usage:
//
//	BROKER_USERS=100,101 ./brokerd -listen 0.0.0.0:46060 -advertise broker:46060
//
//	curl -XPOST localhost:8087/users/101/switch
//	curl -XPOST localhost:8087/users/100/restart
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
