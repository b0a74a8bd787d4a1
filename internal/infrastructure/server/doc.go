// Package server assembles the locatord and brokerd daemons from
// configuration: logger, metrics, binder endpoint and pool, and the admin
// HTTP API.
//
// Each daemon listens twice. The binder endpoint serves published objects
// to peers; the admin server serves /health, /metrics and the daemon's own
// routes. Run blocks until its context is cancelled, then shuts both down
// and closes outbound connections.
package server
