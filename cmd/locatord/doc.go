// Command locatord keeps the window manager handles of one user resolved.
//
// It resolves the bootstrap broker through the broker's registry, walks the
// chain down to the domain service, registers a recover listener, and keeps
// the chain warm when remote processes die or restart. The admin API
// reports every locator's cache and connection state.
//
// Usage:
//
//	# Follow the default user against a local broker
//	./locatord -registry localhost:46060
//
//	# Pin user 101, lite services, development logs
//	./locatord -user 101 -lite -dev
//
// Configuration comes from LOCATOR_* environment variables; flags override
// them. See package config.
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
