// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Subsystems receive a plain *zap.Logger named after themselves
// ("locator", "binder", "broker"). They accept nil and fall back to a
// no-op logger through OrNop.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	loc := locator.NewRegistry(backend, locator.VariantFull).
//		WithLogger(logger.Component("locator"))
package logging
