// Package config provides 12-factor configuration for the locator and broker
// daemons.
//
// Configuration is loaded from environment variables with defaults. CLI
// flags in the daemons can override individual values.
//
// Configuration Sections:
//   - Locator: registry address, push endpoint, user, variant, timeouts
//   - Broker: listen/advertise addresses, admin address, users
//   - Logging: Log level and output format
//   - RateLimit: admin HTTP rate limiting
//
// Environment Variables:
//   - LOCATOR_REGISTRY_ADDR, LOCATOR_LISTEN_ADDR, LOCATOR_ADVERTISE_ADDR
//   - LOCATOR_USER_ID, LOCATOR_LITE, LOCATOR_DIAL_TIMEOUT, LOCATOR_CALL_TIMEOUT
//   - LOCATOR_REFRESH_INTERVAL, LOCATOR_HTTP_ADDR
//   - BROKER_LISTEN_ADDR, BROKER_ADVERTISE_ADDR, BROKER_ADMIN_ADDR
//   - BROKER_DEFAULT_USER_ID, BROKER_USERS
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
