// Package http serves the admin API of the daemons.
//
// Both daemons share /health and /metrics. locatord adds read access to
// its locators and lets an operator force a resolve or a cache clear.
// brokerd adds session administration; every change made there is pushed
// to the registered recover listeners.
//
// Responses are JSON objects with a "success" field; failures add "error".
package http
