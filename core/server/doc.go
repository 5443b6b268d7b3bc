// Package server holds the HTTP server configuration.
//
// The start command builds the Fiber application from it: listen port, API
// key for the auth middleware, timeouts, and the path of the metrics
// endpoint.
package server
