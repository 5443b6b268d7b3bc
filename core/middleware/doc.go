// Package middleware contains HTTP middleware for the Fiber application.
//
// # Components
//
//   - auth: API key validation. Paths such as the metrics endpoint can be
//     exempted.
//   - rayid: a request id (ray id) per request, stored in the fiber locals
//     for logger.WithRayID and echoed in the response headers.
package middleware
