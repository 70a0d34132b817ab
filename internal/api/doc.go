// Package api hosts the HTTP server, middleware, and icon handlers. Routes:
//   - GET /?url= lists every validated icon for a page as JSON.
//   - GET /best?url= returns the single best icon as JSON.
//   - GET /icon?url= serves the best icon's bytes, consulting the cache.
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//
// Every resolution failure is a 404 with a short plain-text reason; details
// are logged, never echoed.
package api
