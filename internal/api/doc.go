// Package api hosts the HTTP server, middleware, and REST handlers for the
// scrape service. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scrapes to submit a scrape, optionally waiting for the result.
//   - GET /v1/scrapes/{id}, /result and /logs for job state, the JSON
//     artifact, and the append-only job log.
//   - POST /v1/scrapes/{id}/assets to materialize an explicit image list.
package api
