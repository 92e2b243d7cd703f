// Package api implements the HTTP REST API and WebSocket server for graynotify.
//
// This package provides:
//   - REST endpoints to list sources, toggle them and trigger a Bluetooth resync
//   - a WebSocket hub streaming the sources.all and sources.enabled projections
//   - optional HS256 bearer authentication with ticket-based WebSocket auth
//   - middleware (request ID, logging, recovery, metrics, CORS, rate limiting)
//   - Prometheus exposition on /metrics
//   - an audit trail of enable/disable requests, written asynchronously
//
// # Routes
//
//	GET  /api/v1/health
//	GET  /api/v1/metrics
//	GET  /api/v1/sources[?enabled=true]
//	GET  /api/v1/sources/{address}
//	POST /api/v1/sources/{address}/toggle
//	PUT  /api/v1/sources/{address}/enabled
//	POST /api/v1/sources/sync
//	POST /api/v1/auth/ws-ticket
//	GET  /api/v1/audit[?action=&entity_id=&limit=&offset=]
//	GET  /api/v1/ws
//	GET  /metrics
//	GET  /panel/             settings page
//
// # Graceful Degradation
//
// Reads wait up to the store await timeout for a database to be open and
// answer 503 after that. Without a Syncer the sync endpoint answers 503 and
// everything else keeps working.
package api
