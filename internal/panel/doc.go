// Package panel serves the notification source settings page as an
// embedded asset.
//
// The page lists every source with a switch, keeps itself current over the
// sources.all WebSocket channel and flips sources through the REST API. The
// Handler serves it with SPA fallback routing: unknown paths get index.html.
package panel
