// Package http exposes the staff board over a JSON API routed with chi.
//
// Routes:
//   - GET /health: database liveness, never requires an API key.
//   - GET /users, GET /users/{id}, GET /users/{id}/image: the mirrored directory.
//   - GET /users/{id}/status: presence derived at request time.
//   - GET /statuses: the last stored status snapshots.
//   - GET /events, POST /events, GET|PUT|DELETE /events/{id}: department events.
//     Writes answer with the stored event and any conflict warnings.
//   - GET /occurrences, GET /occurrences.ics, GET /timeline: expanded instances
//     for a from/to window, as JSON, iCalendar or zoom-clustered blocks.
//   - POST /sync, GET /sync/latest: run the bootstrap pipeline and read its report.
//   - POST /sales, GET /sales, GET /sales/products, GET /sales/report: the counter
//     sales ledger, its search and the analysis of a day range.
//
// Everything except /health expects "Authorization: Bearer <api key>".
// Request and response DTOs live next to the handler that uses them.
package http
