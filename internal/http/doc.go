// Package http exposes a read-only status API over the sync engine's store.
//
// The router serves:
//   - GET /healthz: {"status":"ok"}, or 503 with {"status":"unavailable"}
//     when the database cannot be reached.
//   - GET /devices[?branch_id=N]: one `deviceDTO` per registered device with its
//     connection state, latest sync outcome and latest status snapshot.
//   - GET /devices/{id}: the registry row of one device with the number of
//     punches stored for it, as `deviceDetailDTO`.
//   - GET /devices/{id}/sync-logs[?limit=N]: the device's sync outcomes, newest
//     first, as `syncLogDTO` values. limit defaults to 20 and is capped at 500.
//
// When a status token is configured every route except /healthz requires
// `Authorization: Bearer <token>`.
package http
