// Package api provides the HTTP server for Beacon Notify.
//
// It exposes the realtime WebSocket endpoint together with health and
// metrics endpoints for operators:
//
//	GET /api/v1/health   liveness plus dependency checks
//	GET /api/v1/metrics  connection, session, runtime and pool statistics
//	GET /api/v1/ws       WebSocket upgrade (Bearer header or ?token=)
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
