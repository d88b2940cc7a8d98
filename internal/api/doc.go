// Package api provides the HTTP REST API and WebSocket server for Barnabee.
//
// It exposes the function-execution surface to the conversation layer:
// function specs for the model's tool list, invocation and status-query
// endpoints, the entity registry, and real-time core events over
// WebSocket.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Endpoints
//
//	POST /api/v1/auth/login         - obtain a JWT (no auth)
//	GET  /api/v1/health             - liveness probe (no auth)
//	GET  /api/v1/functions          - model-facing function specs
//	POST /api/v1/invoke             - execute one catalog function
//	POST /api/v1/status-query       - free-text device status question
//	GET  /api/v1/entities           - list entities
//	PUT  /api/v1/entities/{id}/exposure - flip conversation visibility
//	GET  /api/v1/automations        - list stored automations
//	POST /api/v1/auth/ws-ticket     - single-use WebSocket ticket
//	GET  /api/v1/ws                 - event stream (ticket auth)
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
