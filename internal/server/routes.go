// Package server wires HTTP handlers into a ServeMux for the chat service via
// routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// It sets up the WebSocket endpoint, health check, and room read API.
func SetupRoutes(ws http.Handler, api *RoomAPI) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	mux.HandleFunc("GET /api/health", HealthHandler)
	mux.HandleFunc("GET /api/rooms/{roomId}/history", api.History)
	mux.HandleFunc("GET /api/rooms/{roomId}/users", api.Members)
	mux.HandleFunc("GET /api/rooms/{roomId}/activity", api.Activity)
	return mux
}
