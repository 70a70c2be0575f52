package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (login status push)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Console session
	mux.HandleFunc("/api/cma/session", s.app.CMAHandler.SessionHandler)   // GET - stored session present
	mux.HandleFunc("/api/cma/status", s.app.CMAHandler.StatusHandler)     // GET - login status with account name
	mux.HandleFunc("/api/cma/login", s.app.CMAHandler.LoginHandler)       // POST - start background login
	mux.HandleFunc("/api/cma/logout", s.app.CMAHandler.LogoutHandler)     // POST - cancel login and drop session
	mux.HandleFunc("/api/cma/profiles", s.app.CMAHandler.ProfilesHandler) // GET - credential profile names
	mux.HandleFunc("/api/cma/attempts", s.app.CMAHandler.AttemptsHandler) // GET - recent login attempts
	mux.HandleFunc("/api/cma/query", s.app.CMAHandler.QueryHandler)       // POST - run a registered query

	// API routes - Network
	mux.HandleFunc("/api/network/static-route/init", s.app.NetworkHandler.StaticRouteInitHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/shutdown", s.ShutdownHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
