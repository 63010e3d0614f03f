package main

import (
	"log"
	"net/http"

	httphandlers "mypace/internal/interfaces/http"
	"mypace/internal/shared/config"
	"mypace/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Push subscription lifecycle
	mux.HandleFunc("/api/push/subscribe", deps.PushHandler.HandleSubscription)
	mux.HandleFunc("/api/push/preference", deps.PushHandler.HandlePreference)

	// Notification fan-out, invoked by the notification-write path
	mux.HandleFunc("/api/push/send", deps.PushHandler.HandleSend)

	// Apply global middleware
	handler := middleware.Logging(middleware.CORS(cfg.Server.AllowedHosts)(mux))
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(handler)
	}

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
		log.Println("TLS security middleware enabled (HSTS)")
	}

	return handler
}
