package api

import (
	"maps"
	"net/http"
	"slices"
	"strings"

	"ptscheck/handlers"

	"github.com/gorilla/mux"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// byMethod dispatches on the request method and answers 405 with an Allow
// header for anything else. Routes are registered without a mux method
// matcher: on a subrouter a later route sharing the path prefix resets the
// method mismatch and the request would end as 404.
func byMethod(routes map[string]http.HandlerFunc) http.HandlerFunc {
	allow := strings.Join(append(slices.Sorted(maps.Keys(routes)), http.MethodOptions), ", ")
	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := routes[r.Method]; ok {
			h(w, r)
			return
		}
		w.Header().Set("Allow", allow)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"method not allowed"}`))
	}
}

// Register mounts API endpoints onto the provided router. settingsHandler,
// durationsHandler and metricsHandler may be nil.
func Register(
	r *mux.Router,
	validateHandler *handlers.ValidateHandler,
	settingsHandler *handlers.SettingsHandler,
	durationsHandler *handlers.DurationsHandler,
	metricsHandler http.Handler,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	api.HandleFunc("/health", byMethod(map[string]http.HandlerFunc{
		http.MethodGet: validateHandler.Health,
	}))
	api.HandleFunc("/validate", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: validateHandler.Validate,
	}))
	api.HandleFunc("/rules", byMethod(map[string]http.HandlerFunc{
		http.MethodGet: validateHandler.GetRules,
	}))

	if settingsHandler != nil {
		api.HandleFunc("/settings", byMethod(map[string]http.HandlerFunc{
			http.MethodGet: settingsHandler.GetSettings,
			http.MethodPut: settingsHandler.PutSettings,
		}))
	}

	if durationsHandler != nil {
		api.HandleFunc("/durations", byMethod(map[string]http.HandlerFunc{
			http.MethodGet: durationsHandler.Status,
		}))
		api.HandleFunc("/durations/refresh", byMethod(map[string]http.HandlerFunc{
			http.MethodPost: durationsHandler.Refresh,
		}))
	}

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
}
