package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/x402zk/credential-gateway/pkg/wire"
)

// HandleHealth serves GET /health.
func (m *Middleware) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wire.HealthResponse{Status: "ok", Service: m.cfg.ServiceID})
}

// HandleStats serves GET /stats, reporting the rate limiter's live state.
func (m *Middleware) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := m.limiter.Stats()
	writeJSON(w, http.StatusOK, wire.StatsResponse{
		TotalTokens:   stats.TotalTokens,
		TotalRequests: stats.TotalRequests,
	})
}

// Mux builds a ServeMux exposing this gateway's ambient endpoints plus
// protected under the given path, wired through Protect.
func (m *Middleware) Mux(protectedPath string, handler http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", m.HandleHealth)
	mux.HandleFunc("/stats", m.HandleStats)
	mux.Handle("/metrics", promhttp.HandlerFor(m.limiter.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc(protectedPath, m.withCORS(m.Protect(handler)))
	return mux
}

// withCORS applies cfg.CORSOrigins: "*" allows any origin, otherwise only
// origins on the explicit allow-list.
func (m *Middleware) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && m.corsAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Expose-Headers", "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (m *Middleware) corsAllowed(origin string) bool {
	for _, allowed := range m.cfg.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
