package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"

	"ptscheck/config"
	"ptscheck/handlers"
	"ptscheck/internal/metrics"
	"ptscheck/services/duration"
	"ptscheck/services/loader"
	"ptscheck/services/validation"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	rules, err := config.DefaultRules()
	if err != nil {
		t.Fatalf("default rules: %v", err)
	}
	l, err := loader.NewService(afero.NewMemMapFs(), "")
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	settings := config.DefaultSettings().Validation
	settings.Timezone = "UTC"
	v, err := validation.NewService(settings, rules, nil)
	if err != nil {
		t.Fatalf("validation: %v", err)
	}

	m := metrics.New()
	r := mux.NewRouter()
	Register(r,
		handlers.NewValidateHandler(l, v, rules, nil, m),
		handlers.NewSettingsHandler(config.NewManager(filepath.Join(t.TempDir(), "settings.json"))),
		handlers.NewDurationsHandler(duration.NewLive(nil), nil),
		m.Handler(),
	)
	return r
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"health", http.MethodGet, "/api/health", "", http.StatusOK},
		{"rules", http.MethodGet, "/api/rules", "", http.StatusOK},
		{"settings", http.MethodGet, "/api/settings", "", http.StatusOK},
		{"validate", http.MethodPost, "/api/validate", `<DataSet><eventCommands><DEFINE/></eventCommands></DataSet>`, http.StatusOK},
		{"validate preflight", http.MethodOptions, "/api/validate", "", http.StatusOK},
		{"validate wrong method", http.MethodGet, "/api/validate", "", http.StatusMethodNotAllowed},
		{"rules wrong method", http.MethodPost, "/api/rules", "", http.StatusMethodNotAllowed},
		{"settings wrong method", http.MethodDelete, "/api/settings", "", http.StatusMethodNotAllowed},
		{"durations preflight", http.MethodOptions, "/api/durations/refresh", "", http.StatusOK},
		{"durations", http.MethodGet, "/api/durations", "", http.StatusOK},
		{"durations refresh not configured", http.MethodPost, "/api/durations/refresh", "", http.StatusServiceUnavailable},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"unknown", http.MethodGet, "/api/nope", "", http.StatusNotFound},
	}

	r := newTestRouter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestMethodNotAllowedListsAllowedMethods(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/validate", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if got := rec.Header().Get("Allow"); got != "POST, OPTIONS" {
		t.Fatalf("expected Allow header %q, got %q", "POST, OPTIONS", got)
	}
}

func TestCORSHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected CORS header, got %q", got)
	}
}
