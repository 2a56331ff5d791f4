package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/honeynil/IdentityService/internal/config"
	"github.com/stretchr/testify/assert"
)

func corsConfig(origins ...string) config.CORSConfig {
	return config.CORSConfig{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:           600,
		AllowCredentials: true,
	}
}

func countingHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestCORS_PreflightFromAllowedOrigin(t *testing.T) {
	calls := 0
	h := CORS(corsConfig("https://app.example.com"))(countingHandler(&calls))

	r := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	r.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, calls)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Authorization, Content-Type", rr.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", rr.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_PreflightFromDisallowedOrigin(t *testing.T) {
	calls := 0
	h := CORS(corsConfig("https://app.example.com"))(countingHandler(&calls))

	r := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, calls)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_SimpleRequest(t *testing.T) {
	t.Run("disallowed origin still reaches handler", func(t *testing.T) {
		calls := 0
		h := CORS(corsConfig("https://app.example.com"))(countingHandler(&calls))
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)

		assert.Equal(t, 1, calls)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard echoes origin and exposes headers", func(t *testing.T) {
		calls := 0
		h := CORS(corsConfig("*"))(countingHandler(&calls))
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.Header.Set("Origin", "https://anything.example.com")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)

		assert.Equal(t, 1, calls)
		assert.Equal(t, "https://anything.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "X-RateLimit-Limit, X-RateLimit-Remaining", rr.Header().Get("Access-Control-Expose-Headers"))
		assert.Equal(t, "Origin", rr.Header().Get("Vary"))
	})

	t.Run("no origin header", func(t *testing.T) {
		calls := 0
		h := CORS(corsConfig("*"))(countingHandler(&calls))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, 1, calls)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})
}
