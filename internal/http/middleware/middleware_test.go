package middleware_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/stock-ledger/internal/http/metric"
	"github.com/tuanvumaihuynh/stock-ledger/internal/http/middleware"
	"github.com/tuanvumaihuynh/stock-ledger/pkg/correlationid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestCorrelationID(t *testing.T) {
	var seen string
	h := middleware.CorrelationID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = correlationid.FromContext(r.Context())
	}))

	t.Run("propagates incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(correlationid.Header, "abc-123")
		resp := httptest.NewRecorder()

		h.ServeHTTP(resp, req)

		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", resp.Header().Get(correlationid.Header))
	})

	t.Run("generates id when absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		resp := httptest.NewRecorder()

		h.ServeHTTP(resp, req)

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, resp.Header().Get(correlationid.Header))
	})
}

func TestRecoverer(t *testing.T) {
	h := middleware.Recoverer(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()

	require.NotPanics(t, func() { h.ServeHTTP(resp, req) })
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.JSONEq(t, `{"error":"Internal server error","code":"INTERNAL_SERVER_ERROR"}`, resp.Body.String())
}

func TestMetrics(t *testing.T) {
	m := metric.NewWithRegisterer(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(middleware.Metrics(m))
	r.Get("/api/products", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/api/products", "200")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.InflightRequests), 0)
}

const testSpec = `
openapi: 3.0.3
info:
  title: test
  version: 1.0.0
paths:
  /api/borrow:
    post:
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [quantity]
              properties:
                quantity:
                  type: integer
                  minimum: 1
      responses:
        "201":
          description: created
`

func TestOpenAPIValidator(t *testing.T) {
	var gotErr error
	mw, err := middleware.OpenAPIValidator([]byte(testSpec), func(w http.ResponseWriter, _ *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusBadRequest)
	})
	require.NoError(t, err)

	var body map[string]any
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the validator must leave the body readable
		body = nil
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
	}))

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{name: "valid body", method: http.MethodPost, path: "/api/borrow", body: `{"quantity":2}`, wantStatus: http.StatusCreated},
		{name: "below minimum", method: http.MethodPost, path: "/api/borrow", body: `{"quantity":0}`, wantStatus: http.StatusBadRequest},
		{name: "missing property", method: http.MethodPost, path: "/api/borrow", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "wrong type", method: http.MethodPost, path: "/api/borrow", body: `{"quantity":"two"}`, wantStatus: http.StatusBadRequest},
		{name: "undocumented path passes", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotErr = nil
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp := httptest.NewRecorder()

			h.ServeHTTP(resp, req)

			assert.Equal(t, tt.wantStatus, resp.Code)
			if tt.wantStatus == http.StatusBadRequest {
				assert.Error(t, gotErr)
			} else {
				assert.NoError(t, gotErr)
			}
		})
	}

	t.Run("body still readable after validation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/borrow", strings.NewReader(`{"quantity":3}`))
		req.Header.Set("Content-Type", "application/json")
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.InDelta(t, 3, body["quantity"], 0)
	})
}

func TestOpenAPIValidatorRejectsInvalidDocument(t *testing.T) {
	_, err := middleware.OpenAPIValidator([]byte("not: [valid"), nil)
	assert.Error(t, err)
}
