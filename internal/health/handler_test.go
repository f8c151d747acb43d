package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"student-records/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	healthy := PingerFunc(func(context.Context) error { return nil })
	down := PingerFunc(func(context.Context) error { return errors.New("connection refused") })

	serve := func(h *Handler, path string) (*httptest.ResponseRecorder, Response) {
		router := chi.NewRouter()
		h.RegisterRoutes(router)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		var resp Response
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		return w, resp
	}

	t.Run("Health", func(t *testing.T) {
		w, resp := serve(NewHandler(map[string]Pinger{"database": down}, metrics.NewMock()), "/health")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", resp.Status)
	})

	t.Run("Ready", func(t *testing.T) {
		w, resp := serve(NewHandler(map[string]Pinger{"database": healthy}, metrics.NewMock()), "/ready")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ready", resp.Status)
		assert.Equal(t, "ok", resp.Checks["database"])
	})

	t.Run("NotReady", func(t *testing.T) {
		w, resp := serve(NewHandler(map[string]Pinger{"database": healthy, "cache": down}, nil), "/ready")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "unavailable", resp.Status)
		assert.Equal(t, "connection refused", resp.Checks["cache"])
	})
}
