package obs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("all healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		healthHandler(map[string]HealthCheck{"store": ok, "scheduler": ok}).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "scheduler: ok\nstore: ok\n", rec.Body.String())
	})

	t.Run("one failing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		healthHandler(map[string]HealthCheck{"store": down, "scheduler": ok}).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "store: connection refused")
		assert.Contains(t, rec.Body.String(), "scheduler: ok")
	})
}
