package admin

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireAdminToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	logger := slog.New(slog.DiscardHandler)

	serve := func(expected, presented string) int {
		r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		if presented != "" {
			r.Header.Set("X-Admin-Token", presented)
		}
		w := httptest.NewRecorder()
		RequireAdminToken(expected, logger)(ok).ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, serve("", ""))
	assert.Equal(t, http.StatusNoContent, serve("secret", "secret"))
	assert.Equal(t, http.StatusUnauthorized, serve("secret", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, serve("secret", ""))
}
