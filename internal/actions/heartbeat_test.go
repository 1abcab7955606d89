package actions_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/noajax/internal/actions"
	"github.com/zjrosen/noajax/internal/noajax"
	"github.com/zjrosen/noajax/internal/platform"
	"github.com/zjrosen/noajax/internal/rewrite"
)

func TestHeartbeat(t *testing.T) {
	fixed := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	auth := platform.AuthenticatorFunc(func(r *http.Request) bool {
		return r.Header.Get("Authorization") != ""
	})
	host := platform.NewHost(platform.Site{BaseURL: "https://example.com"}, rewrite.NewTable(nil), platform.WithAuthenticator(auth))
	r := noajax.New(host)
	r.Register()
	actions.RegisterHeartbeat(r, func() time.Time { return fixed })
	require.NoError(t, host.Boot(t.Context()))

	tests := []struct {
		name          string
		authorization string
		want          bool
	}{
		{name: "anonymous", want: false},
		{name: "authenticated", authorization: "Bearer x", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin-no-ajax/?action=heartbeat", nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			w := httptest.NewRecorder()
			host.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, "noindex", w.Header().Get("X-Robots-Tag"))

			var resp actions.HeartbeatResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, fixed.Unix(), resp.ServerTime)
			assert.Equal(t, tt.want, resp.Authenticated)
		})
	}
}
