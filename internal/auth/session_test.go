package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/noajax/internal/platform"
)

var _ platform.Authenticator = (*Store)(nil)

func TestStore_Defaults(t *testing.T) {
	s := NewStore("", 0)
	assert.Equal(t, DefaultCookieName, s.CookieName())
	assert.Equal(t, DefaultTTL, s.TTL())
}

func TestStore_IssueAndLookup(t *testing.T) {
	s := NewStore("", time.Hour)
	token := s.Issue("alice")

	sess, ok := s.Lookup(token)
	require.True(t, ok)
	assert.Equal(t, "alice", sess.User)
	assert.False(t, sess.Permanent)

	s.Revoke(token)
	_, ok = s.Lookup(token)
	assert.False(t, ok)
}

func TestStore_Expiry(t *testing.T) {
	s := NewStore("", 20*time.Millisecond)
	token := s.Issue("bob")

	require.Eventually(t, func() bool {
		_, ok := s.Lookup(token)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestStore_SeedNeverExpires(t *testing.T) {
	s := NewStore("", 10*time.Millisecond)
	s.Seed("static-token", "deploy-bot")
	s.Seed("", "ignored")

	time.Sleep(30 * time.Millisecond)
	sess, ok := s.Lookup("static-token")
	require.True(t, ok)
	assert.True(t, sess.Permanent)

	_, ok = s.Lookup("")
	assert.False(t, ok)
}

func TestStore_Authenticated(t *testing.T) {
	s := NewStore("sid", time.Hour)
	token := s.Issue("carol")

	tests := []struct {
		name string
		req  func() *http.Request
		want bool
	}{
		{
			name: "no credentials",
			req:  func() *http.Request { return httptest.NewRequest(http.MethodGet, "/", nil) },
			want: false,
		},
		{
			name: "session cookie",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.AddCookie(&http.Cookie{Name: "sid", Value: token})
				return r
			},
			want: true,
		},
		{
			name: "bearer header",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("Authorization", "bearer "+token)
				return r
			},
			want: true,
		},
		{
			name: "unknown token",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.AddCookie(&http.Cookie{Name: "sid", Value: "forged"})
				return r
			},
			want: false,
		},
		{
			name: "wrong cookie name",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})
				return r
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Authenticated(tt.req()))
		})
	}
}
