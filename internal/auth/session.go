// Package auth decides whether an inbound request belongs to a signed-in
// user. Sessions are opaque tokens carried in a cookie or a bearer header.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/zjrosen/noajax/internal/log"
)

// DefaultCookieName is the cookie holding the session token.
const DefaultCookieName = "noajax_session"

// DefaultTTL is how long issued sessions stay valid.
const DefaultTTL = 24 * time.Hour

// Session is what a token resolves to.
type Session struct {
	User      string
	IssuedAt  time.Time
	Permanent bool
}

// Store is an in-memory session store. Issued sessions expire after the
// configured TTL; seeded sessions never expire.
type Store struct {
	cookie   string
	ttl      time.Duration
	sessions *cache.Cache
}

// NewStore creates a store. cookie defaults to DefaultCookieName and ttl to
// DefaultTTL when zero.
func NewStore(cookie string, ttl time.Duration) *Store {
	if cookie == "" {
		cookie = DefaultCookieName
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		cookie:   cookie,
		ttl:      ttl,
		sessions: cache.New(ttl, ttl/2),
	}
}

// CookieName returns the session cookie name.
func (s *Store) CookieName() string { return s.cookie }

// TTL is how long issued sessions live.
func (s *Store) TTL() time.Duration { return s.ttl }

// Issue creates a session for user and returns its token.
func (s *Store) Issue(user string) string {
	token := uuid.NewString()
	s.sessions.Set(token, Session{User: user, IssuedAt: time.Now()}, cache.DefaultExpiration)
	log.Debug(log.CatAuth, "issued session", "user", user)
	return token
}

// Seed registers a fixed, non-expiring token for user.
func (s *Store) Seed(token, user string) {
	if token == "" {
		return
	}
	s.sessions.Set(token, Session{User: user, IssuedAt: time.Now(), Permanent: true}, cache.NoExpiration)
}

// Revoke ends a session.
func (s *Store) Revoke(token string) {
	s.sessions.Delete(token)
}

// Lookup resolves a token.
func (s *Store) Lookup(token string) (Session, bool) {
	if token == "" {
		return Session{}, false
	}
	v, ok := s.sessions.Get(token)
	if !ok {
		return Session{}, false
	}
	sess, ok := v.(Session)
	return sess, ok
}

// Token extracts the session token from r: the session cookie first, then
// an "Authorization: Bearer" header.
func (s *Store) Token(r *http.Request) string {
	if c, err := r.Cookie(s.cookie); err == nil && c.Value != "" {
		return c.Value
	}
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// Authenticated reports whether r carries a live session.
func (s *Store) Authenticated(r *http.Request) bool {
	_, ok := s.Lookup(s.Token(r))
	return ok
}
