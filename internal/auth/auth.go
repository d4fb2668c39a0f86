// Package auth carries the remote-store credential state. The OAuth flow
// itself runs outside the daemon; callers hand it the resulting token.
package auth

import (
	"strings"
	"sync"
	"time"
)

// Authenticator reports whether remote operations may be attempted.
type Authenticator interface {
	IsAuthenticated() bool
	// AccessToken returns the bearer token, or false when there is none.
	AccessToken() (string, bool)
}

// Session holds a bearer token set by SignIn and cleared by SignOut. A token
// with an expiry is treated as absent once it lapses.
type Session struct {
	mu      sync.RWMutex
	token   string
	expires time.Time
	nowFn   func() time.Time
	onSign  []func(bool)
}

// NewSession returns a signed-out session.
func NewSession() *Session {
	return &Session{nowFn: time.Now}
}

// SignIn stores token. A zero expires means the token does not lapse.
func (s *Session) SignIn(token string, expires time.Time) {
	token = strings.TrimSpace(token)
	s.mu.Lock()
	s.token = token
	s.expires = expires
	hooks := append([]func(bool){}, s.onSign...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(token != "")
	}
}

// SignOut discards the token.
func (s *Session) SignOut() {
	s.mu.Lock()
	s.token = ""
	s.expires = time.Time{}
	hooks := append([]func(bool){}, s.onSign...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(false)
	}
}

// OnChange registers fn to be told the authentication state after every
// SignIn or SignOut.
func (s *Session) OnChange(fn func(authenticated bool)) {
	s.mu.Lock()
	s.onSign = append(s.onSign, fn)
	s.mu.Unlock()
}

func (s *Session) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", false
	}
	if !s.expires.IsZero() && !s.nowFn().Before(s.expires) {
		return "", false
	}
	return s.token, true
}

func (s *Session) IsAuthenticated() bool {
	_, ok := s.AccessToken()
	return ok
}

// Always is an Authenticator for remotes whose credentials live in the
// driver configuration.
type Always struct{}

func (Always) IsAuthenticated() bool       { return true }
func (Always) AccessToken() (string, bool) { return "", true }
