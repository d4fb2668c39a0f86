package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionSignInOut(t *testing.T) {
	s := NewSession()
	assert.False(t, s.IsAuthenticated())

	var states []bool
	s.OnChange(func(ok bool) { states = append(states, ok) })

	s.SignIn(" tok ", time.Time{})
	tok, ok := s.AccessToken()
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)

	s.SignOut()
	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, []bool{true, false}, states)
}

func TestSessionExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession()
	s.nowFn = func() time.Time { return now }
	s.SignIn("tok", now.Add(time.Hour))
	assert.True(t, s.IsAuthenticated())
	now = now.Add(time.Hour)
	assert.False(t, s.IsAuthenticated())
}

func TestAlways(t *testing.T) {
	var a Authenticator = Always{}
	assert.True(t, a.IsAuthenticated())
}
