package auth

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const (
	CookieSessionData = "session_data"
	CookieAccessToken = "accessToken"
)

var (
	ErrNoSession      = errors.New("no session")
	ErrSessionExpired = errors.New("session expired")
)

type State int

const (
	StateEmpty State = iota
	StateLoaded
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateReady:
		return "ready"
	}
	return "empty"
}

// Session is the per-request view of the caller's credentials. It moves
// from empty to loaded when cookies are read and to ready once validated;
// only a ready session may be used against the remote API.
//
// Owner keys every piece of server-side state kept for the caller. It is a
// hash of the session token itself, so it can only be reached by presenting
// that token. Subject is whatever the token claims and is not verified here;
// it is for logs only.
type Session struct {
	Token       string
	AccessToken string
	Owner       string
	Subject     string
	ExpiresAt   time.Time
	state       State
}

func (s *Session) State() State {
	if s == nil {
		return StateEmpty
	}
	return s.state
}

func (s *Session) Ready() bool { return s.State() == StateReady }

// LoadSession reads the session cookies from r.
func LoadSession(r *http.Request) *Session {
	s := &Session{}
	if c, err := r.Cookie(CookieSessionData); err == nil {
		s.Token = strings.TrimSpace(c.Value)
	}
	if c, err := r.Cookie(CookieAccessToken); err == nil {
		s.AccessToken = strings.TrimSpace(c.Value)
	}
	if s.Token != "" {
		s.state = StateLoaded
	}
	return s
}

// Validate derives the owner, the claimed subject and the expiry and marks
// the session ready. The tokens are issued and verified by the remote API, so
// claims are read without checking the signature and only serve the expiry
// check and logging; opaque tokens are accepted as they are.
func (s *Session) Validate(now time.Time) error {
	if s.State() == StateEmpty {
		return ErrNoSession
	}

	for _, raw := range []string{s.Token, s.AccessToken} {
		if raw == "" || strings.Count(raw, ".") != 2 {
			continue
		}
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			continue
		}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			s.ExpiresAt = exp.Time
		}
		s.Subject = subjectFromClaims(claims)
		if s.Subject != "" {
			break
		}
	}

	if !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) {
		return ErrSessionExpired
	}
	s.Owner = ownerKey(s.Token)
	s.state = StateReady
	return nil
}

func subjectFromClaims(claims jwt.MapClaims) string {
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	for _, key := range []string{"user_id", "userId", "email", "id"} {
		if v, ok := claims[key]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func ownerKey(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return "tok-" + hex.EncodeToString(sum[:16])
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the ready session attached by the gate, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	if !ok || !s.Ready() {
		return nil, false
	}
	return s, true
}
