// Package auth holds the dashboard credential: a bearer token from the login
// endpoint, or a legacy password hash when that endpoint is unreachable.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/u4s/turnover-cli/internal/core"
)

// Kind tags which credential a Session carries.
type Kind string

const (
	KindToken Kind = core.SessionTypeToken
	KindHash  Kind = core.SessionTypeHash
)

// Session is either a token (with an optional expiry) or a legacy hash.
// A zero ExpiresAt means the expiry is unknown.
type Session struct {
	Kind      Kind
	Token     string
	ExpiresAt time.Time
	Hash      string
}

// TokenSession returns a token session expiring at expiresAt.
func TokenSession(token string, expiresAt time.Time) Session {
	return Session{Kind: KindToken, Token: token, ExpiresAt: expiresAt}
}

// HashSession returns a legacy hash session.
func HashSession(hash string) Session {
	return Session{Kind: KindHash, Hash: hash}
}

// Valid reports whether the credential is usable at now.
func (s Session) Valid(now time.Time) bool {
	switch s.Kind {
	case KindHash:
		return s.Hash != ""
	case KindToken:
		if s.Token == "" {
			return false
		}
		return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
	}
	return false
}

// Header returns the request header carrying the credential.
func (s Session) Header() http.Header {
	h := http.Header{}
	switch s.Kind {
	case KindHash:
		h.Set(core.HashHeader, s.Hash)
	case KindToken:
		h.Set("Authorization", "Bearer "+s.Token)
	}
	return h
}

func (s Session) identity() string {
	credential := s.Token
	if s.Kind == KindHash {
		credential = s.Hash
	}
	sum := sha256.Sum256([]byte(string(s.Kind) + ":" + credential))
	return hex.EncodeToString(sum[:8])
}

// normalize trims the credential. It reports false when nothing usable is left.
func (s Session) normalize() (Session, bool) {
	switch s.Kind {
	case KindHash:
		hash := strings.ToLower(strings.TrimSpace(s.Hash))
		if hash == "" {
			return Session{}, false
		}
		return HashSession(hash), true
	case KindToken:
		token := strings.TrimSpace(s.Token)
		if token == "" {
			return Session{}, false
		}
		return TokenSession(token, s.ExpiresAt), true
	}
	return Session{}, false
}
