package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/u4s/turnover-cli/internal/api"
	"github.com/u4s/turnover-cli/internal/core"
)

var (
	ErrInvalidPassword = errors.New("неверный пароль")
	ErrNoToken         = errors.New("токен авторизации не получен")
)

// Authenticator exchanges a password for an access token.
type Authenticator interface {
	Login(ctx context.Context, password string) (api.LoginResponse, error)
}

// storedSession is the persisted slot payload. ExpiresAt is in Unix
// milliseconds, 0 when unknown.
type storedSession struct {
	Version   json.Number `json:"version"`
	Type      string      `json:"type"`
	Token     string      `json:"token"`
	ExpiresAt json.Number `json:"expiresAt"`
}

// Manager owns the current session and its storage slot.
type Manager struct {
	authenticator Authenticator
	store         Store
	now           func() time.Time
	logger        *slog.Logger

	mu      sync.RWMutex
	session Session
}

// NewManager creates a session manager. A nil store keeps nothing between
// runs; a nil clock uses time.Now.
func NewManager(authenticator Authenticator, store Store, now func() time.Time, logger *slog.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = core.DiscardLogger()
	}
	return &Manager{
		authenticator: authenticator,
		store:         store,
		now:           now,
		logger:        logger.With("component", "auth"),
	}
}

// Authenticate logs in with password. When the login endpoint cannot be
// reached at all it falls back to a legacy hash session.
func (m *Manager) Authenticate(ctx context.Context, password string) (Session, error) {
	resp, err := m.authenticator.Login(ctx, password)
	if err != nil {
		if api.IsNetworkError(err) {
			if hash := sha256Hex(password); hash != "" {
				m.logger.Warn("login endpoint unreachable, using legacy hash session", "error", err)
				return HashSession(hash), nil
			}
		}
		if api.IsAuthError(err) {
			return Session{}, ErrInvalidPassword
		}
		return Session{}, fmt.Errorf("login: %w", err)
	}

	token := strings.TrimSpace(resp.AccessToken)
	if token == "" {
		return Session{}, ErrNoToken
	}
	var expiresAt time.Time
	if secs := resp.ExpiresIn.Float(); secs > 0 {
		expiresAt = m.now().Add(time.Duration(secs * float64(time.Second)))
	}
	return TokenSession(token, expiresAt), nil
}

// Current returns the session in use.
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session, m.session.Kind != ""
}

// Set replaces the current session. Sessions without a usable credential
// clear it instead.
func (m *Manager) Set(s Session) {
	normalized, ok := s.normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	if !ok {
		m.session = Session{}
		return
	}
	m.session = normalized
}

// Clear forgets the current session and reports whether there was one.
// The storage slot is left alone.
func (m *Manager) Clear() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	had := m.session.Kind != ""
	m.session = Session{}
	return had
}

// Identity names the credential in use without revealing it, or returns ""
// without a session. Responses cached for one identity are keyed under it.
func (m *Manager) Identity() string {
	s, ok := m.Current()
	if !ok {
		return ""
	}
	return s.identity()
}

// HasValidSession reports whether the current credential is usable now.
func (m *Manager) HasValidSession() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Valid(m.now())
}

// EnsureSession guards a request about to be sent. It never errors; a false
// return means the caller must not fire the request.
func (m *Manager) EnsureSession() bool {
	return m.HasValidSession()
}

// AuthorizationHeader returns the header for the current session, or an
// empty header when there is no valid one.
func (m *Manager) AuthorizationHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.session.Valid(m.now()) {
		return http.Header{}
	}
	return m.session.Header()
}

// Persist writes s to the storage slot. Only token sessions are kept;
// anything else empties the slot.
func (m *Manager) Persist(s Session) error {
	normalized, ok := s.normalize()
	if !ok || normalized.Kind != KindToken {
		return m.ClearStored()
	}
	var expiresMs int64
	if !normalized.ExpiresAt.IsZero() {
		expiresMs = normalized.ExpiresAt.UnixMilli()
	}
	payload, err := json.Marshal(map[string]any{
		"version":   core.SessionStorageVersion,
		"type":      core.SessionTypeToken,
		"token":     normalized.Token,
		"expiresAt": expiresMs,
	})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := m.store.Save(payload); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// ReadStored returns the persisted token session. Unknown versions, corrupt
// payloads and empty or expired tokens empty the slot and read as absent.
func (m *Manager) ReadStored() (Session, bool) {
	raw, err := m.store.Load()
	if err != nil {
		m.logger.Warn("cannot read stored session", "error", err)
		m.discardStored()
		return Session{}, false
	}
	if len(raw) == 0 {
		return Session{}, false
	}

	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		m.logger.Warn("stored session is corrupt", "error", err)
		m.discardStored()
		return Session{}, false
	}

	version, _ := stored.Version.Int64()
	if version != 1 && version != core.SessionStorageVersion {
		m.logger.Debug("discarding stored session", "version", stored.Version.String())
		m.discardStored()
		return Session{}, false
	}

	token := strings.TrimSpace(stored.Token)
	if token == "" {
		m.discardStored()
		return Session{}, false
	}
	var expiresAt time.Time
	if ms, _ := stored.ExpiresAt.Float64(); ms > 0 {
		expiresAt = time.UnixMilli(int64(ms))
		if !m.now().Before(expiresAt) {
			m.discardStored()
			return Session{}, false
		}
	}
	return TokenSession(token, expiresAt), true
}

// ClearStored empties the storage slot.
func (m *Manager) ClearStored() error {
	if err := m.store.Remove(); err != nil {
		return fmt.Errorf("remove stored session: %w", err)
	}
	return nil
}

func (m *Manager) discardStored() {
	if err := m.ClearStored(); err != nil {
		m.logger.Warn("cannot clear stored session", "error", err)
	}
}

func sha256Hex(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
