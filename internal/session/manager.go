package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Evanl01/emscribe-mobile/internal/domain"
	"github.com/Evanl01/emscribe-mobile/internal/ports"
)

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyExpiresAt    = "token_expires_at"
	keyUserEmail    = "user_email"
)

// ErrInvalidCredentials is returned when the backend rejects a sign-in.
var ErrInvalidCredentials = errors.New("invalid email or password")

// API is the auth surface of the backend the manager talks to.
type API interface {
	SignIn(ctx context.Context, email, password string) (domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error)
	Verify(ctx context.Context, accessToken string) (bool, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Manager owns the access/refresh token pair. Tokens live in the secure store;
// the manager never caches them in memory so concurrent readers always see the
// stored pair.
type Manager struct {
	api    API
	store  ports.SecureStore
	margin time.Duration
	log    zerolog.Logger
	now    func() time.Time

	// refreshMu serializes refreshes so two auth-triggered retries cannot
	// race each other into the backend.
	refreshMu sync.Mutex
}

// NewManager creates a session manager. margin is how close to expiry a token
// is still considered locally valid.
func NewManager(api API, store ports.SecureStore, margin time.Duration, log zerolog.Logger) *Manager {
	if margin <= 0 {
		margin = 5 * time.Minute
	}
	return &Manager{
		api:    api,
		store:  store,
		margin: margin,
		log:    log.With().Str("component", "session").Logger(),
		now:    time.Now,
	}
}

// AccessToken returns the stored access token, or "" when unauthenticated.
func (m *Manager) AccessToken() (string, error) {
	return m.store.Get(keyAccessToken)
}

// IsAuthenticated reports whether a usable session exists.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	token, err := m.AccessToken()
	if err != nil || token == "" {
		return false
	}
	return m.Verify(ctx, token)
}

// Login authenticates and stores the resulting token pair.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	pair, err := m.api.SignIn(ctx, email, password)
	if err != nil {
		var statusErr interface{ StatusCode() int }
		if errors.As(err, &statusErr) && statusErr.StatusCode() < 500 {
			return ErrInvalidCredentials
		}
		return err
	}
	if err := m.storeTokens(pair); err != nil {
		return err
	}
	if id, err := m.ExtractIdentity(pair.AccessToken); err == nil {
		_ = m.store.Set(keyUserEmail, id.Email)
	}
	m.log.Info().Msg("signed in")
	return nil
}

// Refresh exchanges the stored refresh token for a new pair. On success both
// tokens are replaced atomically; on failure stored state is left untouched
// and false is returned. Refresh never retries itself; a failed refresh is
// terminal for the call chain and the caller must force re-login.
func (m *Manager) Refresh(ctx context.Context) bool {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	refreshToken, err := m.store.Get(keyRefreshToken)
	if err != nil || refreshToken == "" {
		return false
	}

	pair, err := m.api.Refresh(ctx, refreshToken)
	if err != nil {
		m.log.Warn().Err(err).Msg("token refresh failed")
		return false
	}
	if pair.RefreshToken == "" {
		// Some backends rotate only the access token.
		pair.RefreshToken = refreshToken
	}
	if err := m.storeTokens(pair); err != nil {
		m.log.Error().Err(err).Msg("could not store refreshed tokens")
		return false
	}
	m.log.Debug().Msg("tokens refreshed")
	return true
}

// Verify reports whether the token is usable. The local expiry check is
// authoritative when an expiry is recorded; only an ambiguous local result
// (no recorded expiry) falls through to the remote check.
func (m *Manager) Verify(ctx context.Context, accessToken string) bool {
	if accessToken == "" {
		return false
	}

	stored, err := m.store.Get(keyExpiresAt)
	if err == nil && stored != "" {
		expiry, parseErr := time.Parse(time.RFC3339, stored)
		if parseErr == nil {
			return expiry.Sub(m.now()) >= m.margin
		}
	}

	ok, err := m.api.Verify(ctx, accessToken)
	if err != nil {
		m.log.Warn().Err(err).Msg("remote token verification failed")
		return false
	}
	return ok
}

// ExtractIdentity decodes the token payload without verifying its signature.
// The claims are only read for storage key naming; authorization remains a
// server-side decision on every request.
func (m *Manager) ExtractIdentity(accessToken string) (domain.Identity, error) {
	parts := strings.Split(accessToken, ".")
	if len(parts) != 3 {
		return domain.Identity{}, domain.NewFlowError(domain.ErrorCodeMalformedToken, "token is not a JWT", nil)
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return domain.Identity{}, domain.NewFlowError(domain.ErrorCodeMalformedToken, "token payload is not base64url", err)
	}

	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return domain.Identity{}, domain.NewFlowError(domain.ErrorCodeMalformedToken, "token payload is not JSON", err)
	}
	if claims.Sub == "" || claims.Email == "" {
		return domain.Identity{}, domain.NewFlowError(domain.ErrorCodeMalformedToken, "token payload is missing sub or email", nil)
	}
	return domain.Identity{Subject: claims.Sub, Email: claims.Email}, nil
}

// Logout invalidates the remote session best-effort and always clears the
// stored tokens and identity.
func (m *Manager) Logout(ctx context.Context) {
	if token, err := m.AccessToken(); err == nil && token != "" {
		if err := m.api.SignOut(ctx, token); err != nil {
			m.log.Warn().Err(err).Msg("remote sign-out failed; clearing local session anyway")
		}
	}
	m.clear()
	m.log.Info().Msg("signed out")
}

func (m *Manager) storeTokens(pair domain.TokenPair) error {
	if err := m.store.Set(keyAccessToken, pair.AccessToken); err != nil {
		return err
	}
	if pair.RefreshToken != "" {
		if err := m.store.Set(keyRefreshToken, pair.RefreshToken); err != nil {
			return err
		}
	}
	if !pair.ExpiresAt.IsZero() {
		return m.store.Set(keyExpiresAt, pair.ExpiresAt.Format(time.RFC3339))
	}
	return m.store.Delete(keyExpiresAt)
}

func (m *Manager) clear() {
	for _, key := range []string{keyAccessToken, keyRefreshToken, keyExpiresAt, keyUserEmail} {
		_ = m.store.Delete(key)
	}
}
