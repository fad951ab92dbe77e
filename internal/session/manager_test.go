package session

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Evanl01/emscribe-mobile/internal/domain"
)

type fakeAPI struct {
	signInPair  domain.TokenPair
	signInErr   error
	refreshPair domain.TokenPair
	refreshErr  error
	refreshes   int
	verifyOK    bool
	verifyErr   error
	verifies    int
	signOutErr  error
	signOuts    int
}

func (f *fakeAPI) SignIn(_ context.Context, _, _ string) (domain.TokenPair, error) {
	return f.signInPair, f.signInErr
}

func (f *fakeAPI) Refresh(_ context.Context, _ string) (domain.TokenPair, error) {
	f.refreshes++
	return f.refreshPair, f.refreshErr
}

func (f *fakeAPI) Verify(_ context.Context, _ string) (bool, error) {
	f.verifies++
	return f.verifyOK, f.verifyErr
}

func (f *fakeAPI) SignOut(_ context.Context, _ string) error {
	f.signOuts++
	return f.signOutErr
}

type memStore struct {
	values map[string]string
}

func newMemStore() *memStore { return &memStore{values: map[string]string{}} }

func (s *memStore) Get(key string) (string, error)  { return s.values[key], nil }
func (s *memStore) Set(key, value string) error     { s.values[key] = value; return nil }
func (s *memStore) Delete(key string) error         { delete(s.values, key); return nil }

type statusError int

func (e statusError) Error() string   { return "request failed" }
func (e statusError) StatusCode() int { return int(e) }

func testJWT(t *testing.T, payload string) string {
	t.Helper()
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return "header." + encoded + ".signature"
}

func newTestManager(api *fakeAPI, store *memStore) *Manager {
	return NewManager(api, store, 5*time.Minute, zerolog.Nop())
}

func TestLoginStoresTokensAndEmail(t *testing.T) {
	t.Parallel()

	token := testJWT(t, `{"sub":"user-1","email":"doc@clinic.test"}`)
	api := &fakeAPI{signInPair: domain.TokenPair{
		AccessToken:  token,
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}}
	store := newMemStore()
	m := newTestManager(api, store)

	require.NoError(t, m.Login(context.Background(), "doc@clinic.test", "pw"))

	assert.Equal(t, token, store.values["access_token"])
	assert.Equal(t, "refresh-1", store.values["refresh_token"])
	assert.Equal(t, "doc@clinic.test", store.values["user_email"])
	assert.NotEmpty(t, store.values["token_expires_at"])
}

func TestLoginRejectionMapsToInvalidCredentials(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{signInErr: statusError(401)}
	m := newTestManager(api, newMemStore())

	err := m.Login(context.Background(), "doc@clinic.test", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginServerErrorIsNotInvalidCredentials(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{signInErr: statusError(503)}
	m := newTestManager(api, newMemStore())

	err := m.Login(context.Background(), "doc@clinic.test", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshReplacesBothTokens(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{refreshPair: domain.TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh"}}
	store := newMemStore()
	store.values["refresh_token"] = "old-refresh"
	m := newTestManager(api, store)

	assert.True(t, m.Refresh(context.Background()))
	assert.Equal(t, "new-access", store.values["access_token"])
	assert.Equal(t, "new-refresh", store.values["refresh_token"])
}

func TestRefreshKeepsOldRefreshTokenWhenBackendRotatesOnlyAccess(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{refreshPair: domain.TokenPair{AccessToken: "new-access"}}
	store := newMemStore()
	store.values["refresh_token"] = "old-refresh"
	m := newTestManager(api, store)

	assert.True(t, m.Refresh(context.Background()))
	assert.Equal(t, "old-refresh", store.values["refresh_token"])
}

func TestRefreshFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{refreshErr: errors.New("boom")}
	store := newMemStore()
	store.values["access_token"] = "current"
	store.values["refresh_token"] = "old-refresh"
	m := newTestManager(api, store)

	assert.False(t, m.Refresh(context.Background()))
	assert.Equal(t, "current", store.values["access_token"])
	assert.Equal(t, "old-refresh", store.values["refresh_token"])
	assert.Equal(t, 1, api.refreshes)
}

func TestRefreshWithoutStoredTokenFailsWithoutNetworkCall(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	m := newTestManager(api, newMemStore())

	assert.False(t, m.Refresh(context.Background()))
	assert.Zero(t, api.refreshes)
}

func TestVerifyLocalExpiryIsAuthoritative(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{verifyOK: true}
	store := newMemStore()
	m := newTestManager(api, store)

	// Plenty of time left: valid, no remote call.
	store.values["token_expires_at"] = time.Now().Add(time.Hour).Format(time.RFC3339)
	assert.True(t, m.Verify(context.Background(), "tok"))
	assert.Zero(t, api.verifies)

	// Inside the five minute margin: invalid, still no remote call.
	store.values["token_expires_at"] = time.Now().Add(2 * time.Minute).Format(time.RFC3339)
	assert.False(t, m.Verify(context.Background(), "tok"))
	assert.Zero(t, api.verifies)
}

func TestVerifyFallsBackToRemoteWithoutRecordedExpiry(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{verifyOK: true}
	m := newTestManager(api, newMemStore())

	assert.True(t, m.Verify(context.Background(), "tok"))
	assert.Equal(t, 1, api.verifies)
}

func TestVerifyRemoteErrorMeansInvalid(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{verifyErr: errors.New("offline")}
	m := newTestManager(api, newMemStore())

	assert.False(t, m.Verify(context.Background(), "tok"))
}

func TestExtractIdentity(t *testing.T) {
	t.Parallel()

	m := newTestManager(&fakeAPI{}, newMemStore())

	id, err := m.ExtractIdentity(testJWT(t, `{"sub":"user-1","email":"doc@clinic.test"}`))
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.Subject)
	assert.Equal(t, "doc@clinic.test", id.Email)
}

func TestExtractIdentityMalformed(t *testing.T) {
	t.Parallel()

	m := newTestManager(&fakeAPI{}, newMemStore())

	cases := []struct {
		name  string
		token string
	}{
		{"not a jwt", "just-a-string"},
		{"bad base64", "header.!!!.signature"},
		{"payload not json", "header." + base64.RawURLEncoding.EncodeToString([]byte("nope")) + ".sig"},
		{"missing claims", testJWT(t, `{"sub":"user-1"}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.ExtractIdentity(tc.token)
			require.Error(t, err)
			assert.Equal(t, domain.ErrorCodeMalformedToken, domain.CodeOf(err))
			assert.True(t, domain.RequiresLogin(err))
		})
	}
}

func TestLogoutClearsStateEvenWhenRemoteSignOutFails(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{signOutErr: errors.New("backend down")}
	store := newMemStore()
	store.values["access_token"] = "tok"
	store.values["refresh_token"] = "ref"
	store.values["token_expires_at"] = "soon"
	store.values["user_email"] = "doc@clinic.test"
	m := newTestManager(api, store)

	m.Logout(context.Background())

	assert.Equal(t, 1, api.signOuts)
	assert.Empty(t, store.values)
}
