package supabase

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadSendsExpectedRequest(t *testing.T) {
	t.Parallel()

	var (
		path    string
		headers http.Header
		body    []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		headers = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"Key":"audio-files/user-1/rec.m4a"}`))
	}))
	defer srv.Close()

	s := NewStorage(srv.URL, "anon-key", "audio-files", time.Second)
	remote, err := s.Upload(context.Background(), "user-1/rec.m4a", []byte("audio"), "tok")
	require.NoError(t, err)

	assert.Equal(t, "/storage/v1/object/audio-files/user-1/rec.m4a", path)
	assert.Equal(t, "Bearer tok", headers.Get("Authorization"))
	assert.Equal(t, "anon-key", headers.Get("apikey"))
	assert.Equal(t, "3600", headers.Get("Cache-Control"))
	assert.Equal(t, "false", headers.Get("x-upsert"))
	assert.Equal(t, "audio", string(body))
	assert.Equal(t, "user-1/rec.m4a", remote)
}

func TestUploadPrefersPathFromResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"path":"user-1/other.m4a"}`))
	}))
	defer srv.Close()

	s := NewStorage(srv.URL, "anon", "audio-files", time.Second)
	remote, err := s.Upload(context.Background(), "user-1/rec.m4a", nil, "tok")
	require.NoError(t, err)
	assert.Equal(t, "user-1/other.m4a", remote)
}

func TestUploadFallsBackToRequestedKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewStorage(srv.URL, "anon", "audio-files", time.Second)
	remote, err := s.Upload(context.Background(), "user-1/rec.m4a", nil, "tok")
	require.NoError(t, err)
	assert.Equal(t, "user-1/rec.m4a", remote)
}

func TestUploadUnauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid JWT"}`))
	}))
	defer srv.Close()

	s := NewStorage(srv.URL, "anon", "audio-files", time.Second)
	_, err := s.Upload(context.Background(), "user-1/rec.m4a", nil, "stale")

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.StatusCode())
	assert.Contains(t, reqErr.Error(), "invalid JWT")
}

func TestUploadDuplicateKeyRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"Duplicate","message":"The resource already exists"}`))
	}))
	defer srv.Close()

	s := NewStorage(srv.URL, "anon", "audio-files", time.Second)
	_, err := s.Upload(context.Background(), "user-1/rec.m4a", nil, "tok")

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusConflict, reqErr.StatusCode())
}
