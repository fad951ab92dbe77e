package emscribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignIn(t *testing.T) {
	t.Parallel()

	var captured map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "acc",
			"refresh_token": "ref",
			"expires_at":    "2026-08-28T12:00:00Z",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	pair, err := c.SignIn(context.Background(), "doc@clinic.test", "pw")
	require.NoError(t, err)

	assert.Equal(t, "sign-in", captured["action"])
	assert.Equal(t, "doc@clinic.test", captured["email"])
	assert.Equal(t, "acc", pair.AccessToken)
	assert.Equal(t, "ref", pair.RefreshToken)
	assert.Equal(t, 2026, pair.ExpiresAt.Year())
}

func TestSignInRejection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid login credentials"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.SignIn(context.Background(), "doc@clinic.test", "bad")
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode())
	assert.Contains(t, statusErr.Error(), "Invalid login credentials")
}

func TestSignInMissingTokens(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "only-one"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.SignIn(context.Background(), "doc@clinic.test", "pw")
	assert.Error(t, err)
}

func TestRefreshSendsMobilePlatform(t *testing.T) {
	t.Parallel()

	var captured map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/refresh", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"accessToken":  "new-acc",
			"refreshToken": "new-ref",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	pair, err := c.Refresh(context.Background(), "old-ref")
	require.NoError(t, err)

	assert.Equal(t, "old-ref", captured["refreshToken"])
	assert.Equal(t, "mobile", captured["platform"])
	assert.Equal(t, "new-acc", pair.AccessToken)
	assert.Equal(t, "new-ref", pair.RefreshToken)
}

func TestRefreshFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Refresh(context.Background(), "stale")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode())
}

func TestVerify(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/verify", r.URL.Path)
		if r.Header.Get("Authorization") == "Bearer good" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	ok, err := c.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Verify(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPromptLLMReturnsWholeBody(t *testing.T) {
	t.Parallel()

	body := "data: {\"status\":\"transcription complete\"}\ndata: {\"status\":\"soap note complete\"}\n"
	var captured map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prompt-llm", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	got, err := c.PromptLLM(context.Background(), "tok", "user-1/rec.m4a")
	require.NoError(t, err)

	assert.Equal(t, "user-1/rec.m4a", captured["recording_file_path"])
	assert.Equal(t, body, got)
}

func TestPromptLLMOutlivesRequestTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("data: {\"status\":\"complete\"}\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := c.PromptLLM(ctx, "tok", "user-1/rec.m4a")
	require.NoError(t, err)
	assert.Contains(t, got, "complete")

	// The short request timeout still bounds the ordinary calls.
	ok, err := c.Verify(context.Background(), "tok")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestPromptLLMHonorsContextDeadline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.PromptLLM(ctx, "tok", "user-1/rec.m4a")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPromptLLMErrorCarriesBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.PromptLLM(context.Background(), "tok", "path")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode())
	assert.Contains(t, statusErr.Error(), "upstream unavailable")
}

func TestCompleteEncounterPayloadShape(t *testing.T) {
	t.Parallel()

	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/patient-encounters/complete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	req := CompleteEncounterRequest{}
	req.PatientEncounter.Name = "Smith follow-up"
	req.Recording.RecordingFilePath = "user-1/rec.m4a"
	req.Transcript.TranscriptText = "words"
	req.SOAPNoteText.SOAPNote.Subjective = "S"
	req.SOAPNoteText.BillingSuggestion = "99213"

	c := NewClient(srv.URL, time.Second)
	require.NoError(t, c.CompleteEncounter(context.Background(), "tok", req))

	encounter := captured["patientEncounter"].(map[string]any)
	assert.Equal(t, "Smith follow-up", encounter["name"])
	recording := captured["recording"].(map[string]any)
	assert.Equal(t, "user-1/rec.m4a", recording["recording_file_path"])
	note := captured["soapNote_text"].(map[string]any)
	assert.Equal(t, "99213", note["billingSuggestion"])
	assert.Equal(t, "S", note["soapNote"].(map[string]any)["subjective"])
}

func TestCompleteEncounterFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"jwt expired"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	err := c.CompleteEncounter(context.Background(), "tok", CompleteEncounterRequest{})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode())
}

func TestReachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Even a rejection proves the network path is up.
		w.WriteHeader(http.StatusUnauthorized)
	}))
	c := NewClient(srv.URL, time.Second)
	assert.True(t, c.Reachable(context.Background()))

	srv.Close()
	assert.False(t, c.Reachable(context.Background()))
}
