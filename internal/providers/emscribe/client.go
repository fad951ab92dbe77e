package emscribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Evanl01/emscribe-mobile/internal/domain"
)

// Client talks to the emscribe backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	llmClient  *http.Client
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server error: %d", e.Code)
	}
	return fmt.Sprintf("server error: %d: %s", e.Code, e.Body)
}

// StatusCode returns the HTTP status of the failed request.
func (e *StatusError) StatusCode() int { return e.Code }

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		// Transcription and note generation run for minutes. That call is
		// bounded by the caller's context, never by the request timeout.
		llmClient: &http.Client{},
	}
}

type signInRequest struct {
	Action   string `json:"action"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
	Error        string `json:"error"`
}

// SignIn exchanges credentials for a token pair.
func (c *Client) SignIn(ctx context.Context, email, password string) (domain.TokenPair, error) {
	var out signInResponse
	status, err := c.doJSON(ctx, http.MethodPost, "/auth", "", signInRequest{
		Action: "sign-in", Email: email, Password: password,
	}, &out)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if status != http.StatusOK {
		if out.Error != "" {
			return domain.TokenPair{}, &StatusError{Code: status, Body: out.Error}
		}
		return domain.TokenPair{}, &StatusError{Code: status}
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return domain.TokenPair{}, fmt.Errorf("invalid response: missing tokens")
	}

	pair := domain.TokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}
	if out.ExpiresAt != "" {
		if ts, err := time.Parse(time.RFC3339, out.ExpiresAt); err == nil {
			pair.ExpiresAt = ts
		}
	}
	return pair, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	Platform     string `json:"platform"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Refresh exchanges the refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	var out refreshResponse
	status, err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", "", refreshRequest{
		RefreshToken: refreshToken, Platform: "mobile",
	}, &out)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if status != http.StatusOK {
		return domain.TokenPair{}, &StatusError{Code: status}
	}
	if out.AccessToken == "" {
		return domain.TokenPair{}, fmt.Errorf("no access token in refresh response")
	}
	return domain.TokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}, nil
}

// Verify asks the backend whether the token is still good.
func (c *Client) Verify(ctx context.Context, accessToken string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/verify", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

type signOutRequest struct {
	Action string `json:"action"`
}

// SignOut tells the backend to invalidate the session. Best-effort; callers
// clear local state regardless of the outcome.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	var out json.RawMessage
	status, err := c.doJSON(ctx, http.MethodPost, "/auth", accessToken, signOutRequest{Action: "sign-out"}, &out)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &StatusError{Code: status}
	}
	return nil
}

type promptRequest struct {
	RecordingFilePath string `json:"recording_file_path"`
}

// PromptLLM submits the remote recording reference for transcription and note
// generation. The response body is a batched pseudo-stream of newline-separated
// JSON records; it is returned whole for the reconciler to decode.
func (c *Client) PromptLLM(ctx context.Context, accessToken, recordingFilePath string) (string, error) {
	payload, err := json.Marshal(promptRequest{RecordingFilePath: recordingFilePath})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt-llm", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.llmClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return string(body), nil
}

// CompleteEncounterRequest is the commit payload shape the backend expects.
type CompleteEncounterRequest struct {
	PatientEncounter struct {
		Name string `json:"name"`
	} `json:"patientEncounter"`
	Recording struct {
		RecordingFilePath string `json:"recording_file_path"`
	} `json:"recording"`
	Transcript struct {
		TranscriptText string `json:"transcript_text"`
	} `json:"transcript"`
	SOAPNoteText struct {
		SOAPNote struct {
			Subjective string `json:"subjective"`
			Objective  string `json:"objective"`
			Assessment string `json:"assessment"`
			Plan       string `json:"plan"`
		} `json:"soapNote"`
		BillingSuggestion string `json:"billingSuggestion"`
	} `json:"soapNote_text"`
}

// CompleteEncounter commits the finished encounter to the record store. Any
// 2xx status is success regardless of body shape.
func (c *Client) CompleteEncounter(ctx context.Context, accessToken string, req CompleteEncounterRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/patient-encounters/complete", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}

// Reachable probes the API host for the advisory connectivity flag.
func (c *Client) Reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/auth/verify", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	// Any response at all means the network path is up.
	return true
}

func (c *Client) doJSON(ctx context.Context, method, path, accessToken string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil && len(raw) > 0 {
		// Error pages are not always JSON; leave out untouched in that case.
		_ = json.Unmarshal(raw, out)
	}
	return resp.StatusCode, nil
}
