package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Storage uploads artifact bytes into one fixed Supabase storage bucket.
type Storage struct {
	baseURL    string
	anonKey    string
	bucket     string
	httpClient *http.Client
}

// RequestError is a failed storage request carrying the HTTP status so callers
// can distinguish authentication failures from other upload errors.
type RequestError struct {
	Code    int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("storage request failed: %d", e.Code)
	}
	return fmt.Sprintf("storage request failed: %d: %s", e.Code, e.Message)
}

// StatusCode returns the HTTP status of the failed request.
func (e *RequestError) StatusCode() int { return e.Code }

func NewStorage(baseURL, anonKey, bucket string, timeout time.Duration) *Storage {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Storage{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		bucket:     bucket,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	Key     string `json:"Key"`
	Path    string `json:"path"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Upload writes data under key in the bucket. Existing keys are never
// overwritten; the backend rejects duplicates because upsert is disabled.
func (s *Storage) Upload(ctx context.Context, key string, data []byte, accessToken string) (string, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Cache-Control", "3600")
	req.Header.Set("x-upsert", "false")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var out uploadResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Message
		if msg == "" {
			msg = out.Error
		}
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", &RequestError{Code: resp.StatusCode, Message: msg}
	}

	if out.Path != "" {
		return out.Path, nil
	}
	if out.Key != "" {
		return strings.TrimPrefix(out.Key, s.bucket+"/"), nil
	}
	return key, nil
}
