package upload

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Evanl01/emscribe-mobile/internal/domain"
	"github.com/Evanl01/emscribe-mobile/internal/ports"
)

// Session is the slice of the session manager the pipeline needs.
type Session interface {
	AccessToken() (string, error)
	Refresh(ctx context.Context) bool
	ExtractIdentity(accessToken string) (domain.Identity, error)
}

// Pipeline moves a local artifact into the remote object store. A failed
// attempt is retried exactly once, and only after an authentication failure
// followed by a successful token refresh, so one call never issues more than
// two network attempts.
type Pipeline struct {
	store   ports.ObjectStore
	session Session
	log     zerolog.Logger
	now     func() time.Time
	suffix  func() int
}

func NewPipeline(store ports.ObjectStore, session Session, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:   store,
		session: session,
		log:     log.With().Str("component", "upload").Logger(),
		now:     time.Now,
		suffix:  func() int { return rand.Intn(100) },
	}
}

// Upload writes data under a key derived from the caller's identity and the
// original file name, and returns the remote path recorded by the store.
func (p *Pipeline) Upload(ctx context.Context, data []byte, originalName string) (string, error) {
	token, err := p.session.AccessToken()
	if err != nil || token == "" {
		return "", domain.NewFlowError(domain.ErrorCodeNoSession, "no access token available", err)
	}

	identity, err := p.session.ExtractIdentity(token)
	if err != nil {
		return "", err
	}

	key := p.destinationKey(identity, originalName)
	p.log.Debug().Str("key", key).Int("size", len(data)).Msg("uploading recording")

	remotePath, uploadErr := p.store.Upload(ctx, key, data, token)
	if uploadErr == nil {
		return remotePath, nil
	}
	if !isAuthError(uploadErr) {
		// Retrying a malformed request or a transport fault would not help.
		return "", domain.NewFlowError(domain.ErrorCodeUpload, "upload failed", uploadErr)
	}

	p.log.Info().Msg("upload rejected as unauthorized; refreshing token for one retry")
	if !p.session.Refresh(ctx) {
		return "", domain.NewFlowError(domain.ErrorCodeAuthExpired, "session expired", uploadErr)
	}

	token, err = p.session.AccessToken()
	if err != nil || token == "" {
		return "", domain.NewFlowError(domain.ErrorCodeAuthExpired, "session expired", err)
	}

	remotePath, retryErr := p.store.Upload(ctx, key, data, token)
	if retryErr != nil {
		return "", domain.NewFlowError(domain.ErrorCodeUpload, "upload failed after token refresh", retryErr)
	}
	return remotePath, nil
}

// destinationKey builds {subject}/{email}-{epochMillis}-{2-digit}.{ext}. The
// extension comes from the original file name, lower-cased, omitted if absent.
func (p *Pipeline) destinationKey(identity domain.Identity, originalName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(originalName), "."))
	name := fmt.Sprintf("%s-%d-%02d", identity.Email, p.now().UnixMilli(), p.suffix())
	if ext != "" {
		name += "." + ext
	}
	return identity.Subject + "/" + name
}

var authMessagePattern = regexp.MustCompile(`(?i)unauthorized|jwt|token|session`)

// isAuthError reports whether the failure looks like an authentication
// problem: an HTTP 401/403, or a message matching the authorization-failure
// pattern the backend uses.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	var statusErr interface{ StatusCode() int }
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode()
		if code == 401 || code == 403 {
			return true
		}
	}
	return authMessagePattern.MatchString(err.Error())
}
