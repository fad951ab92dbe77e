package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Evanl01/emscribe-mobile/internal/domain"
	"github.com/Evanl01/emscribe-mobile/internal/ports"
	"github.com/Evanl01/emscribe-mobile/internal/providers/emscribe"
	"github.com/Evanl01/emscribe-mobile/internal/reconcile"
	"github.com/Evanl01/emscribe-mobile/internal/session"
)

// ErrNoRecording is returned when generate or commit runs without a buffered
// or uploaded recording.
var ErrNoRecording = errors.New("record or import an audio file first")

// Capturer is the recording lifecycle surface the controller drives.
type Capturer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (*ports.RecordingResult, error)
	Status() (domain.RecordingState, float64)
	Teardown()
}

// ArtifactStore is the single-slot local recording buffer.
type ArtifactStore interface {
	Save(ctx context.Context, sourceURI, originalName string, durationSeconds float64) (domain.RecordingArtifact, error)
	Delete(ctx context.Context, art domain.RecordingArtifact) error
	Current(ctx context.Context) (*domain.RecordingArtifact, error)
	Promote(ctx context.Context, art domain.RecordingArtifact, remotePath, remoteName string) (domain.RecordingArtifact, error)
	Sweep(ctx context.Context) error
	Clear(ctx context.Context) error
}

// SessionManager is the auth surface the controller needs.
type SessionManager interface {
	AccessToken() (string, error)
	IsAuthenticated(ctx context.Context) bool
	Login(ctx context.Context, email, password string) error
	Refresh(ctx context.Context) bool
	Logout(ctx context.Context)
}

// Uploader moves artifact bytes to the remote object store.
type Uploader interface {
	Upload(ctx context.Context, data []byte, originalName string) (string, error)
}

// NoteReconciler runs the submit-and-reconcile flow.
type NoteReconciler interface {
	Run(ctx context.Context, accessToken, recordingFilePath string, draft reconcile.Draft) error
}

// DraftStore persists the editable encounter draft.
type DraftStore interface {
	reconcile.Draft
	Load(ctx context.Context) (domain.EncounterDraft, error)
	Snapshot() domain.EncounterDraft
	ClearAll(ctx context.Context) error
	Flush()
}

// Connectivity exposes the advisory online flag.
type Connectivity interface {
	Online() bool
}

// Committer writes the finished encounter to the backend record store.
type Committer interface {
	CompleteEncounter(ctx context.Context, accessToken string, req emscribe.CompleteEncounterRequest) error
}

// EncounterController orchestrates the encounter flow: capture, local-first
// artifact buffering, upload promotion, note reconciliation, and commit.
type EncounterController struct {
	capture   Capturer
	artifacts ArtifactStore
	session   SessionManager
	uploader  Uploader
	notes     NoteReconciler
	drafts    DraftStore
	network   Connectivity
	committer Committer
	confirmer ports.Confirmer
	events    ports.EventSink
	log       zerolog.Logger

	maxImportBytes int64
}

func NewEncounterController(
	capture Capturer,
	artifacts ArtifactStore,
	sess SessionManager,
	uploader Uploader,
	notes NoteReconciler,
	drafts DraftStore,
	network Connectivity,
	committer Committer,
	confirmer ports.Confirmer,
	events ports.EventSink,
	maxImportBytes int64,
	log zerolog.Logger,
) *EncounterController {
	if maxImportBytes <= 0 {
		maxImportBytes = 50 * 1024 * 1024
	}
	return &EncounterController{
		capture:        capture,
		artifacts:      artifacts,
		session:        sess,
		uploader:       uploader,
		notes:          notes,
		drafts:         drafts,
		network:        network,
		committer:      committer,
		confirmer:      confirmer,
		events:         events,
		maxImportBytes: maxImportBytes,
		log:            log.With().Str("component", "encounter").Logger(),
	}
}

// Restore loads persisted state on startup: the draft, the buffered artifact,
// and an expiry sweep over stale metadata.
func (c *EncounterController) Restore(ctx context.Context) (domain.EncounterDraft, error) {
	if err := c.artifacts.Sweep(ctx); err != nil {
		c.log.Warn().Err(err).Msg("expiry sweep failed")
	}

	d, err := c.drafts.Load(ctx)
	if err != nil {
		return domain.EncounterDraft{}, err
	}
	if art, err := c.artifacts.Current(ctx); err == nil {
		d.Recording = art
	}
	return d, nil
}

// StartRecording begins device capture.
func (c *EncounterController) StartRecording(ctx context.Context) error {
	return c.capture.Start(ctx)
}

// StopRecording ends capture and buffers the result locally, asking for
// confirmation first when a recording already occupies the single slot.
func (c *EncounterController) StopRecording(ctx context.Context) (*domain.RecordingArtifact, error) {
	result, err := c.capture.Stop(ctx)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	name := fmt.Sprintf("recording_%d.m4a", time.Now().UnixMilli())
	return c.saveBuffered(ctx, result.URI, name, result.DurationSeconds)
}

// ImportFile buffers an existing audio file as the recording artifact. The
// caller supplies the duration probed by the device media API.
func (c *EncounterController) ImportFile(ctx context.Context, uri, name string, sizeBytes int64, durationSeconds float64) (*domain.RecordingArtifact, error) {
	if sizeBytes > c.maxImportBytes {
		return nil, fmt.Errorf("file is too large: select a file smaller than %d MB", c.maxImportBytes/(1024*1024))
	}
	return c.saveBuffered(ctx, uri, name, durationSeconds)
}

// saveBuffered enforces the single-slot discipline: an occupied slot requires
// an explicit replace decision before the old artifact is deleted and the new
// one saved. Save itself never overwrites.
func (c *EncounterController) saveBuffered(ctx context.Context, uri, name string, durationSeconds float64) (*domain.RecordingArtifact, error) {
	existing, err := c.artifacts.Current(ctx)
	if err != nil {
		return nil, err
	}

	switch decideReplace(existing, c.confirmer) {
	case domain.DecisionCancel:
		c.log.Info().Msg("replace declined; keeping existing recording")
		return existing, nil
	case domain.DecisionReplaceThenProceed:
		if err := c.artifacts.Delete(ctx, *existing); err != nil {
			return nil, err
		}
	}

	art, err := c.artifacts.Save(ctx, uri, name, durationSeconds)
	if err != nil {
		return nil, err
	}

	c.events.ProcessingStatus(domain.StatusEvent{
		Kind: domain.StatusRecordingSaved, Message: "Recording saved locally",
	})
	return &art, nil
}

// decideReplace is the pure decision for the occupied-slot case. The prompt
// itself is an external collaborator so the stores stay free of UI concerns.
func decideReplace(existing *domain.RecordingArtifact, confirmer ports.Confirmer) domain.ReplaceDecision {
	if existing == nil {
		return domain.DecisionProceed
	}
	decision := confirmer.ConfirmReplace("You already have a recording. Replace it with this new one?")
	if decision == domain.DecisionProceed {
		// An occupied slot can only be cancelled or replaced.
		return domain.DecisionReplaceThenProceed
	}
	return decision
}

// Generate runs the full generate-request: promote the local artifact to the
// object store if needed, submit it for processing, and reconcile the batched
// response into the draft. Upload strictly precedes submission, which strictly
// precedes reconciliation.
func (c *EncounterController) Generate(ctx context.Context) error {
	current, err := c.artifacts.Current(ctx)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrNoRecording
	}

	if !c.network.Online() {
		// Advisory gate: surface the offline notice without touching the network.
		c.events.ProcessingStatus(domain.StatusEvent{
			Kind:    domain.StatusError,
			Message: "You must be connected to the internet to generate SOAP notes.",
			Sticky:  true,
		})
		return domain.NewFlowError(domain.ErrorCodeOffline, "offline", nil)
	}

	// Stale fields from an earlier run would mix with the new note.
	if err := c.drafts.ClearAll(ctx); err != nil {
		return err
	}

	recordingPath := current.RemotePath
	if current.IsLocal {
		promoted, err := c.promote(ctx, *current)
		if err != nil {
			if domain.RequiresLogin(err) {
				c.forceLogout(ctx)
			}
			return err
		}
		recordingPath = promoted.RemotePath
	}

	token, err := c.session.AccessToken()
	if err != nil || token == "" {
		c.forceLogout(ctx)
		return domain.NewFlowError(domain.ErrorCodeNoSession, "no access token available", err)
	}

	if err := c.notes.Run(ctx, token, recordingPath, c.drafts); err != nil {
		if domain.RequiresLogin(err) {
			c.forceLogout(ctx)
		}
		return err
	}
	return nil
}

// promote uploads the buffered local file and records the remote reference.
// The local file is deleted only after the reference is durably recorded.
func (c *EncounterController) promote(ctx context.Context, art domain.RecordingArtifact) (domain.RecordingArtifact, error) {
	c.events.ProcessingStatus(domain.StatusEvent{
		Kind: domain.StatusSavingToBackend, Message: "Saving recording to database...", Sticky: true,
	})

	data, err := os.ReadFile(art.LocalPath)
	if err != nil {
		return domain.RecordingArtifact{}, domain.NewFlowError(domain.ErrorCodeStorage, "read local recording", err)
	}

	c.events.ProcessingStatus(domain.StatusEvent{
		Kind: domain.StatusUploading, Message: "Uploading recording...", Sticky: true,
	})
	remotePath, err := c.uploader.Upload(ctx, data, art.FileName)
	if err != nil {
		return domain.RecordingArtifact{}, err
	}

	remoteName := remotePath
	if i := strings.LastIndex(remotePath, "/"); i >= 0 {
		remoteName = remotePath[i+1:]
	}
	return c.artifacts.Promote(ctx, art, remotePath, remoteName)
}

// Commit validates the draft and writes the finished encounter to the backend
// record store, clearing local state on success.
func (c *EncounterController) Commit(ctx context.Context) error {
	d := c.drafts.Snapshot()
	if missing := d.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("please complete: %s", strings.Join(missing, ", "))
	}

	token, err := c.session.AccessToken()
	if err != nil || token == "" {
		return domain.NewFlowError(domain.ErrorCodeNoSession, "no access token available", err)
	}

	var recordingPath string
	if art, err := c.artifacts.Current(ctx); err == nil && art != nil {
		recordingPath = art.RemotePath
	}

	req := emscribe.CompleteEncounterRequest{}
	req.PatientEncounter.Name = d.Name
	req.Recording.RecordingFilePath = recordingPath
	req.Transcript.TranscriptText = d.Transcript
	req.SOAPNoteText.SOAPNote.Subjective = normalizeNewlines(d.Subjective)
	req.SOAPNoteText.SOAPNote.Objective = normalizeNewlines(d.Objective)
	req.SOAPNoteText.SOAPNote.Assessment = normalizeNewlines(d.Assessment)
	req.SOAPNoteText.SOAPNote.Plan = normalizeNewlines(d.Plan)
	req.SOAPNoteText.BillingSuggestion = d.BillingSuggestion

	if err := c.commitWithRetry(ctx, token, req); err != nil {
		if domain.RequiresLogin(err) {
			c.forceLogout(ctx)
		}
		return err
	}

	// Terminal success: the draft and the buffered artifact are done with.
	if err := c.drafts.ClearAll(ctx); err != nil {
		c.log.Warn().Err(err).Msg("could not clear draft after commit")
	}
	if err := c.artifacts.Clear(ctx); err != nil {
		c.log.Warn().Err(err).Msg("could not clear artifact after commit")
	}

	c.events.ProcessingStatus(domain.StatusEvent{
		Kind: domain.StatusComplete, Message: "Patient encounter saved successfully!",
	})
	return nil
}

// commitWithRetry performs the commit with the same one-shot auth-triggered
// retry discipline as the upload pipeline: at most two attempts, the second
// only after a 401 and a successful refresh.
func (c *EncounterController) commitWithRetry(ctx context.Context, token string, req emscribe.CompleteEncounterRequest) error {
	err := c.committer.CompleteEncounter(ctx, token, req)
	if err == nil {
		return nil
	}

	var statusErr interface{ StatusCode() int }
	if !errors.As(err, &statusErr) || statusErr.StatusCode() != 401 {
		return err
	}
	if !c.session.Refresh(ctx) {
		return domain.NewFlowError(domain.ErrorCodeAuthExpired, "session expired", err)
	}
	token, tokenErr := c.session.AccessToken()
	if tokenErr != nil || token == "" {
		return domain.NewFlowError(domain.ErrorCodeAuthExpired, "session expired", tokenErr)
	}
	return c.committer.CompleteEncounter(ctx, token, req)
}

// Login authenticates the user.
func (c *EncounterController) Login(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return session.ErrInvalidCredentials
	}
	return c.session.Login(ctx, email, password)
}

// Logout asks for confirmation and then clears the session and every
// dependent store, regardless of whether the remote sign-out succeeds.
func (c *EncounterController) Logout(ctx context.Context) bool {
	if !c.confirmer.Confirm("Are you sure you want to log out? Unsaved work will be discarded.") {
		return false
	}
	c.forceLogout(ctx)
	return true
}

// forceLogout is the logout cascade without the confirmation prompt, used
// when the session is already known to be unusable.
func (c *EncounterController) forceLogout(ctx context.Context) {
	c.session.Logout(ctx)
	if err := c.drafts.ClearAll(ctx); err != nil {
		c.log.Warn().Err(err).Msg("could not clear draft on logout")
	}
	if err := c.artifacts.Clear(ctx); err != nil {
		c.log.Warn().Err(err).Msg("could not clear artifacts on logout")
	}
}

// Teardown flushes pending draft writes and releases capture resources.
func (c *EncounterController) Teardown() {
	c.capture.Teardown()
	c.drafts.Flush()
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
