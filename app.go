package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/Evanl01/emscribe-mobile/internal/bootstrap"
	"github.com/Evanl01/emscribe-mobile/internal/config"
	"github.com/Evanl01/emscribe-mobile/internal/domain"
	"github.com/Evanl01/emscribe-mobile/internal/usecase"
)

const (
	eventRecording    = "emscribe:recording"
	eventStatus       = "emscribe:status"
	eventConnectivity = "emscribe:connectivity"
	eventAuth         = "emscribe:auth"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services bootstrap.Services
	cfg      config.Config
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, nil, nil, nil, &wailsConfirmer{app: a})
	if err != nil {
		a.bootErr = err
		a.ProcessingStatus(domain.StatusEvent{
			Kind: domain.StatusError, Message: err.Error(), Sticky: true,
		})
		return
	}

	a.services = services
	a.cfg = services.Config
	a.services.Monitor.Start(ctx)
}

func (a *App) shutdown(_ context.Context) {
	if a.services.Controller == nil {
		return
	}
	a.services.Controller.Teardown()
	a.services.Monitor.Stop()
	_ = a.services.Close()
}

// Login authenticates with the backend and stores the session tokens.
func (a *App) Login(email, password string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Controller.Login(a.ctx, email, password); err != nil {
		return err
	}
	runtime.EventsEmit(a.ctx, eventAuth, map[string]any{"authenticated": true})
	return nil
}

// Logout asks for confirmation, then clears the session and all local state.
// It reports whether the user went through with it.
func (a *App) Logout() (bool, error) {
	if err := a.requireReady(); err != nil {
		return false, err
	}
	loggedOut := a.services.Controller.Logout(a.ctx)
	if loggedOut {
		runtime.EventsEmit(a.ctx, eventAuth, map[string]any{"authenticated": false})
	}
	return loggedOut, nil
}

// IsAuthenticated verifies the stored session.
func (a *App) IsAuthenticated() bool {
	if a.requireReady() != nil {
		return false
	}
	return a.services.Session.IsAuthenticated(a.ctx)
}

// Restore loads the persisted draft and buffered recording on startup.
func (a *App) Restore() (domain.EncounterDraft, error) {
	if err := a.requireReady(); err != nil {
		return domain.EncounterDraft{}, err
	}
	return a.services.Controller.Restore(a.ctx)
}

// StartRecording begins audio capture.
func (a *App) StartRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Controller.StartRecording(a.ctx)
}

// PauseRecording pauses an active capture.
func (a *App) PauseRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Capture.Pause(a.ctx)
}

// ResumeRecording resumes a paused capture.
func (a *App) ResumeRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Capture.Resume(a.ctx)
}

// StopRecording ends capture and buffers the recording locally.
func (a *App) StopRecording() (*domain.RecordingArtifact, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Controller.StopRecording(a.ctx)
}

// ImportRecording buffers an existing audio file as the recording.
func (a *App) ImportRecording(uri, name string, sizeBytes int64, durationSeconds float64) (*domain.RecordingArtifact, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Controller.ImportFile(a.ctx, uri, name, sizeBytes, durationSeconds)
}

// GenerateNote uploads the buffered recording if needed and runs the
// transcript and SOAP note generation flow. Progress arrives over the status
// event channel; the returned error is the terminal failure, if any.
func (a *App) GenerateNote() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	err := a.services.Controller.Generate(a.ctx)
	if err != nil && domain.RequiresLogin(err) {
		runtime.EventsEmit(a.ctx, eventAuth, map[string]any{"authenticated": false})
	}
	return err
}

// CommitEncounter validates the draft and saves the complete encounter to the
// backend, clearing local state on success.
func (a *App) CommitEncounter() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	err := a.services.Controller.Commit(a.ctx)
	if err != nil && domain.RequiresLogin(err) {
		runtime.EventsEmit(a.ctx, eventAuth, map[string]any{"authenticated": false})
	}
	if errors.Is(err, usecase.ErrNoRecording) {
		return errors.New("record or import an audio file before saving")
	}
	return err
}

// GetDraft returns the current draft snapshot.
func (a *App) GetDraft() domain.EncounterDraft {
	if a.requireReady() != nil {
		return domain.EncounterDraft{}
	}
	return a.services.Drafts.Snapshot()
}

// Draft field updates. Each edit re-arms the autosave debounce.

func (a *App) SetEncounterName(v string) {
	if a.requireReady() == nil {
		a.services.Drafts.SetName(v)
	}
}

func (a *App) SetTranscript(v string) {
	if a.requireReady() == nil {
		a.services.Drafts.SetTranscript(v)
	}
}

func (a *App) SetSubjective(v string) {
	if a.requireReady() == nil {
		a.services.Drafts.SetSubjective(v)
	}
}

func (a *App) SetObjective(v string) {
	if a.requireReady() == nil {
		a.services.Drafts.SetObjective(v)
	}
}

func (a *App) SetAssessment(v string) {
	if a.requireReady() == nil {
		a.services.Drafts.SetAssessment(v)
	}
}

func (a *App) SetPlan(v string) {
	if a.requireReady() == nil {
		a.services.Drafts.SetPlan(v)
	}
}

func (a *App) SetBillingSuggestion(v string) {
	if a.requireReady() == nil {
		a.services.Drafts.SetBillingSuggestion(v)
	}
}

// IsOnline returns the advisory connectivity flag.
func (a *App) IsOnline() bool {
	if a.requireReady() != nil {
		return false
	}
	return a.services.Monitor.Online()
}

// FormatDuration renders seconds as m:ss for display.
func (a *App) FormatDuration(seconds float64) string {
	return domain.FormatDuration(seconds)
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services.Controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// RecordingStateChanged emits capture lifecycle updates to the frontend.
func (a *App) RecordingStateChanged(state domain.RecordingState, elapsedSeconds float64) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventRecording, map[string]any{
		"state":   string(state),
		"elapsed": elapsedSeconds,
		"display": domain.FormatDuration(elapsedSeconds),
	})
}

// ProcessingStatus emits generate-flow progress to the frontend.
func (a *App) ProcessingStatus(event domain.StatusEvent) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventStatus, event)
}

// ConnectivityChanged emits online/offline transitions to the frontend.
func (a *App) ConnectivityChanged(online bool) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventConnectivity, map[string]any{"online": online})
}

// wailsConfirmer routes destructive-action prompts through native dialogs.
type wailsConfirmer struct {
	app *App
}

func (c *wailsConfirmer) ConfirmReplace(message string) domain.ReplaceDecision {
	if c.app.ctx == nil {
		return domain.DecisionCancel
	}
	choice, err := runtime.MessageDialog(c.app.ctx, runtime.MessageDialogOptions{
		Type:          runtime.QuestionDialog,
		Title:         "Replace recording?",
		Message:       message,
		Buttons:       []string{"Replace", "Cancel"},
		DefaultButton: "Cancel",
	})
	if err != nil || choice != "Replace" {
		return domain.DecisionCancel
	}
	return domain.DecisionReplaceThenProceed
}

func (c *wailsConfirmer) Confirm(message string) bool {
	if c.app.ctx == nil {
		return false
	}
	choice, err := runtime.MessageDialog(c.app.ctx, runtime.MessageDialogOptions{
		Type:          runtime.QuestionDialog,
		Title:         "Confirm",
		Message:       message,
		Buttons:       []string{"Yes", "No"},
		DefaultButton: "No",
	})
	return err == nil && choice == "Yes"
}
