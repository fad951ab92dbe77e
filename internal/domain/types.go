package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// RecordingState models the capture lifecycle.
type RecordingState string

const (
	RecordingStateIdle      RecordingState = "idle"
	RecordingStateRecording RecordingState = "recording"
	RecordingStatePaused    RecordingState = "paused"
	RecordingStateStopped   RecordingState = "stopped"
)

// StatusKind classifies processing status events. The set is closed; anything
// the backend emits that is not recognized maps to StatusUnknown and is
// surfaced for UI feedback only.
type StatusKind string

const (
	StatusRecordingSaved        StatusKind = "recording_saved"
	StatusUploading             StatusKind = "uploading"
	StatusSavingToBackend       StatusKind = "saving_to_backend"
	StatusTranscriptionStarted  StatusKind = "transcription_started"
	StatusTranscriptionComplete StatusKind = "transcription_complete"
	StatusNoteCreationStarted   StatusKind = "note_creation_started"
	StatusNoteComplete          StatusKind = "note_complete"
	StatusComplete              StatusKind = "complete"
	StatusError                 StatusKind = "error"
	StatusUnknown               StatusKind = "unknown"
)

// StatusEvent is one step of the processing flow as shown to the user. Sticky
// events stay on screen until superseded; transient ones may auto-clear.
type StatusEvent struct {
	Kind       StatusKind `json:"kind"`
	Message    string     `json:"message"`
	Sticky     bool       `json:"sticky"`
	Transcript string     `json:"transcript,omitempty"`
	Note       *Note      `json:"note,omitempty"`
}

// Note holds the generated SOAP sections plus the billing suggestion.
type Note struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
	Billing    string `json:"billing"`
}

// RecordingArtifact describes a captured or imported audio file. At most one
// artifact exists on device; a successful upload replaces the local file with a
// remote object path and flips IsLocal off.
type RecordingArtifact struct {
	LocalPath       string    `json:"localPath,omitempty"`
	RemotePath      string    `json:"remotePath,omitempty"`
	FileName        string    `json:"fileName"`
	DurationSeconds float64   `json:"durationSeconds"`
	SizeBytes       int64     `json:"sizeBytes"`
	SavedAt         time.Time `json:"savedAt"`
	UploadedAt      time.Time `json:"uploadedAt,omitempty"`
	IsLocal         bool      `json:"isLocal"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// Expired reports whether the artifact's retention window has passed.
func (a RecordingArtifact) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// EncounterDraft is the in-progress clinical note under edit.
type EncounterDraft struct {
	Name              string             `json:"name"`
	Transcript        string             `json:"transcript"`
	Subjective        string             `json:"subjective"`
	Objective         string             `json:"objective"`
	Assessment        string             `json:"assessment"`
	Plan              string             `json:"plan"`
	BillingSuggestion string             `json:"billingSuggestion"`
	Recording         *RecordingArtifact `json:"recording,omitempty"`
}

// HasData reports whether any draft field carries user-visible content.
func (d EncounterDraft) HasData() bool {
	for _, v := range []string{
		d.Name, d.Transcript, d.Subjective, d.Objective, d.Assessment, d.Plan, d.BillingSuggestion,
	} {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return d.Recording != nil
}

// MissingFields lists the fields that must be completed before the encounter
// can be committed to the backend.
func (d EncounterDraft) MissingFields() []string {
	var missing []string
	check := func(value, label string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, label)
		}
	}
	check(d.Name, "Patient Encounter Name")
	check(d.Transcript, "Transcript")
	check(d.Subjective, "Subjective")
	check(d.Objective, "Objective")
	check(d.Assessment, "Assessment")
	check(d.Plan, "Plan")
	return missing
}

// TokenPair is the stored access/refresh token set. An empty AccessToken means
// the user is not authenticated.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Identity is the claims read from an access token payload. It is used for
// storage key naming only and must never gate authorization; the backend
// authorizes every request on its own.
type Identity struct {
	Subject string
	Email   string
}

// ReplaceDecision is the outcome of asking the user what to do about an
// existing recording before saving a new one.
type ReplaceDecision int

const (
	DecisionProceed ReplaceDecision = iota
	DecisionCancel
	DecisionReplaceThenProceed
)

// FormatDuration renders seconds as m:ss for display.
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "0:00"
	}
	whole := int(seconds)
	return fmt.Sprintf("%d:%02d", whole/60, whole%60)
}
