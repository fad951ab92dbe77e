package ports

import (
	"context"

	"github.com/Evanl01/emscribe-mobile/internal/domain"
)

// RecordingResult is what the device hands back when capture stops.
type RecordingResult struct {
	URI             string
	DurationSeconds float64
}

// RecorderStatus is a point-in-time snapshot of the device recorder.
type RecorderStatus struct {
	Recording       bool
	Paused          bool
	DurationSeconds float64
}

// AudioRecorder is the device capture API. Implementations own the native
// recording handle; the capture controller owns lifecycle and policy.
type AudioRecorder interface {
	RequestPermission(ctx context.Context) (bool, error)
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) (RecordingResult, error)
	Status(ctx context.Context) (RecorderStatus, error)
}

// WakeLock keeps the device display awake while held. Release must be safe to
// call more than once.
type WakeLock interface {
	Acquire()
	Release()
}

// SecureStore is the on-device secure key/value primitive used for tokens.
// Get returns "" with a nil error when the key is absent.
type SecureStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Confirmer asks the user before destructive actions. It lives outside the
// stores so business logic stays free of UI concerns.
type Confirmer interface {
	ConfirmReplace(message string) domain.ReplaceDecision
	Confirm(message string) bool
}

// ObjectStore uploads artifact bytes to the remote object storage bucket.
// Existing keys are never overwritten.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, accessToken string) (remotePath string, err error)
}

// EventSink pushes backend state to the UI layer.
type EventSink interface {
	RecordingStateChanged(state domain.RecordingState, elapsedSeconds float64)
	ProcessingStatus(event domain.StatusEvent)
	ConnectivityChanged(online bool)
}
