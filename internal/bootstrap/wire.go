package bootstrap

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/Evanl01/emscribe-mobile/internal/artifact"
	"github.com/Evanl01/emscribe-mobile/internal/audio"
	"github.com/Evanl01/emscribe-mobile/internal/capture"
	"github.com/Evanl01/emscribe-mobile/internal/config"
	"github.com/Evanl01/emscribe-mobile/internal/connectivity"
	"github.com/Evanl01/emscribe-mobile/internal/draft"
	"github.com/Evanl01/emscribe-mobile/internal/ports"
	"github.com/Evanl01/emscribe-mobile/internal/providers/emscribe"
	"github.com/Evanl01/emscribe-mobile/internal/providers/supabase"
	"github.com/Evanl01/emscribe-mobile/internal/reconcile"
	"github.com/Evanl01/emscribe-mobile/internal/session"
	"github.com/Evanl01/emscribe-mobile/internal/storage"
	"github.com/Evanl01/emscribe-mobile/internal/upload"
	"github.com/Evanl01/emscribe-mobile/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.EncounterController
	Capture    *capture.Controller
	Session    *session.Manager
	Drafts     *draft.Store
	Artifacts  *artifact.Store
	Monitor    *connectivity.Monitor
	Config     config.Config

	db *sql.DB
}

// Close releases the resources held by the graph.
func (s Services) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Build wires all backend dependencies for the current runtime. The device
// collaborators come in as ports so each platform shell supplies its own; a
// nil secure store, recorder, or wake lock gets the desktop default.
func Build(
	events ports.EventSink,
	secure ports.SecureStore,
	recorder ports.AudioRecorder,
	wake ports.WakeLock,
	confirmer ports.Confirmer,
) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	log := newLogger()

	db, err := storage.Open(filepath.Join(cfg.Local.DataDir, "emscribe.db"))
	if err != nil {
		return Services{}, err
	}

	if secure == nil {
		secure, err = storage.NewFileSecureStore(filepath.Join(cfg.Local.DataDir, "secure.json"))
		if err != nil {
			_ = db.Close()
			return Services{}, err
		}
	}
	if recorder == nil {
		recorder = audio.NewRecorder(
			cfg.Recording.Command,
			cfg.Recording.InputFormat,
			cfg.Recording.InputDevice,
			filepath.Join(cfg.Local.DataDir, "captures"),
		)
	}
	if wake == nil {
		wake = noopWakeLock{}
	}

	api := emscribe.NewClient(cfg.API.BaseURL, cfg.API.RequestTimeout)
	objects := supabase.NewStorage(cfg.Storage.URL, cfg.Storage.AnonKey, cfg.Storage.Bucket, cfg.Storage.UploadTimeout)

	sess := session.NewManager(api, secure, cfg.API.RefreshMargin, log)
	artifacts := artifact.NewStore(db, filepath.Join(cfg.Local.DataDir, "recordings"), cfg.Draft.RetentionDays, log)
	drafts := draft.NewStore(db, cfg.Draft.AutosaveDebounce, log)
	uploader := upload.NewPipeline(objects, sess, log)
	notes := reconcile.NewReconciler(api, events, cfg.API.GenerateTimeout, cfg.API.NoteProgressDelay, log)
	monitor := connectivity.NewMonitor(api, events, cfg.API.ProbeInterval, log)
	capturer := capture.NewController(recorder, wake, events, cfg.Recording.Ceiling, cfg.Recording.PollInterval, log)

	controller := usecase.NewEncounterController(
		capturer,
		artifacts,
		sess,
		uploader,
		notes,
		drafts,
		monitor,
		api,
		confirmer,
		events,
		cfg.Recording.MaxImportBytes,
		log,
	)

	return Services{
		Controller: controller,
		Capture:    capturer,
		Session:    sess,
		Drafts:     drafts,
		Artifacts:  artifacts,
		Monitor:    monitor,
		Config:     cfg,
		db:         db,
	}, nil
}

// noopWakeLock stands in on desktop where the display is not managed.
type noopWakeLock struct{}

func (noopWakeLock) Acquire() {}
func (noopWakeLock) Release() {}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(os.Getenv("EMSCRIBE_LOG_LEVEL")); err == nil && parsed != zerolog.NoLevel {
		level = parsed
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
