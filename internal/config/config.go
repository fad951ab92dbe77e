package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the encounter pipeline.
type Config struct {
	API       APIConfig
	Storage   StorageConfig
	Recording RecordingConfig
	Draft     DraftConfig
	Local     LocalConfig
}

type APIConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	// GenerateTimeout bounds the whole submit-and-reconcile call.
	GenerateTimeout time.Duration
	// NoteProgressDelay is how long to wait before synthesizing a
	// "creating note" status while the batched response is pending.
	NoteProgressDelay time.Duration
	ProbeInterval     time.Duration
	RefreshMargin     time.Duration
}

type StorageConfig struct {
	URL     string
	AnonKey string
	Bucket  string
	// UploadTimeout bounds a single object upload. Imports run up to 50 MB,
	// so this is far larger than the API request timeout.
	UploadTimeout time.Duration
}

type RecordingConfig struct {
	Ceiling        time.Duration
	PollInterval   time.Duration
	MaxImportBytes int64
	// Command and the input pair configure the desktop ffmpeg recorder.
	Command     string
	InputFormat string
	InputDevice string
}

type DraftConfig struct {
	AutosaveDebounce time.Duration
	RetentionDays    int
}

type LocalConfig struct {
	// DataDir holds the recordings directory and the local database.
	DataDir string
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	dataDir := strings.TrimSpace(os.Getenv("EMSCRIBE_DATA_DIR"))
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, errors.New("could not determine home directory")
		}
		dataDir = filepath.Join(home, ".local", "share", "emscribe")
	}

	cfg := Config{
		API: APIConfig{
			BaseURL:           envOrDefault("EMSCRIBE_API_BASE", "https://emscribe.vercel.app/api"),
			RequestTimeout:    envOrDefaultDuration("EMSCRIBE_REQUEST_TIMEOUT_MS", 10*time.Second),
			GenerateTimeout:   envOrDefaultDuration("EMSCRIBE_GENERATE_TIMEOUT_MS", 3*time.Minute),
			NoteProgressDelay: envOrDefaultDuration("EMSCRIBE_NOTE_PROGRESS_DELAY_MS", time.Minute),
			ProbeInterval:     envOrDefaultDuration("EMSCRIBE_PROBE_INTERVAL_MS", 5*time.Second),
			RefreshMargin:     envOrDefaultDuration("EMSCRIBE_REFRESH_MARGIN_MS", 5*time.Minute),
		},
		Storage: StorageConfig{
			URL:           strings.TrimSpace(os.Getenv("EMSCRIBE_STORAGE_URL")),
			AnonKey:       strings.TrimSpace(os.Getenv("EMSCRIBE_STORAGE_ANON_KEY")),
			Bucket:        envOrDefault("EMSCRIBE_STORAGE_BUCKET", "audio-files"),
			UploadTimeout: envOrDefaultDuration("EMSCRIBE_UPLOAD_TIMEOUT_MS", 10*time.Minute),
		},
		Recording: RecordingConfig{
			Ceiling:        envOrDefaultDuration("EMSCRIBE_RECORDING_CEILING_MS", 40*time.Minute),
			PollInterval:   envOrDefaultDuration("EMSCRIBE_RECORDING_POLL_MS", time.Second),
			MaxImportBytes: envOrDefaultInt64("EMSCRIBE_MAX_IMPORT_BYTES", 50*1024*1024),
			Command:        envOrDefault("EMSCRIBE_FFMPEG", "ffmpeg"),
			InputFormat:    envOrDefault("EMSCRIBE_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:    envOrDefault("EMSCRIBE_AUDIO_INPUT_DEVICE", "default"),
		},
		Draft: DraftConfig{
			AutosaveDebounce: envOrDefaultDuration("EMSCRIBE_AUTOSAVE_DEBOUNCE_MS", time.Second),
			RetentionDays:    envOrDefaultInt("EMSCRIBE_RETENTION_DAYS", 30),
		},
		Local: LocalConfig{DataDir: dataDir},
	}

	if cfg.Recording.Ceiling <= 0 {
		cfg.Recording.Ceiling = 40 * time.Minute
	}
	if cfg.Recording.PollInterval <= 0 {
		cfg.Recording.PollInterval = time.Second
	}
	if cfg.Draft.RetentionDays <= 0 {
		cfg.Draft.RetentionDays = 30
	}

	return cfg, nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}
