package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Evanl01/emscribe-mobile/internal/domain"
)

// ErrArtifactExists is returned when saving while a buffered recording is
// already present. The caller must confirm with the user and Delete first;
// Save never silently overwrites.
var ErrArtifactExists = errors.New("a recording already exists on device")

// ErrNoArtifact is returned when no buffered recording is present.
var ErrNoArtifact = errors.New("no recording on device")

// Store persists the single buffered recording file plus its metadata row.
type Store struct {
	db        *sql.DB
	dir       string
	retention time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewStore creates a store keeping recording files under dir. retentionDays
// bounds how long artifact metadata survives before the sweep removes it.
func NewStore(db *sql.DB, dir string, retentionDays int, log zerolog.Logger) *Store {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Store{
		db:        db,
		dir:       dir,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		log:       log.With().Str("component", "artifact").Logger(),
		now:       time.Now,
	}
}

// Save copies the source recording into a durable per-artifact path and
// records its metadata. It fails with ErrArtifactExists when a buffered
// recording is already present.
func (s *Store) Save(ctx context.Context, sourceURI string, originalName string, durationSeconds float64) (domain.RecordingArtifact, error) {
	current, err := s.Current(ctx)
	if err != nil {
		return domain.RecordingArtifact{}, err
	}
	if current != nil {
		return domain.RecordingArtifact{}, ErrArtifactExists
	}

	now := s.now()
	fileName := localFileName(originalName, now)
	localPath := filepath.Join(s.dir, fileName)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return domain.RecordingArtifact{}, domain.NewFlowError(domain.ErrorCodeStorage, "create recordings directory", err)
	}
	if err := copyFile(sourceURI, localPath); err != nil {
		return domain.RecordingArtifact{}, domain.NewFlowError(domain.ErrorCodeStorage, "copy recording to local storage", err)
	}

	exists, size := s.Probe(localPath)
	if !exists {
		return domain.RecordingArtifact{}, domain.NewFlowError(domain.ErrorCodeStorage, "saved recording is missing", nil)
	}

	art := domain.RecordingArtifact{
		LocalPath:       localPath,
		FileName:        fileName,
		DurationSeconds: durationSeconds,
		SizeBytes:       size,
		SavedAt:         now,
		IsLocal:         true,
		ExpiresAt:       now.Add(s.retention),
	}

	if err := s.insert(ctx, art); err != nil {
		_ = os.Remove(localPath)
		return domain.RecordingArtifact{}, err
	}

	s.log.Info().Str("file", fileName).Int64("size", size).Msg("recording saved locally")
	return art, nil
}

// Delete removes the buffered recording file and its metadata. It is a no-op
// when the file is already absent.
func (s *Store) Delete(ctx context.Context, art domain.RecordingArtifact) error {
	if art.LocalPath != "" {
		if err := os.Remove(art.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			// Best-effort cleanup; the metadata row still goes away.
			s.log.Warn().Err(err).Str("path", art.LocalPath).Msg("could not delete recording file")
		}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recording_artifacts WHERE file_name = ?`, art.FileName); err != nil {
		return domain.NewFlowError(domain.ErrorCodeStorage, "delete artifact metadata", err)
	}
	return nil
}

// Probe reports whether path exists and its size in bytes.
func (s *Store) Probe(path string) (bool, int64) {
	info, err := os.Stat(path)
	if err != nil {
		return false, 0
	}
	return true, info.Size()
}

// Current returns the buffered artifact, or nil when none exists.
func (s *Store) Current(ctx context.Context) (*domain.RecordingArtifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT local_path, remote_path, file_name, duration_seconds, size_bytes,
		       saved_at, uploaded_at, is_local, expires_at
		FROM recording_artifacts
		ORDER BY saved_at DESC LIMIT 1`)

	var (
		art        domain.RecordingArtifact
		uploadedAt sql.NullTime
		isLocal    int
	)
	err := row.Scan(&art.LocalPath, &art.RemotePath, &art.FileName, &art.DurationSeconds,
		&art.SizeBytes, &art.SavedAt, &uploadedAt, &isLocal, &art.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewFlowError(domain.ErrorCodeStorage, "load artifact metadata", err)
	}
	if uploadedAt.Valid {
		art.UploadedAt = uploadedAt.Time
	}
	art.IsLocal = isLocal != 0
	return &art, nil
}

// Promote records that the buffered artifact now lives in the remote object
// store and deletes the local file. The remote reference supersedes the local
// artifact for the same logical recording.
func (s *Store) Promote(ctx context.Context, art domain.RecordingArtifact, remotePath, remoteName string) (domain.RecordingArtifact, error) {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE recording_artifacts
		SET local_path = '', remote_path = ?, file_name = ?, uploaded_at = ?, is_local = 0
		WHERE file_name = ?`,
		remotePath, remoteName, now, art.FileName)
	if err != nil {
		return domain.RecordingArtifact{}, domain.NewFlowError(domain.ErrorCodeStorage, "record remote reference", err)
	}

	if art.LocalPath != "" {
		if err := os.Remove(art.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", art.LocalPath).Msg("could not delete promoted recording file")
		}
	}

	art.LocalPath = ""
	art.RemotePath = remotePath
	art.FileName = remoteName
	art.UploadedAt = now
	art.IsLocal = false
	return art, nil
}

// Sweep removes artifacts whose retention window has passed. Running it twice
// with no intervening save leaves storage unchanged the second time.
func (s *Store) Sweep(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT local_path, file_name FROM recording_artifacts WHERE expires_at <= ?`, s.now())
	if err != nil {
		return domain.NewFlowError(domain.ErrorCodeStorage, "scan expired artifacts", err)
	}
	defer rows.Close()

	type expired struct{ path, name string }
	var stale []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.path, &e.name); err != nil {
			return domain.NewFlowError(domain.ErrorCodeStorage, "scan expired artifacts", err)
		}
		stale = append(stale, e)
	}
	if err := rows.Err(); err != nil {
		return domain.NewFlowError(domain.ErrorCodeStorage, "scan expired artifacts", err)
	}

	for _, e := range stale {
		if e.path != "" {
			if err := os.Remove(e.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.log.Warn().Err(err).Str("path", e.path).Msg("could not delete expired recording file")
			}
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM recording_artifacts WHERE file_name = ?`, e.name); err != nil {
			return domain.NewFlowError(domain.ErrorCodeStorage, "delete expired artifact", err)
		}
		s.log.Info().Str("file", e.name).Msg("expired recording removed")
	}
	return nil
}

// Clear removes every artifact, file and metadata both. Used on logout.
func (s *Store) Clear(ctx context.Context) error {
	current, err := s.Current(ctx)
	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}
	return s.Delete(ctx, *current)
}

func (s *Store) insert(ctx context.Context, art domain.RecordingArtifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recording_artifacts
			(id, local_path, remote_path, file_name, duration_seconds, size_bytes, saved_at, is_local, expires_at)
		VALUES (?, ?, '', ?, ?, ?, ?, 1, ?)`,
		uuid.NewString(), art.LocalPath, art.FileName, art.DurationSeconds, art.SizeBytes,
		art.SavedAt, art.ExpiresAt)
	if err != nil {
		return domain.NewFlowError(domain.ErrorCodeStorage, "save artifact metadata", err)
	}
	return nil
}

// localFileName derives the durable on-device filename, keeping the original
// extension when present.
func localFileName(originalName string, now time.Time) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(originalName), "."))
	if ext == "" {
		ext = "m4a"
	}
	return fmt.Sprintf("recording_%d.%s", now.UnixMilli(), ext)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
