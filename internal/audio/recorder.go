package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Evanl01/emscribe-mobile/internal/ports"
)

// Recorder captures microphone audio to an AAC file using ffmpeg. Pause and
// resume are implemented with SIGSTOP/SIGCONT so the encoder stops consuming
// input while paused.
type Recorder struct {
	command     string
	inputFormat string
	inputDevice string
	dir         string

	mu       sync.Mutex
	proc     *os.Process
	waitErr  <-chan error
	stderr   *bytes.Buffer
	path     string
	paused   bool
	resumed  time.Time
	elapsed  time.Duration
	stopOnce *sync.Once
}

func NewRecorder(command, inputFormat, inputDevice, dir string) *Recorder {
	if command == "" {
		command = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	if inputDevice == "" {
		inputDevice = "default"
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &Recorder{command: command, inputFormat: inputFormat, inputDevice: inputDevice, dir: dir}
}

// RequestPermission reports whether the capture command is available. A
// missing recorder binary is the desktop equivalent of a denied microphone.
func (r *Recorder) RequestPermission(_ context.Context) (bool, error) {
	if _, err := exec.LookPath(r.command); err != nil {
		return false, nil
	}
	return true, nil
}

func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.proc != nil {
		return errors.New("recorder already running")
	}
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create capture directory: %w", err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("capture_%d.m4a", time.Now().UnixMilli()))
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", r.inputFormat,
		"-i", r.inputDevice,
		"-ac", "1",
		"-c:a", "aac",
		"-y", path,
	}

	cmd := exec.CommandContext(ctx, r.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start recorder: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// Catch immediate startup failures such as a missing input device.
	select {
	case err := <-waitErr:
		if err != nil {
			return fmt.Errorf("recorder exited before capture started: %w: %s", err, trimmed(stderr.String()))
		}
		return errors.New("recorder exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	r.proc = cmd.Process
	r.waitErr = waitErr
	r.stderr = &stderr
	r.path = path
	r.paused = false
	r.resumed = time.Now()
	r.elapsed = 0
	r.stopOnce = &sync.Once{}
	return nil
}

func (r *Recorder) Pause(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.proc == nil || r.paused {
		return errors.New("recorder is not running")
	}
	if err := r.proc.Signal(syscall.SIGSTOP); err != nil {
		return fmt.Errorf("failed to pause recorder: %w", err)
	}
	r.elapsed += time.Since(r.resumed)
	r.paused = true
	return nil
}

func (r *Recorder) Resume(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.proc == nil || !r.paused {
		return errors.New("recorder is not paused")
	}
	if err := r.proc.Signal(syscall.SIGCONT); err != nil {
		return fmt.Errorf("failed to resume recorder: %w", err)
	}
	r.resumed = time.Now()
	r.paused = false
	return nil
}

// Stop interrupts ffmpeg so it finalizes the container, then returns where
// the capture landed. Safe to call while paused.
func (r *Recorder) Stop(_ context.Context) (ports.RecordingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.proc == nil {
		return ports.RecordingResult{}, errors.New("recorder is not running")
	}

	if r.paused {
		_ = r.proc.Signal(syscall.SIGCONT)
	} else {
		r.elapsed += time.Since(r.resumed)
	}

	var stopErr error
	r.stopOnce.Do(func() {
		_ = r.proc.Signal(os.Interrupt)
		select {
		case err := <-r.waitErr:
			stopErr = normalizeStopErr(err)
		case <-time.After(1200 * time.Millisecond):
			_ = r.proc.Kill()
			stopErr = normalizeStopErr(<-r.waitErr)
		}
	})

	result := ports.RecordingResult{URI: r.path, DurationSeconds: r.elapsed.Seconds()}
	if stopErr != nil && r.stderr != nil && r.stderr.Len() > 0 {
		stopErr = fmt.Errorf("%w: %s", stopErr, trimmed(r.stderr.String()))
	}

	r.proc = nil
	r.waitErr = nil
	r.stderr = nil
	r.path = ""
	r.paused = false
	return result, stopErr
}

func (r *Recorder) Status(_ context.Context) (ports.RecorderStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.proc == nil {
		return ports.RecorderStatus{}, nil
	}
	elapsed := r.elapsed
	if !r.paused {
		elapsed += time.Since(r.resumed)
	}
	return ports.RecorderStatus{
		Recording:       true,
		Paused:          r.paused,
		DurationSeconds: elapsed.Seconds(),
	}, nil
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimmed(input string) string {
	return string(bytes.TrimSpace([]byte(input)))
}
