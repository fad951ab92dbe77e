package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Evanl01/emscribe-mobile/internal/domain"
	"github.com/Evanl01/emscribe-mobile/internal/ports"
)

// ErrRecordingActive is returned when Start is called while a recording is
// already in progress. Only one recording may be active at a time.
var ErrRecordingActive = errors.New("a recording is already active")

// ErrNotRecording is returned by Pause/Resume when nothing is being captured.
var ErrNotRecording = errors.New("no active recording")

// Controller owns the device recording handle and the recording lifecycle.
// While recording it keeps the display awake and polls elapsed time, stopping
// automatically at the hard ceiling. The wake-lock is released unconditionally
// on stop, on error, and on teardown.
type Controller struct {
	recorder ports.AudioRecorder
	wake     ports.WakeLock
	events   ports.EventSink
	ceiling  time.Duration
	poll     time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	state     domain.RecordingState
	startedAt time.Time
	elapsed   float64
	quit      chan struct{}
	autoStop  sync.Once
}

func NewController(recorder ports.AudioRecorder, wake ports.WakeLock, events ports.EventSink, ceiling, poll time.Duration, log zerolog.Logger) *Controller {
	if ceiling <= 0 {
		ceiling = 40 * time.Minute
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &Controller{
		recorder: recorder,
		wake:     wake,
		events:   events,
		ceiling:  ceiling,
		poll:     poll,
		log:      log.With().Str("component", "capture").Logger(),
		state:    domain.RecordingStateIdle,
	}
}

// RequestPermission asks the device for microphone access.
func (c *Controller) RequestPermission(ctx context.Context) (bool, error) {
	return c.recorder.RequestPermission(ctx)
}

// Start begins capture. It fails fast when a recording is already active or
// microphone permission is denied.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == domain.RecordingStateRecording || c.state == domain.RecordingStatePaused {
		c.mu.Unlock()
		return ErrRecordingActive
	}
	c.mu.Unlock()

	granted, err := c.recorder.RequestPermission(ctx)
	if err != nil {
		return domain.NewFlowError(domain.ErrorCodePermissionDenied, "could not request microphone permission", err)
	}
	if !granted {
		return domain.NewFlowError(domain.ErrorCodePermissionDenied, "microphone permission denied", nil)
	}

	if err := c.recorder.Start(ctx); err != nil {
		return err
	}

	c.wake.Acquire()

	c.mu.Lock()
	c.state = domain.RecordingStateRecording
	c.startedAt = time.Now()
	c.elapsed = 0
	c.quit = make(chan struct{})
	c.autoStop = sync.Once{}
	quit := c.quit
	c.mu.Unlock()

	go c.pollLoop(quit)

	c.events.RecordingStateChanged(domain.RecordingStateRecording, 0)
	c.log.Info().Msg("recording started")
	return nil
}

// pollLoop refreshes elapsed time once per poll interval and issues the stop
// call itself when the hard ceiling is reached. The ceiling is a safety bound,
// not a user action.
func (c *Controller) pollLoop(quit chan struct{}) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			status, err := c.recorder.Status(context.Background())
			if err != nil {
				c.log.Warn().Err(err).Msg("recorder status poll failed")
				continue
			}

			c.mu.Lock()
			c.elapsed = status.DurationSeconds
			state := c.state
			c.mu.Unlock()

			c.events.RecordingStateChanged(state, status.DurationSeconds)

			if status.DurationSeconds >= c.ceiling.Seconds() {
				c.autoStop.Do(func() {
					c.log.Info().Float64("elapsed", status.DurationSeconds).Msg("recording ceiling reached; stopping")
					go func() {
						if _, err := c.Stop(context.Background()); err != nil {
							c.log.Error().Err(err).Msg("automatic stop failed")
						}
					}()
				})
			}
		}
	}
}

// Pause suspends capture without ending the session.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.RecordingStateRecording {
		c.mu.Unlock()
		return ErrNotRecording
	}
	c.mu.Unlock()

	if err := c.recorder.Pause(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = domain.RecordingStatePaused
	elapsed := c.elapsed
	c.mu.Unlock()

	c.events.RecordingStateChanged(domain.RecordingStatePaused, elapsed)
	return nil
}

// Resume continues a paused capture.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.RecordingStatePaused {
		c.mu.Unlock()
		return ErrNotRecording
	}
	c.mu.Unlock()

	if err := c.recorder.Resume(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = domain.RecordingStateRecording
	elapsed := c.elapsed
	c.mu.Unlock()

	c.events.RecordingStateChanged(domain.RecordingStateRecording, elapsed)
	return nil
}

// Stop ends capture and hands back the device recording. It returns nil when
// no recording is active. The wake-lock is released whether or not the device
// stop succeeds.
func (c *Controller) Stop(ctx context.Context) (*ports.RecordingResult, error) {
	c.mu.Lock()
	if c.state != domain.RecordingStateRecording && c.state != domain.RecordingStatePaused {
		c.mu.Unlock()
		return nil, nil
	}
	c.state = domain.RecordingStateIdle
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
	c.mu.Unlock()

	defer c.wake.Release()

	result, err := c.recorder.Stop(ctx)
	if err != nil {
		c.events.RecordingStateChanged(domain.RecordingStateIdle, 0)
		return nil, err
	}

	c.events.RecordingStateChanged(domain.RecordingStateStopped, result.DurationSeconds)
	c.log.Info().Float64("duration", result.DurationSeconds).Msg("recording stopped")
	return &result, nil
}

// Status reports the current lifecycle state and elapsed seconds.
func (c *Controller) Status() (domain.RecordingState, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.elapsed
}

// Teardown releases held resources. Safe to call at any time; the wake-lock
// must never outlive the owning screen.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
	active := c.state == domain.RecordingStateRecording || c.state == domain.RecordingStatePaused
	c.state = domain.RecordingStateIdle
	c.mu.Unlock()

	if active {
		if _, err := c.recorder.Stop(context.Background()); err != nil {
			c.log.Warn().Err(err).Msg("recorder stop during teardown failed")
		}
	}
	c.wake.Release()
}
