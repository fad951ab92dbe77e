package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Evanl01/emscribe-mobile/internal/domain"
	"github.com/Evanl01/emscribe-mobile/internal/ports"
)

// dataPrefix marks pseudo-stream records in the batched response body.
const dataPrefix = "data: "

// Submitter submits the remote recording reference and returns the batched
// pseudo-stream body.
type Submitter interface {
	PromptLLM(ctx context.Context, accessToken, recordingFilePath string) (string, error)
}

// Draft is the slice of the draft store the reconciler mutates.
type Draft interface {
	SetTranscript(transcript string)
	SetNote(note domain.Note)
	ClearNote()
}

// Reconciler submits a processing request and replays the batched response as
// an ordered sequence of status events applied to the draft.
type Reconciler struct {
	api           Submitter
	events        ports.EventSink
	log           zerolog.Logger
	timeout       time.Duration
	progressDelay time.Duration
}

// NewReconciler builds a reconciler. timeout bounds the whole submit-and-
// reconcile call; progressDelay is how long to wait before synthesizing a
// cosmetic "creating note" status while the batched response is pending.
func NewReconciler(api Submitter, events ports.EventSink, timeout, progressDelay time.Duration, log zerolog.Logger) *Reconciler {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	if progressDelay <= 0 {
		progressDelay = time.Minute
	}
	return &Reconciler{
		api:           api,
		events:        events,
		log:           log.With().Str("component", "reconcile").Logger(),
		timeout:       timeout,
		progressDelay: progressDelay,
	}
}

// Run submits recordingFilePath for transcription and note generation and
// applies the decoded pseudo-stream to draft. It returns nil on a complete
// note, or a FlowError describing the terminal failure. The draft and any
// uploaded remote reference are left intact on failure so the user can retry.
func (r *Reconciler) Run(ctx context.Context, accessToken, recordingFilePath string, draft Draft) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.events.ProcessingStatus(domain.StatusEvent{
		Kind: domain.StatusTranscriptionStarted, Message: "Starting transcription...", Sticky: true,
	})

	// The transport is batched, not streamed, so nothing arrives until the
	// whole response is ready. Synthesize a progress status if it takes long
	// enough that the UI would otherwise look frozen.
	cosmetic := newCosmeticTimer(r.progressDelay, func() {
		r.events.ProcessingStatus(domain.StatusEvent{
			Kind: domain.StatusNoteCreationStarted, Message: "Creating SOAP note...", Sticky: true,
		})
	})
	defer cosmetic.Stop()

	body, err := r.api.PromptLLM(ctx, accessToken, recordingFilePath)
	cosmetic.Stop()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return r.fail(domain.ErrorCodeTimeout, "Request timed out after 3 minutes. Please try again.", err)
		}
		return r.fail(domain.ErrorCodeServerProcessing, "Failed to process recording", err)
	}
	if ctx.Err() != nil {
		// The timeout was already reported; a late response is stale.
		return r.fail(domain.ErrorCodeTimeout, "Request timed out after 3 minutes. Please try again.", ctx.Err())
	}

	return r.apply(body, draft)
}

// apply decodes the batched body line by line. A single undecodable line is
// skipped, never fatal for the whole response; an explicit server error record
// halts processing immediately.
func (r *Reconciler) apply(body string, draft Draft) error {
	for _, line := range strings.Split(body, "\n") {
		record, ok := r.decodeLine(line)
		if !ok {
			continue
		}

		if record.isServerError() {
			message := record.errorMessage()
			r.events.ProcessingStatus(domain.StatusEvent{
				Kind: domain.StatusError, Message: message, Sticky: true,
			})
			return domain.NewFlowError(domain.ErrorCodeServerProcessing, message, nil)
		}

		switch record.Status {
		case "transcription complete":
			transcript := record.transcript()
			if transcript != "" {
				draft.SetTranscript(transcript)
				r.events.ProcessingStatus(domain.StatusEvent{
					Kind:       domain.StatusTranscriptionComplete,
					Message:    "Transcription complete",
					Transcript: transcript,
					Sticky:     true,
				})
			}
		case "creating soap note":
			r.events.ProcessingStatus(domain.StatusEvent{
				Kind: domain.StatusNoteCreationStarted, Message: "Creating SOAP note...", Sticky: true,
			})
		case "soap note complete":
			r.applyNote(record, draft)
		default:
			// Recognized shape, unrecognized status: UI feedback only.
			r.events.ProcessingStatus(domain.StatusEvent{
				Kind: domain.StatusUnknown, Message: record.message(),
			})
		}
	}
	return nil
}

// applyNote decodes the note payload and sets all SOAP fields at once. If the
// secondary decode fails every field is reset to empty rather than left
// partially populated.
func (r *Reconciler) applyNote(record streamRecord, draft Draft) {
	payload, err := record.notePayload()
	if err != nil {
		r.log.Warn().Err(err).Msg("could not decode soap note payload; resetting note fields")
		draft.ClearNote()
		return
	}

	note := domain.Note{}
	fields := []struct {
		raw  json.RawMessage
		dest *string
	}{
		{payload.SOAPNote.Subjective, &note.Subjective},
		{payload.SOAPNote.Objective, &note.Objective},
		{payload.SOAPNote.Assessment, &note.Assessment},
		{payload.SOAPNote.Plan, &note.Plan},
		{payload.Billing, &note.Billing},
	}
	for _, f := range fields {
		text, err := renderField(f.raw)
		if err != nil {
			r.log.Warn().Err(err).Msg("could not render soap note field; resetting note fields")
			draft.ClearNote()
			return
		}
		*f.dest = text
	}
	note.Billing = strings.TrimSpace(note.Billing)

	draft.SetNote(note)
	r.events.ProcessingStatus(domain.StatusEvent{
		Kind: domain.StatusNoteComplete, Message: "SOAP note generated successfully!", Note: &note, Sticky: true,
	})
	r.events.ProcessingStatus(domain.StatusEvent{
		Kind: domain.StatusComplete, Message: "SOAP note generated successfully!",
	})
}

func (r *Reconciler) fail(code domain.ErrorCode, message string, cause error) error {
	r.events.ProcessingStatus(domain.StatusEvent{
		Kind: domain.StatusError, Message: message, Sticky: true,
	})
	return domain.NewFlowError(code, message, cause)
}

// decodeLine parses one pseudo-stream line: a `data: ` record or a bare JSON
// object. Blank and undecodable lines are skipped.
func (r *Reconciler) decodeLine(line string) (streamRecord, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return streamRecord{}, false
	}

	var payload string
	switch {
	case strings.HasPrefix(trimmed, dataPrefix):
		payload = strings.TrimSpace(strings.TrimPrefix(trimmed, dataPrefix))
		if payload == "" {
			return streamRecord{}, false
		}
	case strings.HasPrefix(trimmed, "{"):
		payload = trimmed
	default:
		r.log.Debug().Str("line", truncate(trimmed, 100)).Msg("skipping non-record line")
		return streamRecord{}, false
	}

	var record streamRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		r.log.Debug().Str("line", truncate(trimmed, 100)).Msg("skipping unparseable line")
		return streamRecord{}, false
	}
	return record, true
}

// streamRecord is one raw record of the batched pseudo-stream.
type streamRecord struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"statusCode"`
	Error      string          `json:"error"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

func (rec streamRecord) isServerError() bool {
	return rec.StatusCode == 500 || rec.Status == "error" || rec.Error == "error"
}

func (rec streamRecord) errorMessage() string {
	if rec.Message != "" {
		return rec.Message
	}
	if rec.Error != "" {
		return rec.Error
	}
	return "Server error occurred"
}

func (rec streamRecord) message() string {
	if rec.Message != "" {
		return rec.Message
	}
	return rec.Status
}

func (rec streamRecord) transcript() string {
	var data struct {
		Transcript string `json:"transcript"`
	}
	if err := json.Unmarshal(rec.Data, &data); err != nil {
		return ""
	}
	return data.Transcript
}

// notePayload decodes the note data, which arrives either as a JSON object or
// as a JSON-encoded string holding one.
type noteEnvelope struct {
	SOAPNote struct {
		Subjective json.RawMessage `json:"subjective"`
		Objective  json.RawMessage `json:"objective"`
		Assessment json.RawMessage `json:"assessment"`
		Plan       json.RawMessage `json:"plan"`
	} `json:"soap_note"`
	Billing json.RawMessage `json:"billing"`
}

func (rec streamRecord) notePayload() (noteEnvelope, error) {
	raw := rec.Data
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}

	var payload noteEnvelope
	if err := json.Unmarshal(raw, &payload); err != nil {
		return noteEnvelope{}, err
	}
	return payload, nil
}

// cosmeticTimer fires once after delay unless stopped first. Stop guarantees
// the callback will not run afterwards, so a synthesized status can never
// trail real data.
type cosmeticTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newCosmeticTimer(delay time.Duration, fn func()) *cosmeticTimer {
	ct := &cosmeticTimer{}
	ct.timer = time.AfterFunc(delay, func() {
		ct.mu.Lock()
		defer ct.mu.Unlock()
		if ct.stopped {
			return
		}
		fn()
	})
	return ct
}

func (ct *cosmeticTimer) Stop() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.stopped = true
	ct.timer.Stop()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
