package draft

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/rs/zerolog"

	"github.com/Evanl01/emscribe-mobile/internal/domain"
)

// Storage keys, one row per draft field.
const (
	keyName       = "enscribe_patientEncounterName"
	keyTranscript = "enscribe_transcript"
	keySubjective = "enscribe_soapSubjective"
	keyObjective  = "enscribe_soapObjective"
	keyAssessment = "enscribe_soapAssessment"
	keyPlan       = "enscribe_soapPlan"
	keyBilling    = "enscribe_billingSuggestion"
)

// Store persists the editable encounter draft. Field mutations coalesce into
// one write per debounce window; only the last state before the window expires
// is persisted. Flush guarantees the final edit survives teardown.
type Store struct {
	db        *sql.DB
	log       zerolog.Logger
	debounced func(func())

	mu      sync.Mutex
	current domain.EncounterDraft
}

func NewStore(db *sql.DB, window time.Duration, log zerolog.Logger) *Store {
	if window <= 0 {
		window = time.Second
	}
	return &Store{
		db:        db,
		log:       log.With().Str("component", "draft").Logger(),
		debounced: debounce.New(window),
	}
}

// Load reads the persisted draft into memory and returns it.
func (s *Store) Load(ctx context.Context) (domain.EncounterDraft, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM draft_fields`)
	if err != nil {
		return domain.EncounterDraft{}, domain.NewFlowError(domain.ErrorCodeStorage, "load draft", err)
	}
	defer rows.Close()

	var d domain.EncounterDraft
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return domain.EncounterDraft{}, domain.NewFlowError(domain.ErrorCodeStorage, "load draft", err)
		}
		switch key {
		case keyName:
			d.Name = value
		case keyTranscript:
			d.Transcript = value
		case keySubjective:
			d.Subjective = value
		case keyObjective:
			d.Objective = value
		case keyAssessment:
			d.Assessment = value
		case keyPlan:
			d.Plan = value
		case keyBilling:
			d.BillingSuggestion = value
		}
	}
	if err := rows.Err(); err != nil {
		return domain.EncounterDraft{}, domain.NewFlowError(domain.ErrorCodeStorage, "load draft", err)
	}

	s.mu.Lock()
	s.current = d
	s.mu.Unlock()
	return d, nil
}

// Snapshot returns the in-memory draft state.
func (s *Store) Snapshot() domain.EncounterDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Store) SetName(name string) { s.mutate(func(d *domain.EncounterDraft) { d.Name = name }) }

func (s *Store) SetTranscript(transcript string) {
	s.mutate(func(d *domain.EncounterDraft) { d.Transcript = transcript })
}

func (s *Store) SetSubjective(v string) {
	s.mutate(func(d *domain.EncounterDraft) { d.Subjective = v })
}

func (s *Store) SetObjective(v string) {
	s.mutate(func(d *domain.EncounterDraft) { d.Objective = v })
}

func (s *Store) SetAssessment(v string) {
	s.mutate(func(d *domain.EncounterDraft) { d.Assessment = v })
}

func (s *Store) SetPlan(v string) { s.mutate(func(d *domain.EncounterDraft) { d.Plan = v }) }

func (s *Store) SetBillingSuggestion(v string) {
	s.mutate(func(d *domain.EncounterDraft) { d.BillingSuggestion = v })
}

// SetNote applies all generated note fields at once.
func (s *Store) SetNote(note domain.Note) {
	s.mutate(func(d *domain.EncounterDraft) {
		d.Subjective = note.Subjective
		d.Objective = note.Objective
		d.Assessment = note.Assessment
		d.Plan = note.Plan
		d.BillingSuggestion = note.Billing
	})
}

// ClearNote resets every generated note field. All-or-nothing: a partially
// decoded note is never left standing.
func (s *Store) ClearNote() {
	s.SetNote(domain.Note{})
}

// ClearAll wipes both memory and persisted draft state. Used after a
// successful commit and on logout.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	s.current = domain.EncounterDraft{}
	s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM draft_fields`); err != nil {
		return domain.NewFlowError(domain.ErrorCodeStorage, "clear draft", err)
	}
	return nil
}

// Flush persists the current state immediately, bypassing the debounce window.
func (s *Store) Flush() {
	s.persist()
}

// mutate applies fn under the lock and (re)arms the pending autosave.
func (s *Store) mutate(fn func(*domain.EncounterDraft)) {
	s.mu.Lock()
	fn(&s.current)
	s.mu.Unlock()
	s.debounced(s.persist)
}

func (s *Store) persist() {
	s.mu.Lock()
	d := s.current
	s.mu.Unlock()

	pairs := []struct{ key, value string }{
		{keyName, d.Name},
		{keyTranscript, d.Transcript},
		{keySubjective, d.Subjective},
		{keyObjective, d.Objective},
		{keyAssessment, d.Assessment},
		{keyPlan, d.Plan},
		{keyBilling, d.BillingSuggestion},
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.log.Error().Err(err).Msg("autosave failed")
		return
	}
	now := time.Now()
	for _, p := range pairs {
		if _, err := tx.Exec(`
			INSERT INTO draft_fields (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			p.key, p.value, now); err != nil {
			_ = tx.Rollback()
			s.log.Error().Err(err).Msg("autosave failed")
			return
		}
	}
	if err := tx.Commit(); err != nil {
		s.log.Error().Err(err).Msg("autosave failed")
		return
	}
	s.log.Debug().Msg("draft autosaved")
}
