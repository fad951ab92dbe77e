package draft

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Evanl01/emscribe-mobile/internal/domain"
	"github.com/Evanl01/emscribe-mobile/internal/storage"
)

func newTestStore(t *testing.T, window time.Duration) *Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, window, zerolog.Nop())
}

func TestFlushPersistsImmediately(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, time.Hour)
	s.SetName("Smith follow-up")
	s.SetTranscript("Patient doing well.")
	s.Flush()

	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Smith follow-up", loaded.Name)
	assert.Equal(t, "Patient doing well.", loaded.Transcript)
}

func TestAutosaveWaitsForDebounceWindow(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, time.Hour)
	s.SetName("Smith")

	// The window has not expired; nothing reaches disk.
	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded.Name)
}

func TestAutosaveCoalescesRapidEdits(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 30*time.Millisecond)
	s.SetName("S")
	s.SetName("Sm")
	s.SetName("Smi")
	s.SetName("Smith")

	require.Eventually(t, func() bool {
		d, err := s.Load(context.Background())
		return err == nil && d.Name == "Smith"
	}, time.Second, 10*time.Millisecond)
}

func TestSetNoteAppliesAllFields(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, time.Hour)
	s.SetNote(domain.Note{
		Subjective: "S", Objective: "O", Assessment: "A", Plan: "P", Billing: "99213",
	})

	d := s.Snapshot()
	assert.Equal(t, "S", d.Subjective)
	assert.Equal(t, "O", d.Objective)
	assert.Equal(t, "A", d.Assessment)
	assert.Equal(t, "P", d.Plan)
	assert.Equal(t, "99213", d.BillingSuggestion)
}

func TestClearNoteLeavesNameAndTranscript(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, time.Hour)
	s.SetName("Encounter")
	s.SetTranscript("words")
	s.SetNote(domain.Note{Subjective: "S", Billing: "99213"})

	s.ClearNote()

	d := s.Snapshot()
	assert.Equal(t, "Encounter", d.Name)
	assert.Equal(t, "words", d.Transcript)
	assert.Empty(t, d.Subjective)
	assert.Empty(t, d.BillingSuggestion)
}

func TestClearAllWipesMemoryAndDisk(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, time.Hour)
	s.SetName("Encounter")
	s.Flush()

	require.NoError(t, s.ClearAll(context.Background()))

	assert.Empty(t, s.Snapshot().Name)
	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded.Name)
}

func TestLoadRoundTripsEveryField(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, time.Hour)
	s.SetName("n")
	s.SetTranscript("t")
	s.SetSubjective("s")
	s.SetObjective("o")
	s.SetAssessment("a")
	s.SetPlan("p")
	s.SetBillingSuggestion("b")
	s.Flush()

	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.EncounterDraft{
		Name: "n", Transcript: "t", Subjective: "s", Objective: "o",
		Assessment: "a", Plan: "p", BillingSuggestion: "b",
	}, loaded)
}
