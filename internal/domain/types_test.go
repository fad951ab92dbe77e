package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{7, "0:07"},
		{59.9, "0:59"},
		{60, "1:00"},
		{125, "2:05"},
		{3600, "60:00"},
		{-5, "0:00"},
		{math.NaN(), "0:00"},
		{math.Inf(1), "0:00"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatDuration(tc.seconds))
	}
}

func TestMissingFields(t *testing.T) {
	t.Parallel()

	var d EncounterDraft
	assert.Len(t, d.MissingFields(), 6)

	d = EncounterDraft{
		Name: "n", Transcript: "t", Subjective: "s",
		Objective: "o", Assessment: "a", Plan: "p",
	}
	assert.Empty(t, d.MissingFields())

	// Whitespace does not count as content and billing is optional.
	d.Plan = "   "
	assert.Equal(t, []string{"Plan"}, d.MissingFields())
}

func TestHasData(t *testing.T) {
	t.Parallel()

	assert.False(t, EncounterDraft{}.HasData())
	assert.False(t, EncounterDraft{Name: "  "}.HasData())
	assert.True(t, EncounterDraft{BillingSuggestion: "99213"}.HasData())
	assert.True(t, EncounterDraft{Recording: &RecordingArtifact{}}.HasData())
}

func TestArtifactExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	assert.False(t, RecordingArtifact{}.Expired(now))
	assert.False(t, RecordingArtifact{ExpiresAt: now.Add(time.Hour)}.Expired(now))
	assert.True(t, RecordingArtifact{ExpiresAt: now.Add(-time.Hour)}.Expired(now))
}

func TestFlowErrorCodeOf(t *testing.T) {
	t.Parallel()

	err := NewFlowError(ErrorCodeUpload, "upload failed", errors.New("boom"))
	assert.Equal(t, ErrorCodeUpload, CodeOf(err))
	assert.Equal(t, ErrorCodeUpload, CodeOf(NewFlowError(ErrorCodeUpload, "wrapped twice", err)))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
	assert.Contains(t, err.Error(), "boom")
}

func TestRequiresLogin(t *testing.T) {
	t.Parallel()

	assert.True(t, RequiresLogin(NewFlowError(ErrorCodeNoSession, "", nil)))
	assert.True(t, RequiresLogin(NewFlowError(ErrorCodeAuthExpired, "", nil)))
	assert.True(t, RequiresLogin(NewFlowError(ErrorCodeMalformedToken, "", nil)))
	assert.False(t, RequiresLogin(NewFlowError(ErrorCodeUpload, "", nil)))
	assert.False(t, RequiresLogin(errors.New("plain")))
	assert.False(t, RequiresLogin(nil))
}
