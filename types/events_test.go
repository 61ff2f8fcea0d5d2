package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeRoomRecordFlags(t *testing.T) {
	rec, err := DecodeRoomRecord(map[string]string{
		"Conference": "main",
		"Parties":    "3",
		"Marked":     "1",
		"Locked":     "Yes",
		"Muted":      "No",
		"Recording":  "on",
	})
	assert.NoError(t, err)
	assert.Equal(t, "main", rec.Conference)
	assert.Equal(t, 3, rec.Parties)
	assert.Equal(t, 1, rec.Marked)
	assert.True(t, rec.Locked)
	assert.False(t, rec.Muted)
	assert.True(t, rec.Recording)

	_, err = DecodeRoomRecord(map[string]string{"Parties": "3"})
	assert.Error(t, err)
}

func TestDecodeParticipantRecordFlags(t *testing.T) {
	rec, err := DecodeParticipantRecord(map[string]string{
		"Conference":    "main",
		"Channel":       "PJSIP/alice-1",
		"Admin":         "Yes",
		"Marked":        "No",
		"Muted":         "off",
		"TalkingStatus": "on",
		"Hold":          "1",
		"AudioLevel":    "0.42",
	})
	assert.NoError(t, err)
	assert.True(t, rec.Admin)
	assert.False(t, rec.Marked)
	assert.False(t, rec.Muted)
	assert.True(t, rec.Talking)
	assert.True(t, rec.Hold)
	if assert.NotNil(t, rec.AudioLevel) {
		assert.InDelta(t, 0.42, *rec.AudioLevel, 1e-9)
	}

	// a value outside the flag vocabulary is still an error, not a guess
	_, err = DecodeParticipantRecord(map[string]string{"Channel": "PJSIP/alice-1", "Muted": "maybe"})
	assert.Error(t, err)
}
