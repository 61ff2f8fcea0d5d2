package speaker

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tcriess/lightspeed-pbx/types"
)

const testDebounce = 50 * time.Millisecond

func talking(channel string, level float64) types.Participant {
	return types.Participant{Channel: channel, Room: "main", CallerNumber: channel, AudioLevel: &level}
}

func waitDebounce() { time.Sleep(testDebounce + 30*time.Millisecond) }

func TestDominantSpeaker(t *testing.T) {
	d := NewDetector(Options{Room: "main", Threshold: 0.15, Debounce: testDebounce})
	defer d.Stop()

	d.Recompute([]types.Participant{
		talking("bob", 0.6),
		talking("alice", 0.1), // below threshold
		talking("charlie", 0.2),
	})

	// the multi-speaker set is instantaneous, loudest first
	speakers := d.ActiveSpeakers()
	if assert.Equal(t, 2, len(speakers)) {
		assert.Equal(t, "bob", speakers[0].Channel)
		assert.Equal(t, "charlie", speakers[1].Channel)
	}

	// the dominant speaker is debounced
	_, ok := d.ActiveSpeaker()
	assert.False(t, ok)
	waitDebounce()
	p, ok := d.ActiveSpeaker()
	assert.True(t, ok)
	assert.Equal(t, "bob", p.Channel)

	history := d.History()
	if assert.Equal(t, 1, len(history)) {
		assert.Equal(t, "bob", history[0].Participant)
		assert.Nil(t, history[0].EndedAt)
		assert.InDelta(t, 0.6, history[0].PeakLevel, 1e-9)
		assert.NotEmpty(t, history[0].Id)
	}
}

func TestDebounceRestartsOnTargetChange(t *testing.T) {
	d := NewDetector(Options{Room: "main", Threshold: 0.15, Debounce: testDebounce})
	defer d.Stop()

	d.Recompute([]types.Participant{talking("bob", 0.6)})
	waitDebounce()
	p, _ := d.ActiveSpeaker()
	assert.Equal(t, "bob", p.Channel)

	// charlie takes over, then dave before the debounce elapses: the timer
	// restarts, so one full debounce after the first switch bob still holds
	d.Recompute([]types.Participant{talking("bob", 0.3), talking("charlie", 0.7)})
	time.Sleep(testDebounce / 2)
	d.Recompute([]types.Participant{talking("bob", 0.3), talking("dave", 0.8)})
	time.Sleep(testDebounce*3/4 - time.Millisecond)
	p, _ = d.ActiveSpeaker()
	assert.Equal(t, "bob", p.Channel)

	waitDebounce()
	p, _ = d.ActiveSpeaker()
	assert.Equal(t, "dave", p.Channel)
	assert.Equal(t, 2, len(d.History()))
}

func TestReturnToCommittedCancelsPending(t *testing.T) {
	d := NewDetector(Options{Room: "main", Threshold: 0.15, Debounce: testDebounce})
	defer d.Stop()

	d.Recompute([]types.Participant{talking("bob", 0.6)})
	waitDebounce()

	d.Recompute([]types.Participant{talking("bob", 0.3), talking("charlie", 0.7)})
	// bob recovers before the switch commits: nothing may change
	d.Recompute([]types.Participant{talking("bob", 0.8), talking("charlie", 0.2)})
	waitDebounce()

	p, _ := d.ActiveSpeaker()
	assert.Equal(t, "bob", p.Channel)
	history := d.History()
	if assert.Equal(t, 1, len(history)) {
		assert.Nil(t, history[0].EndedAt)
	}
}

func TestRemovalClosesOpenEntry(t *testing.T) {
	var (
		mu        sync.Mutex
		committed []types.SpeakerHistoryEntry
	)
	d := NewDetector(Options{Room: "main", Threshold: 0.15, Debounce: testDebounce, OnCommit: func(e types.SpeakerHistoryEntry) {
		mu.Lock()
		committed = append(committed, e)
		mu.Unlock()
	}})
	defer d.Stop()

	d.Recompute([]types.Participant{talking("bob", 0.6)})
	waitDebounce()

	// bob hangs up mid-sentence
	d.Recompute([]types.Participant{})
	_, ok := d.ActiveSpeaker()
	assert.False(t, ok)
	history := d.History()
	if assert.Equal(t, 1, len(history)) {
		assert.NotNil(t, history[0].EndedAt)
	}
	mu.Lock()
	if assert.Equal(t, 1, len(committed)) {
		assert.Equal(t, "bob", committed[0].Participant)
		assert.NotNil(t, committed[0].EndedAt)
	}
	mu.Unlock()
}

func TestPeakOnlyRaised(t *testing.T) {
	d := NewDetector(Options{Room: "main", Threshold: 0.15, Debounce: testDebounce})
	defer d.Stop()

	d.Recompute([]types.Participant{talking("bob", 0.6)})
	waitDebounce()
	d.Recompute([]types.Participant{talking("bob", 0.9)})
	d.Recompute([]types.Participant{talking("bob", 0.4)})

	history := d.History()
	if assert.Equal(t, 1, len(history)) {
		assert.InDelta(t, 0.9, history[0].PeakLevel, 1e-9)
	}
}

func TestMutedAndHoldExcluded(t *testing.T) {
	d := NewDetector(Options{Room: "main", Threshold: 0.15, Debounce: testDebounce})
	defer d.Stop()

	muted := talking("bob", 0.9)
	muted.IsMuted = true
	onHold := talking("charlie", 0.8)
	onHold.IsOnHold = true
	d.Recompute([]types.Participant{muted, onHold, talking("alice", 0.3)})

	speakers := d.ActiveSpeakers()
	if assert.Equal(t, 1, len(speakers)) {
		assert.Equal(t, "alice", speakers[0].Channel)
	}
}

func TestSetThreshold(t *testing.T) {
	d := NewDetector(Options{Room: "main", Threshold: 0.15, Debounce: testDebounce})
	defer d.Stop()

	d.Recompute([]types.Participant{talking("alice", 0.3)})
	assert.Equal(t, 1, len(d.ActiveSpeakers()))

	d.SetThreshold(0.5)
	d.Recompute([]types.Participant{talking("alice", 0.3)})
	assert.Equal(t, 0, len(d.ActiveSpeakers()))
}

func TestHistoryRingBounded(t *testing.T) {
	d := NewDetector(Options{Room: "main", Threshold: 0.15, Debounce: time.Millisecond, HistorySize: 3})
	defer d.Stop()

	for _, channel := range []string{"a", "b", "c", "d", "e"} {
		d.Recompute([]types.Participant{talking(channel, 0.6)})
		time.Sleep(20 * time.Millisecond)
	}
	history := d.History()
	if assert.Equal(t, 3, len(history)) {
		assert.Equal(t, "c", history[0].Participant)
		assert.Equal(t, "e", history[2].Participant)
	}
}

func TestUnknownDisplayName(t *testing.T) {
	d := NewDetector(Options{Room: "main", Threshold: 0.15, Debounce: time.Millisecond})
	defer d.Stop()

	level := 0.6
	d.Recompute([]types.Participant{{Channel: "anon", Room: "main", AudioLevel: &level}})
	time.Sleep(20 * time.Millisecond)

	history := d.History()
	if assert.Equal(t, 1, len(history)) {
		assert.True(t, strings.HasSuffix(history[0].DisplayName, " (unknown)"))
	}
}
