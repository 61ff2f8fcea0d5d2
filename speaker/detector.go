// Package speaker derives the dominant speaker of a conference room from the
// fluctuating per-participant audio levels in the mirror. The multi-speaker
// set is instantaneous; only the single dominant speaker is debounced, since
// that one drives exclusive UI like camera focus.
package speaker

import (
	"container/ring"
	"sort"
	"sync"
	"time"

	"github.com/folkengine/goname"
	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-pbx/globals"
	"github.com/tcriess/lightspeed-pbx/types"
)

const (
	defaultThreshold   = 0.15
	defaultDebounce    = 500 * time.Millisecond
	defaultHistorySize = 50
)

type Options struct {
	Room        string
	Threshold   float64
	Debounce    time.Duration
	HistorySize int
	Logger      hclog.Logger
	// OnCommit is invoked with every history entry that has just been
	// closed (its peak level is final at that point).
	OnCommit func(entry types.SpeakerHistoryEntry)
}

type Detector struct {
	log      hclog.Logger
	room     string
	onCommit func(types.SpeakerHistoryEntry)

	mu        sync.Mutex
	threshold float64
	debounce  time.Duration

	// last seen participant set, by channel
	byChannel map[string]types.Participant

	// candidates of the last recompute, sorted by descending audio level
	candidates []types.Participant

	committed string // channel of the committed dominant speaker, "" if none

	pendingTarget string
	pendingGen    int
	timer         *time.Timer

	// keep the speaker history in a ring buffer
	historyStart, historyEnd *ring.Ring
	open                     *types.SpeakerHistoryEntry
}

func NewDetector(opts Options) *Detector {
	logger := opts.Logger
	if logger == nil {
		logger = globals.AppLogger
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	historySize := opts.HistorySize
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	// one spare slot: start == end means empty, so the ring needs size+1
	// cells to retain size entries
	history := ring.New(historySize + 1)
	return &Detector{
		log:          logger,
		room:         opts.Room,
		onCommit:     opts.OnCommit,
		threshold:    threshold,
		debounce:     debounce,
		byChannel:    make(map[string]types.Participant),
		historyStart: history,
		historyEnd:   history,
	}
}

// SetThreshold adjusts the candidate threshold. It takes effect on the next
// recompute; neither history nor a running debounce is reset.
func (d *Detector) SetThreshold(threshold float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = threshold
}

// Recompute feeds the detector the current participant set of its room. It
// is called on every audio level change and is cheap enough to run on the
// event delivery path.
func (d *Detector) Recompute(participants []types.Participant) {
	d.mu.Lock()
	now := time.Now()

	d.byChannel = make(map[string]types.Participant, len(participants))
	for _, p := range participants {
		d.byChannel[p.Channel] = p
	}

	candidates := make([]types.Participant, 0, len(participants))
	for _, p := range participants {
		if p.AudioLevel == nil || *p.AudioLevel < d.threshold {
			continue
		}
		if p.IsMuted || p.IsOnHold {
			continue
		}
		candidates = append(candidates, p)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if *candidates[i].AudioLevel != *candidates[j].AudioLevel {
			return *candidates[i].AudioLevel > *candidates[j].AudioLevel
		}
		return candidates[i].Channel < candidates[j].Channel
	})
	d.candidates = candidates

	var closed *types.SpeakerHistoryEntry
	if d.open != nil {
		if p, ok := d.byChannel[d.open.Participant]; ok {
			// the peak may only ever be raised while the entry is open
			if p.AudioLevel != nil && *p.AudioLevel > d.open.PeakLevel {
				d.open.PeakLevel = *p.AudioLevel
			}
		} else {
			// the speaker left the room mid-sentence: close the entry now
			// instead of leaving it dangling
			closed = d.closeOpenEntry(now)
			d.committed = ""
		}
	}

	top := ""
	if len(candidates) > 0 {
		top = candidates[0].Channel
	}
	switch {
	case top == d.committed:
		// the dominant speaker is unchanged, a pending switch is obsolete
		d.cancelPending()
	case top != d.pendingTarget || d.timer == nil:
		d.armPending(top)
	}
	d.mu.Unlock()

	if closed != nil && d.onCommit != nil {
		d.onCommit(*closed)
	}
}

// armPending (re)starts the debounce towards a new target. The timer always
// restarts on a target change (trailing edge), it is not a fixed window from
// the first change.
func (d *Detector) armPending(target string) {
	d.cancelPending()
	d.pendingTarget = target
	d.pendingGen++
	gen := d.pendingGen
	d.timer = time.AfterFunc(d.debounce, func() { d.commit(gen) })
}

func (d *Detector) cancelPending() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pendingTarget = d.committed
}

func (d *Detector) commit(gen int) {
	d.mu.Lock()
	if gen != d.pendingGen || d.timer == nil {
		// superseded by a later switch or cancelled
		d.mu.Unlock()
		return
	}
	d.timer = nil
	target := d.pendingTarget
	now := time.Now()
	closed := d.closeOpenEntry(now)
	d.committed = target
	if target != "" {
		p := d.byChannel[target]
		entry := &types.SpeakerHistoryEntry{
			Room:        d.room,
			Participant: target,
			DisplayName: displayName(p),
			StartedAt:   now,
		}
		if p.AudioLevel != nil {
			entry.PeakLevel = *p.AudioLevel
		}
		if err := entry.CreateId(); err != nil {
			d.log.Warn("could not hash speaker history entry", "error", err)
		}
		d.appendEntry(entry)
		d.open = entry
	}
	d.mu.Unlock()

	if closed != nil && d.onCommit != nil {
		d.onCommit(*closed)
	}
}

// closeOpenEntry ends the current open entry. Called with the lock held; the
// returned copy is handed to OnCommit after unlocking.
func (d *Detector) closeOpenEntry(now time.Time) *types.SpeakerHistoryEntry {
	if d.open == nil {
		return nil
	}
	ended := now
	d.open.EndedAt = &ended
	closed := d.open
	d.open = nil
	return closed
}

func (d *Detector) appendEntry(entry *types.SpeakerHistoryEntry) {
	d.historyEnd.Value = entry
	d.historyEnd = d.historyEnd.Next()
	if d.historyEnd == d.historyStart {
		d.historyStart = d.historyStart.Next()
	}
}

// ActiveSpeaker returns the committed dominant speaker. The commitment lags
// level changes by the debounce duration.
func (d *Detector) ActiveSpeaker() (types.Participant, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.committed == "" {
		return types.Participant{}, false
	}
	p, ok := d.byChannel[d.committed]
	return p, ok
}

// ActiveSpeakers returns all current candidates, loudest first. No debounce
// is applied here.
func (d *Detector) ActiveSpeakers() []types.Participant {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.Participant, len(d.candidates))
	copy(out, d.candidates)
	return out
}

// History returns the speaking periods still in the ring buffer, oldest
// first. At most one entry is open (EndedAt == nil).
func (d *Detector) History() []types.SpeakerHistoryEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	history := make([]types.SpeakerHistoryEntry, 0)
	for current := d.historyStart; current != d.historyEnd; current = current.Next() {
		history = append(history, *current.Value.(*types.SpeakerHistoryEntry))
	}
	return history
}

// Stop cancels a pending debounce and closes a still-open history entry.
func (d *Detector) Stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pendingGen++
	closed := d.closeOpenEntry(time.Now())
	d.committed = ""
	d.mu.Unlock()
	if closed != nil && d.onCommit != nil {
		d.onCommit(*closed)
	}
}

func displayName(p types.Participant) string {
	if p.CallerName == "" && p.CallerNumber == "" {
		return goname.New(goname.FantasyMap).FirstLast() + " (unknown)"
	}
	return p.DisplayName()
}
