// Package mirror keeps a client-side mirror of the manager's telephony state.
// It owns one entity store per resource type and is their only writer: pull
// snapshots (list actions) and pushed events are reconciled here, everything
// else holds read-only views.
package mirror

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-pbx/globals"
	"github.com/tcriess/lightspeed-pbx/store"
	"github.com/tcriess/lightspeed-pbx/transport"
	"github.com/tcriess/lightspeed-pbx/types"
)

// Result is the outcome of one manager action. A remote rejection is a
// Result with Success=false, not an error; errors are reserved for the
// transport (no session, timeout).
type Result struct {
	Success bool   `json:"success"`
	Id      string `json:"id"`
	Error   string `json:"error,omitempty"`
}

// RemoteError is returned by the refresh methods when the manager rejects a
// list action.
type RemoteError struct {
	Action  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("mirror: %s rejected: %s", e.Action, e.Message)
}

type Options struct {
	Logger hclog.Logger
	// SelfChannel marks the channel that is "us" (no self-kick, IsSelf flag).
	SelfChannel string
	// RefreshOnConnect issues a full refresh for every resource type when a
	// session is attached.
	RefreshOnConnect bool
}

type queuedEvent struct {
	name    string
	payload map[string]string
}

type Mirror struct {
	log hclog.Logger

	rooms        *store.Store[types.Room]
	participants *store.Store[types.Participant]
	endpoints    *store.Store[types.Endpoint]
	contacts     *store.Store[types.Contact]
	mailboxes    *store.Store[types.Mailbox]

	mu               sync.Mutex
	session          transport.Session
	subs             []transport.Unsubscribe
	refreshOnConnect bool
	selfChannel      string

	// generation is bumped on detach/destroy so a refresh that was in flight
	// discards its snapshot instead of writing into a torn-down mirror.
	generation uint64

	// per-scope refresh bookkeeping: events for a scope that arrive while a
	// snapshot for the same scope is in flight are queued and applied after
	// the snapshot has been ingested.
	refreshing map[string]int
	queued     map[string][]queuedEvent

	// rooms whose participant store has been fully synchronized at least
	// once; only for those the participant count is derived from the store.
	syncedRooms map[string]bool

	// single-slot "current problem", overwritten by the next failed attempt
	lastErr string

	listeners    map[int]func(room string)
	nextListener int
}

func New(opts Options) *Mirror {
	logger := opts.Logger
	if logger == nil {
		logger = globals.AppLogger
	}
	return &Mirror{
		log:              logger,
		rooms:            store.New[types.Room](),
		participants:     store.New[types.Participant](),
		endpoints:        store.New[types.Endpoint](),
		contacts:         store.New[types.Contact](),
		mailboxes:        store.New[types.Mailbox](),
		refreshOnConnect: opts.RefreshOnConnect,
		selfChannel:      opts.SelfChannel,
		refreshing:       make(map[string]int),
		queued:           make(map[string][]queuedEvent),
		syncedRooms:      make(map[string]bool),
		listeners:        make(map[int]func(room string)),
	}
}

// Attach binds the mirror to a (re)connected session: all event handlers are
// subscribed and the stores are marked live. With RefreshOnConnect set, a
// full refresh is started in the background.
func (m *Mirror) Attach(session transport.Session) {
	m.mu.Lock()
	m.detachLocked()
	m.session = session
	for name := range m.eventScopes() {
		n := name
		m.subs = append(m.subs, session.Subscribe(n, func(payload map[string]string) {
			m.onEvent(n, payload)
		}))
	}
	m.subs = append(m.subs, session.SubscribeState(func(connected bool) {
		if !connected {
			m.Detach()
		}
	}))
	m.mu.Unlock()
	m.setLive(true)
	if m.refreshOnConnect {
		go func() {
			if err := m.RefreshAll(context.Background()); err != nil {
				m.log.Warn("refresh on connect failed", "error", err)
			}
		}()
	}
}

// Detach drops the session and unsubscribes all handlers. The stores are NOT
// cleared: last-known-good state stays visible, only marked stale via the
// live flag.
func (m *Mirror) Detach() {
	m.mu.Lock()
	m.detachLocked()
	m.mu.Unlock()
	m.setLive(false)
}

func (m *Mirror) detachLocked() {
	for _, unsub := range m.subs {
		unsub()
	}
	m.subs = nil
	m.session = nil
	m.generation++
	m.queued = make(map[string][]queuedEvent)
}

// Destroy tears the mirror down. With clear set the stores are emptied as
// well.
func (m *Mirror) Destroy(clear bool) {
	m.Detach()
	if clear {
		m.rooms.Clear()
		m.participants.Clear()
		m.endpoints.Clear()
		m.contacts.Clear()
		m.mailboxes.Clear()
		m.mu.Lock()
		m.syncedRooms = make(map[string]bool)
		m.mu.Unlock()
	}
}

func (m *Mirror) setLive(live bool) {
	m.rooms.SetLive(live)
	m.participants.SetLive(live)
	m.endpoints.SetLive(live)
	m.contacts.SetLive(live)
	m.mailboxes.SetLive(live)
}

// Live reports whether the mirror currently tracks a connected session.
func (m *Mirror) Live() bool { return m.rooms.Live() }

// LastError returns the most recent request-level failure, empty if the last
// attempt succeeded.
func (m *Mirror) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Mirror) setLastError(msg string) {
	m.mu.Lock()
	m.lastErr = msg
	m.mu.Unlock()
}

// AddParticipantListener registers a callback invoked with the room id after
// any mutation of the participant store. The returned function removes the
// listener.
func (m *Mirror) AddParticipantListener(f func(room string)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextListener++
	id := m.nextListener
	m.listeners[id] = f
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Mirror) notifyParticipants(room string) {
	if room == "" {
		return
	}
	m.mu.Lock()
	listeners := make([]func(string), 0, len(m.listeners))
	for _, f := range m.listeners {
		listeners = append(listeners, f)
	}
	m.mu.Unlock()
	for _, f := range listeners {
		f(room)
	}
}

// scope keys for the refresh-vs-event serialization
const (
	scopeRooms     = "rooms"
	scopeEndpoints = "endpoints"
	scopeContacts  = "contacts"
	scopeMailboxes = "mailboxes"
)

func scopeParticipants(room string) string { return "participants:" + room }

// eventScopes maps every subscribed event name to the scope its application
// belongs to. Events whose scope depends on the payload resolve it in
// scopeForEvent.
func (m *Mirror) eventScopes() map[string]struct{} {
	return map[string]struct{}{
		types.EventConfbridgeJoin:       {},
		types.EventConfbridgeLeave:      {},
		types.EventConfbridgeTalking:    {},
		types.EventConfbridgeMute:       {},
		types.EventConfbridgeUnmute:     {},
		types.EventConfbridgeLock:       {},
		types.EventConfbridgeUnlock:     {},
		types.EventConfbridgeRecord:     {},
		types.EventConfbridgeStopRecord: {},
		types.EventHold:                 {},
		types.EventUnhold:               {},
		types.EventDeviceStateChange:    {},
		types.EventContactStatus:        {},
		types.EventMessageWaiting:       {},
	}
}

func (m *Mirror) scopeForEvent(name string, payload map[string]string) string {
	switch name {
	case types.EventConfbridgeJoin, types.EventConfbridgeLeave,
		types.EventConfbridgeTalking, types.EventConfbridgeMute, types.EventConfbridgeUnmute:
		return scopeParticipants(payload["Conference"])
	case types.EventHold, types.EventUnhold:
		if p, ok := m.participants.Get(payload["Channel"]); ok {
			return scopeParticipants(p.Room)
		}
		return ""
	case types.EventConfbridgeLock, types.EventConfbridgeUnlock,
		types.EventConfbridgeRecord, types.EventConfbridgeStopRecord:
		return scopeRooms
	case types.EventDeviceStateChange:
		return scopeEndpoints
	case types.EventContactStatus:
		return scopeContacts
	case types.EventMessageWaiting:
		return scopeMailboxes
	}
	return ""
}

// onEvent is the handler bound to every subscription. It runs on the
// transport's delivery path and must not block: it either queues the event
// (same-scope refresh in flight) or applies it synchronously.
func (m *Mirror) onEvent(name string, payload map[string]string) {
	m.mu.Lock()
	scope := m.scopeForEvent(name, payload)
	if scope != "" && m.refreshing[scope] > 0 {
		m.queued[scope] = append(m.queued[scope], queuedEvent{name: name, payload: payload})
		m.mu.Unlock()
		return
	}
	room := m.dispatchLocked(name, payload)
	m.mu.Unlock()
	m.notifyParticipants(room)
}

// runListAction performs one list request for a scope. Events for the scope
// that arrive while the request is in flight are queued by onEvent and
// replayed after ingest, so a fresh snapshot can never silently overwrite a
// just-applied event. ingest runs with the mirror lock held.
func (m *Mirror) runListAction(ctx context.Context, scope, action string, args map[string]string, ingest func(items []transport.ListItem)) error {
	m.mu.Lock()
	session := m.session
	if session == nil {
		m.mu.Unlock()
		return transport.ErrNoTransport
	}
	gen := m.generation
	m.refreshing[scope]++
	m.mu.Unlock()

	resp, err := session.SendRequest(ctx, action, args)

	m.mu.Lock()
	m.refreshing[scope]--
	queued := m.queued[scope]
	delete(m.queued, scope)
	if gen != m.generation {
		// superseded by detach/destroy: discard the snapshot, the queued
		// events belong to the previous session
		m.mu.Unlock()
		return err
	}
	if err != nil {
		m.lastErr = err.Error()
		rooms := m.replayLocked(queued)
		m.mu.Unlock()
		m.notifyRooms(rooms)
		return err
	}
	if !resp.Success {
		m.lastErr = resp.Message
		rooms := m.replayLocked(queued)
		m.mu.Unlock()
		m.notifyRooms(rooms)
		return &RemoteError{Action: action, Message: resp.Message}
	}
	m.lastErr = ""
	ingest(resp.Events)
	rooms := m.replayLocked(queued)
	m.mu.Unlock()
	m.notifyRooms(rooms)
	return nil
}

func (m *Mirror) replayLocked(queued []queuedEvent) map[string]struct{} {
	rooms := make(map[string]struct{})
	for _, ev := range queued {
		if room := m.dispatchLocked(ev.name, ev.payload); room != "" {
			rooms[room] = struct{}{}
		}
	}
	return rooms
}

func (m *Mirror) notifyRooms(rooms map[string]struct{}) {
	for room := range rooms {
		m.notifyParticipants(room)
	}
}

// dispatchLocked applies one event to the stores. It returns the room id
// whose participant set changed, "" otherwise. Malformed payloads are
// dropped with a warning; they never corrupt a store.
func (m *Mirror) dispatchLocked(name string, payload map[string]string) string {
	switch name {
	case types.EventConfbridgeJoin:
		return m.applyJoin(payload)
	case types.EventConfbridgeLeave:
		return m.applyLeave(payload)
	case types.EventConfbridgeTalking:
		return m.applyTalking(payload)
	case types.EventConfbridgeMute:
		return m.applyMuteFlag(payload, true)
	case types.EventConfbridgeUnmute:
		return m.applyMuteFlag(payload, false)
	case types.EventHold:
		return m.applyHoldFlag(payload, true)
	case types.EventUnhold:
		return m.applyHoldFlag(payload, false)
	case types.EventConfbridgeLock:
		m.applyRoomFlag(payload, func(r *types.Room) { r.Locked = true })
	case types.EventConfbridgeUnlock:
		m.applyRoomFlag(payload, func(r *types.Room) { r.Locked = false })
	case types.EventConfbridgeRecord:
		m.applyRoomFlag(payload, func(r *types.Room) { r.Recording = true })
	case types.EventConfbridgeStopRecord:
		m.applyRoomFlag(payload, func(r *types.Room) { r.Recording = false })
	case types.EventDeviceStateChange:
		m.applyDeviceState(payload)
	case types.EventContactStatus:
		m.applyContactStatus(payload)
	case types.EventMessageWaiting:
		m.applyMessageWaiting(payload)
	default:
		m.log.Warn("unhandled event, dropped", "event", name)
	}
	return ""
}

// RefreshAll refreshes every resource type: rooms first, then the
// participants of every known room, endpoints, contacts and mailboxes. The
// first error is returned, later refreshes still run.
func (m *Mirror) RefreshAll(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(m.RefreshRooms(ctx))
	for _, room := range m.rooms.All() {
		keep(m.RefreshParticipants(ctx, room.Id))
	}
	keep(m.RefreshEndpoints(ctx))
	keep(m.RefreshContacts(ctx))
	keep(m.RefreshMailboxes(ctx))
	return firstErr
}

// invoke forwards one mutating action. The optimistic store update is
// applied before the round trip so event latency never shows as UI lag; a
// remote rejection deliberately does not roll it back (the action may have
// partially succeeded server-side), the caller recovers via a refresh.
func (m *Mirror) invoke(ctx context.Context, action string, args map[string]string, id string, optimistic func() string) (Result, error) {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session == nil {
		return Result{Id: id}, transport.ErrNoTransport
	}
	if optimistic != nil {
		room := optimistic()
		m.notifyParticipants(room)
	}
	resp, err := session.SendRequest(ctx, action, args)
	if err != nil {
		m.setLastError(err.Error())
		return Result{Id: id}, err
	}
	if !resp.Success {
		m.setLastError(resp.Message)
		return Result{Success: false, Id: id, Error: resp.Message}, nil
	}
	m.setLastError("")
	return Result{Success: true, Id: id}, nil
}
