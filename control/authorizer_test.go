package control

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tcriess/lightspeed-pbx/layout"
	"github.com/tcriess/lightspeed-pbx/mirror"
	"github.com/tcriess/lightspeed-pbx/transport"
	"github.com/tcriess/lightspeed-pbx/types"
)

type fakeSession struct {
	mu       sync.Mutex
	handlers map[string][]transport.Handler
	requests []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{handlers: make(map[string][]transport.Handler)}
}

func (s *fakeSession) SendRequest(ctx context.Context, action string, args map[string]string) (*transport.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, action)
	s.mu.Unlock()
	return &transport.Response{Success: true}, nil
}

func (s *fakeSession) Subscribe(event string, handler transport.Handler) transport.Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], handler)
	return func() {}
}

func (s *fakeSession) SubscribeState(handler func(connected bool)) transport.Unsubscribe {
	return func() {}
}

func (s *fakeSession) IsConnected() bool { return true }

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) emit(event string, payload map[string]string) {
	s.mu.Lock()
	handlers := append([]transport.Handler(nil), s.handlers[event]...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

func (s *fakeSession) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func setup(t *testing.T, moderator bool) (*Authorizer, *fakeSession, *mirror.Mirror) {
	t.Helper()
	session := newFakeSession()
	m := mirror.New(mirror.Options{SelfChannel: "PJSIP/self-1"})
	m.Attach(session)
	session.emit(types.EventConfbridgeJoin, map[string]string{"Conference": "main", "Channel": "PJSIP/alice-1"})
	session.emit(types.EventConfbridgeJoin, map[string]string{"Conference": "main", "Channel": "PJSIP/self-1"})
	return NewAuthorizer(m, layout.NewState(), moderator), session, m
}

func TestCanKick(t *testing.T) {
	a, _, _ := setup(t, true)
	assert.True(t, a.CanKick("PJSIP/alice-1"))
	assert.False(t, a.CanKick("PJSIP/self-1"))  // never self
	assert.False(t, a.CanKick("PJSIP/ghost-1")) // not connected

	a.SetModerator(false)
	assert.False(t, a.CanKick("PJSIP/alice-1"))
}

func TestKickRequiresModerator(t *testing.T) {
	a, session, m := setup(t, false)
	res, err := a.Kick(context.Background(), "PJSIP/alice-1")
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "PJSIP/alice-1", res.Id)
	// the disallowed action never reaches the manager
	assert.Equal(t, 0, session.requestCount())
	_, ok := m.Participant("PJSIP/alice-1")
	assert.True(t, ok)

	a.SetModerator(true)
	res, err = a.Kick(context.Background(), "PJSIP/alice-1")
	assert.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, session.requestCount())
	_, ok = m.Participant("PJSIP/alice-1")
	assert.False(t, ok)
}

func TestMuteNeedsNoModerator(t *testing.T) {
	a, session, m := setup(t, false)
	res, err := a.Mute(context.Background(), "PJSIP/alice-1")
	assert.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, session.requestCount())
	p, _ := m.Participant("PJSIP/alice-1")
	assert.True(t, p.IsMuted)

	res, err = a.Unmute(context.Background(), "PJSIP/alice-1")
	assert.NoError(t, err)
	assert.True(t, res.Success)
	p, _ = m.Participant("PJSIP/alice-1")
	assert.False(t, p.IsMuted)

	// unknown channel: silent no-op
	res, err = a.Mute(context.Background(), "PJSIP/ghost-1")
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 2, session.requestCount())
}

func TestRoomActionsRequireModerator(t *testing.T) {
	a, session, m := setup(t, false)
	res, err := a.Lock(context.Background(), "main")
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, session.requestCount())
	room, _ := m.Room("main")
	assert.False(t, room.Locked)

	a.SetModerator(true)
	res, err = a.Lock(context.Background(), "main")
	assert.NoError(t, err)
	assert.True(t, res.Success)
	room, _ = m.Room("main")
	assert.True(t, room.Locked)

	res, err = a.StartRecording(context.Background(), "no-such-room")
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, session.requestCount())
}

func TestPin(t *testing.T) {
	a, _, _ := setup(t, false)
	assert.False(t, a.Pin("PJSIP/ghost-1"))
	assert.True(t, a.Pin("PJSIP/alice-1"))
	a.Unpin()
}
