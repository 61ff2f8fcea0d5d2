package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/tcriess/lightspeed-pbx/types"
)

var upgrader = websocket.Upgrader{}

// fakeManager is a websocket test server speaking the manager framing. The
// handle callback answers each incoming action; push injects unsolicited
// events.
type fakeManager struct {
	srv *httptest.Server

	mu   sync.Mutex
	conn *websocket.Conn

	handle func(frame types.WireFrame) []types.WireFrame
}

func newFakeManager(t *testing.T, handle func(frame types.WireFrame) []types.WireFrame) *fakeManager {
	t.Helper()
	m := &fakeManager{handle: handle}
	m.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame := types.WireFrame{}
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}
			for _, out := range m.handle(frame) {
				m.write(out)
			}
		}
	}))
	t.Cleanup(m.srv.Close)
	return m
}

func (m *fakeManager) url() string {
	return "ws" + strings.TrimPrefix(m.srv.URL, "http")
}

func (m *fakeManager) write(frame types.WireFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, _ := json.Marshal(frame)
	_ = m.conn.WriteMessage(websocket.TextMessage, raw)
}

func (m *fakeManager) push(name string, fields map[string]string) {
	m.write(types.WireFrame{Type: types.WireTypeEvent, Name: name, Fields: fields})
}

func response(actionId string, fields map[string]string) types.WireFrame {
	if fields == nil {
		fields = map[string]string{}
	}
	if _, ok := fields["Response"]; !ok {
		fields["Response"] = types.ResponseSuccess
	}
	return types.WireFrame{Type: types.WireTypeResponse, ActionId: actionId, Fields: fields}
}

func okHandler(frame types.WireFrame) []types.WireFrame {
	return []types.WireFrame{response(frame.ActionId, nil)}
}

func TestDialLogin(t *testing.T) {
	loginFrames := make(chan types.WireFrame, 1)
	m := newFakeManager(t, func(frame types.WireFrame) []types.WireFrame {
		if frame.Name == types.ActionLogin {
			loginFrames <- frame
		}
		return okHandler(frame)
	})
	s, err := Dial(m.url(), "monitor", "secret", time.Second, nil)
	if !assert.NoError(t, err) {
		return
	}
	defer s.Close()
	assert.True(t, s.IsConnected())
	loginFrame := <-loginFrames
	assert.Equal(t, types.WireTypeAction, loginFrame.Type)
	assert.Equal(t, "monitor", loginFrame.Fields["Username"])
	assert.Equal(t, "secret", loginFrame.Fields["Secret"])
}

func TestDialLoginRejected(t *testing.T) {
	m := newFakeManager(t, func(frame types.WireFrame) []types.WireFrame {
		return []types.WireFrame{response(frame.ActionId, map[string]string{
			"Response": types.ResponseError,
			"Message":  "authentication failed",
		})}
	})
	_, err := Dial(m.url(), "monitor", "wrong", time.Second, nil)
	if assert.Error(t, err) {
		loginErr, ok := err.(*LoginError)
		if assert.True(t, ok) {
			assert.Equal(t, "authentication failed", loginErr.Message)
		}
	}
}

func TestListActionCollectsItems(t *testing.T) {
	m := newFakeManager(t, func(frame types.WireFrame) []types.WireFrame {
		if frame.Name != types.ActionConfbridgeListRooms {
			return okHandler(frame)
		}
		return []types.WireFrame{
			{Type: types.WireTypeEvent, ActionId: frame.ActionId, Name: types.EventConfbridgeListRooms, Fields: map[string]string{"Conference": "main"}},
			{Type: types.WireTypeEvent, ActionId: frame.ActionId, Name: types.EventConfbridgeListRooms, Fields: map[string]string{"Conference": "standup"}},
			response(frame.ActionId, map[string]string{"Message": "2 rooms"}),
		}
	})
	s, err := Dial(m.url(), "", "", time.Second, nil)
	if !assert.NoError(t, err) {
		return
	}
	defer s.Close()

	resp, err := s.SendRequest(context.Background(), types.ActionConfbridgeListRooms, nil)
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "2 rooms", resp.Message)
	if assert.Equal(t, 2, len(resp.Events)) {
		assert.Equal(t, types.EventConfbridgeListRooms, resp.Events[0].Name)
		assert.Equal(t, "main", resp.Events[0].Fields["Conference"])
		assert.Equal(t, "standup", resp.Events[1].Fields["Conference"])
	}
}

func TestUnsolicitedEventDispatch(t *testing.T) {
	m := newFakeManager(t, okHandler)
	s, err := Dial(m.url(), "", "", time.Second, nil)
	if !assert.NoError(t, err) {
		return
	}
	defer s.Close()

	got := make(chan map[string]string, 1)
	unsub := s.Subscribe(types.EventConfbridgeJoin, func(payload map[string]string) {
		got <- payload
	})

	// a request ensures the server side connection is up
	_, err = s.SendRequest(context.Background(), "Ping", nil)
	assert.NoError(t, err)

	m.push(types.EventConfbridgeJoin, map[string]string{"Conference": "main", "Channel": "PJSIP/alice-1"})
	select {
	case payload := <-got:
		assert.Equal(t, "main", payload["Conference"])
	case <-time.After(time.Second):
		t.Fatal("event was not dispatched")
	}

	unsub()
	m.push(types.EventConfbridgeJoin, map[string]string{"Conference": "main", "Channel": "PJSIP/bob-1"})
	select {
	case <-got:
		t.Fatal("unsubscribed handler was invoked")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRequestTimeout(t *testing.T) {
	m := newFakeManager(t, func(frame types.WireFrame) []types.WireFrame {
		return nil // never answer
	})
	s, err := Dial(m.url(), "", "", 100*time.Millisecond, nil)
	if !assert.NoError(t, err) {
		return
	}
	defer s.Close()

	_, err = s.SendRequest(context.Background(), "Ping", nil)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRequestAfterClose(t *testing.T) {
	m := newFakeManager(t, okHandler)
	s, err := Dial(m.url(), "", "", time.Second, nil)
	if !assert.NoError(t, err) {
		return
	}

	disconnected := make(chan struct{})
	var once sync.Once
	s.SubscribeState(func(connected bool) {
		if !connected {
			once.Do(func() { close(disconnected) })
		}
	})

	assert.NoError(t, s.Close())
	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("state handler was not invoked")
	}
	assert.False(t, s.IsConnected())

	_, err = s.SendRequest(context.Background(), "Ping", nil)
	assert.ErrorIs(t, err, ErrNoTransport)
}
