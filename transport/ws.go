package transport

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/tcriess/lightspeed-pbx/globals"
	"github.com/tcriess/lightspeed-pbx/types"
)

const (
	maxMessageSize        = 65536
	pongWait              = 2 * time.Minute
	pingPeriod            = time.Minute
	writeWait             = 10 * time.Second
	sendChannelSize       = 1000
	defaultRequestTimeout = 10 * time.Second
)

// WSSession is a Session over a websocket connection to the manager.
type WSSession struct {
	conn *websocket.Conn
	log  hclog.Logger

	requestTimeout time.Duration

	// Buffered channel of outbound frames.
	send chan []byte

	mu            sync.Mutex
	connected     bool
	pending       map[string]*pendingRequest
	handlers      map[string]map[int]Handler
	stateHandlers map[int]func(bool)
	nextSub       int
	nextAction    uint64

	doneChan  chan struct{}
	closeOnce sync.Once
}

type pendingRequest struct {
	ch     chan *Response
	events []ListItem
}

// Dial connects to the manager, starts the read and write loops and performs
// the Login action with the given credentials. An empty username skips the
// login step.
func Dial(url, username, secret string, requestTimeout time.Duration, logger hclog.Logger) (*WSSession, error) {
	if logger == nil {
		logger = globals.AppLogger
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	s := &WSSession{
		conn:           conn,
		log:            logger,
		requestTimeout: requestTimeout,
		send:           make(chan []byte, sendChannelSize),
		connected:      true,
		pending:        make(map[string]*pendingRequest),
		handlers:       make(map[string]map[int]Handler),
		stateHandlers:  make(map[int]func(bool)),
		doneChan:       make(chan struct{}),
	}
	go s.readLoop()
	go s.writeLoop()
	if username != "" {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		resp, err := s.SendRequest(ctx, types.ActionLogin, map[string]string{
			"Username": username,
			"Secret":   secret,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		if !resp.Success {
			s.Close()
			return nil, &LoginError{Message: resp.Message}
		}
	}
	return s, nil
}

type LoginError struct {
	Message string
}

func (e *LoginError) Error() string { return "transport: login rejected: " + e.Message }

func (s *WSSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// SendRequest performs one action round trip, collecting list-item events
// that carry the same action id until the terminal response arrives.
func (s *WSSession) SendRequest(ctx context.Context, action string, args map[string]string) (*Response, error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil, ErrNoTransport
	}
	s.nextAction++
	actionId := strconv.FormatUint(s.nextAction, 10)
	p := &pendingRequest{ch: make(chan *Response, 1)}
	s.pending[actionId] = p
	s.mu.Unlock()

	frame := types.WireFrame{
		Type:     types.WireTypeAction,
		ActionId: actionId,
		Name:     action,
		Fields:   args,
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		s.dropPending(actionId)
		return nil, err
	}
	select {
	case s.send <- raw:
	case <-s.doneChan:
		s.dropPending(actionId)
		return nil, ErrNoTransport
	}

	timer := time.NewTimer(s.requestTimeout)
	defer timer.Stop()
	select {
	case resp := <-p.ch:
		return resp, nil
	case <-timer.C:
		s.dropPending(actionId)
		return nil, ErrTimeout
	case <-ctx.Done():
		s.dropPending(actionId)
		return nil, ctx.Err()
	case <-s.doneChan:
		s.dropPending(actionId)
		return nil, ErrNoTransport
	}
}

func (s *WSSession) dropPending(actionId string) {
	s.mu.Lock()
	delete(s.pending, actionId)
	s.mu.Unlock()
}

func (s *WSSession) Subscribe(event string, handler Handler) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	if s.handlers[event] == nil {
		s.handlers[event] = make(map[int]Handler)
	}
	s.handlers[event][id] = handler
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers[event], id)
	}
}

func (s *WSSession) SubscribeState(handler func(connected bool)) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.stateHandlers[id] = handler
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.stateHandlers, id)
	}
}

func (s *WSSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.doneChan)
		s.conn.Close()
		s.markDisconnected()
	})
	return nil
}

func (s *WSSession) markDisconnected() {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = false
	handlers := make([]func(bool), 0, len(s.stateHandlers))
	for _, h := range s.stateHandlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(false)
	}
}

// readLoop pumps frames from the websocket connection to the pending
// requests and event handlers.
//
// There is at most one reader on a connection, all reads happen in this
// goroutine, so unsolicited events are dispatched in delivery order.
func (s *WSSession) readLoop() {
	defer func() {
		s.conn.Close()
		s.markDisconnected()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("manager connection closed unexpectedly", "error", err)
			}
			return
		}
		frame := types.WireFrame{}
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.log.Warn("could not unmarshal manager frame, dropped", "error", err)
			continue
		}
		switch frame.Type {
		case types.WireTypeEvent:
			if frame.ActionId != "" {
				s.mu.Lock()
				if p, ok := s.pending[frame.ActionId]; ok {
					p.events = append(p.events, ListItem{Name: frame.Name, Fields: frame.Fields})
				}
				s.mu.Unlock()
				continue
			}
			s.dispatchEvent(frame.Name, frame.Fields)

		case types.WireTypeResponse:
			s.mu.Lock()
			p, ok := s.pending[frame.ActionId]
			if ok {
				delete(s.pending, frame.ActionId)
			}
			s.mu.Unlock()
			if !ok {
				// response to a request that timed out or was cancelled
				continue
			}
			p.ch <- &Response{
				Success: frame.Fields["Response"] == types.ResponseSuccess,
				Message: frame.Fields["Message"],
				Fields:  frame.Fields,
				Events:  p.events,
			}

		default:
			s.log.Warn("unknown frame type, dropped", "type", frame.Type)
		}
	}
}

func (s *WSSession) dispatchEvent(name string, payload types.JSONStringMap) {
	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.handlers[name]))
	for _, h := range s.handlers[name] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

// writeLoop pumps outbound frames to the websocket connection and keeps the
// connection alive with pings. All writes happen in this goroutine.
func (s *WSSession) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case raw := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				s.log.Info("could not write to manager connection, exiting write loop")
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Info("could not send ping message, exiting write loop")
				return
			}

		case <-s.doneChan:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
