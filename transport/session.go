// Package transport provides the connection to the manager. The mirror only
// depends on the Session interface; the websocket implementation lives in
// ws.go.
package transport

import (
	"context"
	"errors"

	"github.com/tcriess/lightspeed-pbx/types"
)

var (
	// ErrNoTransport is returned when a request is attempted without a
	// connected session. The caller's store is left untouched.
	ErrNoTransport = errors.New("transport: not connected")
	// ErrTimeout is returned when the manager did not answer a request in
	// time. Distinct from a remote rejection: a timeout is plausibly
	// transient, a rejection is not.
	ErrTimeout = errors.New("transport: request timed out")
)

// Response is the terminal answer to one action, together with the list-item
// events the manager bundled with it.
type Response struct {
	Success bool
	Message string
	Fields  types.JSONStringMap
	Events  []ListItem
}

// ListItem is one list-style event belonging to a request.
type ListItem struct {
	Name   string
	Fields types.JSONStringMap
}

type Handler func(payload map[string]string)

type Unsubscribe func()

type Session interface {
	// SendRequest performs one action round trip. It returns ErrNoTransport
	// when disconnected and ErrTimeout when the manager does not answer
	// within the session's request timeout. A remote rejection is not an
	// error: it yields a Response with Success=false.
	SendRequest(ctx context.Context, action string, args map[string]string) (*Response, error)

	// Subscribe registers a handler for an unsolicited event. Handlers for
	// one event are invoked in delivery order on the read loop, so they must
	// not block.
	Subscribe(event string, handler Handler) Unsubscribe

	// SubscribeState registers a handler invoked when the connection state
	// changes.
	SubscribeState(handler func(connected bool)) Unsubscribe

	IsConnected() bool

	Close() error
}
