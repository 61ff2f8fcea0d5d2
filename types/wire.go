package types

const (
	WireTypeAction   = "action"
	WireTypeResponse = "response"
	WireTypeEvent    = "event"
)

const (
	ResponseSuccess = "Success"
	ResponseError   = "Error"
)

// JSON-serialized WireFrame is what is actually sent via the manager
// connection. Actions carry an ActionId; the manager echoes it on the
// terminal response and on every list-item event belonging to the action.
// Unsolicited events have no ActionId.
type WireFrame struct {
	Type     string        `json:"type"`
	ActionId string        `json:"action_id,omitempty"`
	Name     string        `json:"name,omitempty"`
	Fields   JSONStringMap `json:"fields,omitempty"`
}
