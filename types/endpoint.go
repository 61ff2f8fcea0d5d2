package types

import "time"

// Endpoint is a SIP endpoint (the configuration object), Contact is one
// registered binding of such an endpoint. A contact belongs to exactly one
// endpoint; the endpoint only keeps the contact URIs as a weak reference,
// the contact entities live in their own store.
type Endpoint struct {
	Id          string        `json:"id"`
	DeviceState string        `json:"device_state"`
	Transport   string        `json:"transport"`
	ContactUris []string      `json:"contact_uris"`
	Raw         JSONStringMap `json:"-"`
}

func (e Endpoint) Key() string { return e.Id }

// Online reports whether the endpoint is currently usable according to its
// device state.
func (e Endpoint) Online() bool {
	switch e.DeviceState {
	case "Not in use", "In use", "Busy", "Ringing":
		return true
	}
	return false
}

type Contact struct {
	Uri         string    `json:"uri"`
	Endpoint    string    `json:"endpoint"`
	Status      string    `json:"status"`
	RoundTripMs float64   `json:"round_trip_ms"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (c Contact) Key() string { return c.Uri }

func (c Contact) Reachable() bool { return c.Status == "Reachable" }
