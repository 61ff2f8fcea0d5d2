package mirror

import (
	"context"
	"time"

	"github.com/tcriess/lightspeed-pbx/transport"
	"github.com/tcriess/lightspeed-pbx/types"
)

// SIP endpoint reconciliation: endpoints and their registered contacts.

func (m *Mirror) applyDeviceState(payload map[string]string) {
	device := payload["Device"]
	if device == "" {
		m.log.Warn("dropped device state event without Device field")
		return
	}
	state := payload["State"]
	m.endpoints.Upsert(device, func(e types.Endpoint, found bool) types.Endpoint {
		if !found {
			e.Id = device
		}
		e.DeviceState = state
		return e
	})
}

func (m *Mirror) applyContactStatus(payload map[string]string) {
	rec, err := types.DecodeContactRecord(payload)
	if err != nil {
		m.log.Warn("dropped malformed contact status event", "error", err)
		return
	}
	if payload["ContactStatus"] == "Removed" {
		m.contacts.Remove(rec.Uri)
		m.endpoints.Update(rec.EndpointName, func(e types.Endpoint) types.Endpoint {
			e.ContactUris = removeString(e.ContactUris, rec.Uri)
			return e
		})
		return
	}
	m.contacts.Upsert(rec.Uri, func(c types.Contact, found bool) types.Contact {
		if !found {
			c.Uri = rec.Uri
		}
		c.Endpoint = rec.EndpointName
		if rec.Status != "" {
			c.Status = rec.Status
		}
		if rec.RoundtripMs > 0 {
			c.RoundTripMs = rec.RoundtripMs
		}
		if rec.Expiration > 0 {
			c.ExpiresAt = time.Unix(rec.Expiration, 0)
		}
		return c
	})
	m.endpoints.Update(rec.EndpointName, func(e types.Endpoint) types.Endpoint {
		e.ContactUris = addString(e.ContactUris, rec.Uri)
		return e
	})
}

// RefreshEndpoints replaces the endpoint store with a fresh unscoped
// snapshot. The contact back-references are carried over, the contact store
// itself is only touched by RefreshContacts.
func (m *Mirror) RefreshEndpoints(ctx context.Context) error {
	return m.runListAction(ctx, scopeEndpoints, types.ActionPJSIPShowEndpoints, nil, func(items []transport.ListItem) {
		batch := make([]types.Endpoint, 0, len(items))
		for _, item := range items {
			if item.Name != types.EventEndpointList {
				continue
			}
			rec, err := types.DecodeEndpointRecord(item.Fields)
			if err != nil {
				m.log.Warn("dropped malformed endpoint record", "error", err)
				continue
			}
			e := types.Endpoint{
				Id:          rec.ObjectName,
				DeviceState: rec.DeviceState,
				Transport:   rec.Transport,
				Raw:         item.Fields,
			}
			if old, ok := m.endpoints.Get(rec.ObjectName); ok {
				e.ContactUris = old.ContactUris
			}
			batch = append(batch, e)
		}
		m.endpoints.Replace(batch)
	})
}

// RefreshContacts replaces the contact store with a fresh unscoped snapshot
// and rebuilds the endpoint back-reference sets from it.
func (m *Mirror) RefreshContacts(ctx context.Context) error {
	return m.runListAction(ctx, scopeContacts, types.ActionPJSIPShowContacts, nil, func(items []transport.ListItem) {
		batch := make([]types.Contact, 0, len(items))
		for _, item := range items {
			if item.Name != types.EventContactList {
				continue
			}
			rec, err := types.DecodeContactRecord(item.Fields)
			if err != nil {
				m.log.Warn("dropped malformed contact record", "error", err)
				continue
			}
			c := types.Contact{
				Uri:         rec.Uri,
				Endpoint:    rec.EndpointName,
				Status:      rec.Status,
				RoundTripMs: rec.RoundtripMs,
			}
			if rec.Expiration > 0 {
				c.ExpiresAt = time.Unix(rec.Expiration, 0)
			}
			batch = append(batch, c)
		}
		m.contacts.Replace(batch)
		uris := make(map[string][]string)
		for _, c := range batch {
			uris[c.Endpoint] = append(uris[c.Endpoint], c.Uri)
		}
		for _, e := range m.endpoints.All() {
			endpoint := e.Id
			m.endpoints.Update(endpoint, func(e types.Endpoint) types.Endpoint {
				e.ContactUris = uris[endpoint]
				return e
			})
		}
	})
}

// QualifyContact asks the manager to qualify all contacts of an endpoint.
func (m *Mirror) QualifyContact(ctx context.Context, endpoint string) (Result, error) {
	args := map[string]string{"Endpoint": endpoint}
	return m.invoke(ctx, types.ActionPJSIPQualify, args, endpoint, nil)
}

// RegisterEndpoint triggers an outbound registration for an endpoint.
func (m *Mirror) RegisterEndpoint(ctx context.Context, endpoint string) (Result, error) {
	args := map[string]string{"Endpoint": endpoint}
	return m.invoke(ctx, types.ActionPJSIPRegister, args, endpoint, nil)
}

func addString(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
