package mirror

import "github.com/tcriess/lightspeed-pbx/types"

// Read-only views over the reconciled stores. All of them return copies; the
// mirror stays the only writer.

func (m *Mirror) Rooms() []types.Room { return m.rooms.All() }

func (m *Mirror) Room(id string) (types.Room, bool) { return m.rooms.Get(id) }

func (m *Mirror) Participants(room string) []types.Participant {
	return m.participants.Filter(func(p types.Participant) bool { return p.Room == room })
}

func (m *Mirror) AllParticipants() []types.Participant { return m.participants.All() }

func (m *Mirror) Participant(channel string) (types.Participant, bool) {
	return m.participants.Get(channel)
}

func (m *Mirror) Endpoints() []types.Endpoint { return m.endpoints.All() }

func (m *Mirror) Endpoint(id string) (types.Endpoint, bool) { return m.endpoints.Get(id) }

func (m *Mirror) OnlineEndpoints() []types.Endpoint {
	return m.endpoints.Filter(types.Endpoint.Online)
}

func (m *Mirror) OfflineEndpoints() []types.Endpoint {
	return m.endpoints.Filter(func(e types.Endpoint) bool { return !e.Online() })
}

func (m *Mirror) Contacts() []types.Contact { return m.contacts.All() }

func (m *Mirror) ContactsOf(endpoint string) []types.Contact {
	return m.contacts.Filter(func(c types.Contact) bool { return c.Endpoint == endpoint })
}

func (m *Mirror) Mailboxes() []types.Mailbox { return m.mailboxes.All() }

func (m *Mirror) MailboxesWithNew() []types.Mailbox {
	return m.mailboxes.Filter(types.Mailbox.IndicatorOn)
}

// SeedRooms pre-populates the room store, typically from the persister at
// startup so users see last-known data before the first refresh completes.
// Seeding does not mark the store live.
func (m *Mirror) SeedRooms(rooms []types.Room) {
	for _, r := range rooms {
		room := r
		m.rooms.Upsert(room.Id, func(_ types.Room, found bool) types.Room {
			return room
		})
	}
}

// SeedMailboxes pre-populates the mailbox store, see SeedRooms.
func (m *Mirror) SeedMailboxes(boxes []types.Mailbox) {
	for _, b := range boxes {
		box := b
		m.mailboxes.Upsert(box.Id, func(_ types.Mailbox, found bool) types.Mailbox {
			return box
		})
	}
}
