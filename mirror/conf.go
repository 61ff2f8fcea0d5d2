package mirror

import (
	"context"
	"strconv"
	"time"

	"github.com/tcriess/lightspeed-pbx/transport"
	"github.com/tcriess/lightspeed-pbx/types"
)

// Conference bridge reconciliation: rooms and participants.
//
// The apply* functions run with the mirror lock held (they are reached via
// dispatchLocked or an ingest callback). They return the room id whose
// participant set changed so listeners can be notified after the lock is
// released.

func (m *Mirror) applyJoin(payload map[string]string) string {
	rec, err := types.DecodeParticipantRecord(payload)
	if err != nil {
		m.log.Warn("dropped malformed join event", "error", err)
		return ""
	}
	if rec.Conference == "" {
		m.log.Warn("dropped join event without Conference field", "channel", rec.Channel)
		return ""
	}
	_, existed := m.participants.Get(rec.Channel)
	now := time.Now()
	m.participants.Upsert(rec.Channel, func(p types.Participant, found bool) types.Participant {
		if !found {
			p.Channel = rec.Channel
			p.JoinedAt = now
		}
		p.Room = rec.Conference
		p.CallerNumber = rec.CallerIDNum
		p.CallerName = rec.CallerIDName
		p.IsAdmin = rec.Admin
		p.IsMarked = rec.Marked
		p.IsMuted = rec.Muted
		p.IsSelf = rec.Channel == m.selfChannel
		if rec.AudioLevel != nil {
			lvl := *rec.AudioLevel
			p.AudioLevel = &lvl
		}
		return p
	})
	delta := 0
	if !existed {
		delta = 1
	}
	m.recountRoom(rec.Conference, delta)
	return rec.Conference
}

func (m *Mirror) applyLeave(payload map[string]string) string {
	rec, err := types.DecodeParticipantRecord(payload)
	if err != nil {
		m.log.Warn("dropped malformed leave event", "error", err)
		return ""
	}
	// a leave for a channel we never learned about is a no-op, in particular
	// no count may be decremented (duplicate delivery protection)
	p, ok := m.participants.Get(rec.Channel)
	if !ok {
		return ""
	}
	m.participants.Remove(rec.Channel)
	// recount the room the participant was actually in; the payload may omit
	// the Conference field
	m.recountRoom(p.Room, -1)
	return p.Room
}

func (m *Mirror) applyTalking(payload map[string]string) string {
	rec, err := types.DecodeParticipantRecord(payload)
	if err != nil {
		m.log.Warn("dropped malformed talking event", "error", err)
		return ""
	}
	_, existed := m.participants.Get(rec.Channel)
	now := time.Now()
	m.participants.Upsert(rec.Channel, func(p types.Participant, found bool) types.Participant {
		if !found {
			p.Channel = rec.Channel
			p.Room = rec.Conference
			p.CallerNumber = rec.CallerIDNum
			p.CallerName = rec.CallerIDName
			p.IsSelf = rec.Channel == m.selfChannel
			p.JoinedAt = now
		}
		p.IsTalking = rec.Talking
		if rec.AudioLevel != nil {
			lvl := *rec.AudioLevel
			p.AudioLevel = &lvl
		}
		return p
	})
	if !existed {
		m.recountRoom(rec.Conference, 1)
	}
	return rec.Conference
}

func (m *Mirror) applyMuteFlag(payload map[string]string, muted bool) string {
	rec, err := types.DecodeParticipantRecord(payload)
	if err != nil {
		m.log.Warn("dropped malformed mute event", "error", err)
		return ""
	}
	_, existed := m.participants.Get(rec.Channel)
	now := time.Now()
	m.participants.Upsert(rec.Channel, func(p types.Participant, found bool) types.Participant {
		if !found {
			p.Channel = rec.Channel
			p.Room = rec.Conference
			p.IsSelf = rec.Channel == m.selfChannel
			p.JoinedAt = now
		}
		p.IsMuted = muted
		return p
	})
	if !existed {
		m.recountRoom(rec.Conference, 1)
	}
	return rec.Conference
}

func (m *Mirror) applyHoldFlag(payload map[string]string, onHold bool) string {
	channel := payload["Channel"]
	if channel == "" {
		m.log.Warn("dropped hold event without Channel field")
		return ""
	}
	room := ""
	m.participants.Update(channel, func(p types.Participant) types.Participant {
		p.IsOnHold = onHold
		room = p.Room
		return p
	})
	return room
}

func (m *Mirror) applyRoomFlag(payload map[string]string, set func(r *types.Room)) {
	rec, err := types.DecodeRoomRecord(payload)
	if err != nil {
		m.log.Warn("dropped malformed room event", "error", err)
		return
	}
	m.rooms.Upsert(rec.Conference, func(r types.Room, found bool) types.Room {
		if !found {
			r.Id = rec.Conference
		}
		set(&r)
		return r
	})
}

// recountRoom keeps Room.ParticipantCount consistent. For a room whose
// participant store has been fully synchronized the count is recomputed from
// the store; before that the running count is adjusted by delta, clamped at
// zero. Called with the mirror lock held.
func (m *Mirror) recountRoom(room string, delta int) {
	synced := m.syncedRooms[room]
	count, marked := 0, 0
	if synced {
		for _, p := range m.participants.Filter(func(p types.Participant) bool { return p.Room == room }) {
			count++
			if p.IsMarked {
				marked++
			}
		}
	}
	m.rooms.Upsert(room, func(r types.Room, found bool) types.Room {
		if !found {
			r.Id = room
		}
		if synced {
			r.ParticipantCount = count
			r.MarkedCount = marked
		} else {
			r.ParticipantCount += delta
			if r.ParticipantCount < 0 {
				r.ParticipantCount = 0
			}
		}
		return r
	})
}

// RefreshRooms replaces the room store with a fresh unscoped snapshot.
// Participants of rooms that no longer exist are pruned as well.
func (m *Mirror) RefreshRooms(ctx context.Context) error {
	return m.runListAction(ctx, scopeRooms, types.ActionConfbridgeListRooms, nil, func(items []transport.ListItem) {
		batch := make([]types.Room, 0, len(items))
		known := make(map[string]struct{}, len(items))
		for _, item := range items {
			if item.Name != types.EventConfbridgeListRooms {
				continue
			}
			rec, err := types.DecodeRoomRecord(item.Fields)
			if err != nil {
				m.log.Warn("dropped malformed room record", "error", err)
				continue
			}
			room := types.Room{
				Id:               rec.Conference,
				ParticipantCount: rec.Parties,
				MarkedCount:      rec.Marked,
				Locked:           rec.Locked,
				Muted:            rec.Muted,
				Recording:        rec.Recording,
				Raw:              item.Fields,
			}
			if m.syncedRooms[rec.Conference] {
				room.ParticipantCount = 0
				room.MarkedCount = 0
				for _, p := range m.participants.Filter(func(p types.Participant) bool { return p.Room == rec.Conference }) {
					room.ParticipantCount++
					if p.IsMarked {
						room.MarkedCount++
					}
				}
			}
			known[rec.Conference] = struct{}{}
			batch = append(batch, room)
		}
		m.rooms.Replace(batch)
		for room := range m.syncedRooms {
			if _, ok := known[room]; !ok {
				delete(m.syncedRooms, room)
			}
		}
		for _, p := range m.participants.All() {
			if _, ok := known[p.Room]; !ok {
				m.participants.Remove(p.Channel)
			}
		}
	})
}

// RefreshParticipants replaces the participants of one room with a fresh
// scoped snapshot. Participants of other rooms are untouched.
func (m *Mirror) RefreshParticipants(ctx context.Context, room string) error {
	args := map[string]string{"Conference": room}
	err := m.runListAction(ctx, scopeParticipants(room), types.ActionConfbridgeList, args, func(items []transport.ListItem) {
		now := time.Now()
		batch := make([]types.Participant, 0, len(items))
		for _, item := range items {
			if item.Name != types.EventConfbridgeList {
				continue
			}
			rec, err := types.DecodeParticipantRecord(item.Fields)
			if err != nil {
				m.log.Warn("dropped malformed participant record", "error", err)
				continue
			}
			p := types.Participant{
				Channel:      rec.Channel,
				Room:         room,
				CallerNumber: rec.CallerIDNum,
				CallerName:   rec.CallerIDName,
				IsAdmin:      rec.Admin,
				IsMarked:     rec.Marked,
				IsMuted:      rec.Muted,
				IsTalking:    rec.Talking,
				IsOnHold:     rec.Hold,
				IsSelf:       rec.Channel == m.selfChannel,
				JoinedAt:     now,
			}
			if rec.AudioLevel != nil {
				lvl := *rec.AudioLevel
				p.AudioLevel = &lvl
			}
			if old, ok := m.participants.Get(rec.Channel); ok {
				p.JoinedAt = old.JoinedAt
				if rec.AudioLevel == nil {
					p.AudioLevel = old.AudioLevel
				}
			}
			batch = append(batch, p)
		}
		m.participants.ReplaceWhere(func(p types.Participant) bool { return p.Room == room }, batch)
		m.syncedRooms[room] = true
		m.recountRoom(room, 0)
	})
	if err == nil {
		m.notifyParticipants(room)
	}
	return err
}

// MuteParticipant mutes one channel. The local flag is set optimistically
// before the round trip; a rejection leaves it in place (see invoke).
func (m *Mirror) MuteParticipant(ctx context.Context, channel string) (Result, error) {
	return m.setMuteFlag(ctx, channel, types.ActionConfbridgeMute, true)
}

func (m *Mirror) UnmuteParticipant(ctx context.Context, channel string) (Result, error) {
	return m.setMuteFlag(ctx, channel, types.ActionConfbridgeUnmute, false)
}

func (m *Mirror) setMuteFlag(ctx context.Context, channel, action string, muted bool) (Result, error) {
	args := map[string]string{"Channel": channel}
	if p, ok := m.participants.Get(channel); ok {
		args["Conference"] = p.Room
	}
	return m.invoke(ctx, action, args, channel, func() string {
		room := ""
		m.participants.Update(channel, func(p types.Participant) types.Participant {
			p.IsMuted = muted
			room = p.Room
			return p
		})
		return room
	})
}

// KickParticipant removes one channel from its room. Optimistically the
// participant is dropped locally right away.
func (m *Mirror) KickParticipant(ctx context.Context, channel string) (Result, error) {
	args := map[string]string{"Channel": channel}
	room := ""
	if p, ok := m.participants.Get(channel); ok {
		args["Conference"] = p.Room
		room = p.Room
	}
	return m.invoke(ctx, types.ActionConfbridgeKick, args, channel, func() string {
		if _, ok := m.participants.Get(channel); !ok {
			return ""
		}
		m.participants.Remove(channel)
		m.mu.Lock()
		m.recountRoom(room, -1)
		m.mu.Unlock()
		return room
	})
}

// SetVolume adjusts the listening volume of one channel. There is no local
// field to update optimistically.
func (m *Mirror) SetVolume(ctx context.Context, channel string, level int) (Result, error) {
	args := map[string]string{"Channel": channel, "Volume": strconv.Itoa(level)}
	if p, ok := m.participants.Get(channel); ok {
		args["Conference"] = p.Room
	}
	return m.invoke(ctx, types.ActionConfbridgeSetVolume, args, channel, nil)
}

func (m *Mirror) LockRoom(ctx context.Context, room string) (Result, error) {
	return m.setRoomFlag(ctx, room, types.ActionConfbridgeLock, func(r *types.Room) { r.Locked = true })
}

func (m *Mirror) UnlockRoom(ctx context.Context, room string) (Result, error) {
	return m.setRoomFlag(ctx, room, types.ActionConfbridgeUnlock, func(r *types.Room) { r.Locked = false })
}

func (m *Mirror) StartRecording(ctx context.Context, room string) (Result, error) {
	return m.setRoomFlag(ctx, room, types.ActionConfbridgeStartRec, func(r *types.Room) { r.Recording = true })
}

func (m *Mirror) StopRecording(ctx context.Context, room string) (Result, error) {
	return m.setRoomFlag(ctx, room, types.ActionConfbridgeStopRec, func(r *types.Room) { r.Recording = false })
}

func (m *Mirror) setRoomFlag(ctx context.Context, room, action string, set func(r *types.Room)) (Result, error) {
	args := map[string]string{"Conference": room}
	return m.invoke(ctx, action, args, room, func() string {
		m.rooms.Update(room, func(r types.Room) types.Room {
			set(&r)
			return r
		})
		return ""
	})
}
