package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tcriess/lightspeed-pbx/types"
)

func TestUpsertIdempotent(t *testing.T) {
	s := New[types.Room]()
	apply := func(r types.Room, found bool) types.Room {
		r.Id = "main"
		r.Locked = true
		return r
	}
	s.Upsert("main", apply)
	s.Upsert("main", apply)
	assert.Equal(t, 1, s.Len())
	room, ok := s.Get("main")
	assert.True(t, ok)
	assert.True(t, room.Locked)

	s.Upsert("", apply) // empty ids are dropped
	assert.Equal(t, 1, s.Len())
}

func TestUpdateAbsent(t *testing.T) {
	s := New[types.Room]()
	found := s.Update("ghost", func(r types.Room) types.Room {
		r.Locked = true
		return r
	})
	assert.False(t, found)
	assert.Equal(t, 0, s.Len())
}

func TestAllSorted(t *testing.T) {
	s := New[types.Room]()
	for _, id := range []string{"c", "a", "b"} {
		rid := id
		s.Upsert(rid, func(r types.Room, found bool) types.Room {
			r.Id = rid
			return r
		})
	}
	all := s.All()
	assert.Equal(t, 3, len(all))
	assert.Equal(t, "a", all[0].Id)
	assert.Equal(t, "b", all[1].Id)
	assert.Equal(t, "c", all[2].Id)
}

func TestReplaceWhere(t *testing.T) {
	s := New[types.Participant]()
	for _, p := range []types.Participant{
		{Channel: "PJSIP/alice-1", Room: "main"},
		{Channel: "PJSIP/bob-1", Room: "main"},
		{Channel: "PJSIP/carol-1", Room: "other"},
	} {
		pp := p
		s.Upsert(pp.Channel, func(e types.Participant, found bool) types.Participant { return pp })
	}
	s.ReplaceWhere(func(p types.Participant) bool { return p.Room == "main" }, []types.Participant{
		{Channel: "PJSIP/dave-1", Room: "main"},
	})
	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("PJSIP/alice-1")
	assert.False(t, ok)
	_, ok = s.Get("PJSIP/carol-1")
	assert.True(t, ok)
	_, ok = s.Get("PJSIP/dave-1")
	assert.True(t, ok)
}

func TestFilterAndCount(t *testing.T) {
	s := New[types.Participant]()
	for i, muted := range []bool{true, false, true} {
		p := types.Participant{Channel: string(rune('a' + i)), Room: "main", IsMuted: muted}
		s.Upsert(p.Channel, func(e types.Participant, found bool) types.Participant { return p })
	}
	muted := s.Filter(func(p types.Participant) bool { return p.IsMuted })
	assert.Equal(t, 2, len(muted))
	assert.Equal(t, 2, s.Count(func(p types.Participant) bool { return p.IsMuted }))
	assert.Equal(t, 1, s.Count(func(p types.Participant) bool { return !p.IsMuted }))
}

func TestLiveFlag(t *testing.T) {
	s := New[types.Room]()
	assert.False(t, s.Live())
	s.SetLive(true)
	assert.True(t, s.Live())
	s.Upsert("main", func(r types.Room, found bool) types.Room { r.Id = "main"; return r })
	s.SetLive(false)
	assert.False(t, s.Live())
	// stale data stays readable
	assert.Equal(t, 1, s.Len())
}
