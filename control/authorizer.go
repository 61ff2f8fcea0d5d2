// Package control gates participant actions on role and self-identity and
// dispatches the allowed ones through the mirror. A disallowed action is a
// silent no-op, not an error: the UI is expected to disable the control
// proactively, and a permission revoked mid-click is not exceptional.
package control

import (
	"context"
	"sync"

	"github.com/tcriess/lightspeed-pbx/layout"
	"github.com/tcriess/lightspeed-pbx/mirror"
)

type Authorizer struct {
	mirror *mirror.Mirror
	layout *layout.State

	mu        sync.Mutex
	moderator bool
}

func NewAuthorizer(m *mirror.Mirror, st *layout.State, moderator bool) *Authorizer {
	return &Authorizer{mirror: m, layout: st, moderator: moderator}
}

func (a *Authorizer) SetModerator(moderator bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.moderator = moderator
}

func (a *Authorizer) IsModerator() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.moderator
}

// CanMute requires the participant to still be connected.
func (a *Authorizer) CanMute(channel string) bool {
	_, ok := a.mirror.Participant(channel)
	return ok
}

// CanKick requires a moderator and forbids self-kick, regardless of any
// other participant state.
func (a *Authorizer) CanKick(channel string) bool {
	p, ok := a.mirror.Participant(channel)
	if !ok {
		return false
	}
	return a.IsModerator() && !p.IsSelf
}

// CanPin requires the participant to still be connected.
func (a *Authorizer) CanPin(channel string) bool {
	_, ok := a.mirror.Participant(channel)
	return ok
}

func (a *Authorizer) Mute(ctx context.Context, channel string) (mirror.Result, error) {
	if !a.CanMute(channel) {
		return mirror.Result{Id: channel}, nil
	}
	return a.mirror.MuteParticipant(ctx, channel)
}

func (a *Authorizer) Unmute(ctx context.Context, channel string) (mirror.Result, error) {
	if !a.CanMute(channel) {
		return mirror.Result{Id: channel}, nil
	}
	return a.mirror.UnmuteParticipant(ctx, channel)
}

func (a *Authorizer) Kick(ctx context.Context, channel string) (mirror.Result, error) {
	if !a.CanKick(channel) {
		return mirror.Result{Id: channel}, nil
	}
	return a.mirror.KickParticipant(ctx, channel)
}

func (a *Authorizer) SetVolume(ctx context.Context, channel string, level int) (mirror.Result, error) {
	if !a.CanMute(channel) {
		return mirror.Result{Id: channel}, nil
	}
	return a.mirror.SetVolume(ctx, channel, level)
}

// CanManageRoom requires a moderator and an existing room.
func (a *Authorizer) CanManageRoom(room string) bool {
	_, ok := a.mirror.Room(room)
	return ok && a.IsModerator()
}

func (a *Authorizer) Lock(ctx context.Context, room string) (mirror.Result, error) {
	if !a.CanManageRoom(room) {
		return mirror.Result{Id: room}, nil
	}
	return a.mirror.LockRoom(ctx, room)
}

func (a *Authorizer) Unlock(ctx context.Context, room string) (mirror.Result, error) {
	if !a.CanManageRoom(room) {
		return mirror.Result{Id: room}, nil
	}
	return a.mirror.UnlockRoom(ctx, room)
}

func (a *Authorizer) StartRecording(ctx context.Context, room string) (mirror.Result, error) {
	if !a.CanManageRoom(room) {
		return mirror.Result{Id: room}, nil
	}
	return a.mirror.StartRecording(ctx, room)
}

func (a *Authorizer) StopRecording(ctx context.Context, room string) (mirror.Result, error) {
	if !a.CanManageRoom(room) {
		return mirror.Result{Id: room}, nil
	}
	return a.mirror.StopRecording(ctx, room)
}

// Pin is a purely local action on the layout state. It reports whether the
// pin was applied.
func (a *Authorizer) Pin(channel string) bool {
	if !a.CanPin(channel) {
		return false
	}
	a.layout.Pin(channel)
	return true
}

func (a *Authorizer) Unpin() {
	a.layout.Unpin()
}
