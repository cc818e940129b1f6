package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Departure lists what a disconnect took sid out of.
type Departure struct {
	ChatRoom   domain.RoomName
	VoiceRooms []domain.RoomName
}

// JoinVoice enters the voice room. A chat room of the same name that is
// private gates the voice room too.
func (o *Orchestrator) JoinVoice(ctx context.Context, sid core.SessionID, name domain.RoomName) ([]domain.VoiceMember, error) {
	name, err := o.normalizeRoomName(name)
	if err != nil {
		return nil, err
	}
	if o.Rooms.Has(name) && !o.Access.CanAccess(name, sid) {
		return nil, fmt.Errorf("%w: room %q is private", domain.ErrUnauthorized, name)
	}
	return o.Voice.Join(ctx, name, sid, o.Registry.DisplayName(sid))
}

func (o *Orchestrator) LeaveVoice(sid core.SessionID, name domain.RoomName) bool {
	return o.Voice.Leave(name, sid)
}

// OnDisconnect removes sid from its chat room and every voice room, then
// forgets the connection.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) Departure {
	var d Departure
	if room, ok := o.Registry.RoomOf(sid); ok {
		if o.Rooms.RemoveUser(room, sid) {
			d.ChatRoom = room
		}
	}
	for _, room := range o.Rooms.RoomsContaining(sid) {
		o.Rooms.RemoveUser(room, sid)
	}
	for _, room := range o.Voice.RoomsOf(sid) {
		if o.Voice.Leave(room, sid) {
			d.VoiceRooms = append(d.VoiceRooms, room)
		}
	}
	o.Registry.Unbind(sid)
	log.Info().
		Str("module", "orch").
		Str("sid", string(sid)).
		Str("room", string(d.ChatRoom)).
		Int("voice_rooms", len(d.VoiceRooms)).
		Msg("connection cleaned up")
	return d
}
