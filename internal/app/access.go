package app

import (
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// AccessControl answers who may enter a chat room. Only GrantAccess mutates.
type AccessControl struct {
	rooms *RoomManager
}

func NewAccessControl(rooms *RoomManager) *AccessControl {
	return &AccessControl{rooms: rooms}
}

// accessibleBy must be called with the room lock held.
func (r *chatRoom) accessibleBy(sid core.SessionID) bool {
	if !r.isPrivate {
		return true
	}
	if sid == r.creatorID {
		return true
	}
	_, ok := r.allowed[sid]
	return ok
}

func (a *AccessControl) CanAccess(name domain.RoomName, sid core.SessionID) bool {
	room, ok := a.rooms.get(name)
	if !ok {
		return false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.accessibleBy(sid)
}

// VerifyPassword compares in clear text. A private room without a password
// admits only its allow-list.
func (a *AccessControl) VerifyPassword(name domain.RoomName, candidate string) bool {
	room, ok := a.rooms.get(name)
	if !ok {
		return false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.isPrivate && room.password != "" && candidate == room.password
}

// GrantAccess is a no-op for public or missing rooms.
func (a *AccessControl) GrantAccess(name domain.RoomName, sid core.SessionID) bool {
	room, ok := a.rooms.get(name)
	if !ok {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if !room.isPrivate {
		return false
	}
	room.allowed[sid] = struct{}{}
	log.Info().Str("module", "app.access").Str("room", string(name)).Str("sid", string(sid)).Msg("access granted")
	return true
}

func (a *AccessControl) IsCreator(name domain.RoomName, sid core.SessionID) bool {
	room, ok := a.rooms.get(name)
	if !ok {
		return false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.creatorID == sid
}

func (a *AccessControl) IsPrivate(name domain.RoomName) bool {
	room, ok := a.rooms.get(name)
	if !ok {
		return false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.isPrivate
}
