package orch

import (
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// JoinResult is what a successful chat join changed.
type JoinResult struct {
	Room      domain.RoomName
	Previous  domain.RoomName // empty when the connection was in no room
	Members   []domain.Member
	CreatorID core.SessionID
	Messages  []domain.Message
}

func (o *Orchestrator) normalizeRoomName(name domain.RoomName) (domain.RoomName, error) {
	trimmed := domain.RoomName(strings.TrimSpace(string(name)))
	if trimmed == "" {
		return "", fmt.Errorf("%w: room name is empty", domain.ErrInvalidRequest)
	}
	if o.MaxRoomNameLen > 0 && len(trimmed) > o.MaxRoomNameLen {
		return "", fmt.Errorf("%w: room name longer than %d", domain.ErrInvalidRequest, o.MaxRoomNameLen)
	}
	return trimmed, nil
}

// CreateRoom is idempotent: an existing room keeps its first settings and
// created is false.
func (o *Orchestrator) CreateRoom(sid core.SessionID, name domain.RoomName, isPrivate bool, password string) (domain.RoomName, bool, error) {
	name, err := o.normalizeRoomName(name)
	if err != nil {
		return "", false, err
	}
	return name, o.Rooms.CreateRoom(name, sid, isPrivate, password), nil
}

// JoinRoom moves sid into name, leaving its previous chat room. A correct
// password adds sid to the allow-list for good. On error the result still
// reports a previous room that was left.
func (o *Orchestrator) JoinRoom(sid core.SessionID, name domain.RoomName, password string) (JoinResult, error) {
	if !o.Rooms.Has(name) {
		return JoinResult{}, fmt.Errorf("%w: room %q", domain.ErrNotFound, name)
	}
	if !o.Access.CanAccess(name, sid) {
		if !o.Access.VerifyPassword(name, password) {
			log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(name)).Msg("join denied")
			return JoinResult{}, fmt.Errorf("%w: room %q is private", domain.ErrUnauthorized, name)
		}
		o.Access.GrantAccess(name, sid)
	}

	res := JoinResult{Room: name}
	if prev, ok := o.Registry.RoomOf(sid); ok && prev != name {
		o.Rooms.RemoveUser(prev, sid)
		o.Registry.RemoveRoom(sid, prev)
		res.Previous = prev
	}
	if !o.Rooms.AddUser(name, sid, o.Registry.DisplayName(sid)) {
		return res, fmt.Errorf("%w: room %q", domain.ErrNotFound, name)
	}
	if o.afterMemberAdded != nil {
		o.afterMemberAdded(name, sid)
	}
	o.Registry.UpdateRoom(sid, name)
	// a RemoveRoom between AddUser and UpdateRoom could not clear the registry
	if !o.Rooms.IsMember(name, sid) {
		o.Registry.RemoveRoom(sid, name)
		return res, fmt.Errorf("%w: room %q was removed", domain.ErrNotFound, name)
	}

	res.Members, res.CreatorID, _ = o.Rooms.Members(name)
	res.Messages = o.Rooms.Messages(name)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(name)).Str("from_room", string(res.Previous)).Msg("joined room")
	return res, nil
}

// LeaveRoom removes sid from name.
func (o *Orchestrator) LeaveRoom(sid core.SessionID, name domain.RoomName) error {
	if !o.Rooms.Has(name) {
		return fmt.Errorf("%w: room %q", domain.ErrNotFound, name)
	}
	if !o.Access.CanAccess(name, sid) {
		return fmt.Errorf("%w: room %q", domain.ErrUnauthorized, name)
	}
	if !o.Rooms.RemoveUser(name, sid) {
		return fmt.Errorf("%w: not a member of %q", domain.ErrNotFound, name)
	}
	o.Registry.RemoveRoom(sid, name)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(name)).Msg("left room")
	return nil
}

func (o *Orchestrator) SendMessage(sid core.SessionID, name domain.RoomName, text string) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, fmt.Errorf("%w: empty message", domain.ErrInvalidRequest)
	}
	if !o.Rooms.Has(name) {
		return domain.Message{}, fmt.Errorf("%w: room %q", domain.ErrNotFound, name)
	}
	if !o.Access.CanAccess(name, sid) || !o.Rooms.IsMember(name, sid) {
		return domain.Message{}, fmt.Errorf("%w: not a member of %q", domain.ErrUnauthorized, name)
	}
	user := o.Registry.User(sid)
	msg := domain.Message{
		ID:         uuid.NewString(),
		RoomName:   name,
		AuthorID:   user.ID,
		AuthorName: user.Username,
		Text:       text,
		CreatedAt:  time.Now().UTC(),
	}
	if !o.Rooms.AddMessage(name, msg) {
		return domain.Message{}, fmt.Errorf("%w: room %q", domain.ErrNotFound, name)
	}
	return msg, nil
}

// GrantAccess lets anyone who can access a private room invite target.
func (o *Orchestrator) GrantAccess(sid core.SessionID, name domain.RoomName, target core.SessionID) error {
	if !o.Rooms.Has(name) {
		return fmt.Errorf("%w: room %q", domain.ErrNotFound, name)
	}
	if !o.Access.IsPrivate(name) {
		return fmt.Errorf("%w: room %q is public", domain.ErrInvalidRequest, name)
	}
	if !o.Access.CanAccess(name, sid) {
		return fmt.Errorf("%w: room %q", domain.ErrUnauthorized, name)
	}
	if !o.Registry.IsBound(target) {
		return fmt.Errorf("%w: user %s", domain.ErrNotFound, target)
	}
	o.Access.GrantAccess(name, target)
	return nil
}

// RemoveRoom deletes a room for its creator and returns who was inside.
func (o *Orchestrator) RemoveRoom(sid core.SessionID, name domain.RoomName) ([]core.SessionID, error) {
	if !o.Rooms.Has(name) {
		return nil, fmt.Errorf("%w: room %q", domain.ErrNotFound, name)
	}
	if !o.Access.IsCreator(name, sid) {
		return nil, fmt.Errorf("%w: only the creator can remove %q", domain.ErrUnauthorized, name)
	}
	members := o.Rooms.RemoveRoom(name)
	for _, member := range members {
		o.Registry.RemoveRoom(member, name)
	}
	return members, nil
}

// RemoveUser lets the creator remove target from the room.
func (o *Orchestrator) RemoveUser(sid core.SessionID, name domain.RoomName, target core.SessionID) error {
	if !o.Rooms.Has(name) {
		return fmt.Errorf("%w: room %q", domain.ErrNotFound, name)
	}
	if !o.Access.IsCreator(name, sid) {
		return fmt.Errorf("%w: only the creator can remove users from %q", domain.ErrUnauthorized, name)
	}
	if !o.Rooms.RemoveUser(name, target) {
		return fmt.Errorf("%w: %s is not in %q", domain.ErrNotFound, target, name)
	}
	o.Registry.RemoveRoom(target, name)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(name)).Str("target", string(target)).Msg("user removed")
	return nil
}

// Rename stores the new display name and returns the chat rooms whose rosters changed.
func (o *Orchestrator) Rename(sid core.SessionID, name string) (string, []domain.RoomName, error) {
	name, err := o.Registry.UpdateUsername(sid, name)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	return name, o.Rooms.RenameUser(sid, name), nil
}
