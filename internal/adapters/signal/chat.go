package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

func (ctl *SignalWSController) handleSetUserName(sid core.SessionID, data json.RawMessage) {
	var req setUserNameRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "error", "set_user_name", err)
		return
	}
	name, rooms, err := ctl.Orch.Rename(sid, req.UserName)
	if err != nil {
		ctl.sendError(sid, "error", "set_user_name", err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", name).Msg("rename")
	ctl.Hub.Send(sid, "user_name_set", userNamePayload{UserID: userID(sid), UserName: name})
	for _, room := range rooms {
		ctl.broadcastRoomUsers(room)
	}
}

func (ctl *SignalWSController) handleCreateRoom(sid core.SessionID, data json.RawMessage) {
	var req createRoomRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "error", "create_room", err)
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(sid) {
		ctl.sendError(sid, "error", "create_room", fmt.Errorf("%w: too many rooms created, try again later", domain.ErrInvalidRequest))
		return
	}
	name, created, err := ctl.Orch.CreateRoom(sid, req.RoomName, req.IsPrivate, req.Password)
	if err != nil {
		ctl.sendError(sid, "error", "create_room", err)
		return
	}
	ctl.Hub.Send(sid, "room_created", roomCreatedPayload{RoomName: name, IsPrivate: req.IsPrivate, Created: created})
	if created {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(name)).Bool("private", req.IsPrivate).Msg("room created")
		ctl.broadcastRoomList()
	}
}

func (ctl *SignalWSController) handleJoinRoom(sid core.SessionID, data json.RawMessage) {
	var req joinRoomRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "error", "join_room", err)
		return
	}
	res, err := ctl.Orch.JoinRoom(sid, cleanRoom(req.RoomName), req.Password)
	if res.Previous != "" {
		ctl.Hub.LeaveGroup(sid, roomGroup(res.Previous))
		ctl.broadcastRoomUsers(res.Previous)
	}
	if err != nil {
		ctl.sendError(sid, "error", "join_room", err)
		if res.Previous != "" {
			ctl.broadcastRoomList()
		}
		return
	}
	if ctl.beforeJoinGroup != nil {
		ctl.beforeJoinGroup(res.Room, sid)
	}
	ctl.Hub.JoinGroup(sid, roomGroup(res.Room))
	// the room may have been removed after JoinRoom returned
	if !ctl.Orch.Rooms.IsMember(res.Room, sid) {
		ctl.Hub.LeaveGroup(sid, roomGroup(res.Room))
		ctl.Orch.Registry.RemoveRoom(sid, res.Room)
		ctl.sendError(sid, "error", "join_room", fmt.Errorf("%w: room %q was removed", domain.ErrNotFound, res.Room))
		return
	}
	ctl.Hub.Broadcast(roomGroup(res.Room), "room_users", roomUsersPayload{
		RoomName:  res.Room,
		Users:     res.Members,
		CreatorID: userID(res.CreatorID),
	})
	ctl.Hub.Send(sid, "room_messages", roomMessagesPayload{RoomName: res.Room, Messages: res.Messages})
	ctl.broadcastRoomList()
}

func (ctl *SignalWSController) handleLeaveRoom(sid core.SessionID, data json.RawMessage) {
	var req roomRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "error", "leave_room", err)
		return
	}
	name := cleanRoom(req.RoomName)
	if err := ctl.Orch.LeaveRoom(sid, name); err != nil {
		ctl.sendError(sid, "error", "leave_room", err)
		return
	}
	ctl.Hub.LeaveGroup(sid, roomGroup(name))
	ctl.Hub.Send(sid, "left_room", roomPayload{RoomName: name})
	ctl.broadcastRoomUsers(name)
	ctl.broadcastRoomList()
}

func (ctl *SignalWSController) handleSendMessage(sid core.SessionID, data json.RawMessage) {
	var req sendMessageRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "error", "send_message", err)
		return
	}
	msg, err := ctl.Orch.SendMessage(sid, cleanRoom(req.RoomName), req.Text)
	if err != nil {
		ctl.sendError(sid, "error", "send_message", err)
		return
	}
	ctl.Hub.Broadcast(roomGroup(msg.RoomName), "new_message", msg)
}

func (ctl *SignalWSController) handleAddUserToPrivateRoom(sid core.SessionID, data json.RawMessage) {
	var req roomUserRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "error", "add_user_to_private_room", err)
		return
	}
	name := cleanRoom(req.RoomName)
	if err := ctl.Orch.GrantAccess(sid, name, req.UserID); err != nil {
		ctl.sendError(sid, "error", "add_user_to_private_room", err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(name)).Str("target", string(req.UserID)).Msg("access granted")
	ctl.Hub.Send(sid, "user_added_to_room", roomUserPayload{RoomName: name, UserID: userID(req.UserID)})
	ctl.sendRoomList(req.UserID, "room_list_updated")
}

func (ctl *SignalWSController) handleRemoveRoom(sid core.SessionID, data json.RawMessage) {
	var req roomRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "error", "remove_room", err)
		return
	}
	name := cleanRoom(req.RoomName)
	members, err := ctl.Orch.RemoveRoom(sid, name)
	if err != nil {
		ctl.sendError(sid, "error", "remove_room", err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(name)).Int("members", len(members)).Msg("room removed")

	group := roomGroup(name)
	ctl.Hub.Broadcast(group, "room_removed", roomPayload{RoomName: name})
	if !lo.Contains(ctl.Hub.Members(group), sid) {
		ctl.Hub.Send(sid, "room_removed", roomPayload{RoomName: name})
	}
	for _, member := range lo.Union(ctl.Hub.Members(group), members) {
		ctl.Hub.LeaveGroup(member, group)
	}
	ctl.broadcastRoomList()
}

func (ctl *SignalWSController) handleRemoveUserFromRoom(sid core.SessionID, data json.RawMessage) {
	var req roomUserRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "error", "remove_user_from_room", err)
		return
	}
	name := cleanRoom(req.RoomName)
	if err := ctl.Orch.RemoveUser(sid, name, req.UserID); err != nil {
		ctl.sendError(sid, "error", "remove_user_from_room", err)
		return
	}
	ctl.Hub.LeaveGroup(req.UserID, roomGroup(name))
	ctl.Hub.Send(req.UserID, "removed_from_room", roomPayload{RoomName: name})
	ctl.broadcastRoomUsers(name)
	ctl.broadcastRoomList()
}

func (ctl *SignalWSController) sendRoomList(sid core.SessionID, event string) {
	ctl.Hub.Send(sid, event, roomListPayload{Rooms: ctl.Orch.Rooms.Summaries(sid)})
}

// broadcastRoomList refreshes the lobby. Access differs per viewer, so each
// connection gets its own list.
func (ctl *SignalWSController) broadcastRoomList() {
	for _, sid := range ctl.Hub.Members(lobbyGroup) {
		ctl.sendRoomList(sid, "room_list")
	}
}

func (ctl *SignalWSController) broadcastRoomUsers(name domain.RoomName) {
	members, creator, ok := ctl.Orch.Rooms.Members(name)
	if !ok {
		return
	}
	ctl.Hub.Broadcast(roomGroup(name), "room_users", roomUsersPayload{
		RoomName:  name,
		Users:     members,
		CreatorID: userID(creator),
	})
}
