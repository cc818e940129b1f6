package app

import (
	"slices"
	"sort"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// chatRoom is guarded by its own lock; the manager lock only guards the table.
type chatRoom struct {
	mu        sync.RWMutex
	name      domain.RoomName
	creatorID core.SessionID
	isPrivate bool
	password  string
	allowed   map[core.SessionID]struct{}
	members   map[core.SessionID]string
	messages  []domain.Message
	removed   bool
}

// RoomManager is the chat room registry. Rooms live until their creator removes them.
type RoomManager struct {
	mu          sync.RWMutex
	rooms       map[domain.RoomName]*chatRoom
	maxMessages int
}

// NewRoomManager keeps at most maxMessages per room; zero keeps everything.
func NewRoomManager(maxMessages int) *RoomManager {
	return &RoomManager{
		rooms:       make(map[domain.RoomName]*chatRoom),
		maxMessages: maxMessages,
	}
}

func (m *RoomManager) get(name domain.RoomName) (*chatRoom, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[name]
	return room, ok
}

// CreateRoom reports whether a room was created; an existing name keeps its settings.
func (m *RoomManager) CreateRoom(name domain.RoomName, creator core.SessionID, isPrivate bool, password string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[name]; ok {
		return false
	}
	room := &chatRoom{
		name:      name,
		creatorID: creator,
		isPrivate: isPrivate,
		password:  password,
		allowed:   make(map[core.SessionID]struct{}),
		members:   make(map[core.SessionID]string),
	}
	if isPrivate {
		room.allowed[creator] = struct{}{}
	}
	m.rooms[name] = room
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Str("creator", string(creator)).Bool("private", isPrivate).Msg("room created")
	return true
}

// RemoveRoom deletes the room and returns who was in it.
func (m *RoomManager) RemoveRoom(name domain.RoomName) []core.SessionID {
	m.mu.Lock()
	room, ok := m.rooms[name]
	delete(m.rooms, name)
	m.mu.Unlock()
	if !ok {
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	room.removed = true
	members := lo.Keys(room.members)
	room.members = make(map[core.SessionID]string)
	room.messages = nil
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Int("members", len(members)).Msg("room removed")
	return members
}

// AddUser records sid as a member under displayName. It fails when the room is gone.
func (m *RoomManager) AddUser(name domain.RoomName, sid core.SessionID, displayName string) bool {
	room, ok := m.get(name)
	if !ok {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.removed {
		return false
	}
	room.members[sid] = displayName
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Str("sid", string(sid)).Msg("member added")
	return true
}

// RemoveUser reports whether sid was a member.
func (m *RoomManager) RemoveUser(name domain.RoomName, sid core.SessionID) bool {
	room, ok := m.get(name)
	if !ok {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if _, ok := room.members[sid]; !ok {
		return false
	}
	delete(room.members, sid)
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Str("sid", string(sid)).Msg("member removed")
	return true
}

func (m *RoomManager) IsMember(name domain.RoomName, sid core.SessionID) bool {
	room, ok := m.get(name)
	if !ok {
		return false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	_, ok = room.members[sid]
	return ok
}

// RenameUser refreshes the name snapshot of sid and returns the rooms it touched.
func (m *RoomManager) RenameUser(sid core.SessionID, displayName string) []domain.RoomName {
	var touched []domain.RoomName
	for _, room := range m.snapshot() {
		room.mu.Lock()
		if _, ok := room.members[sid]; ok {
			room.members[sid] = displayName
			touched = append(touched, room.name)
		}
		room.mu.Unlock()
	}
	return touched
}

// AddMessage appends msg, trimming the oldest messages past the retention bound.
func (m *RoomManager) AddMessage(name domain.RoomName, msg domain.Message) bool {
	room, ok := m.get(name)
	if !ok {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.removed {
		return false
	}
	room.messages = append(room.messages, msg)
	if m.maxMessages > 0 && len(room.messages) > m.maxMessages {
		room.messages = slices.Clone(room.messages[len(room.messages)-m.maxMessages:])
	}
	return true
}

func (m *RoomManager) Messages(name domain.RoomName) []domain.Message {
	room, ok := m.get(name)
	if !ok {
		return nil
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return slices.Clone(room.messages)
}

func (m *RoomManager) Has(name domain.RoomName) bool {
	_, ok := m.get(name)
	return ok
}

func (m *RoomManager) ListRoomNames() []domain.RoomName {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Keys(m.rooms)
}

func (m *RoomManager) RoomsContaining(sid core.SessionID) []domain.RoomName {
	var out []domain.RoomName
	for _, room := range m.snapshot() {
		room.mu.RLock()
		if _, ok := room.members[sid]; ok {
			out = append(out, room.name)
		}
		room.mu.RUnlock()
	}
	return out
}

// Members returns the roster ordered by name then id, plus the creator.
func (m *RoomManager) Members(name domain.RoomName) ([]domain.Member, core.SessionID, bool) {
	room, ok := m.get(name)
	if !ok {
		return nil, "", false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	members := lo.MapToSlice(room.members, func(sid core.SessionID, displayName string) domain.Member {
		return domain.Member{ID: domain.UserID(sid), Name: displayName}
	})
	sort.Slice(members, func(i, j int) bool {
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].ID < members[j].ID
	})
	return members, room.creatorID, true
}

// Summaries lists every room as seen by viewer, ordered by name.
func (m *RoomManager) Summaries(viewer core.SessionID) []domain.RoomSummary {
	rooms := m.snapshot()
	out := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		room.mu.RLock()
		out = append(out, domain.RoomSummary{
			Name:        room.name,
			IsPrivate:   room.isPrivate,
			CreatorID:   domain.UserID(room.creatorID),
			MemberCount: len(room.members),
			HasAccess:   room.accessibleBy(viewer),
		})
		room.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *RoomManager) snapshot() []*chatRoom {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Values(m.rooms)
}
