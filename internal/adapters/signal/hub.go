package signal

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

const lobbyGroup = "lobby"

func roomGroup(name domain.RoomName) string  { return "room:" + string(name) }
func voiceGroup(name domain.RoomName) string { return "voice:" + string(name) }

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub fans events out to connections and named groups. Group membership is
// dropped with the connection.
type Hub struct {
	mu     sync.RWMutex
	conns  map[core.SessionID]core.SignalConnection
	groups map[string]map[core.SessionID]struct{}

	onBackpressure func(core.SessionID)
}

var _ core.Hub = (*Hub)(nil)

// NewHub calls onBackpressure when a connection's send buffer is full.
func NewHub(onBackpressure func(core.SessionID)) *Hub {
	return &Hub{
		conns:          make(map[core.SessionID]core.SignalConnection),
		groups:         make(map[string]map[core.SessionID]struct{}),
		onBackpressure: onBackpressure,
	}
}

func (h *Hub) Register(sid core.SessionID, conn core.SignalConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[sid] = conn
}

func (h *Hub) Unregister(sid core.SessionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, sid)
	for name, members := range h.groups {
		delete(members, sid)
		if len(members) == 0 {
			delete(h.groups, name)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) JoinGroup(sid core.SessionID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[sid]; !ok {
		return
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[core.SessionID]struct{})
		h.groups[group] = members
	}
	members[sid] = struct{}{}
}

func (h *Hub) LeaveGroup(sid core.SessionID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, sid)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

func (h *Hub) Members(group string) []core.SessionID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]core.SessionID, 0, len(h.groups[group]))
	for sid := range h.groups[group] {
		out = append(out, sid)
	}
	return out
}

func (h *Hub) Send(sid core.SessionID, event string, payload any) {
	frame, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	conn, ok := h.conns[sid]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.deliver(sid, conn, frame)
}

func (h *Hub) Broadcast(group string, event string, payload any, except ...core.SessionID) {
	frame, ok := encode(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	targets := make(map[core.SessionID]core.SignalConnection, len(h.groups[group]))
	for sid := range h.groups[group] {
		if conn, ok := h.conns[sid]; ok {
			targets[sid] = conn
		}
	}
	h.mu.RUnlock()

	for _, sid := range except {
		delete(targets, sid)
	}
	for sid, conn := range targets {
		h.deliver(sid, conn, frame)
	}
}

// deliver never blocks; a full buffer is handed to the backpressure hook.
func (h *Hub) deliver(sid core.SessionID, conn core.SignalConnection, frame core.Frame) {
	err := conn.TrySend(frame)
	switch {
	case err == nil:
	case errors.Is(err, ErrBackpressure):
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("send buffer full")
		if h.onBackpressure != nil {
			h.onBackpressure(sid)
		}
	default:
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("send failed")
	}
}

func encode(event string, payload any) (core.Frame, bool) {
	b, err := json.Marshal(envelope{Type: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", event).Msg("marshal event")
		return nil, false
	}
	return b, true
}
