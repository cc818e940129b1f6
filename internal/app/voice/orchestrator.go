// Package voice owns per-room voice state: one router per active room and one
// participant per connected user with its transports, producer and consumers.
package voice

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// DefaultCodecs is the audio codec set every router is created with.
var DefaultCodecs = []core.RTPCodec{
	{
		Kind:        core.MediaKindAudio,
		MimeType:    "audio/opus",
		PayloadType: 111,
		ClockRate:   48000,
		Channels:    2,
		SDPFmtpLine: "minptime=10;useinbandfec=1",
	},
}

type RoomInfo struct {
	Name         domain.RoomName `json:"name"`
	Participants int             `json:"participants"`
}

type Orchestrator struct {
	engine core.Engine
	codecs []core.RTPCodec

	mu    sync.RWMutex
	rooms map[domain.RoomName]*voiceRoom
}

func NewOrchestrator(engine core.Engine, codecs []core.RTPCodec) *Orchestrator {
	if len(codecs) == 0 {
		codecs = DefaultCodecs
	}
	return &Orchestrator{
		engine: engine,
		codecs: codecs,
		rooms:  make(map[domain.RoomName]*voiceRoom),
	}
}

func (o *Orchestrator) getOrCreate(name domain.RoomName) *voiceRoom {
	o.mu.RLock()
	room, ok := o.rooms[name]
	o.mu.RUnlock()
	if ok {
		return room
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if room, ok = o.rooms[name]; ok {
		return room
	}
	room = newVoiceRoom(name)
	o.rooms[name] = room
	return room
}

func (o *Orchestrator) get(name domain.RoomName) (*voiceRoom, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	room, ok := o.rooms[name]
	return room, ok
}

// drop removes room from the table if it is still the registered instance.
func (o *Orchestrator) drop(room *voiceRoom) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rooms[room.name] == room {
		delete(o.rooms, room.name)
	}
}

// Join adds sid to the room, creating the room and its router on first use.
// Joining twice leaves a single participant.
func (o *Orchestrator) Join(ctx context.Context, name domain.RoomName, sid core.SessionID, displayName string) ([]domain.VoiceMember, error) {
	for {
		room := o.getOrCreate(name)
		room.mu.Lock()
		if room.closed {
			room.mu.Unlock()
			continue
		}
		if _, err := room.ensureRouter(ctx, o.engine, o.codecs); err != nil {
			if len(room.participants) == 0 {
				room.closed = true
				o.drop(room)
			}
			room.mu.Unlock()
			return nil, err
		}
		if _, ok := room.participants[sid]; !ok {
			room.participants[sid] = newParticipant(sid, displayName)
			log.Info().Str("module", "app.voice").Str("room", string(name)).Str("sid", string(sid)).Msg("participant joined")
		}
		roster := room.rosterLocked()
		room.mu.Unlock()
		return roster, nil
	}
}

// Leave releases every handle of sid and drops the room with its router when
// it was the last participant. It reports whether sid was in the room.
func (o *Orchestrator) Leave(name domain.RoomName, sid core.SessionID) bool {
	room, ok := o.get(name)
	if !ok {
		return false
	}
	room.mu.Lock()
	p, ok := room.participants[sid]
	if !ok {
		room.mu.Unlock()
		return false
	}
	delete(room.participants, sid)
	var router core.Router
	if len(room.participants) == 0 {
		room.closed = true
		router = room.router
		room.router = nil
		o.drop(room)
	}
	room.mu.Unlock()

	if producerID := p.release(); producerID != "" {
		room.dropConsumersOf(producerID)
	}
	log.Info().Str("module", "app.voice").Str("room", string(name)).Str("sid", string(sid)).Msg("participant left")
	if router != nil {
		router.Close()
		log.Info().Str("module", "app.voice").Str("room", string(name)).Str("router", router.ID()).Msg("room emptied, router closed")
	}
	return true
}

// lookup resolves the room router and the participant for sid.
func (o *Orchestrator) lookup(name domain.RoomName, sid core.SessionID) (*voiceRoom, core.Router, *participant, error) {
	room, ok := o.get(name)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: voice room %q", domain.ErrNotFound, name)
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return nil, nil, nil, fmt.Errorf("%w: voice room %q", domain.ErrNotFound, name)
	}
	p, ok := room.participants[sid]
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: participant %s in voice room %q", domain.ErrNotFound, sid, name)
	}
	return room, room.router, p, nil
}

// Roster returns the participants of a room ordered by name.
func (o *Orchestrator) Roster(name domain.RoomName) ([]domain.VoiceMember, bool) {
	room, ok := o.get(name)
	if !ok {
		return nil, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return nil, false
	}
	return room.rosterLocked(), true
}

func (o *Orchestrator) RouterCapabilities(name domain.RoomName) (core.RTPCapabilities, error) {
	room, ok := o.get(name)
	if !ok {
		return core.RTPCapabilities{}, fmt.Errorf("%w: voice room %q", domain.ErrNotFound, name)
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed || room.router == nil {
		return core.RTPCapabilities{}, fmt.Errorf("%w: voice room %q", domain.ErrNotFound, name)
	}
	return room.router.RTPCapabilities(), nil
}

// ListProducers returns the producers of everyone but sid.
func (o *Orchestrator) ListProducers(name domain.RoomName, sid core.SessionID) ([]domain.ProducerInfo, error) {
	room, _, _, err := o.lookup(name, sid)
	if err != nil {
		return nil, err
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	out := make([]domain.ProducerInfo, 0, len(room.participants))
	for other, p := range room.participants {
		if other == sid {
			continue
		}
		if id, ok := p.producerID(); ok {
			out = append(out, domain.ProducerInfo{ProducerID: id, UserID: domain.UserID(other), UserName: p.name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ProducerOf describes sid's live producer under the name it joined with.
func (o *Orchestrator) ProducerOf(name domain.RoomName, sid core.SessionID) (domain.ProducerInfo, error) {
	_, _, p, err := o.lookup(name, sid)
	if err != nil {
		return domain.ProducerInfo{}, err
	}
	id, ok := p.producerID()
	if !ok {
		return domain.ProducerInfo{}, fmt.Errorf("%w: %s has no producer in voice room %q", domain.ErrNotFound, sid, name)
	}
	return domain.ProducerInfo{ProducerID: id, UserID: domain.UserID(sid), UserName: p.name}, nil
}

// RoomsOf lists the voice rooms sid participates in.
func (o *Orchestrator) RoomsOf(sid core.SessionID) []domain.RoomName {
	o.mu.RLock()
	rooms := lo.Values(o.rooms)
	o.mu.RUnlock()

	var out []domain.RoomName
	for _, room := range rooms {
		room.mu.Lock()
		if _, ok := room.participants[sid]; ok && !room.closed {
			out = append(out, room.name)
		}
		room.mu.Unlock()
	}
	return out
}

func (o *Orchestrator) Rooms() []RoomInfo {
	o.mu.RLock()
	rooms := lo.Values(o.rooms)
	o.mu.RUnlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		if !room.closed {
			out = append(out, RoomInfo{Name: room.name, Participants: len(room.participants)})
		}
		room.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
