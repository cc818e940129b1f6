package voice

import (
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/samber/lo"
)

type SlotState int

const (
	SlotEmpty SlotState = iota
	SlotCreated
	SlotConnected
)

func (s SlotState) String() string {
	switch s {
	case SlotCreated:
		return "created"
	case SlotConnected:
		return "connected"
	default:
		return "empty"
	}
}

type transportSlot struct {
	state     SlotState
	transport core.Transport
}

func (s transportSlot) matches(transportID string) bool {
	return s.transport != nil && s.transport.ID() == transportID
}

// participant holds one user's media handles in a voice room.
// op is held for the whole of an operation, engine calls included; mu guards
// the fields for concurrent roster snapshots and is only taken briefly.
type participant struct {
	sid  core.SessionID
	name string

	op sync.Mutex

	mu        sync.RWMutex
	send      transportSlot
	recv      transportSlot
	producer  core.Producer
	consumers map[string]core.Consumer
	muted     bool
	left      bool
}

func newParticipant(sid core.SessionID, name string) *participant {
	return &participant{
		sid:       sid,
		name:      name,
		consumers: make(map[string]core.Consumer),
	}
}

func (p *participant) slot(dir core.Direction) *transportSlot {
	if dir == core.DirectionSend {
		return &p.send
	}
	return &p.recv
}

func (p *participant) member() domain.VoiceMember {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return domain.VoiceMember{
		ID:          domain.UserID(p.sid),
		Name:        p.name,
		Muted:       p.muted,
		HasProducer: p.producer != nil,
	}
}

func (p *participant) producerID() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.producer == nil {
		return "", false
	}
	return p.producer.ID(), true
}

// takeConsumers removes and returns the consumers drop selects.
func (p *participant) takeConsumers(drop func(core.Consumer) bool) []core.Consumer {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []core.Consumer
	for id, c := range p.consumers {
		if drop(c) {
			out = append(out, c)
			delete(p.consumers, id)
		}
	}
	return out
}

// release closes every handle the participant owns and returns the id of the
// producer it closed, if any. Later operations see left.
func (p *participant) release() string {
	p.op.Lock()
	defer p.op.Unlock()

	p.mu.Lock()
	producer := p.producer
	consumers := lo.Values(p.consumers)
	transports := lo.Compact([]core.Transport{p.send.transport, p.recv.transport})
	p.producer = nil
	p.consumers = make(map[string]core.Consumer)
	p.send = transportSlot{}
	p.recv = transportSlot{}
	p.left = true
	p.mu.Unlock()

	var producerID string
	if producer != nil {
		producerID = producer.ID()
		producer.Close()
	}
	for _, c := range consumers {
		c.Close()
	}
	for _, t := range transports {
		t.Close()
	}
	return producerID
}
