package voice

import (
	"context"
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// TransportCreated is returned by CreateTransport. ProducerClosed is set when
// replacing the send transport took the previous producer down with it.
type TransportCreated struct {
	Params         core.TransportParams
	ProducerClosed bool
}

type ConsumerParams struct {
	ID            string             `json:"id"`
	ProducerID    string             `json:"producerId"`
	Kind          core.MediaKind     `json:"kind"`
	RTPParameters core.RTPParameters `json:"rtpParameters"`
	Paused        bool               `json:"paused"`
}

func engineRejected(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrEngineRejected, op, err)
}

// CreateTransport stores a new transport in the direction slot. A previous
// transport in that slot is closed along with whatever was bound to it.
func (o *Orchestrator) CreateTransport(ctx context.Context, name domain.RoomName, sid core.SessionID, dir core.Direction) (TransportCreated, error) {
	if !dir.Valid() {
		return TransportCreated{}, fmt.Errorf("%w: unknown transport direction %q", domain.ErrInvalidRequest, dir)
	}
	room, router, p, err := o.lookup(name, sid)
	if err != nil {
		return TransportCreated{}, err
	}

	p.op.Lock()
	defer p.op.Unlock()
	if p.left {
		return TransportCreated{}, fmt.Errorf("%w: participant %s left voice room %q", domain.ErrNotFound, sid, name)
	}

	t, err := router.CreateTransport(ctx)
	if err != nil {
		return TransportCreated{}, engineRejected("create transport", err)
	}

	p.mu.Lock()
	slot := p.slot(dir)
	old := slot.transport
	*slot = transportSlot{state: SlotCreated, transport: t}
	var producer core.Producer
	var consumers []core.Consumer
	if old != nil {
		if dir == core.DirectionSend {
			producer, p.producer = p.producer, nil
		} else {
			for id, c := range p.consumers {
				consumers = append(consumers, c)
				delete(p.consumers, id)
			}
		}
	}
	p.mu.Unlock()

	if producer != nil {
		producer.Close()
		room.dropConsumersOf(producer.ID())
	}
	for _, c := range consumers {
		c.Close()
	}
	if old != nil {
		old.Close()
		log.Info().Str("module", "app.voice").Str("room", string(name)).Str("sid", string(sid)).
			Str("direction", string(dir)).Str("transport", old.ID()).Msg("replaced transport closed")
	}
	log.Info().Str("module", "app.voice").Str("room", string(name)).Str("sid", string(sid)).
		Str("direction", string(dir)).Str("transport", t.ID()).Msg("transport created")
	return TransportCreated{Params: t.Params(), ProducerClosed: producer != nil}, nil
}

// ConnectTransport completes the handshake of the send or receive transport
// with transportID. Connecting an already connected transport is a no-op.
func (o *Orchestrator) ConnectTransport(ctx context.Context, name domain.RoomName, sid core.SessionID, transportID string, params core.ConnectParams) error {
	_, _, p, err := o.lookup(name, sid)
	if err != nil {
		return err
	}

	p.op.Lock()
	defer p.op.Unlock()
	if p.left {
		return fmt.Errorf("%w: participant %s left voice room %q", domain.ErrNotFound, sid, name)
	}

	var slot *transportSlot
	switch {
	case p.send.matches(transportID):
		slot = &p.send
	case p.recv.matches(transportID):
		slot = &p.recv
	default:
		return fmt.Errorf("%w: transport %s", domain.ErrNotFound, transportID)
	}
	if slot.state == SlotConnected {
		log.Debug().Str("module", "app.voice").Str("transport", transportID).Stringer("state", slot.state).Msg("connect ignored")
		return nil
	}

	if err := slot.transport.Connect(ctx, params); err != nil {
		return engineRejected("connect transport", err)
	}

	p.mu.Lock()
	slot.state = SlotConnected
	p.mu.Unlock()
	log.Info().Str("module", "app.voice").Str("room", string(name)).Str("sid", string(sid)).Str("transport", transportID).Msg("transport connected")
	return nil
}

// Produce creates the participant's single producer on its connected send
// transport. A stored mute is applied to the new producer before it is kept.
func (o *Orchestrator) Produce(ctx context.Context, name domain.RoomName, sid core.SessionID, transportID string, kind core.MediaKind, rtp core.RTPParameters) (string, error) {
	if kind != core.MediaKindAudio && kind != core.MediaKindVideo {
		return "", fmt.Errorf("%w: unknown media kind %q", domain.ErrInvalidRequest, kind)
	}
	room, _, p, err := o.lookup(name, sid)
	if err != nil {
		return "", err
	}

	p.op.Lock()
	defer p.op.Unlock()
	if p.left {
		return "", fmt.Errorf("%w: participant %s left voice room %q", domain.ErrNotFound, sid, name)
	}
	if !p.send.matches(transportID) {
		return "", fmt.Errorf("%w: send transport %s", domain.ErrNotFound, transportID)
	}
	if p.send.state != SlotConnected {
		return "", fmt.Errorf("%w: send transport %s is %s, not connected", domain.ErrInvalidRequest, transportID, p.send.state)
	}

	producer, err := p.send.transport.Produce(ctx, kind, rtp)
	if err != nil {
		return "", engineRejected("produce", err)
	}
	if p.muted {
		if err := producer.Pause(ctx); err != nil {
			producer.Close()
			return "", engineRejected("pause muted producer", err)
		}
	}

	p.mu.Lock()
	old := p.producer
	p.producer = producer
	p.mu.Unlock()

	if old != nil {
		old.Close()
		room.dropConsumersOf(old.ID())
	}
	log.Info().Str("module", "app.voice").Str("room", string(name)).Str("sid", string(sid)).
		Str("producer", producer.ID()).Bool("paused", p.muted).Msg("producer created")
	return producer.ID(), nil
}

// Consume creates a paused consumer of producerID on the receive transport.
func (o *Orchestrator) Consume(ctx context.Context, name domain.RoomName, sid core.SessionID, producerID string, caps core.RTPCapabilities) (ConsumerParams, error) {
	room, router, p, err := o.lookup(name, sid)
	if err != nil {
		return ConsumerParams{}, err
	}

	room.mu.Lock()
	owner, ok := room.producerOwnerLocked(producerID)
	room.mu.Unlock()
	if !ok {
		return ConsumerParams{}, fmt.Errorf("%w: producer %s", domain.ErrNotFound, producerID)
	}
	if owner == p {
		return ConsumerParams{}, fmt.Errorf("%w: cannot consume own producer", domain.ErrInvalidRequest)
	}
	if !router.CanConsume(producerID, caps) {
		return ConsumerParams{}, fmt.Errorf("%w: producer %s cannot be consumed with the given capabilities", domain.ErrEngineRejected, producerID)
	}

	p.op.Lock()
	defer p.op.Unlock()
	if p.left {
		return ConsumerParams{}, fmt.Errorf("%w: participant %s left voice room %q", domain.ErrNotFound, sid, name)
	}
	if p.recv.transport == nil {
		return ConsumerParams{}, fmt.Errorf("%w: receive transport", domain.ErrNotFound)
	}
	for _, c := range p.takeConsumers(core.Consumer.Closed) {
		c.Close()
	}

	consumer, err := p.recv.transport.Consume(ctx, producerID, caps, true)
	if err != nil {
		return ConsumerParams{}, engineRejected("consume", err)
	}

	p.mu.Lock()
	p.consumers[consumer.ID()] = consumer
	p.mu.Unlock()
	log.Info().Str("module", "app.voice").Str("room", string(name)).Str("sid", string(sid)).
		Str("producer", producerID).Str("consumer", consumer.ID()).Msg("consumer created")
	return ConsumerParams{
		ID:            consumer.ID(),
		ProducerID:    consumer.ProducerID(),
		Kind:          consumer.Kind(),
		RTPParameters: consumer.RTPParameters(),
		Paused:        consumer.Paused(),
	}, nil
}

// ResumeConsumer starts media on a consumer. Consumers whose producer went
// away are dropped and reported as not found.
func (o *Orchestrator) ResumeConsumer(ctx context.Context, name domain.RoomName, sid core.SessionID, consumerID string) error {
	_, _, p, err := o.lookup(name, sid)
	if err != nil {
		return err
	}

	p.op.Lock()
	defer p.op.Unlock()
	if p.left {
		return fmt.Errorf("%w: participant %s left voice room %q", domain.ErrNotFound, sid, name)
	}
	p.mu.RLock()
	consumer, ok := p.consumers[consumerID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: consumer %s", domain.ErrNotFound, consumerID)
	}
	if consumer.Closed() {
		p.mu.Lock()
		delete(p.consumers, consumerID)
		p.mu.Unlock()
		return fmt.Errorf("%w: consumer %s is closed", domain.ErrNotFound, consumerID)
	}
	if err := consumer.Resume(ctx); err != nil {
		return engineRejected("resume consumer", err)
	}
	log.Info().Str("module", "app.voice").Str("room", string(name)).Str("sid", string(sid)).Str("consumer", consumerID).Msg("consumer resumed")
	return nil
}

// ToggleMute records the mute intent and pauses or resumes the producer if any.
func (o *Orchestrator) ToggleMute(ctx context.Context, name domain.RoomName, sid core.SessionID, muted bool) error {
	_, _, p, err := o.lookup(name, sid)
	if err != nil {
		return err
	}

	p.op.Lock()
	defer p.op.Unlock()
	if p.left {
		return fmt.Errorf("%w: participant %s left voice room %q", domain.ErrNotFound, sid, name)
	}
	if p.producer != nil {
		if muted {
			err = p.producer.Pause(ctx)
		} else {
			err = p.producer.Resume(ctx)
		}
		if err != nil {
			return engineRejected("toggle mute", err)
		}
	}

	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
	log.Info().Str("module", "app.voice").Str("room", string(name)).Str("sid", string(sid)).Bool("muted", muted).Msg("mute toggled")
	return nil
}
