package rtc

import (
	"context"
	"sync/atomic"

	"github.com/dkeye/huddle/internal/app/sfu"
	"github.com/dkeye/huddle/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type producer struct {
	id       string
	kind     core.MediaKind
	codec    core.RTPCodec
	router   *router
	receiver *webrtc.RTPReceiver
	relay    *sfu.Relay
	closed   atomic.Bool
}

var _ core.Producer = (*producer)(nil)

func (p *producer) ID() string           { return p.id }
func (p *producer) Kind() core.MediaKind { return p.kind }
func (p *producer) Paused() bool         { return p.relay.Paused() }
func (p *producer) Closed() bool         { return p.closed.Load() }

func (p *producer) Pause(context.Context) error {
	if p.Closed() {
		return ErrUnknownProducer
	}
	p.relay.SetPaused(true)
	return nil
}

func (p *producer) Resume(context.Context) error {
	if p.Closed() {
		return ErrUnknownProducer
	}
	p.relay.SetPaused(false)
	return nil
}

// Close stops the receiver, which ends the relay loop and deletes every
// consumer attached to it.
func (p *producer) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.router.relays.StopRelay(p.id)
	p.router.removeProducer(p.id)
	if err := p.receiver.Stop(); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Str("producer", p.id).Msg("receiver stop error")
	}
	log.Info().Str("module", "rtc").Str("producer", p.id).Msg("producer closed")
}
