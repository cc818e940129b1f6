package rtc

import (
	"context"
	"sync/atomic"

	"github.com/dkeye/huddle/internal/app/sfu"
	"github.com/dkeye/huddle/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type consumer struct {
	id         string
	producerID string
	kind       core.MediaKind
	rtp        core.RTPParameters
	sender     *webrtc.RTPSender
	out        *sfu.OutTrack
	closed     atomic.Bool
}

var _ core.Consumer = (*consumer)(nil)

func (c *consumer) ID() string                        { return c.id }
func (c *consumer) ProducerID() string                { return c.producerID }
func (c *consumer) Kind() core.MediaKind              { return c.kind }
func (c *consumer) RTPParameters() core.RTPParameters { return c.rtp }

func (c *consumer) Paused() bool {
	return c.out.GetState() != sfu.TrackStateOk
}

// Closed is also true once the producer went away.
func (c *consumer) Closed() bool {
	return c.closed.Load() || c.out.Deleted()
}

func (c *consumer) Resume(context.Context) error {
	if c.Closed() || !c.out.MarkOk() {
		return ErrUnknownProducer
	}
	return nil
}

func (c *consumer) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.out.MarkDelete()
	if err := c.sender.Stop(); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Str("consumer", c.id).Msg("sender stop error")
	}
}
