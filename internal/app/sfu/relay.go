package sfu

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// ReadFunc yields the next packet of a producer.
type ReadFunc func() (*rtp.Packet, error)

type Relay struct {
	ProducerID string
	read       ReadFunc

	mu        sync.RWMutex
	outTracks map[string]*OutTrack
	paused    atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRelay(producerID string, read ReadFunc, cancel context.CancelFunc) *Relay {
	return &Relay{
		ProducerID: producerID,
		read:       read,
		outTracks:  make(map[string]*OutTrack),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// loop reads RTP packets from the producer and forwards them to all OutTracks.
// A panic is reported through onFatal instead of unwinding the process.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger, onFatal func(error)) {
	defer close(r.done)
	defer func() {
		if v := recover(); v != nil {
			r.markAllDelete()
			logger.Error().Interface("panic", v).Msg("relay loop panicked")
			if onFatal != nil {
				onFatal(fmt.Errorf("relay %s: %v", r.ProducerID, v))
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, err := r.read()
		if err != nil {
			logger.Info().Err(err).Msg("relay read RTP stopped")
			r.markAllDelete()
			return
		}
		if r.paused.Load() {
			continue
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outTracks)
	r.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for consumerID, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, consumerID)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Track.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("consumer", consumerID).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, consumerID)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range dirty {
		delete(r.outTracks, id)
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) AddOutTrack(consumerID string, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outTracks[consumerID] = ot
}

func (r *Relay) SetPaused(paused bool) {
	r.paused.Store(paused)
}

func (r *Relay) Paused() bool {
	return r.paused.Load()
}

// Done is closed once the loop has exited.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}
