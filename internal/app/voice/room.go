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

// voiceRoom exists only while it has participants. Once closed it is never reused.
type voiceRoom struct {
	mu           sync.Mutex
	name         domain.RoomName
	router       core.Router
	participants map[core.SessionID]*participant
	closed       bool
}

func newVoiceRoom(name domain.RoomName) *voiceRoom {
	return &voiceRoom{
		name:         name,
		participants: make(map[core.SessionID]*participant),
	}
}

// ensureRouter must be called with r.mu held.
func (r *voiceRoom) ensureRouter(ctx context.Context, engine core.Engine, codecs []core.RTPCodec) (core.Router, error) {
	if r.router != nil {
		return r.router, nil
	}
	router, err := engine.CreateRouter(ctx, codecs)
	if err != nil {
		return nil, fmt.Errorf("%w: create router: %w", domain.ErrEngineRejected, err)
	}
	r.router = router
	log.Info().Str("module", "app.voice").Str("room", string(r.name)).Str("router", router.ID()).Msg("router created")
	return router, nil
}

// rosterLocked must be called with r.mu held.
func (r *voiceRoom) rosterLocked() []domain.VoiceMember {
	roster := lo.MapToSlice(r.participants, func(_ core.SessionID, p *participant) domain.VoiceMember {
		return p.member()
	})
	sort.Slice(roster, func(i, j int) bool {
		if roster[i].Name != roster[j].Name {
			return roster[i].Name < roster[j].Name
		}
		return roster[i].ID < roster[j].ID
	})
	return roster
}

// producerOwnerLocked finds who produces producerID. Must be called with r.mu held.
func (r *voiceRoom) producerOwnerLocked(producerID string) (*participant, bool) {
	for _, p := range r.participants {
		if id, ok := p.producerID(); ok && id == producerID {
			return p, true
		}
	}
	return nil, false
}

// dropConsumersOf closes every consumer of producerID held by the room's
// participants. Only participant mu locks are taken, so callers may hold their
// own op lock.
func (r *voiceRoom) dropConsumersOf(producerID string) {
	r.mu.Lock()
	others := lo.Values(r.participants)
	r.mu.Unlock()

	dropped := 0
	for _, p := range others {
		for _, c := range p.takeConsumers(func(c core.Consumer) bool { return c.ProducerID() == producerID }) {
			c.Close()
			dropped++
		}
	}
	if dropped > 0 {
		log.Info().Str("module", "app.voice").Str("room", string(r.name)).Str("producer", producerID).Int("consumers", dropped).Msg("consumers of closed producer dropped")
	}
}
