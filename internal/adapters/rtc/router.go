package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/huddle/internal/app/sfu"
	"github.com/dkeye/huddle/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type router struct {
	id     string
	worker *Worker
	api    *webrtc.API
	codecs []core.RTPCodec
	relays *sfu.RelayManager

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	producers  map[string]*producer
	transports map[string]*transport
	closed     bool
}

var _ core.Router = (*router)(nil)

func newRouter(w *Worker, api *webrtc.API, codecs []core.RTPCodec) *router {
	ctx, cancel := context.WithCancel(context.Background())
	return &router{
		id:         uuid.NewString(),
		worker:     w,
		api:        api,
		codecs:     codecs,
		relays:     sfu.NewRelayManager(w.fatal),
		ctx:        ctx,
		cancel:     cancel,
		producers:  make(map[string]*producer),
		transports: make(map[string]*transport),
	}
}

func (r *router) ID() string { return r.id }

func (r *router) RTPCapabilities() core.RTPCapabilities {
	return core.RTPCapabilities{Codecs: append([]core.RTPCodec(nil), r.codecs...)}
}

func (r *router) CreateTransport(ctx context.Context) (core.Transport, error) {
	if err := r.worker.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrRouterClosed
	}

	t, err := newTransport(ctx, r)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		t.Close()
		return nil, ErrRouterClosed
	}
	r.transports[t.id] = t
	return t, nil
}

func (r *router) CanConsume(producerID string, caps core.RTPCapabilities) bool {
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	if !ok || p.Closed() {
		return false
	}
	return supports(caps, p.codec)
}

func (r *router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	transports := make([]*transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
	r.relays.StopAll()
	r.cancel()
	log.Info().Str("module", "rtc").Str("router", r.id).Msg("router closed")
}

func (r *router) addProducer(p *producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.id] = p
}

func (r *router) removeProducer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, id)
}

func (r *router) producer(id string) (*producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *router) removeTransport(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transports, id)
}
