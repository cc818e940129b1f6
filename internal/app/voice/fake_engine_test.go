package voice

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/google/uuid"
)

// fakeEngine records every object it hands out so tests can inspect lifecycle.
type fakeEngine struct {
	mu      sync.Mutex
	routers []*fakeRouter
}

func (e *fakeEngine) CreateRouter(_ context.Context, codecs []core.RTPCodec) (core.Router, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := &fakeRouter{id: uuid.NewString(), codecs: codecs, producers: map[string]*fakeProducer{}}
	e.routers = append(e.routers, r)
	return r, nil
}

func (e *fakeEngine) routerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.routers)
}

type fakeRouter struct {
	id     string
	codecs []core.RTPCodec

	mu         sync.Mutex
	closed     bool
	transports []*fakeTransport
	producers  map[string]*fakeProducer
}

func (r *fakeRouter) ID() string { return r.id }

func (r *fakeRouter) RTPCapabilities() core.RTPCapabilities {
	return core.RTPCapabilities{Codecs: r.codecs}
}

func (r *fakeRouter) CreateTransport(context.Context) (core.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &fakeTransport{id: uuid.NewString(), router: r}
	r.transports = append(r.transports, t)
	return t, nil
}

func (r *fakeRouter) CanConsume(producerID string, caps core.RTPCapabilities) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[producerID]
	return ok && !p.closed && len(caps.Codecs) > 0
}

func (r *fakeRouter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *fakeRouter) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type fakeTransport struct {
	id     string
	router *fakeRouter

	mu        sync.Mutex
	connected bool
	closed    bool
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) Params() core.TransportParams {
	return core.TransportParams{ID: t.id}
}

func (t *fakeTransport) Connect(_ context.Context, params core.ConnectParams) error {
	if len(params.DTLS.Fingerprints) == 0 {
		return errors.New("missing fingerprint")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *fakeTransport) Produce(_ context.Context, kind core.MediaKind, _ core.RTPParameters) (core.Producer, error) {
	p := &fakeProducer{id: uuid.NewString(), kind: kind}
	t.router.mu.Lock()
	t.router.producers[p.id] = p
	t.router.mu.Unlock()
	return p, nil
}

func (t *fakeTransport) Consume(_ context.Context, producerID string, _ core.RTPCapabilities, paused bool) (core.Consumer, error) {
	t.router.mu.Lock()
	producer := t.router.producers[producerID]
	t.router.mu.Unlock()
	return &fakeConsumer{id: uuid.NewString(), producer: producer, paused: paused}, nil
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeProducer struct {
	id   string
	kind core.MediaKind

	mu     sync.Mutex
	paused bool
	closed bool
}

func (p *fakeProducer) ID() string           { return p.id }
func (p *fakeProducer) Kind() core.MediaKind { return p.kind }

func (p *fakeProducer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *fakeProducer) Pause(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	return nil
}

func (p *fakeProducer) Resume(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	return nil
}

func (p *fakeProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakeProducer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeConsumer struct {
	id       string
	producer *fakeProducer

	mu     sync.Mutex
	paused bool
	closed bool
}

func (c *fakeConsumer) ID() string           { return c.id }
func (c *fakeConsumer) ProducerID() string   { return c.producer.id }
func (c *fakeConsumer) Kind() core.MediaKind { return c.producer.kind }

func (c *fakeConsumer) RTPParameters() core.RTPParameters {
	return core.RTPParameters{Encodings: []core.RTPEncoding{{SSRC: 1111}}}
}

func (c *fakeConsumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *fakeConsumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.producer.isClosed()
}

func (c *fakeConsumer) Resume(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	return nil
}

func (c *fakeConsumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// isClosed reports whether Close was called on the consumer itself.
func (c *fakeConsumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
