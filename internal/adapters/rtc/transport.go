package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type transport struct {
	id       string
	router   *router
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
	params   core.TransportParams

	mu        sync.Mutex
	connected bool
	closed    bool
	producers []*producer
	consumers []*consumer
}

var _ core.Transport = (*transport)(nil)

// newTransport gathers local candidates and prepares the DTLS side. It returns
// once gathering completes or ctx is done.
func newTransport(ctx context.Context, r *router) (*transport, error) {
	gatherer, err := r.api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: r.worker.iceServers})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}

	gathered := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(gathered)
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("ice gather: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		_ = gatherer.Close()
		return nil, ctx.Err()
	}

	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("local candidates: %w", err)
	}
	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("local ice parameters: %w", err)
	}

	ice := r.api.NewICETransport(gatherer)
	dtls, err := r.api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("local dtls parameters: %w", err)
	}

	t := &transport{
		id:       uuid.NewString(),
		router:   r,
		gatherer: gatherer,
		ice:      ice,
		dtls:     dtls,
	}
	iceLocal := fromPionICE(iceParams)
	iceLocal.ICELite = true
	t.params = core.TransportParams{
		ID:             t.id,
		ICEParameters:  iceLocal,
		ICECandidates:  fromPionCandidates(candidates),
		DTLSParameters: fromPionDTLS(dtlsParams),
	}

	ice.OnConnectionStateChange(func(s webrtc.ICETransportState) {
		log.Info().Str("module", "rtc").Str("transport", t.id).Str("ice_state", s.String()).Msg("ICE state")
	})
	dtls.OnStateChange(func(s webrtc.DTLSTransportState) {
		log.Info().Str("module", "rtc").Str("transport", t.id).Str("dtls_state", s.String()).Msg("DTLS state")
	})

	log.Info().Str("module", "rtc").Str("router", r.id).Str("transport", t.id).Int("candidates", len(candidates)).Msg("transport created")
	return t, nil
}

func (t *transport) ID() string                   { return t.id }
func (t *transport) Params() core.TransportParams { return t.params }

// Connect runs the ICE and DTLS handshakes as the controlled side.
func (t *transport) Connect(ctx context.Context, params core.ConnectParams) error {
	if params.ICE == nil {
		return errors.New("remote ice parameters are required")
	}
	if len(params.DTLS.Fingerprints) == 0 {
		return errors.New("remote dtls fingerprint is required")
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		role := webrtc.ICERoleControlled
		if err := t.ice.Start(nil, toPionICE(*params.ICE), &role); err != nil {
			done <- fmt.Errorf("ice start: %w", err)
			return
		}
		if err := t.dtls.Start(toPionDTLS(params.DTLS)); err != nil {
			done <- fmt.Errorf("dtls start: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		t.Close()
		return ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.connected = true
	return nil
}

func (t *transport) Produce(_ context.Context, kind core.MediaKind, params core.RTPParameters) (core.Producer, error) {
	t.mu.Lock()
	ready := t.connected && !t.closed
	t.mu.Unlock()
	if !ready {
		return nil, ErrNotConnected
	}

	codec, ssrc, err := negotiate(t.router.codecs, kind, params)
	if err != nil {
		return nil, err
	}

	receiver, err := t.router.api.NewRTPReceiver(codecType(kind), t.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp receiver: %w", err)
	}
	err = receiver.Receive(webrtc.RTPReceiveParameters{Encodings: []webrtc.RTPDecodingParameters{{
		RTPCodingParameters: webrtc.RTPCodingParameters{SSRC: ssrc, PayloadType: webrtc.PayloadType(codec.PayloadType)},
	}}})
	if err != nil {
		_ = receiver.Stop()
		return nil, fmt.Errorf("rtp receive: %w", err)
	}

	p := &producer{
		id:       uuid.NewString(),
		kind:     kind,
		codec:    codec,
		router:   t.router,
		receiver: receiver,
	}
	track := receiver.Track()
	p.relay = t.router.relays.StartRelay(t.router.ctx, p.id, func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	})
	t.router.addProducer(p)

	t.mu.Lock()
	t.producers = append(t.producers, p)
	t.mu.Unlock()
	log.Info().Str("module", "rtc").Str("transport", t.id).Str("producer", p.id).Uint32("ssrc", uint32(ssrc)).Msg("producer created")
	return p, nil
}

func (t *transport) Consume(_ context.Context, producerID string, caps core.RTPCapabilities, paused bool) (core.Consumer, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, ErrTransportClosed
	}

	p, ok := t.router.producer(producerID)
	if !ok || p.Closed() {
		return nil, ErrUnknownProducer
	}
	if !supports(caps, p.codec) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, p.codec.MimeType)
	}

	id := uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticRTP(toPionCodec(p.codec).RTPCodecCapability, string(p.kind)+"-"+id, producerID)
	if err != nil {
		return nil, fmt.Errorf("local track: %w", err)
	}
	sender, err := t.router.api.NewRTPSender(local, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp sender: %w", err)
	}
	sendParams := sender.GetParameters()
	if err := sender.Send(sendParams); err != nil {
		_ = sender.Stop()
		return nil, fmt.Errorf("rtp send: %w", err)
	}

	out, ok := t.router.relays.AddSubscriber(producerID, id, local, paused)
	if !ok {
		_ = sender.Stop()
		return nil, ErrUnknownProducer
	}

	c := &consumer{
		id:         id,
		producerID: producerID,
		kind:       p.kind,
		sender:     sender,
		out:        out,
		rtp: core.RTPParameters{
			MID:       id,
			Codecs:    []core.RTPCodec{p.codec},
			Encodings: []core.RTPEncoding{{SSRC: uint32(sendParams.Encodings[0].SSRC)}},
		},
	}

	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	log.Info().Str("module", "rtc").Str("transport", t.id).Str("consumer", id).Str("producer", producerID).Msg("consumer created")
	return c, nil
}

// Close tears down everything created on this transport.
func (t *transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers, consumers := t.producers, t.consumers
	t.producers, t.consumers = nil, nil
	t.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	for _, p := range producers {
		p.Close()
	}
	if err := t.dtls.Stop(); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Str("transport", t.id).Msg("dtls stop error")
	}
	if err := t.ice.Stop(); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Str("transport", t.id).Msg("ice stop error")
	}
	if err := t.gatherer.Close(); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Str("transport", t.id).Msg("gatherer close error")
	}
	t.router.removeTransport(t.id)
	log.Info().Str("module", "rtc").Str("transport", t.id).Msg("transport closed")
}
