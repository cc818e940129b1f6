// Package rtc implements the media engine on top of the pion ORTC API.
// Every router owns a pion API with its own codec table; transports are
// ICE-lite on the server side and forward RTP through app/sfu relays.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrWorkerDead       = errors.New("media worker is dead")
	ErrRouterClosed     = errors.New("router closed")
	ErrTransportClosed  = errors.New("transport closed")
	ErrNotConnected     = errors.New("transport not connected")
	ErrUnknownProducer  = errors.New("unknown producer")
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

type Config struct {
	UDPPortMin  uint16
	UDPPortMax  uint16
	AnnouncedIP string
	STUNURLs    []string
}

func DefaultConfig() Config {
	return Config{
		UDPPortMin: 40000,
		UDPPortMax: 40100,
		STUNURLs:   []string{"stun:stun.l.google.com:19302"},
	}
}

// Worker is the process-wide media engine. Once it dies every later call fails
// and Died is closed.
type Worker struct {
	settings   webrtc.SettingEngine
	iceServers []webrtc.ICEServer

	dieOnce sync.Once
	died    chan struct{}
	mu      sync.Mutex
	err     error
}

var _ core.Engine = (*Worker)(nil)

func NewWorker(cfg Config) (*Worker, error) {
	var settings webrtc.SettingEngine
	settings.SetLite(true)
	if cfg.UDPPortMin != 0 || cfg.UDPPortMax != 0 {
		if err := settings.SetEphemeralUDPPortRange(cfg.UDPPortMin, cfg.UDPPortMax); err != nil {
			return nil, fmt.Errorf("udp port range %d-%d: %w", cfg.UDPPortMin, cfg.UDPPortMax, err)
		}
	}
	if cfg.AnnouncedIP != "" {
		settings.SetNAT1To1IPs([]string{cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}

	var servers []webrtc.ICEServer
	if len(cfg.STUNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.STUNURLs})
	}

	log.Info().
		Str("module", "rtc").
		Uint16("udp_min", cfg.UDPPortMin).
		Uint16("udp_max", cfg.UDPPortMax).
		Str("announced_ip", cfg.AnnouncedIP).
		Msg("media worker started")

	return &Worker{
		settings:   settings,
		iceServers: servers,
		died:       make(chan struct{}),
	}, nil
}

func (w *Worker) CreateRouter(_ context.Context, codecs []core.RTPCodec) (core.Router, error) {
	if err := w.Err(); err != nil {
		return nil, err
	}
	me := &webrtc.MediaEngine{}
	for _, c := range codecs {
		if err := me.RegisterCodec(toPionCodec(c), codecType(c.Kind)); err != nil {
			return nil, fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(w.settings))
	r := newRouter(w, api, codecs)
	log.Info().Str("module", "rtc").Str("router", r.id).Int("codecs", len(codecs)).Msg("router created")
	return r, nil
}

// Died is closed when the worker hits an unrecoverable fault.
func (w *Worker) Died() <-chan struct{} {
	return w.died
}

func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Worker) fatal(err error) {
	w.dieOnce.Do(func() {
		w.mu.Lock()
		w.err = fmt.Errorf("%w: %w", ErrWorkerDead, err)
		w.mu.Unlock()
		log.Error().Err(err).Str("module", "rtc").Msg("media worker died")
		close(w.died)
	})
}
