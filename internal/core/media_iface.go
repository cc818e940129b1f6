//go:generate go run go.uber.org/mock/mockgen -source=media_iface.go -destination=../mocks/mock_media.go -package=mocks
package core

import "context"

// Engine is the media worker. It is created once at startup.
type Engine interface {
	// CreateRouter builds a router negotiating the given codec set.
	CreateRouter(ctx context.Context, codecs []RTPCodec) (Router, error)
}

// Router relays media between the producers and consumers of one voice room.
type Router interface {
	ID() string
	RTPCapabilities() RTPCapabilities
	// CreateTransport allocates an ICE/DTLS transport and gathers its local candidates.
	CreateTransport(ctx context.Context) (Transport, error)
	// CanConsume reports whether producerID is routed here and decodable with caps.
	CanConsume(producerID string, caps RTPCapabilities) bool
	Close()
}

type Transport interface {
	ID() string
	Params() TransportParams
	// Connect finishes the ICE and DTLS handshakes. It blocks until both complete.
	Connect(ctx context.Context, params ConnectParams) error
	Produce(ctx context.Context, kind MediaKind, rtp RTPParameters) (Producer, error)
	Consume(ctx context.Context, producerID string, caps RTPCapabilities, paused bool) (Consumer, error)
	Close()
}

type Producer interface {
	ID() string
	Kind() MediaKind
	Paused() bool
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Close()
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() MediaKind
	RTPParameters() RTPParameters
	Paused() bool
	// Closed reports whether the consumer was closed, including by its producer going away.
	Closed() bool
	Resume(ctx context.Context) error
	Close()
}
