package voice

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	dtls = core.ConnectParams{DTLS: core.DTLSParameters{
		Role:         "client",
		Fingerprints: []core.DTLSFingerprint{{Algorithm: "sha-256", Value: "AB:CD"}},
	}}
	caps = core.RTPCapabilities{Codecs: DefaultCodecs}
	opus = core.RTPParameters{Codecs: DefaultCodecs, Encodings: []core.RTPEncoding{{SSRC: 4242}}}
)

// producing joins sid and walks it to a live producer.
func producing(t *testing.T, o *Orchestrator, room domain.RoomName, sid core.SessionID) string {
	req := require.New(t)
	ctx := context.Background()
	_, err := o.Join(ctx, room, sid, string(sid))
	req.NoError(err)
	created, err := o.CreateTransport(ctx, room, sid, core.DirectionSend)
	req.NoError(err)
	req.NoError(o.ConnectTransport(ctx, room, sid, created.Params.ID, dtls))
	producerID, err := o.Produce(ctx, room, sid, created.Params.ID, core.MediaKindAudio, opus)
	req.NoError(err)
	return producerID
}

func TestOrchestrator_ProduceConsumeResume(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o := NewOrchestrator(&fakeEngine{}, nil)

	// Given A producing in r1
	producerID := producing(t, o, "r1", "A")

	// When B joins with a receive transport and consumes it
	roster, err := o.Join(ctx, "r1", "B", "B")
	req.NoError(err)
	req.Len(roster, 2)
	recv, err := o.CreateTransport(ctx, "r1", "B", core.DirectionReceive)
	req.NoError(err)
	req.False(recv.ProducerClosed)

	consumer, err := o.Consume(ctx, "r1", "B", producerID, caps)
	req.NoError(err)

	// Then the consumer starts paused
	req.Equal(producerID, consumer.ProducerID)
	req.Equal(core.MediaKindAudio, consumer.Kind)
	req.True(consumer.Paused)

	// And resuming it makes it active
	req.NoError(o.ResumeConsumer(ctx, "r1", "B", consumer.ID))
	room, _ := o.get("r1")
	b := room.participants["B"]
	req.False(b.consumers[consumer.ID].Paused())

	// And the roster reports A as producing
	roster, ok := o.Roster("r1")
	req.True(ok)
	req.Equal([]domain.VoiceMember{
		{ID: "A", Name: "A", HasProducer: true},
		{ID: "B", Name: "B"},
	}, roster)
}

func TestOrchestrator_Join_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	engine := &fakeEngine{}
	o := NewOrchestrator(engine, nil)

	_, err := o.Join(ctx, "r1", "A", "alice")
	req.NoError(err)
	roster, err := o.Join(ctx, "r1", "A", "alice")
	req.NoError(err)

	req.Len(roster, 1)
	req.Equal(1, engine.routerCount())
}

func TestOrchestrator_LastLeave_FreshRouter(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	engine := &fakeEngine{}
	o := NewOrchestrator(engine, nil)

	// Given two participants, one producing
	producing(t, o, "r1", "A")
	_, err := o.Join(ctx, "r1", "B", "B")
	req.NoError(err)
	first := engine.routers[0]

	// When the first leaves the router stays
	req.True(o.Leave("r1", "A"))
	req.False(first.isClosed())
	req.True(first.transports[0].isClosed())
	for _, p := range first.producers {
		req.True(p.isClosed())
	}

	// When the last one leaves the room is gone
	req.True(o.Leave("r1", "B"))
	req.True(first.isClosed())
	_, ok := o.Roster("r1")
	req.False(ok)
	req.Empty(o.Rooms())

	// And leaving again is a no-op
	req.False(o.Leave("r1", "B"))

	// Then joining again creates a fresh router
	_, err = o.Join(ctx, "r1", "A", "A")
	req.NoError(err)
	req.Equal(2, engine.routerCount())
	caps, err := o.RouterCapabilities("r1")
	req.NoError(err)
	req.Equal(DefaultCodecs, caps.Codecs)
}

func TestOrchestrator_NotFound(t *testing.T) {
	ctx := context.Background()
	o := NewOrchestrator(&fakeEngine{}, nil)
	producing(t, o, "r1", "A")

	tests := []struct {
		name string
		call func() error
	}{
		{"transport in unknown room", func() error {
			_, err := o.CreateTransport(ctx, "nope", "A", core.DirectionSend)
			return err
		}},
		{"transport for non participant", func() error {
			_, err := o.CreateTransport(ctx, "r1", "Z", core.DirectionSend)
			return err
		}},
		{"connect unknown transport", func() error {
			return o.ConnectTransport(ctx, "r1", "A", "missing", dtls)
		}},
		{"produce on unknown transport", func() error {
			_, err := o.Produce(ctx, "r1", "A", "missing", core.MediaKindAudio, opus)
			return err
		}},
		{"consume unknown producer", func() error {
			_, err := o.Consume(ctx, "r1", "A", "missing", caps)
			return err
		}},
		{"resume unknown consumer", func() error {
			return o.ResumeConsumer(ctx, "r1", "A", "missing")
		}},
		{"mute in unknown room", func() error {
			return o.ToggleMute(ctx, "nope", "A", true)
		}},
		{"list producers for non participant", func() error {
			_, err := o.ListProducers("r1", "Z")
			return err
		}},
		{"capabilities of unknown room", func() error {
			_, err := o.RouterCapabilities("nope")
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			err := tc.call()
			req.ErrorIs(err, domain.ErrNotFound)
			req.Equal(domain.KindNotFound, domain.KindOf(err))
		})
	}

	// No partial state was left behind
	req := require.New(t)
	req.Equal([]RoomInfo{{Name: "r1", Participants: 1}}, o.Rooms())
	req.Equal([]domain.RoomName{"r1"}, o.RoomsOf("A"))
}

func TestOrchestrator_Consume_NeedsReceiveTransport(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o := NewOrchestrator(&fakeEngine{}, nil)
	producerID := producing(t, o, "r1", "A")
	_, err := o.Join(ctx, "r1", "B", "B")
	req.NoError(err)

	_, err = o.Consume(ctx, "r1", "B", producerID, caps)
	req.ErrorIs(err, domain.ErrNotFound)

	// Own producer is not consumable
	_, err = o.CreateTransport(ctx, "r1", "A", core.DirectionReceive)
	req.NoError(err)
	_, err = o.Consume(ctx, "r1", "A", producerID, caps)
	req.ErrorIs(err, domain.ErrInvalidRequest)

	// Capabilities the router rejects
	_, err = o.CreateTransport(ctx, "r1", "B", core.DirectionReceive)
	req.NoError(err)
	_, err = o.Consume(ctx, "r1", "B", producerID, core.RTPCapabilities{})
	req.ErrorIs(err, domain.ErrEngineRejected)
}

func TestOrchestrator_Produce_RequiresConnectedSendTransport(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o := NewOrchestrator(&fakeEngine{}, nil)
	_, err := o.Join(ctx, "r1", "A", "A")
	req.NoError(err)

	send, err := o.CreateTransport(ctx, "r1", "A", core.DirectionSend)
	req.NoError(err)
	_, err = o.Produce(ctx, "r1", "A", send.Params.ID, core.MediaKindAudio, opus)
	req.ErrorIs(err, domain.ErrInvalidRequest)
	req.ErrorContains(err, "is created, not connected")

	recv, err := o.CreateTransport(ctx, "r1", "A", core.DirectionReceive)
	req.NoError(err)
	req.NoError(o.ConnectTransport(ctx, "r1", "A", recv.Params.ID, dtls))
	_, err = o.Produce(ctx, "r1", "A", recv.Params.ID, core.MediaKindAudio, opus)
	req.ErrorIs(err, domain.ErrNotFound)

	_, err = o.CreateTransport(ctx, "r1", "A", core.Direction("sideways"))
	req.ErrorIs(err, domain.ErrInvalidRequest)
}

func TestOrchestrator_ConnectTransport_Twice(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o := NewOrchestrator(&fakeEngine{}, nil)
	_, err := o.Join(ctx, "r1", "A", "A")
	req.NoError(err)
	send, err := o.CreateTransport(ctx, "r1", "A", core.DirectionSend)
	req.NoError(err)

	// A failed handshake leaves the slot in created state
	err = o.ConnectTransport(ctx, "r1", "A", send.Params.ID, core.ConnectParams{})
	req.ErrorIs(err, domain.ErrEngineRejected)
	room, _ := o.get("r1")
	req.Equal(SlotCreated, room.participants["A"].send.state)

	req.NoError(o.ConnectTransport(ctx, "r1", "A", send.Params.ID, dtls))
	req.NoError(o.ConnectTransport(ctx, "r1", "A", send.Params.ID, core.ConnectParams{}))
	req.Equal(SlotConnected, room.participants["A"].send.state)
}

func TestOrchestrator_MuteBeforeProduce(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	engine := &fakeEngine{}
	o := NewOrchestrator(engine, nil)

	// Given a participant that muted before producing
	_, err := o.Join(ctx, "r1", "A", "A")
	req.NoError(err)
	req.NoError(o.ToggleMute(ctx, "r1", "A", true))

	// When it produces
	send, err := o.CreateTransport(ctx, "r1", "A", core.DirectionSend)
	req.NoError(err)
	req.NoError(o.ConnectTransport(ctx, "r1", "A", send.Params.ID, dtls))
	producerID, err := o.Produce(ctx, "r1", "A", send.Params.ID, core.MediaKindAudio, opus)
	req.NoError(err)

	// Then the producer starts paused
	producer := engine.routers[0].producers[producerID]
	req.True(producer.Paused())
	roster, _ := o.Roster("r1")
	req.True(roster[0].Muted)

	// And unmuting resumes it
	req.NoError(o.ToggleMute(ctx, "r1", "A", false))
	req.False(producer.Paused())
}

func TestOrchestrator_TransportReplacement(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	engine := &fakeEngine{}
	o := NewOrchestrator(engine, nil)
	producerID := producing(t, o, "r1", "A")

	_, err := o.Join(ctx, "r1", "B", "B")
	req.NoError(err)
	_, err = o.CreateTransport(ctx, "r1", "B", core.DirectionReceive)
	req.NoError(err)
	consumer, err := o.Consume(ctx, "r1", "B", producerID, caps)
	req.NoError(err)

	router := engine.routers[0]
	oldSend := router.transports[0]
	oldRecv := router.transports[1]

	// When A replaces its send transport
	created, err := o.CreateTransport(ctx, "r1", "A", core.DirectionSend)
	req.NoError(err)

	// Then the old transport and its producer are closed
	req.True(created.ProducerClosed)
	req.True(oldSend.isClosed())
	req.True(router.producers[producerID].isClosed())
	producers, err := o.ListProducers("r1", "B")
	req.NoError(err)
	req.Empty(producers)

	// And B's consumer of it is closed and forgotten
	room, _ := o.get("r1")
	req.Empty(room.participants["B"].consumers)
	err = o.ResumeConsumer(ctx, "r1", "B", consumer.ID)
	req.ErrorIs(err, domain.ErrNotFound)

	// When B replaces its receive transport the old one closes
	_, err = o.CreateTransport(ctx, "r1", "B", core.DirectionReceive)
	req.NoError(err)
	req.True(oldRecv.isClosed())
}

func TestOrchestrator_DepartedProducers_LeaveNoConsumers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o := NewOrchestrator(&fakeEngine{}, nil)

	// Given B listening with a receive transport
	_, err := o.Join(ctx, "r1", "B", "B")
	req.NoError(err)
	_, err = o.CreateTransport(ctx, "r1", "B", core.DirectionReceive)
	req.NoError(err)
	room, _ := o.get("r1")
	b := room.participants["B"]

	// When speakers come and go many times
	var consumed []*fakeConsumer
	for range 50 {
		producerID := producing(t, o, "r1", "A")
		params, err := o.Consume(ctx, "r1", "B", producerID, caps)
		req.NoError(err)
		consumed = append(consumed, b.consumers[params.ID].(*fakeConsumer))
		req.True(o.Leave("r1", "A"))
	}

	// Then B holds none of their consumers and each was closed
	req.Empty(b.consumers)
	for _, c := range consumed {
		req.True(c.isClosed())
	}
}

func TestOrchestrator_ProducerReplacement_DropsConsumers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o := NewOrchestrator(&fakeEngine{}, nil)
	first := producing(t, o, "r1", "A")
	_, err := o.Join(ctx, "r1", "B", "B")
	req.NoError(err)
	_, err = o.CreateTransport(ctx, "r1", "B", core.DirectionReceive)
	req.NoError(err)
	_, err = o.Consume(ctx, "r1", "B", first, caps)
	req.NoError(err)

	// When A produces again on the same transport
	room, _ := o.get("r1")
	sendID := room.participants["A"].send.transport.ID()
	second, err := o.Produce(ctx, "r1", "A", sendID, core.MediaKindAudio, opus)
	req.NoError(err)
	req.NotEqual(first, second)

	// Then B's consumer of the first producer is gone and the new one is consumable
	req.Empty(room.participants["B"].consumers)
	params, err := o.Consume(ctx, "r1", "B", second, caps)
	req.NoError(err)
	req.Equal(second, params.ProducerID)
	req.Len(room.participants["B"].consumers, 1)
}

func TestOrchestrator_ListProducers_ExcludesCaller(t *testing.T) {
	req := require.New(t)
	o := NewOrchestrator(&fakeEngine{}, nil)
	a := producing(t, o, "r1", "A")
	b := producing(t, o, "r1", "B")

	producers, err := o.ListProducers("r1", "A")
	req.NoError(err)
	req.Equal([]domain.ProducerInfo{{ProducerID: b, UserID: "B", UserName: "B"}}, producers)

	producers, err = o.ListProducers("r1", "B")
	req.NoError(err)
	req.Equal([]domain.ProducerInfo{{ProducerID: a, UserID: "A", UserName: "A"}}, producers)
}

func TestOrchestrator_ProducerOf(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	o := NewOrchestrator(&fakeEngine{}, nil)

	// Given A producing under its join name and B only listening
	a := producing(t, o, "r1", "A")
	_, err := o.Join(ctx, "r1", "B", "Bea")
	req.NoError(err)

	// Then A's producer carries the join name and B has none
	info, err := o.ProducerOf("r1", "A")
	req.NoError(err)
	req.Equal(domain.ProducerInfo{ProducerID: a, UserID: "A", UserName: "A"}, info)
	_, err = o.ProducerOf("r1", "B")
	req.ErrorIs(err, domain.ErrNotFound)
	_, err = o.ProducerOf("r2", "A")
	req.ErrorIs(err, domain.ErrNotFound)
}

func TestOrchestrator_EngineRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	boom := errors.New("negotiation failed")

	t.Run("router creation leaves no room", func(t *testing.T) {
		req := require.New(t)
		engine := mocks.NewMockEngine(ctrl)
		engine.EXPECT().CreateRouter(gomock.Any(), DefaultCodecs).Return(nil, boom)
		o := NewOrchestrator(engine, nil)

		_, err := o.Join(ctx, "r1", "A", "A")
		req.ErrorIs(err, domain.ErrEngineRejected)
		req.ErrorIs(err, boom)
		req.Empty(o.Rooms())
	})

	t.Run("transport creation keeps previous slot", func(t *testing.T) {
		req := require.New(t)
		engine := mocks.NewMockEngine(ctrl)
		router := mocks.NewMockRouter(ctrl)
		engine.EXPECT().CreateRouter(gomock.Any(), gomock.Any()).Return(router, nil)
		router.EXPECT().ID().Return("router-1").AnyTimes()
		router.EXPECT().CreateTransport(gomock.Any()).Return(nil, boom)
		o := NewOrchestrator(engine, nil)

		_, err := o.Join(ctx, "r1", "A", "A")
		req.NoError(err)
		_, err = o.CreateTransport(ctx, "r1", "A", core.DirectionSend)
		req.ErrorIs(err, domain.ErrEngineRejected)

		room, _ := o.get("r1")
		req.Equal(SlotEmpty, room.participants["A"].send.state)
	})

	t.Run("pause failure on muted produce drops the producer", func(t *testing.T) {
		req := require.New(t)
		engine := mocks.NewMockEngine(ctrl)
		router := mocks.NewMockRouter(ctrl)
		transport := mocks.NewMockTransport(ctrl)
		producer := mocks.NewMockProducer(ctrl)

		engine.EXPECT().CreateRouter(gomock.Any(), gomock.Any()).Return(router, nil)
		router.EXPECT().ID().Return("router-1").AnyTimes()
		router.EXPECT().CreateTransport(gomock.Any()).Return(transport, nil)
		transport.EXPECT().ID().Return("t-1").AnyTimes()
		transport.EXPECT().Params().Return(core.TransportParams{ID: "t-1"})
		transport.EXPECT().Connect(gomock.Any(), dtls).Return(nil)
		transport.EXPECT().Produce(gomock.Any(), core.MediaKindAudio, opus).Return(producer, nil)
		producer.EXPECT().Pause(gomock.Any()).Return(boom)
		producer.EXPECT().Close()
		o := NewOrchestrator(engine, nil)

		_, err := o.Join(ctx, "r1", "A", "A")
		req.NoError(err)
		req.NoError(o.ToggleMute(ctx, "r1", "A", true))
		_, err = o.CreateTransport(ctx, "r1", "A", core.DirectionSend)
		req.NoError(err)
		req.NoError(o.ConnectTransport(ctx, "r1", "A", "t-1", dtls))

		_, err = o.Produce(ctx, "r1", "A", "t-1", core.MediaKindAudio, opus)
		req.ErrorIs(err, domain.ErrEngineRejected)
		roster, _ := o.Roster("r1")
		req.False(roster[0].HasProducer)

		// Leaving closes what is left and the router
		transport.EXPECT().Close()
		router.EXPECT().Close()
		req.True(o.Leave("r1", "A"))
	})

	t.Run("resume failure keeps consumer", func(t *testing.T) {
		req := require.New(t)
		engine := mocks.NewMockEngine(ctrl)
		router := mocks.NewMockRouter(ctrl)
		consumer := mocks.NewMockConsumer(ctrl)
		o := NewOrchestrator(engine, nil)

		engine.EXPECT().CreateRouter(gomock.Any(), gomock.Any()).Return(router, nil)
		router.EXPECT().ID().Return("router-1").AnyTimes()
		_, err := o.Join(ctx, "r1", "B", "B")
		req.NoError(err)

		room, _ := o.get("r1")
		room.participants["B"].consumers["c-1"] = consumer
		consumer.EXPECT().Closed().Return(false)
		consumer.EXPECT().Resume(gomock.Any()).Return(boom)

		err = o.ResumeConsumer(ctx, "r1", "B", "c-1")
		req.ErrorIs(err, domain.ErrEngineRejected)
		req.Contains(room.participants["B"].consumers, "c-1")
	})
}
