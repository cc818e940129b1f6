package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoinVoice(ctx context.Context, sid core.SessionID, data json.RawMessage) {
	var req roomRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "voice_error", "join_voice_channel", err)
		return
	}
	name := cleanRoom(req.RoomName)
	roster, err := ctl.Orch.JoinVoice(ctx, sid, name)
	if err != nil {
		ctl.sendError(sid, "voice_error", "join_voice_channel", err)
		return
	}
	ctl.Hub.JoinGroup(sid, voiceGroup(name))
	ctl.Hub.Send(sid, "joined_voice_channel", voiceUsersPayload{RoomName: name, Users: roster})
	ctl.Hub.Broadcast(voiceGroup(name), "voice_users_updated", voiceUsersPayload{RoomName: name, Users: roster})
}

// handleLeaveVoice is idempotent; leaving a room sid is not in only acks.
func (ctl *SignalWSController) handleLeaveVoice(sid core.SessionID, data json.RawMessage) {
	var req roomRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "voice_error", "leave_voice_channel", err)
		return
	}
	name := cleanRoom(req.RoomName)
	left := ctl.Orch.LeaveVoice(sid, name)
	ctl.Hub.LeaveGroup(sid, voiceGroup(name))
	ctl.Hub.Send(sid, "left_voice_channel", roomPayload{RoomName: name})
	if !left {
		return
	}
	ctl.Hub.Broadcast(voiceGroup(name), "voice_user_left", voiceUserPayload{RoomName: name, UserID: userID(sid)})
	ctl.broadcastVoiceUsers(name)
}

func (ctl *SignalWSController) handleToggleMute(ctx context.Context, sid core.SessionID, data json.RawMessage) {
	var req toggleMuteRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "voice_error", "toggle_mute", err)
		return
	}
	name := cleanRoom(req.RoomName)
	if err := ctl.Orch.Voice.ToggleMute(ctx, name, sid, req.IsMuted); err != nil {
		ctl.sendError(sid, "voice_error", "toggle_mute", err)
		return
	}
	ctl.Hub.Send(sid, "mute_toggled", mutePayload{RoomName: name, IsMuted: req.IsMuted})
	ctl.Hub.Broadcast(voiceGroup(name), "user_mute_changed", mutePayload{RoomName: name, UserID: userID(sid), IsMuted: req.IsMuted}, sid)
}

func (ctl *SignalWSController) handleRouterCapabilities(sid core.SessionID, data json.RawMessage) {
	var req roomRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "voice_error", "get_router_rtp_capabilities", err)
		return
	}
	name := cleanRoom(req.RoomName)
	caps, err := ctl.Orch.Voice.RouterCapabilities(name)
	if err != nil {
		ctl.sendError(sid, "voice_error", "get_router_rtp_capabilities", err)
		return
	}
	ctl.Hub.Send(sid, "router_rtp_capabilities", capabilitiesPayload{RoomName: name, RTPCapabilities: caps})
}

func (ctl *SignalWSController) handleCreateTransport(ctx context.Context, sid core.SessionID, data json.RawMessage) {
	var req createTransportRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "voice_error", "create_webrtc_transport", err)
		return
	}
	name := cleanRoom(req.RoomName)
	res, err := ctl.Orch.Voice.CreateTransport(ctx, name, sid, req.Direction)
	if err != nil {
		ctl.sendError(sid, "voice_error", "create_webrtc_transport", err)
		return
	}
	ctl.Hub.Send(sid, "webrtc_transport_created", transportCreatedPayload{
		RoomName:        name,
		Direction:       req.Direction,
		TransportParams: res.Params,
	})
	// the old send transport took its producer with it
	if res.ProducerClosed {
		ctl.broadcastVoiceUsers(name)
	}
}

func (ctl *SignalWSController) handleConnectTransport(ctx context.Context, sid core.SessionID, data json.RawMessage) {
	var req connectTransportRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "voice_error", "connect_webrtc_transport", err)
		return
	}
	name := cleanRoom(req.RoomName)
	params := core.ConnectParams{DTLS: req.DTLSParameters, ICE: req.ICEParameters}
	if err := ctl.Orch.Voice.ConnectTransport(ctx, name, sid, req.TransportID, params); err != nil {
		ctl.sendError(sid, "voice_error", "connect_webrtc_transport", err)
		return
	}
	ctl.Hub.Send(sid, "webrtc_transport_connected", transportConnectedPayload{RoomName: name, TransportID: req.TransportID})
}

func (ctl *SignalWSController) handleProduce(ctx context.Context, sid core.SessionID, data json.RawMessage) {
	var req produceRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "voice_error", "produce", err)
		return
	}
	name := cleanRoom(req.RoomName)
	producerID, err := ctl.Orch.Voice.Produce(ctx, name, sid, req.TransportID, req.Kind, req.RTPParameters)
	if err != nil {
		ctl.sendError(sid, "voice_error", "produce", err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(name)).Str("producer", producerID).Msg("produced")
	ctl.Hub.Send(sid, "produced", producedPayload{RoomName: name, ProducerID: producerID})
	info, err := ctl.Orch.Voice.ProducerOf(name, sid)
	if err != nil {
		// left or replaced before the announcement
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("room", string(name)).Err(err).Msg("producer not announced")
		return
	}
	ctl.Hub.Broadcast(voiceGroup(name), "new_producer", newProducerPayload{RoomName: name, ProducerInfo: info}, sid)
	ctl.broadcastVoiceUsers(name)
}

func (ctl *SignalWSController) handleConsume(ctx context.Context, sid core.SessionID, data json.RawMessage) {
	var req consumeRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "voice_error", "consume", err)
		return
	}
	name := cleanRoom(req.RoomName)
	params, err := ctl.Orch.Voice.Consume(ctx, name, sid, req.ProducerID, req.RTPCapabilities)
	if err != nil {
		ctl.sendError(sid, "voice_error", "consume", err)
		return
	}
	ctl.Hub.Send(sid, "consumed", consumedPayload{RoomName: name, ConsumerParams: params})
}

func (ctl *SignalWSController) handleResumeConsumer(ctx context.Context, sid core.SessionID, data json.RawMessage) {
	var req resumeConsumerRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "voice_error", "resume_consumer", err)
		return
	}
	name := cleanRoom(req.RoomName)
	if err := ctl.Orch.Voice.ResumeConsumer(ctx, name, sid, req.ConsumerID); err != nil {
		ctl.sendError(sid, "voice_error", "resume_consumer", err)
		return
	}
	ctl.Hub.Send(sid, "consumer_resumed", consumerResumedPayload{RoomName: name, ConsumerID: req.ConsumerID})
}

func (ctl *SignalWSController) handleGetProducers(sid core.SessionID, data json.RawMessage) {
	var req roomRequest
	if err := ctl.decode(data, &req); err != nil {
		ctl.sendError(sid, "voice_error", "get_producers", err)
		return
	}
	name := cleanRoom(req.RoomName)
	producers, err := ctl.Orch.Voice.ListProducers(name, sid)
	if err != nil {
		ctl.sendError(sid, "voice_error", "get_producers", err)
		return
	}
	ctl.Hub.Send(sid, "producers_list", producersListPayload{RoomName: name, Producers: producers})
}

func (ctl *SignalWSController) broadcastVoiceUsers(name domain.RoomName) {
	roster, ok := ctl.Orch.Voice.Roster(name)
	if !ok {
		return
	}
	ctl.Hub.Broadcast(voiceGroup(name), "voice_users_updated", voiceUsersPayload{RoomName: name, Users: roster})
}
