package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	var ping <-chan time.Time
	if ctl.opts.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.opts.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			c.Close()
			return
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

// readPump handles events of one connection in order and runs the
// disconnect cleanup when the socket goes away.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.onDisconnect(sid)
	}()

	if ctl.opts.PingPeriod > 0 {
		wait := ctl.opts.PingPeriod * 10 / 9
		_ = c.conn.SetReadDeadline(time.Now().Add(wait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		ctl.dispatch(ctx, sid, data)
		if ctx.Err() != nil {
			return
		}
	}
}

// dispatch maps one inbound frame to exactly one handler.
func (ctl *SignalWSController) dispatch(ctx context.Context, sid core.SessionID, data []byte) {
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		ctl.sendError(sid, "error", "", fmt.Errorf("%w: malformed frame", domain.ErrInvalidRequest))
		return
	}

	switch env.Type {
	case "ping":
		ctl.Hub.Send(sid, "pong", nil)
	case "get_rooms":
		ctl.sendRoomList(sid, "room_list")
	case "set_user_name":
		ctl.handleSetUserName(sid, env.Data)
	case "create_room":
		ctl.handleCreateRoom(sid, env.Data)
	case "join_room":
		ctl.handleJoinRoom(sid, env.Data)
	case "leave_room":
		ctl.handleLeaveRoom(sid, env.Data)
	case "send_message":
		ctl.handleSendMessage(sid, env.Data)
	case "add_user_to_private_room":
		ctl.handleAddUserToPrivateRoom(sid, env.Data)
	case "remove_room":
		ctl.handleRemoveRoom(sid, env.Data)
	case "remove_user_from_room":
		ctl.handleRemoveUserFromRoom(sid, env.Data)

	case "join_voice_channel":
		ctl.handleJoinVoice(ctx, sid, env.Data)
	case "leave_voice_channel":
		ctl.handleLeaveVoice(sid, env.Data)
	case "toggle_mute":
		ctl.handleToggleMute(ctx, sid, env.Data)
	case "get_router_rtp_capabilities":
		ctl.handleRouterCapabilities(sid, env.Data)
	case "create_webrtc_transport":
		ctl.handleCreateTransport(ctx, sid, env.Data)
	case "connect_webrtc_transport":
		ctl.handleConnectTransport(ctx, sid, env.Data)
	case "produce":
		ctl.handleProduce(ctx, sid, env.Data)
	case "consume":
		ctl.handleConsume(ctx, sid, env.Data)
	case "resume_consumer":
		ctl.handleResumeConsumer(ctx, sid, env.Data)
	case "get_producers":
		ctl.handleGetProducers(sid, env.Data)
	default:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(sid, "error", env.Type, fmt.Errorf("%w: unknown event %q", domain.ErrInvalidRequest, env.Type))
	}
}

// decode unmarshals and validates a payload.
func (ctl *SignalWSController) decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if err := ctl.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" "+fe.Tag())
			}
			return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	return nil
}

// sendError reports err to sid under event ("error" or "voice_error").
func (ctl *SignalWSController) sendError(sid core.SessionID, event, cause string, err error) {
	kind := domain.KindOf(err)
	ev := log.Info()
	switch kind {
	case domain.KindEngineRejected, domain.KindInternal:
		ev = log.Error()
	case domain.KindUnauthorized, domain.KindNotFound:
		ev = log.Warn()
	}
	ev.Err(err).Str("module", "signal").Str("sid", string(sid)).Str("event", cause).Str("kind", string(kind)).Msg("request failed")
	ctl.Hub.Send(sid, event, errorPayload{Event: cause, Kind: kind, Message: err.Error()})
}
