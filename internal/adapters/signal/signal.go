package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Hub     *Hub
	Limiter *RoomRateLimiter

	opts     Options
	validate *validator.Validate

	// beforeJoinGroup runs between a successful chat join and the group join.
	beforeJoinGroup func(name domain.RoomName, sid core.SessionID)
}

func NewSignalWSController(o *orch.Orchestrator, hub *Hub, limiter *RoomRateLimiter, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch:     o,
		Hub:      hub,
		Limiter:  limiter,
		opts:     opts,
		validate: validator.New(),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until it closes.
// Every attach gets a fresh connection id.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("client_token", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, sendBuffer),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(sid, cancel)
	ctl.Hub.Register(sid, conn)
	ctl.onConnect(sid)

	go ctl.writePump(ctx, sid, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}

func (ctl *SignalWSController) onConnect(sid core.SessionID) {
	ctl.Hub.JoinGroup(sid, lobbyGroup)
	user := ctl.Orch.Registry.User(sid)
	ctl.Hub.Send(sid, "connected", connectedPayload{UserID: user.ID, UserName: user.Username})
	ctl.sendRoomList(sid, "room_list")
}

// onDisconnect runs cleanup on server state only; the socket may already be gone.
func (ctl *SignalWSController) onDisconnect(sid core.SessionID) {
	d := ctl.Orch.OnDisconnect(sid)
	if d.ChatRoom != "" {
		ctl.Hub.LeaveGroup(sid, roomGroup(d.ChatRoom))
		ctl.broadcastRoomUsers(d.ChatRoom)
		ctl.broadcastRoomList()
	}
	for _, room := range d.VoiceRooms {
		ctl.Hub.LeaveGroup(sid, voiceGroup(room))
		ctl.Hub.Broadcast(voiceGroup(room), "voice_user_left", voiceUserPayload{RoomName: room, UserID: userID(sid)})
		ctl.broadcastVoiceUsers(room)
	}
	ctl.Hub.Unregister(sid)
	if ctl.Limiter != nil {
		ctl.Limiter.Forget(sid)
	}
}
