package http

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/process"
)

// connCounter is the part of the signal hub the REST side reads.
type connCounter interface {
	Count() int
}

type restHandlers struct {
	orch    *orch.Orchestrator
	hub     connCounter
	started time.Time
}

type statsResponse struct {
	Connections int     `json:"connections"`
	Sessions    int     `json:"sessions"`
	ChatRooms   int     `json:"chatRooms"`
	VoiceRooms  int     `json:"voiceRooms"`
	Goroutines  int     `json:"goroutines"`
	CPUPercent  float64 `json:"cpuPercent"`
	MemPercent  float32 `json:"memPercent"`
	RSSBytes    uint64  `json:"rssBytes"`
	Uptime      string  `json:"uptime"`
}

func healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// listRooms is the lobby as seen by an anonymous viewer.
func (h *restHandlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.Summaries("")})
}

// roomMembers only answers for public rooms.
func (h *restHandlers) roomMembers(c *gin.Context) {
	name := domain.RoomName(c.Param("name"))
	if !h.orch.Rooms.Has(name) {
		writeError(c, fmt.Errorf("%w: room %q", domain.ErrNotFound, name))
		return
	}
	if h.orch.Access.IsPrivate(name) {
		writeError(c, fmt.Errorf("%w: room %q is private", domain.ErrUnauthorized, name))
		return
	}
	members, creator, ok := h.orch.Rooms.Members(name)
	if !ok {
		writeError(c, fmt.Errorf("%w: room %q", domain.ErrNotFound, name))
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomName": name, "users": members, "creatorId": creator})
}

func (h *restHandlers) listVoiceRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Voice.Rooms()})
}

func (h *restHandlers) stats(c *gin.Context) {
	resp := statsResponse{
		Connections: h.hub.Count(),
		Sessions:    h.orch.Registry.Count(),
		ChatRooms:   len(h.orch.Rooms.ListRoomNames()),
		VoiceRooms:  len(h.orch.Voice.Rooms()),
		Goroutines:  runtime.NumGoroutine(),
	}
	if !h.started.IsZero() {
		resp.Uptime = time.Since(h.started).Round(time.Second).String()
	}

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("process stats unavailable")
		c.JSON(http.StatusOK, resp)
		return
	}
	if cpu, err := p.CPUPercent(); err == nil {
		resp.CPUPercent = cpu
	}
	if mem, err := p.MemoryPercent(); err == nil {
		resp.MemPercent = mem
	}
	if info, err := p.MemoryInfo(); err == nil && info != nil {
		resp.RSSBytes = info.RSS
	}
	c.JSON(http.StatusOK, resp)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindUnauthorized:
		status = http.StatusForbidden
	case domain.KindInvalidRequest:
		status = http.StatusBadRequest
	case domain.KindEngineRejected:
		status = http.StatusBadGateway
	}
	if errors.Is(err, domain.ErrEngineRejected) || status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Msg("request failed")
	}
	c.JSON(status, gin.H{"kind": kind, "message": err.Error()})
}
