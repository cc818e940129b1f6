// Package orch coordinates the chat registry, access control and voice
// orchestrator on behalf of one connection. It returns what changed and
// leaves fan-out to the signaling layer.
package orch

import (
	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/voice"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Access   *app.AccessControl
	Voice    *voice.Orchestrator
	Policy   app.Policy

	// MaxRoomNameLen bounds room names; zero disables the check.
	MaxRoomNameLen int

	// afterMemberAdded runs between the room and registry updates of a join.
	afterMemberAdded func(name domain.RoomName, sid core.SessionID)
}

func New(registry *app.Registry, rooms *app.RoomManager, voiceOrch *voice.Orchestrator, policy app.Policy) *Orchestrator {
	return &Orchestrator{
		Registry: registry,
		Rooms:    rooms,
		Access:   app.NewAccessControl(rooms),
		Voice:    voiceOrch,
		Policy:   policy,
	}
}

// OnBackPressure applies the policy to a connection that cannot keep up.
func (o *Orchestrator) OnBackPressure(sid core.SessionID) {
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnBackPressure(sid) {
	case app.KickMember:
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("kicking slow connection")
		o.KickBySID(sid)
	case app.MarkSlow, app.DropFrame, app.NoAction:
	}
}

// KickBySID cancels the connection. Its disconnect cleanup runs from the read pump.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.Registry.Cancel(sid)
}
