package app

import (
	"testing"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DisplayName(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	sid := core.SessionID(uuid.NewString())

	// Given a connection that never picked a name
	req.Equal(domain.FallbackName(domain.UserID(sid)), registry.DisplayName(sid))

	// When it sets one
	name, err := registry.UpdateUsername(sid, "  alice ")
	req.NoError(err)
	req.Equal("alice", name)
	req.Equal("alice", registry.DisplayName(sid))

	// And an invalid name is rejected without changing the stored one
	_, err = registry.UpdateUsername(sid, "")
	req.ErrorIs(err, domain.ErrUsernameEmpty)
	req.Equal("alice", registry.DisplayName(sid))
}

func TestRegistry_Current_Room(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	canceled := false
	registry.BindSignal("A", func() { canceled = true })

	_, ok := registry.RoomOf("A")
	req.False(ok)

	req.True(registry.UpdateRoom("A", "general"))
	room, ok := registry.RoomOf("A")
	req.True(ok)
	req.Equal(domain.RoomName("general"), room)

	// Clearing another room leaves the current one
	registry.RemoveRoom("A", "random")
	_, ok = registry.RoomOf("A")
	req.True(ok)

	registry.RemoveRoom("A", "general")
	_, ok = registry.RoomOf("A")
	req.False(ok)

	req.False(registry.UpdateRoom("B", "general"))
	req.True(registry.Cancel("A"))
	req.True(canceled)

	registry.Unbind("A")
	req.False(registry.IsBound("A"))
	req.Zero(registry.Count())
}
