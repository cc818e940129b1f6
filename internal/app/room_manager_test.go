package app

import (
	"sync"
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/stretchr/testify/require"
)

func message(room domain.RoomName, text string) domain.Message {
	return domain.Message{ID: text, RoomName: room, AuthorID: "a", AuthorName: "alice", Text: text, CreatedAt: time.Now()}
}

func TestRoomManager_CreateRoom_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomManager(0)
	access := NewAccessControl(rooms)

	// Given a public room created by A
	req.True(rooms.CreateRoom("general", "A", false, ""))

	// When B creates the same name as private
	req.False(rooms.CreateRoom("general", "B", true, "x"))

	// Then the first call's settings are kept
	req.Len(rooms.ListRoomNames(), 1)
	req.True(access.IsCreator("general", "A"))
	req.False(access.IsCreator("general", "B"))
	req.False(access.IsPrivate("general"))
}

func TestRoomManager_Membership(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomManager(0)

	// Given two rooms
	rooms.CreateRoom("general", "A", false, "")
	rooms.CreateRoom("random", "A", false, "")

	// When B joins both and A joins one
	req.True(rooms.AddUser("general", "B", "bob"))
	req.True(rooms.AddUser("random", "B", "bob"))
	req.True(rooms.AddUser("general", "A", "alice"))
	req.False(rooms.AddUser("missing", "B", "bob"))

	// Then membership is visible per room and per connection
	members, creator, ok := rooms.Members("general")
	req.True(ok)
	req.Equal(core.SessionID("A"), creator)
	req.Equal([]domain.Member{{ID: "A", Name: "alice"}, {ID: "B", Name: "bob"}}, members)
	req.ElementsMatch([]domain.RoomName{"general", "random"}, rooms.RoomsContaining("B"))
	req.ElementsMatch([]domain.RoomName{"general"}, rooms.RoomsContaining("A"))

	// When B leaves general twice
	req.True(rooms.RemoveUser("general", "B"))
	req.False(rooms.RemoveUser("general", "B"))

	// Then only random still holds B
	req.Equal([]domain.RoomName{"random"}, rooms.RoomsContaining("B"))
}

func TestRoomManager_Empty_Room_Persists(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomManager(0)

	rooms.CreateRoom("general", "A", false, "")
	rooms.AddUser("general", "A", "alice")
	rooms.RemoveUser("general", "A")

	req.True(rooms.Has("general"))
	members, _, ok := rooms.Members("general")
	req.True(ok)
	req.Empty(members)
}

func TestRoomManager_RemoveRoom(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomManager(0)
	rooms.CreateRoom("general", "A", false, "")
	rooms.AddUser("general", "A", "alice")
	rooms.AddUser("general", "B", "bob")
	rooms.AddMessage("general", message("general", "hi"))

	members := rooms.RemoveRoom("general")

	req.ElementsMatch([]core.SessionID{"A", "B"}, members)
	req.False(rooms.Has("general"))
	req.Empty(rooms.Messages("general"))
	req.Empty(rooms.RoomsContaining("A"))
	req.False(rooms.AddMessage("general", message("general", "late")))
	req.Nil(rooms.RemoveRoom("general"))
}

func TestRoomManager_Messages(t *testing.T) {
	t.Run("unbounded keeps everything in order", func(t *testing.T) {
		req := require.New(t)
		rooms := NewRoomManager(0)
		rooms.CreateRoom("general", "A", false, "")
		for _, text := range []string{"one", "two", "three"} {
			req.True(rooms.AddMessage("general", message("general", text)))
		}
		got := rooms.Messages("general")
		req.Len(got, 3)
		req.Equal("one", got[0].Text)
		req.Equal("three", got[2].Text)
	})

	t.Run("bounded drops the oldest", func(t *testing.T) {
		req := require.New(t)
		rooms := NewRoomManager(2)
		rooms.CreateRoom("general", "A", false, "")
		for _, text := range []string{"one", "two", "three"} {
			rooms.AddMessage("general", message("general", text))
		}
		got := rooms.Messages("general")
		req.Len(got, 2)
		req.Equal("two", got[0].Text)
		req.Equal("three", got[1].Text)
	})

	t.Run("missing room is a no-op", func(t *testing.T) {
		req := require.New(t)
		rooms := NewRoomManager(0)
		req.False(rooms.AddMessage("nope", message("nope", "x")))
		req.Empty(rooms.Messages("nope"))
	})
}

func TestRoomManager_RenameUser(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomManager(0)
	rooms.CreateRoom("general", "A", false, "")
	rooms.CreateRoom("random", "A", false, "")
	rooms.AddUser("general", "B", "bob")

	touched := rooms.RenameUser("B", "robert")

	req.Equal([]domain.RoomName{"general"}, touched)
	members, _, _ := rooms.Members("general")
	req.Equal("robert", members[0].Name)
}

func TestRoomManager_Summaries(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomManager(0)
	rooms.CreateRoom("secret", "A", true, "x")
	rooms.CreateRoom("general", "A", false, "")
	rooms.AddUser("general", "B", "bob")

	got := rooms.Summaries("B")

	req.Equal([]domain.RoomSummary{
		{Name: "general", IsPrivate: false, CreatorID: "A", MemberCount: 1, HasAccess: true},
		{Name: "secret", IsPrivate: true, CreatorID: "A", MemberCount: 0, HasAccess: false},
	}, got)
}

func TestRoomManager_Concurrent_Joins(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomManager(0)
	rooms.CreateRoom("general", "A", false, "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := core.SessionID(string(rune('a'+i%26)) + string(rune('A'+i/26)))
			rooms.AddUser("general", sid, string(sid))
			rooms.AddMessage("general", message("general", string(sid)))
		}(i)
	}
	wg.Wait()

	members, _, _ := rooms.Members("general")
	req.Len(members, 50)
	req.Len(rooms.Messages("general"), 50)
}
