package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/huddle/internal/adapters/signal"
	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/app/voice"
	"github.com/dkeye/huddle/internal/config"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	gin.SetMode(gin.TestMode)
	o := orch.New(app.NewRegistry(), app.NewRoomManager(0), voice.NewOrchestrator(nil, nil), app.SimplePolicy{})
	ctl := signal.NewSignalWSController(o, signal.NewHub(o.OnBackPressure), nil, signal.Options{})
	cfg := &config.Config{Mode: "test", Secret: "test-secret", StaticPath: t.TempDir()}
	return SetupRouter(context.Background(), cfg, o, ctl), o
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRouter_Healthz(t *testing.T) {
	req := require.New(t)
	r, _ := newTestRouter(t)

	w := get(r, "/healthz")

	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"status":"ok"}`, w.Body.String())
}

func TestRouter_SetsClientTokenSession(t *testing.T) {
	req := require.New(t)
	r, _ := newTestRouter(t)

	w := get(r, "/healthz")

	req.Contains(w.Header().Get("Set-Cookie"), "HuddleSessions=")
}

func TestRouter_ListRooms(t *testing.T) {
	req := require.New(t)
	r, o := newTestRouter(t)
	_, _, err := o.CreateRoom("A", "general", false, "")
	req.NoError(err)
	_, _, err = o.CreateRoom("A", "secret", true, "x")
	req.NoError(err)

	w := get(r, "/api/rooms")

	req.Equal(http.StatusOK, w.Code)
	var body struct {
		Rooms []domain.RoomSummary `json:"rooms"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	req.Len(body.Rooms, 2)
	for _, room := range body.Rooms {
		req.Equal(!room.IsPrivate, room.HasAccess, room.Name)
	}
}

func TestRouter_RoomMembers(t *testing.T) {
	r, o := newTestRouter(t)
	_, _, err := o.CreateRoom("A", "general", false, "")
	require.NoError(t, err)
	_, _, err = o.CreateRoom("A", "secret", true, "x")
	require.NoError(t, err)
	_, err = o.JoinRoom("B", "general", "")
	require.NoError(t, err)

	tests := []struct {
		path string
		code int
	}{
		{"/api/rooms/general/members", http.StatusOK},
		{"/api/rooms/secret/members", http.StatusForbidden},
		{"/api/rooms/nowhere/members", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(r, tt.path)
			require.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}

	w := get(r, "/api/rooms/general/members")
	var body struct {
		Users     []domain.Member `json:"users"`
		CreatorID string          `json:"creatorId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "A", body.CreatorID)
	require.Len(t, body.Users, 1)
}

func TestRouter_VoiceRoomsAndStats(t *testing.T) {
	req := require.New(t)
	r, o := newTestRouter(t)
	o.Registry.BindSignal("A", func() {})
	_, _, err := o.CreateRoom("A", "general", false, "")
	req.NoError(err)

	w := get(r, "/api/voice/rooms")
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"rooms":[]}`, w.Body.String())

	w = get(r, "/api/stats")
	req.Equal(http.StatusOK, w.Code)
	var stats statsResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &stats))
	req.Equal(0, stats.Connections)
	req.Equal(1, stats.Sessions)
	req.Equal(1, stats.ChatRooms)
	req.Positive(stats.Goroutines)
}

func TestRouter_CORS(t *testing.T) {
	req := require.New(t)
	gin.SetMode(gin.TestMode)
	o := orch.New(app.NewRegistry(), app.NewRoomManager(0), voice.NewOrchestrator(nil, nil), app.SimplePolicy{})
	ctl := signal.NewSignalWSController(o, signal.NewHub(nil), nil, signal.Options{})
	cfg := &config.Config{Mode: "test", Secret: "test-secret", StaticPath: t.TempDir(), CORSOrigins: []string{"https://app.example"}}
	r := SetupRouter(context.Background(), cfg, o, ctl)

	w := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	request.Header.Set("Origin", "https://app.example")
	r.ServeHTTP(w, request)

	req.Equal(http.StatusOK, w.Code)
	req.Equal("https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
}
