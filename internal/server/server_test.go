package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"drawboard/internal/cache"
	"drawboard/internal/config"
	"drawboard/internal/element"
	"drawboard/internal/protocol"
	"drawboard/internal/repository"
	"drawboard/internal/repository/memory"
)

func startInstance(t *testing.T, repo repository.DrawingRepository, redisAddr string) (*Server, string) {
	t.Helper()
	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))

	cfg := config.FromEnv("test-secret")
	cfg.Redis.Addr = redisAddr
	cfg.Redis.PresenceTTL = 5 * time.Second

	deps := Deps{Drawings: repo, Logger: logger}
	if redisAddr != "" {
		rc, err := cache.NewRedisClient(redisAddr, "", 0, logger.Sugar())
		require.NoError(t, err)
		t.Cleanup(func() { _ = rc.Close() })
		deps.Redis = rc
	}

	srv := New(cfg, deps)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Listener(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return srv, ln.Addr().String()
}

func dialRoom(t *testing.T, addr, drawingID, share, userID string) *websocket.Conn {
	t.Helper()
	u := "ws://" + addr + "/ws/collab/" + drawingID + "?share=" + url.QueryEscape(share)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	frame, err := protocol.Encode(protocol.TypeJoinRoom, protocol.JoinRoom{
		DrawingID: drawingID,
		User:      protocol.User{ID: userID, Name: userID, Color: "#abcdef"},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
	return conn
}

func TestInstancesShareRoomsThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	repo := memory.NewDrawingRepo()
	d, err := repo.Create(context.Background(), &repository.Drawing{Name: "board", OwnerID: 1})
	require.NoError(t, err)

	srv1, addr1 := startInstance(t, repo, mr.Addr())
	_, addr2 := startInstance(t, repo, mr.Addr())

	share, err := srv1.JWT().GenerateShareToken(d.ID, protocol.PermissionEdit)
	require.NoError(t, err)

	alice := dialRoom(t, addr1, d.ID, share, "alice")
	bob := dialRoom(t, addr2, d.ID, share, "bob")

	// keep sending until bob's instance has subscribed
	stop := make(chan struct{})
	defer close(stop)
	update := protocol.MustEncode(protocol.TypeElementUpdate, protocol.ElementUpdate{
		DrawingID: d.ID,
		Elements:  []element.Element{{ID: "x", Version: 1}},
		UserID:    "alice",
	})
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if alice.WriteMessage(websocket.TextMessage, update) != nil {
					return
				}
			}
		}
	}()

	_ = bob.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, frame, err := bob.ReadMessage()
		require.NoError(t, err)
		env, err := protocol.Decode(frame)
		require.NoError(t, err)
		if env.Type == protocol.TypeElementUpdate {
			var upd protocol.ElementUpdate
			require.NoError(t, env.DecodePayload(&upd))
			assert.Equal(t, "alice", upd.UserID)
			break
		}
	}

	// cluster-wide roster from either instance
	owner, err := srv1.JWT().GenerateAccessToken(1, "owner")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		req, _ := http.NewRequest(http.MethodGet, "http://"+addr1+"/api/drawings/"+d.ID+"/participants", nil)
		req.Header.Set("Authorization", "Bearer "+owner)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var roster []protocol.Participant
		if json.NewDecoder(resp.Body).Decode(&roster) != nil {
			return false
		}
		return len(roster) == 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	_, addr := startInstance(t, memory.NewDrawingRepo(), "")

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "drawboard_ws_connections")

	resp, err = http.Get("http://" + addr + "/ws/collab/anything")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestShutdownWithoutStart(t *testing.T) {
	srv := New(config.FromEnv("test-secret"), Deps{
		Drawings: memory.NewDrawingRepo(),
		Logger:   zap.NewNop(),
	})
	done := make(chan struct{})
	go func() {
		_ = srv.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown blocked")
	}
}
