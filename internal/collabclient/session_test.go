package collabclient_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"drawboard/internal/collabclient"
	"drawboard/internal/config"
	"drawboard/internal/element"
	"drawboard/internal/identity"
	"drawboard/internal/protocol"
	"drawboard/internal/repository"
	"drawboard/internal/repository/memory"
	"drawboard/internal/server"
	"drawboard/internal/session"
)

type countingStore struct {
	repository.DrawingRepository
	updates atomic.Int32
}

func (s *countingStore) Update(ctx context.Context, id string, patch repository.Patch) (*repository.Drawing, error) {
	s.updates.Add(1)
	return s.DrawingRepository.Update(ctx, id, patch)
}

type testEnv struct {
	url     string
	srv     *server.Server
	drawing *repository.Drawing
	repo    repository.DrawingRepository
}

func startServer(t *testing.T) *testEnv {
	t.Helper()
	repo := memory.NewDrawingRepo()
	d, err := repo.Create(context.Background(), &repository.Drawing{Name: "board", OwnerID: 1})
	require.NoError(t, err)

	srv := server.New(config.FromEnv("test-secret"), server.Deps{
		Drawings: repo,
		Logger:   zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)),
	})
	srv.SetupRoutes()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Listener(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return &testEnv{url: "http://" + ln.Addr().String(), srv: srv, drawing: d, repo: repo}
}

func openSession(t *testing.T, cfg collabclient.Config) *collabclient.Session {
	t.Helper()
	s, err := collabclient.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestTwoClientsConvergeAndSaveOnce(t *testing.T) {
	env := startServer(t)

	ownerToken, err := env.srv.JWT().GenerateAccessToken(1, "owner")
	require.NoError(t, err)
	shareToken, err := env.srv.JWT().GenerateShareToken(env.drawing.ID, protocol.PermissionEdit)
	require.NoError(t, err)

	a := openSession(t, collabclient.Config{
		ServerURL:  env.url,
		DrawingID:  env.drawing.ID,
		Token:      ownerToken,
		User:       identity.New(identity.Preference{ID: "user-a", Name: "Alice"}),
		Permission: protocol.PermissionEdit,
		SaveDelay:  time.Minute,
	})

	const saveDelay = 150 * time.Millisecond
	bStore := &countingStore{DrawingRepository: collabclient.NewHTTPStore(env.url, "", shareToken)}
	b := openSession(t, collabclient.Config{
		ServerURL:  env.url,
		DrawingID:  env.drawing.ID,
		ShareToken: shareToken,
		User:       identity.New(identity.Preference{ID: "user-b", Name: "Bob"}),
		Permission: protocol.PermissionEdit,
		Store:      bStore,
		SaveDelay:  saveDelay,
	})

	require.Eventually(t, func() bool {
		return len(a.Participants()) == 2 && len(b.Participants()) == 2
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, session.StateActive, a.State())

	a.Scene().Add(element.Element{ID: "x", Type: "rectangle"})

	require.Eventually(t, func() bool {
		el, ok := b.Scene().Element("x")
		return ok && el.Version == 1
	}, 3*time.Second, 10*time.Millisecond)

	var final element.Element
	for i := 0; i < 3; i++ {
		final, err = b.Scene().Mutate("x", func(el *element.Element) { _ = el.Set("width", 10*(i+1)) })
		require.NoError(t, err)
	}
	assert.Equal(t, int64(4), final.Version)

	require.Eventually(t, func() bool { return bStore.updates.Load() == 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(3 * saveDelay)
	assert.Equal(t, int32(1), bStore.updates.Load())

	saved, err := env.repo.Get(context.Background(), env.drawing.ID)
	require.NoError(t, err)
	require.Len(t, saved.Elements, 1)
	assert.Equal(t, final.Version, saved.Elements[0].Version)
	assert.Equal(t, final.VersionNonce, saved.Elements[0].VersionNonce)

	// B's edits reach A
	require.Eventually(t, func() bool {
		el, ok := a.Scene().Element("x")
		return ok && el.Version == final.Version && el.VersionNonce == final.VersionNonce
	}, 3*time.Second, 10*time.Millisecond)
}

func TestCursorAndPresence(t *testing.T) {
	env := startServer(t)
	ownerToken, err := env.srv.JWT().GenerateAccessToken(1, "owner")
	require.NoError(t, err)
	viewToken, err := env.srv.JWT().GenerateShareToken(env.drawing.ID, protocol.PermissionView)
	require.NoError(t, err)

	a := openSession(t, collabclient.Config{
		ServerURL: env.url, DrawingID: env.drawing.ID, Token: ownerToken,
		User:       identity.New(identity.Preference{ID: "user-a", Name: "Alice"}),
		Permission: protocol.PermissionEdit,
	})
	viewer := openSession(t, collabclient.Config{
		ServerURL: env.url, DrawingID: env.drawing.ID, ShareToken: viewToken,
		User:       identity.New(identity.Preference{ID: "user-v", Name: "Viewer"}),
		Permission: protocol.PermissionView,
	})

	require.Eventually(t, func() bool { return len(a.Participants()) == 2 }, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		viewer.MoveCursor(protocol.Pointer{X: 3, Y: 4}, "up")
		c, ok := a.Collaborators()["user-v"]
		return ok && c.Pointer.X == 3
	}, 3*time.Second, 40*time.Millisecond)

	require.NoError(t, viewer.SetActive(false))
	require.Eventually(t, func() bool {
		for _, p := range a.Participants() {
			if p.ID == "user-v" {
				return !p.IsActive
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	// view-only edits stay local
	viewer.Scene().Add(element.Element{ID: "v", Type: "line"})
	time.Sleep(200 * time.Millisecond)
	_, ok := a.Scene().Element("v")
	assert.False(t, ok)

	viewer.Close()
	require.Eventually(t, func() bool { return len(a.Participants()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.NotContains(t, a.Collaborators(), "user-v")
	assert.Len(t, env.srv.Registry().Participants(env.drawing.ID), 1)
}

func TestOpenRejectsUnknownDrawing(t *testing.T) {
	env := startServer(t)
	token, err := env.srv.JWT().GenerateAccessToken(1, "owner")
	require.NoError(t, err)

	_, err = collabclient.Open(context.Background(), collabclient.Config{
		ServerURL: env.url, DrawingID: "missing", Token: token,
		User: identity.New(identity.Preference{}),
	})
	require.Error(t, err)
}
