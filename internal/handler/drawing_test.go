package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"drawboard/internal/auth"
	"drawboard/internal/collab"
	"drawboard/internal/element"
	"drawboard/internal/middleware"
	"drawboard/internal/protocol"
	"drawboard/internal/repository"
	"drawboard/internal/repository/memory"
)

type drawingFixture struct {
	app      *fiber.App
	repo     repository.DrawingRepository
	jwt      *auth.JWTManager
	registry *collab.Registry
	owner    string
}

func newDrawingFixture(t *testing.T) *drawingFixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	repo := memory.NewDrawingRepo()
	jwt := auth.NewJWTManager("secret", time.Hour, time.Hour)
	registry := collab.NewRegistry(collab.Options{Logger: log})
	t.Cleanup(registry.Close)

	app := fiber.New(fiber.Config{JSONEncoder: json.Marshal, JSONDecoder: json.Unmarshal})
	access := middleware.NewDrawingMiddleware(auth.NewDrawingGate(repo, jwt), repo)
	NewDrawingHandler(repo, access, jwt, registry, nil, log).Register(app)

	owner, err := jwt.GenerateAccessToken(42, "owner")
	require.NoError(t, err)
	return &drawingFixture{app: app, repo: repo, jwt: jwt, registry: registry, owner: owner}
}

func (f *drawingFixture) request(t *testing.T, method, target, token string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestDrawingLifecycle(t *testing.T) {
	f := newDrawingFixture(t)

	var created repository.Drawing
	code := f.request(t, http.MethodPost, "/api/drawings", f.owner, CreateDrawingRequest{
		Name: "plan",
		Elements: []element.Element{
			{ID: "a", Type: "rectangle", Version: 1},
			{ID: "gone", Type: "line", Version: 2, IsDeleted: true},
		},
	}, &created)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, int64(42), created.OwnerID)
	require.Len(t, created.Elements, 1, "tombstones are not persisted")

	var got repository.Drawing
	code = f.request(t, http.MethodGet, "/api/drawings/"+created.ID, f.owner, nil, &got)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "plan", got.Name)

	els := []element.Element{{ID: "a", Version: 3}, {ID: "b", Version: 1, IsDeleted: true}}
	var updated repository.Drawing
	code = f.request(t, http.MethodPut, "/api/drawings/"+created.ID, f.owner, repository.Patch{Elements: &els}, &updated)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, created.Version+1, updated.Version)
	require.Len(t, updated.Elements, 1)
	assert.Equal(t, int64(3), updated.Elements[0].Version)

	var list []repository.Drawing
	code = f.request(t, http.MethodGet, "/api/drawings", f.owner, nil, &list)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list, 1)
}

func TestDrawingRequiresAuthentication(t *testing.T) {
	f := newDrawingFixture(t)

	code := f.request(t, http.MethodPost, "/api/drawings", "", CreateDrawingRequest{Name: "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code = f.request(t, http.MethodGet, "/api/drawings", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestDrawingValidation(t *testing.T) {
	f := newDrawingFixture(t)

	code := f.request(t, http.MethodPost, "/api/drawings", f.owner, CreateDrawingRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	d, err := f.repo.Create(context.Background(), &repository.Drawing{Name: "x", OwnerID: 42})
	require.NoError(t, err)
	code = f.request(t, http.MethodPut, "/api/drawings/"+d.ID, f.owner, map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestShareLinkGrantsPermission(t *testing.T) {
	f := newDrawingFixture(t)
	d, err := f.repo.Create(context.Background(), &repository.Drawing{Name: "x", OwnerID: 42})
	require.NoError(t, err)

	var share ShareResponse
	code := f.request(t, http.MethodPost, "/api/drawings/"+d.ID+"/share", f.owner, ShareRequest{Permission: protocol.PermissionView}, &share)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, d.ID, share.DrawingID)

	code = f.request(t, http.MethodGet, "/api/drawings/"+d.ID+"?share="+share.Token, "", nil, nil)
	assert.Equal(t, http.StatusOK, code)

	name := "renamed"
	code = f.request(t, http.MethodPut, "/api/drawings/"+d.ID+"?share="+share.Token, "", repository.Patch{Name: &name}, nil)
	assert.Equal(t, http.StatusForbidden, code, "view link cannot save")

	code = f.request(t, http.MethodPost, "/api/drawings/"+d.ID+"/share", f.owner, map[string]string{"permission": "admin"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	other, err := f.jwt.GenerateAccessToken(7, "other")
	require.NoError(t, err)
	code = f.request(t, http.MethodPost, "/api/drawings/"+d.ID+"/share", other, ShareRequest{Permission: protocol.PermissionEdit}, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

type stubPeer struct{ id string }

func (p stubPeer) SocketID() string { return p.id }

func (p stubPeer) Send([]byte) bool { return true }

func TestParticipantsFallsBackToLocalRoster(t *testing.T) {
	f := newDrawingFixture(t)
	d, err := f.repo.Create(context.Background(), &repository.Drawing{Name: "x", OwnerID: 42})
	require.NoError(t, err)

	require.NoError(t, f.registry.Join(d.ID, stubPeer{id: "s1"}, protocol.User{ID: "u1", Name: "One", Color: "#000000"}))

	require.Eventually(t, func() bool {
		var roster []protocol.Participant
		code := f.request(t, http.MethodGet, "/api/drawings/"+d.ID+"/participants", f.owner, nil, &roster)
		return code == http.StatusOK && len(roster) == 1 && roster[0].ID == "u1"
	}, time.Second, 10*time.Millisecond)
}
