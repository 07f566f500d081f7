package collabclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawboard/internal/element"
	"drawboard/internal/errs"
)

func TestSceneAddBumpsVersionAndFiresChange(t *testing.T) {
	s := NewScene(nil, nil)
	var fired int
	var seen []element.Element
	s.OnChange(func(els []element.Element, _ map[string]any) {
		fired++
		seen = els
	})

	el := s.Add(element.Element{ID: "x", Type: "rectangle"})
	assert.Equal(t, int64(1), el.Version)
	assert.Equal(t, 1, fired)
	require.Len(t, seen, 1)
	assert.Equal(t, "x", seen[0].ID)

	noID := s.Add(element.Element{Type: "ellipse"})
	assert.NotEmpty(t, noID.ID)
}

func TestSceneMutateAndDelete(t *testing.T) {
	s := NewScene([]element.Element{{ID: "a", Version: 3, VersionNonce: 9}}, nil)
	s.Select("a")

	el, err := s.Mutate("a", func(el *element.Element) { _ = el.Set("x", 10) })
	require.NoError(t, err)
	assert.Equal(t, int64(4), el.Version)

	require.NoError(t, s.Delete("a"))
	got, ok := s.Element("a")
	require.True(t, ok)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, int64(5), got.Version)
	assert.Empty(t, s.SelectedIDs())

	_, err = s.Mutate("missing", func(*element.Element) {})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSceneApplyRemoteDoesNotFireChange(t *testing.T) {
	s := NewScene([]element.Element{{ID: "a", Version: 1}}, nil)
	s.OnChange(func([]element.Element, map[string]any) { t.Fatal("remote apply fired change callback") })

	touched := s.ApplyRemote(
		[]element.Element{{ID: "a", Version: 2}, {ID: "b", Version: 1}},
		map[string]Collaborator{"u2": {UserID: "u2", Color: "#fff"}},
	)

	assert.Len(t, touched, 2)
	els := s.Elements()
	require.Len(t, els, 2)
	assert.Equal(t, int64(2), els[0].Version)
	assert.Equal(t, "b", els[1].ID)
	assert.Contains(t, s.Collaborators(), "u2")
}

func TestSceneApplyRemoteSkipsStale(t *testing.T) {
	s := NewScene([]element.Element{{ID: "a", Version: 5, VersionNonce: 1}}, nil)

	touched := s.ApplyRemote([]element.Element{{ID: "a", Version: 2}}, nil)
	assert.Empty(t, touched)
	el, _ := s.Element("a")
	assert.Equal(t, int64(5), el.Version)
}

func TestSceneCopiesAreIsolated(t *testing.T) {
	s := NewScene(nil, map[string]any{"gridSize": 20})
	app := s.AppState()
	app["gridSize"] = 99
	assert.Equal(t, 20, s.AppState()["gridSize"])

	s.SetAppState("viewBackgroundColor", "#fff")
	assert.Equal(t, "#fff", s.AppState()["viewBackgroundColor"])
}

func TestSceneRemoveCollaborators(t *testing.T) {
	s := NewScene(nil, nil)
	s.ApplyRemote(nil, map[string]Collaborator{"u1": {UserID: "u1"}, "u2": {UserID: "u2"}})

	s.RemoveCollaborators(map[string]struct{}{"u1": {}})
	c := s.Collaborators()
	assert.Contains(t, c, "u1")
	assert.NotContains(t, c, "u2")
}
