package element

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElement_UnmarshalKeepsUnknownFields(t *testing.T) {
	in := `{"id":"a","type":"rectangle","version":3,"versionNonce":77,"isDeleted":false,"x":10.5,"strokeColor":"#000"}`

	var el Element
	require.NoError(t, json.Unmarshal([]byte(in), &el))

	assert.Equal(t, "a", el.ID)
	assert.Equal(t, "rectangle", el.Type)
	assert.Equal(t, int64(3), el.Version)
	assert.Equal(t, int64(77), el.VersionNonce)
	assert.False(t, el.IsDeleted)

	var x float64
	require.True(t, el.Get("x", &x))
	assert.Equal(t, 10.5, x)

	out, err := json.Marshal(el)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "#000", back["strokeColor"])
	assert.Equal(t, float64(3), back["version"])
}

func TestElement_MissingVersionFieldsDefaultToZero(t *testing.T) {
	var el Element
	require.NoError(t, json.Unmarshal([]byte(`{"id":"b","version":"oops"}`), &el))

	assert.Equal(t, int64(0), el.Version)
	assert.Equal(t, int64(0), el.VersionNonce)
}

func TestElement_FloatVersionIsTruncated(t *testing.T) {
	var el Element
	require.NoError(t, json.Unmarshal([]byte(`{"id":"c","version":4.0,"versionNonce":1e3}`), &el))

	assert.Equal(t, int64(4), el.Version)
	assert.Equal(t, int64(1000), el.VersionNonce)
}

func TestElement_CloneDoesNotAlias(t *testing.T) {
	el := Element{ID: "a"}
	require.NoError(t, el.Set("x", 1))

	c := el.Clone()
	require.NoError(t, c.Set("x", 2))

	var x int
	require.True(t, el.Get("x", &x))
	assert.Equal(t, 1, x)
}

func TestElement_BumpChangesVersionPair(t *testing.T) {
	el := Element{ID: "a", Version: 1, VersionNonce: -1}
	el.Bump()

	assert.Equal(t, int64(2), el.Version)
	assert.NotEqual(t, int64(-1), el.VersionNonce)
}

func TestFilterVisible(t *testing.T) {
	els := []Element{{ID: "a"}, {ID: "b", IsDeleted: true}, {ID: "c"}}
	got := FilterVisible(els)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}
