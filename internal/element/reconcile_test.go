package element

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(els []Element) []string {
	out := make([]string, len(els))
	for i, el := range els {
		out[i] = el.ID
	}
	return out
}

func TestReconcile_AppendsUnknownAndKeepsOrder(t *testing.T) {
	local := []Element{{ID: "a", Version: 1}, {ID: "b", Version: 1}}
	remote := []Element{{ID: "c", Version: 1}, {ID: "a", Version: 2}}

	got := Reconcile(local, remote)

	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
	assert.Equal(t, int64(2), got[0].Version, "newer remote replaces in place")
}

func TestReconcile_StaleRemoteIsDiscarded(t *testing.T) {
	local := []Element{{ID: "a", Version: 5, VersionNonce: 1}}
	got := Reconcile(local, []Element{{ID: "a", Version: 3, VersionNonce: 9}})

	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].Version)
	assert.Equal(t, int64(1), got[0].VersionNonce)
}

func TestReconcile_EqualVersionDifferentNonceRemoteWins(t *testing.T) {
	local := []Element{{ID: "a", Version: 5, VersionNonce: 10}}
	got := Reconcile(local, []Element{{ID: "a", Version: 5, VersionNonce: 99}})

	assert.Equal(t, int64(99), got[0].VersionNonce)
}

func TestReconcile_TombstonesAreRetained(t *testing.T) {
	local := []Element{{ID: "a", Version: 1}}
	got := Reconcile(local, []Element{{ID: "a", Version: 2, IsDeleted: true}})

	require.Len(t, got, 1)
	assert.True(t, got[0].IsDeleted)
}

func TestReconcile_DoesNotMutateInputs(t *testing.T) {
	local := []Element{{ID: "a", Version: 1}}
	_ = Reconcile(local, []Element{{ID: "a", Version: 2}})

	assert.Equal(t, int64(1), local[0].Version)
}

func TestReconcile_SkipsElementsWithoutID(t *testing.T) {
	got := Reconcile(nil, []Element{{Version: 4}})
	assert.Empty(t, got)
}

func randomBatch(r *rand.Rand, n int) []Element {
	out := make([]Element, n)
	for i := range out {
		out[i] = Element{
			ID:           string(rune('a' + r.IntN(6))),
			Version:      int64(r.IntN(5)),
			VersionNonce: int64(r.IntN(3)),
		}
	}
	return out
}

func dedupe(els []Element) []Element {
	seen := map[string]bool{}
	var out []Element
	for _, el := range els {
		if !seen[el.ID] {
			seen[el.ID] = true
			out = append(out, el)
		}
	}
	return out
}

func TestReconcile_IsIdempotent(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		local := dedupe(randomBatch(r, 5))
		remote := dedupe(randomBatch(r, 5))

		once := Reconcile(local, remote)
		twice := Reconcile(once, remote)
		assert.Equal(t, once, twice)
	}
}

func TestReconcile_VersionNeverDecreases(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 200; i++ {
		scene := dedupe(randomBatch(r, 4))
		maxSeen := map[string]int64{}
		for _, el := range scene {
			maxSeen[el.ID] = el.Version
		}

		for b := 0; b < 4; b++ {
			batch := dedupe(randomBatch(r, 4))
			for _, el := range batch {
				if v, ok := maxSeen[el.ID]; !ok || el.Version > v {
					maxSeen[el.ID] = el.Version
				}
			}
			scene = Reconcile(scene, batch)
		}

		for _, el := range scene {
			assert.GreaterOrEqual(t, el.Version, maxSeen[el.ID])
		}
	}
}
