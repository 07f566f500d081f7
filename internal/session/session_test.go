package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHappyPath(t *testing.T) {
	var seen []string
	m := New(func(from, to State) { seen = append(seen, from.String()+">"+to.String()) })

	require.NoError(t, m.Connect())
	require.NoError(t, m.Connected())
	require.NoError(t, m.JoinSent())
	assert.True(t, m.GetState().InRoom())

	require.NoError(t, m.SetActive(false))
	assert.Equal(t, StateIdle, m.GetState())
	require.NoError(t, m.SetActive(true))
	require.NoError(t, m.Disconnect())

	assert.Equal(t, []string{
		"disconnected>connecting",
		"connecting>joined",
		"joined>active",
		"active>idle",
		"idle>active",
		"active>disconnected",
	}, seen)
}

func TestActivityRequiresRoomMembership(t *testing.T) {
	m := New(nil)

	err := m.SetActive(true)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StateDisconnected, te.From)
}

func TestRepeatedActivityIsSilent(t *testing.T) {
	calls := 0
	m := New(func(State, State) { calls++ })
	require.NoError(t, m.Connect())
	require.NoError(t, m.Connected())
	require.NoError(t, m.JoinSent())
	calls = 0

	require.NoError(t, m.SetActive(true))
	assert.Zero(t, calls)
}

func TestClosedIsTerminal(t *testing.T) {
	m := New(nil)
	m.Close()
	m.Close()

	assert.True(t, m.IsClosed())
	assert.Error(t, m.Connect())
	assert.Error(t, m.Disconnect())
}

func TestConnectFailureReturnsToDisconnected(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.Connect())
	require.NoError(t, m.Disconnect())
	assert.Equal(t, StateDisconnected, m.GetState())
	require.NoError(t, m.Connect())
}
