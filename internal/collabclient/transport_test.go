package collabclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawboard/internal/errs"
	"drawboard/internal/session"
)

// dropFirstServer accepts websocket connections, counts the frames it reads
// and closes the first connection after its first frame.
type dropFirstServer struct {
	conns  atomic.Int32
	frames atomic.Int32
}

func (s *dropFirstServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	n := s.conns.Add(1)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.frames.Add(1)
		if n == 1 {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"presence-update","payload":{"participants":[]}}`))
	}
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(10 * time.Millisecond)
}

func TestTransportReconnectsAndRejoins(t *testing.T) {
	srv := &dropFirstServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	machine := session.New(nil)
	var tr *Transport
	var joins, messages atomic.Int32
	tr = NewTransport(TransportConfig{
		URL:     wsURL(ts.URL),
		Machine: machine,
		OnConnect: func() error {
			joins.Add(1)
			if err := tr.Send([]byte(`{"type":"join-room"}`)); err != nil {
				return err
			}
			return machine.JoinSent()
		},
		OnMessage:  func([]byte) { messages.Add(1) },
		NewBackOff: fastBackOff,
	})
	tr.Start(context.Background())
	defer tr.Close()

	require.Eventually(t, func() bool {
		return joins.Load() >= 2 && messages.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, srv.conns.Load(), int32(2))
	assert.True(t, tr.Connected())
	assert.Equal(t, session.StateActive, machine.GetState())
}

func TestTransportSendWithoutConnection(t *testing.T) {
	tr := NewTransport(TransportConfig{URL: "ws://127.0.0.1:1/ws", NewBackOff: fastBackOff})
	assert.ErrorIs(t, tr.Send([]byte("{}")), errs.ErrNotConnected)
	assert.False(t, tr.Connected())
}

func TestTransportCloseStopsReconnecting(t *testing.T) {
	machine := session.New(nil)
	var disconnects atomic.Int32
	tr := NewTransport(TransportConfig{
		URL:          "ws://127.0.0.1:1/ws",
		Machine:      machine,
		NewBackOff:   fastBackOff,
		OnDisconnect: func(error) { disconnects.Add(1) },
	})
	tr.Start(context.Background())

	require.Eventually(t, func() bool { return disconnects.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	tr.Close()

	n := disconnects.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, disconnects.Load())
	assert.True(t, machine.IsClosed())
}
