package collabclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"drawboard/internal/errs"
	"drawboard/internal/session"
)

// TransportConfig Transport 설정
type TransportConfig struct {
	URL     string
	Header  http.Header
	Dialer  *websocket.Dialer
	Machine *session.Machine
	Clock   clock.Clock

	// OnConnect runs after every (re)connect with the connection live; it
	// sends the join frame. An error drops the connection and retries.
	OnConnect func() error
	// OnMessage receives every inbound frame on the read goroutine.
	OnMessage func(frame []byte)
	// OnDisconnect runs after the connection is lost.
	OnDisconnect func(err error)

	NewBackOff   func() backoff.BackOff
	WriteTimeout time.Duration
	Logger       *zap.SugaredLogger
}

// Transport persistent websocket with reconnection.
type Transport struct {
	cfg TransportConfig

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// DefaultBackOff exponential backoff without an elapsed-time limit.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// NewTransport Transport 생성
func NewTransport(cfg TransportConfig) *Transport {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = DefaultBackOff
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Machine == nil {
		cfg.Machine = session.New(nil)
	}
	return &Transport{cfg: cfg}
}

// Start connects in the background and keeps reconnecting until Close.
func (t *Transport) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx)
}

func (t *Transport) run(ctx context.Context) {
	defer close(t.done)
	log := t.cfg.Logger
	b := t.cfg.NewBackOff()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := t.cfg.Machine.Connect(); err != nil {
			return // closed
		}

		err := t.session(ctx, b)
		_ = t.cfg.Machine.Disconnect()
		if t.cfg.OnDisconnect != nil {
			t.cfg.OnDisconnect(err)
		}
		if ctx.Err() != nil {
			return
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			log.Warnf("[Transport] Giving up reconnecting to %s: %v", t.cfg.URL, err)
			return
		}
		log.Infof("[Transport] Disconnected (%v), retrying in %s", err, wait)

		select {
		case <-ctx.Done():
			return
		case <-t.cfg.Clock.After(wait):
		}
	}
}

// session dials, joins and reads until the connection fails.
func (t *Transport) session(ctx context.Context, b backoff.BackOff) error {
	conn, _, err := t.cfg.Dialer.DialContext(ctx, t.cfg.URL, t.cfg.Header)
	if err != nil {
		return err
	}
	defer conn.Close()

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
	}()

	if err := t.cfg.Machine.Connected(); err != nil {
		return err
	}
	if t.cfg.OnConnect != nil {
		if err := t.cfg.OnConnect(); err != nil {
			return err
		}
	}
	b.Reset()
	t.cfg.Logger.Infof("[Transport] Connected to %s", t.cfg.URL)

	// ctx 취소 시 읽기 중단
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if t.cfg.OnMessage != nil {
			t.cfg.OnMessage(frame)
		}
	}
}

// Send writes one text frame. Without a live connection it returns errs.ErrNotConnected.
func (t *Transport) Send(frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errs.ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Connected reports whether a connection is live.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Close sends a close frame, stops reconnecting and waits for the loop to exit.
func (t *Transport) Close() {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
	}

	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	t.cfg.Machine.Close()
}
