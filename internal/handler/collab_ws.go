package handler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"drawboard/internal/auth"
	"drawboard/internal/collab"
	"drawboard/internal/config"
	"drawboard/internal/errs"
	"drawboard/internal/metrics"
	"drawboard/internal/protocol"
)

// CollabWSHandler 드로잉 협업 WebSocket 핸들러
type CollabWSHandler struct {
	registry *collab.Registry
	gate     auth.Gate
	jwt      *auth.JWTManager
	cfg      config.WebSocketConfig
	log      *zap.SugaredLogger
}

// NewCollabWSHandler CollabWSHandler 생성 (jwt가 nil이면 공유 토큰만 사용)
func NewCollabWSHandler(registry *collab.Registry, gate auth.Gate, jwt *auth.JWTManager, cfg config.WebSocketConfig, log *zap.SugaredLogger) *CollabWSHandler {
	return &CollabWSHandler{registry: registry, gate: gate, jwt: jwt, cfg: cfg, log: log}
}

// Register mounts GET /ws/collab/:drawingId.
func (h *CollabWSHandler) Register(router fiber.Router) {
	handlers := []fiber.Handler{}
	if h.jwt != nil {
		handlers = append(handlers, auth.OptionalAuthMiddleware(h.jwt))
	}
	handlers = append(handlers, h.Upgrade, websocket.New(h.HandleWebSocket, websocket.Config{
		ReadBufferSize:  h.cfg.ReadBufferSize,
		WriteBufferSize: h.cfg.WriteBufferSize,
	}))
	router.Get("/ws/collab/:drawingId", handlers...)
}

// Upgrade 업그레이드 전 권한 확인 (결과는 Locals로 전달)
func (h *CollabWSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	drawingID := c.Params("drawingId")
	dec, err := h.gate.Authorize(c.UserContext(), auth.Request{
		DrawingID:  drawingID,
		UserID:     auth.UserIDFromContext(c),
		ShareToken: c.Query("share"),
	})
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return c.SendStatus(fiber.StatusNotFound)
	case err != nil:
		h.log.Errorf("[CollabWS] Gate failed for drawing %s: %v", drawingID, err)
		return c.SendStatus(fiber.StatusInternalServerError)
	case !dec.Permitted:
		// WebSocket은 JSON 응답 대신 연결 거부
		return c.SendStatus(fiber.StatusForbidden)
	}

	c.Locals("drawingId", drawingID)
	c.Locals("permission", dec.Permission)
	c.Locals("socketId", uuid.NewString())
	return c.Next()
}

// HandleWebSocket 연결 하나의 수신 루프
func (h *CollabWSHandler) HandleWebSocket(c *websocket.Conn) {
	drawingID, ok1 := c.Locals("drawingId").(string)
	perm, ok2 := c.Locals("permission").(protocol.Permission)
	socketID, ok3 := c.Locals("socketId").(string)
	if !ok1 || !ok2 || !ok3 {
		c.WriteMessage(websocket.TextMessage, protocol.MustEncode(protocol.TypeError, protocol.ErrorPayload{Message: "invalid session"}))
		c.Close()
		return
	}

	if h.cfg.MaxMessageSize > 0 {
		c.SetReadLimit(h.cfg.MaxMessageSize)
	}

	peer := newWSPeer(c, socketID, h.cfg.SendBufferSize, h.cfg.WriteTimeout)
	go peer.writeLoop()

	metrics.WSConnections.Inc()
	h.log.Infof("[CollabWS] Connected: drawing=%s socket=%s permission=%s", drawingID, socketID, perm)

	// 연결 해제 시 정리
	defer func() {
		h.registry.Leave(socketID)
		peer.close()
		c.Close()
		// 핸들러 반환 후 conn은 재사용되므로 쓰기 고루틴 종료 대기
		<-peer.done
		metrics.WSConnections.Dec()
		h.log.Infof("[CollabWS] Disconnected: drawing=%s socket=%s", drawingID, socketID)
	}()

	ctx := context.Background()
	joined := false

	for {
		_, frame, err := c.ReadMessage()
		if err != nil {
			break
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			metrics.RecordDrop(metrics.DropMalformed)
			continue
		}

		switch env.Type {
		case protocol.TypeJoinRoom:
			var jr protocol.JoinRoom
			if err := env.DecodePayload(&jr); err != nil {
				peer.sendError("invalid join-room payload")
				continue
			}
			if err := protocol.Validate(jr); err != nil {
				peer.sendError("invalid user identity")
				continue
			}
			if jr.DrawingID != drawingID {
				peer.sendError("drawingId does not match connection")
				continue
			}
			if err := h.registry.Join(drawingID, peer, jr.User); err != nil {
				peer.sendError("server is shutting down")
				return
			}
			joined = true

		case protocol.TypeCursorMove, protocol.TypeElementUpdate:
			if !joined {
				continue
			}
			if env.Type == protocol.TypeElementUpdate && !perm.CanEdit() {
				metrics.RecordDrop(metrics.DropViewOnly)
				continue
			}
			if err := h.registry.Relay(ctx, socketID, env.Type, frame); err != nil {
				h.log.Debugf("[CollabWS] Relay from %s failed: %v", socketID, err)
			}

		case protocol.TypeUserActivity:
			var ua protocol.UserActivity
			if err := env.DecodePayload(&ua); err != nil || !joined {
				continue
			}
			_ = h.registry.SetActivity(socketID, ua.IsActive)

		default:
			h.log.Debugf("[CollabWS] Ignoring %s from %s", env.Type, socketID)
		}
	}
}

// wsPeer 소켓별 송신 큐 + 쓰기 고루틴
type wsPeer struct {
	conn         *websocket.Conn
	id           string
	send         chan []byte
	done         chan struct{}
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newWSPeer(conn *websocket.Conn, id string, buffer int, writeTimeout time.Duration) *wsPeer {
	if buffer <= 0 {
		buffer = 256
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &wsPeer{conn: conn, id: id, send: make(chan []byte, buffer), done: make(chan struct{}), writeTimeout: writeTimeout}
}

func (p *wsPeer) SocketID() string { return p.id }

// Send 비동기 전송 (버퍼가 가득 차면 false)
func (p *wsPeer) Send(frame []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

func (p *wsPeer) sendError(msg string) {
	p.Send(protocol.MustEncode(protocol.TypeError, protocol.ErrorPayload{Message: msg}))
}

func (p *wsPeer) writeLoop() {
	defer close(p.done)
	for frame := range p.send {
		_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
		if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			// 남은 프레임은 버림
			for range p.send {
			}
			return
		}
	}
}

func (p *wsPeer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.send)
	}
}
