package collabclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"drawboard/internal/element"
	"drawboard/internal/protocol"
	"drawboard/internal/repository"
	"drawboard/internal/session"
)

// BroadcastInterval element-update throttle window.
const BroadcastInterval = 50 * time.Millisecond

// Config 협업 세션 설정
type Config struct {
	ServerURL  string // http(s)://host[:port]
	DrawingID  string
	Token      string // access token, optional with a share token
	ShareToken string
	User       protocol.User
	Permission protocol.Permission

	// Store defaults to an HTTPStore on ServerURL.
	Store repository.DrawingRepository
	Clock clock.Clock

	SaveDelay         time.Duration
	BroadcastInterval time.Duration
	TickInterval      time.Duration
	CursorInterval    time.Duration

	OnSaveError func(error)
	OnPresence  func([]protocol.Participant)

	Dialer     *websocket.Dialer
	NewBackOff func() backoff.BackOff
	Logger     *zap.SugaredLogger
}

// Session one user's live connection to one drawing.
type Session struct {
	cfg     Config
	log     *zap.SugaredLogger
	scene   *Scene
	tracker *element.Tracker
	machine *session.Machine

	loop      *SyncLoop
	autosave  *Autosave
	throttle  *Throttle
	cursor    *CursorLimiter
	transport *Transport

	mu           sync.RWMutex
	participants []protocol.Participant
	wantActive   bool
	closed       bool
}

// Open loads the drawing, then joins its room in the background.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if err := protocol.Validate(cfg.User); err != nil {
		return nil, fmt.Errorf("collab session: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Permission == "" {
		cfg.Permission = protocol.PermissionView
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = BroadcastInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = TickInterval
	}
	if cfg.CursorInterval <= 0 {
		cfg.CursorInterval = CursorInterval
	}
	if cfg.Store == nil {
		cfg.Store = NewHTTPStore(cfg.ServerURL, cfg.Token, cfg.ShareToken)
	}

	wsURL, err := collabURL(cfg)
	if err != nil {
		return nil, err
	}

	d, err := cfg.Store.Get(ctx, cfg.DrawingID)
	if err != nil {
		return nil, fmt.Errorf("load drawing %s: %w", cfg.DrawingID, err)
	}

	s := &Session{
		cfg:        cfg,
		log:        cfg.Logger.With("drawing", cfg.DrawingID, "user", cfg.User.ID),
		scene:      NewScene(d.Elements, d.AppState),
		tracker:    element.NewTracker(),
		wantActive: true,
	}
	// 불러온 요소는 이미 저장된 상태
	for _, el := range d.Elements {
		s.tracker.RecordVersion(el)
	}

	s.machine = session.New(func(from, to session.State) {
		s.log.Debugf("[Session] %s -> %s", from, to)
	})
	s.loop = NewSyncLoop(cfg.Clock, cfg.TickInterval, s.scene, s.tracker, s.log)
	s.autosave = NewAutosave(AutosaveConfig{
		Store:       cfg.Store,
		DrawingID:   cfg.DrawingID,
		Scene:       s.scene,
		Permission:  cfg.Permission,
		Delay:       cfg.SaveDelay,
		OnSaveError: cfg.OnSaveError,
		Logger:      s.log,
	})
	s.throttle = NewThrottle(cfg.Clock, cfg.BroadcastInterval, s.broadcast)
	s.cursor = NewCursorLimiter(cfg.Clock, cfg.CursorInterval)
	s.transport = NewTransport(TransportConfig{
		URL:        wsURL,
		Dialer:     cfg.Dialer,
		Machine:    s.machine,
		Clock:      cfg.Clock,
		OnConnect:  s.join,
		OnMessage:  s.dispatch,
		NewBackOff: cfg.NewBackOff,
		Logger:     s.log,
	})

	s.scene.OnChange(s.onLocalChange)
	s.loop.Start()
	s.transport.Start(context.Background())
	return s, nil
}

func collabURL(cfg Config) (string, error) {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/collab/" + url.PathEscape(cfg.DrawingID)

	q := url.Values{}
	if cfg.Token != "" {
		q.Set("token", cfg.Token)
	}
	if cfg.ShareToken != "" {
		q.Set("share", cfg.ShareToken)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// join runs on every (re)connect.
func (s *Session) join() error {
	frame, err := protocol.Encode(protocol.TypeJoinRoom, protocol.JoinRoom{
		DrawingID: s.cfg.DrawingID,
		User:      s.cfg.User,
	})
	if err != nil {
		return err
	}
	if err := s.transport.Send(frame); err != nil {
		return err
	}
	if err := s.machine.JoinSent(); err != nil {
		return err
	}

	s.mu.RLock()
	active := s.wantActive
	s.mu.RUnlock()
	if !active {
		if err := s.sendActivity(false); err != nil {
			return err
		}
	}

	// 연결이 끊긴 동안 쌓인 변경 전송
	if s.cfg.Permission.CanEdit() {
		s.throttle.Call()
	}
	return nil
}

// onLocalChange fires only for user edits; remote applies bypass the scene callback.
func (s *Session) onLocalChange([]element.Element, map[string]any) {
	if !s.cfg.Permission.CanEdit() {
		return
	}
	s.autosave.Schedule()
	s.throttle.Call()
}

// broadcast sends every element whose version pair changed since the last
// successful send. Versions are recorded only after the frame was written.
// Before join-room the server drops element updates, so nothing is sent until
// the session is in the room; join flushes what accumulated.
func (s *Session) broadcast() {
	if !s.cfg.Permission.CanEdit() || !s.machine.GetState().InRoom() {
		return
	}

	changed := s.tracker.Pending(s.scene.Elements())
	if len(changed) == 0 {
		return
	}

	frame, err := protocol.Encode(protocol.TypeElementUpdate, protocol.ElementUpdate{
		DrawingID: s.cfg.DrawingID,
		Elements:  changed,
		UserID:    s.cfg.User.ID,
	})
	if err != nil {
		s.log.Errorf("[Session] Encode element-update: %v", err)
		return
	}
	if err := s.transport.Send(frame); err != nil {
		s.log.Warnf("[Session] Broadcast of %d elements failed: %v", len(changed), err)
		return
	}
	for _, el := range changed {
		s.tracker.RecordVersion(el)
	}
}

func (s *Session) dispatch(frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		s.log.Warnf("[Session] Dropping frame: %v", err)
		return
	}

	switch env.Type {
	case protocol.TypePresenceUpdate:
		var roster []protocol.Participant
		if err := env.DecodePayload(&roster); err != nil {
			s.log.Warnf("[Session] %v", err)
			return
		}
		s.setParticipants(roster)

	case protocol.TypeCursorMove:
		var m protocol.CursorMove
		if err := env.DecodePayload(&m); err != nil || m.UserID == s.cfg.User.ID {
			return
		}
		s.loop.PushCursor(Collaborator{
			UserID:    m.UserID,
			Color:     m.Color,
			Button:    m.Button,
			Pointer:   m.Pointer,
			UpdatedAt: s.cfg.Clock.Now(),
		})

	case protocol.TypeElementUpdate:
		var m protocol.ElementUpdate
		if err := env.DecodePayload(&m); err != nil {
			s.log.Warnf("[Session] %v", err)
			return
		}
		if m.UserID == s.cfg.User.ID {
			return
		}
		s.loop.PushElements(m.Elements)

	case protocol.TypeError:
		var m protocol.ErrorPayload
		_ = env.DecodePayload(&m)
		s.log.Warnf("[Session] Server error: %s", m.Message)

	default:
		s.log.Debugf("[Session] Ignoring %s", env.Type)
	}
}

func (s *Session) setParticipants(roster []protocol.Participant) {
	s.mu.Lock()
	s.participants = roster
	s.mu.Unlock()

	keep := make(map[string]struct{}, len(roster))
	for _, p := range roster {
		keep[p.ID] = struct{}{}
	}
	s.scene.RemoveCollaborators(keep)

	if s.cfg.OnPresence != nil {
		s.cfg.OnPresence(roster)
	}
}

// Scene 로컬 씬
func (s *Session) Scene() *Scene {
	return s.scene
}

// Collaborators 원격 커서
func (s *Session) Collaborators() map[string]Collaborator {
	return s.scene.Collaborators()
}

// Participants 마지막으로 받은 참가자 목록
func (s *Session) Participants() []protocol.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.Participant, len(s.participants))
	copy(out, s.participants)
	return out
}

// State 연결 상태
func (s *Session) State() session.State {
	return s.machine.GetState()
}

// Permission 세션 권한
func (s *Session) Permission() protocol.Permission {
	return s.cfg.Permission
}

// SetActive reports window focus (true) or blur (false) to the room.
func (s *Session) SetActive(active bool) error {
	s.mu.Lock()
	s.wantActive = active
	s.mu.Unlock()

	if !s.machine.GetState().InRoom() {
		return nil // join 시 반영
	}
	return s.sendActivity(active)
}

func (s *Session) sendActivity(active bool) error {
	frame, err := protocol.Encode(protocol.TypeUserActivity, protocol.UserActivity{
		DrawingID: s.cfg.DrawingID,
		IsActive:  active,
	})
	if err != nil {
		return err
	}
	if err := s.transport.Send(frame); err != nil {
		return err
	}
	if s.machine.GetState().InRoom() {
		return s.machine.SetActive(active)
	}
	return nil
}

// MoveCursor sends the pointer unless the last cursor frame was too recent.
// It reports whether a frame was sent.
func (s *Session) MoveCursor(p protocol.Pointer, button string) bool {
	if !s.machine.GetState().InRoom() || !s.cursor.Allow() {
		return false
	}
	frame, err := protocol.Encode(protocol.TypeCursorMove, protocol.CursorMove{
		DrawingID: s.cfg.DrawingID,
		Pointer:   p,
		Button:    button,
		UserID:    s.cfg.User.ID,
		Color:     s.cfg.User.Color,
	})
	if err != nil {
		return false
	}
	return s.transport.Send(frame) == nil
}

// SaveNow persists immediately, bypassing the debounce.
func (s *Session) SaveNow(ctx context.Context) error {
	return s.autosave.SaveNow(ctx)
}

// Close leaves the room and stops background work. A pending save is dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.throttle.Stop()
	s.loop.Stop()
	s.autosave.Close()
	s.transport.Close()
	s.tracker.Reset()
	s.log.Info("[Session] Closed")
}
