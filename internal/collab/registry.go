// Package collab is the server-side session registry: one Room per drawing,
// each an actor that owns its roster and relays frames between members.
package collab

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"drawboard/internal/errs"
	"drawboard/internal/metrics"
	"drawboard/internal/protocol"
)

// Relay publishes relayed frames to other server instances.
type Relay interface {
	Publish(ctx context.Context, roomID, senderSocketID string, frame []byte) error
}

// Options Registry 의존성
type Options struct {
	InboxSize int
	Sink      RosterSink
	Relay     Relay
	Logger    *zap.SugaredLogger
}

// Registry 룸 레지스트리 (roomID -> Room, socketID -> roomID)
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	sockets map[string]string
	closed  bool

	inboxSize int
	sink      RosterSink
	relay     Relay
	log       *zap.SugaredLogger
}

// NewRegistry Registry 생성
func NewRegistry(opts Options) *Registry {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Registry{
		rooms:     make(map[string]*Room),
		sockets:   make(map[string]string),
		inboxSize: opts.InboxSize,
		sink:      opts.Sink,
		relay:     opts.Relay,
		log:       opts.Logger,
	}
}

// Join adds peer to roomID as user. A socket already in another room leaves it
// first; a repeated join on the same room replaces the participant entry.
// After Close it returns errs.ErrClosed.
func (g *Registry) Join(roomID string, peer Peer, user protocol.User) error {
	socketID := peer.SocketID()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errs.ErrClosed
	}

	if current, ok := g.sockets[socketID]; ok && current != roomID {
		g.leaveLocked(socketID)
	}

	room := g.getOrCreateLocked(roomID)
	if _, ok := g.sockets[socketID]; !ok {
		room.refs++
		g.sockets[socketID] = roomID
	}
	room.enqueue(command{kind: cmdJoin, peer: peer, user: user})
	return nil
}

// Leave removes socketID from whichever room holds it. Unknown sockets are ignored.
func (g *Registry) Leave(socketID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveLocked(socketID)
}

func (g *Registry) leaveLocked(socketID string) {
	roomID, ok := g.sockets[socketID]
	if !ok {
		return
	}
	delete(g.sockets, socketID)

	room := g.rooms[roomID]
	room.enqueue(command{kind: cmdLeave, socketID: socketID})
	room.refs--
	if room.refs > 0 {
		return
	}

	// 마지막 소켓: 액터가 남은 명령을 처리하고 종료할 때까지 대기
	delete(g.rooms, roomID)
	room.enqueue(command{kind: cmdClose})
	<-room.done
	metrics.RoomsActive.Dec()
	g.log.Infof("[Registry] Removed room: %s", roomID)
}

func (g *Registry) getOrCreateLocked(roomID string) *Room {
	if room, ok := g.rooms[roomID]; ok {
		return room
	}
	room := newRoom(roomID, g.inboxSize, g.sink, g.log)
	g.rooms[roomID] = room
	metrics.RoomsActive.Inc()
	g.log.Infof("[Registry] Created room: %s", roomID)
	return room
}

// roomOf 소켓이 속한 룸 조회
func (g *Registry) roomOf(socketID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	roomID, ok := g.sockets[socketID]
	if !ok {
		return nil, false
	}
	return g.rooms[roomID], true
}

// RoomOf returns the id of the room socketID has joined.
func (g *Registry) RoomOf(socketID string) (string, bool) {
	room, ok := g.roomOf(socketID)
	if !ok {
		return "", false
	}
	return room.ID, true
}

// SetActivity flags the participant on socketID active or idle.
func (g *Registry) SetActivity(socketID string, active bool) error {
	room, ok := g.roomOf(socketID)
	if !ok {
		return errs.ErrNotFound
	}
	room.enqueue(command{kind: cmdActivity, socketID: socketID, active: active})
	return nil
}

// Relay forwards frame verbatim to every other member of the sender's room
// and publishes it to other instances when a Relay is configured.
func (g *Registry) Relay(ctx context.Context, socketID, msgType string, frame []byte) error {
	room, ok := g.roomOf(socketID)
	if !ok {
		return errs.ErrNotFound
	}
	room.enqueue(command{kind: cmdRelay, socketID: socketID, msgType: msgType, frame: frame})

	if g.relay != nil {
		if err := g.relay.Publish(ctx, room.ID, socketID, frame); err != nil {
			g.log.Warnf("[Registry] Cross-instance publish for room %s failed: %v", room.ID, err)
		}
	}
	return nil
}

// DeliverRemote hands a frame relayed by another instance to local members.
func (g *Registry) DeliverRemote(roomID, senderSocketID string, frame []byte) {
	g.mu.Lock()
	room, ok := g.rooms[roomID]
	g.mu.Unlock()
	if !ok {
		return
	}

	msgType := "unknown"
	if env, err := protocol.Decode(frame); err == nil {
		msgType = env.Type
	}
	room.enqueue(command{kind: cmdRemote, socketID: senderSocketID, msgType: msgType, frame: frame})
}

// Participants 룸 참가자 목록 (룸이 없으면 빈 목록)
func (g *Registry) Participants(roomID string) []protocol.Participant {
	g.mu.Lock()
	room, ok := g.rooms[roomID]
	g.mu.Unlock()
	if !ok {
		return []protocol.Participant{}
	}
	return room.Participants()
}

// RoomCount 활성 룸 수
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Close shuts every room down. Sockets still attached are dropped without
// roster broadcasts.
func (g *Registry) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true

	for id, room := range g.rooms {
		room.enqueue(command{kind: cmdClose})
		<-room.done
		metrics.RoomsActive.Dec()
		delete(g.rooms, id)
	}
	g.sockets = make(map[string]string)
	g.log.Info("[Registry] All rooms closed")
}
