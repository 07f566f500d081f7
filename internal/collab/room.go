package collab

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"drawboard/internal/metrics"
	"drawboard/internal/protocol"
)

// Peer 룸 구성원에게 프레임을 전달하는 연결
type Peer interface {
	SocketID() string
	// Send enqueues a frame without blocking and reports whether it was accepted.
	Send(frame []byte) bool
}

// RosterSink receives the full roster after every membership or activity change.
type RosterSink interface {
	SetRoster(roomID string, roster []protocol.Participant)
}

type commandKind int

const (
	cmdJoin commandKind = iota
	cmdLeave
	cmdActivity
	cmdRelay
	cmdRemote
	cmdClose
)

type command struct {
	kind     commandKind
	peer     Peer
	user     protocol.User
	socketID string
	active   bool
	msgType  string
	frame    []byte
}

// Room 드로잉 하나의 협업 룸 (단일 고루틴이 상태 소유)
type Room struct {
	ID string

	inbox  chan command
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// 고루틴 전용 상태
	members map[string]Peer
	roster  []protocol.Participant

	snapshot atomic.Pointer[[]protocol.Participant]
	sink     RosterSink
	log      *zap.SugaredLogger

	// refs Registry.mu 보호
	refs int
}

func newRoom(id string, inboxSize int, sink RosterSink, log *zap.SugaredLogger) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		ID:      id,
		inbox:   make(chan command, inboxSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		members: make(map[string]Peer),
		sink:    sink,
		log:     log,
	}
	empty := []protocol.Participant{}
	r.snapshot.Store(&empty)
	go r.run()
	return r
}

// Participants 현재 참가자 목록 사본
func (r *Room) Participants() []protocol.Participant {
	cur := *r.snapshot.Load()
	out := make([]protocol.Participant, len(cur))
	copy(out, cur)
	return out
}

// enqueue blocks while the inbox is full and gives up once the room has exited.
func (r *Room) enqueue(cmd command) {
	select {
	case r.inbox <- cmd:
	case <-r.done:
	}
}

func (r *Room) run() {
	defer close(r.done)
	r.log.Debugf("[Room %s] Actor started", r.ID)

	for {
		select {
		case <-r.ctx.Done():
			return
		case cmd := <-r.inbox:
			switch cmd.kind {
			case cmdJoin:
				r.handleJoin(cmd.peer, cmd.user)
			case cmdLeave:
				r.handleLeave(cmd.socketID)
			case cmdActivity:
				r.handleActivity(cmd.socketID, cmd.active)
			case cmdRelay:
				r.fanOut(cmd.frame, cmd.socketID)
				metrics.RecordRelay(cmd.msgType, false)
			case cmdRemote:
				r.fanOut(cmd.frame, cmd.socketID)
				metrics.RecordRelay(cmd.msgType, true)
			case cmdClose:
				metrics.ParticipantsActive.Sub(float64(len(r.roster)))
				r.log.Infof("[Room %s] Shutdown complete", r.ID)
				r.cancel()
				return
			}
		}
	}
}

func (r *Room) handleJoin(peer Peer, user protocol.User) {
	socketID := peer.SocketID()
	r.members[socketID] = peer

	// 같은 사용자 ID의 이전 항목(재접속)은 교체
	next := r.roster[:0:0]
	for _, p := range r.roster {
		if p.ID == user.ID || p.SocketID == socketID {
			continue
		}
		next = append(next, p)
	}
	next = append(next, protocol.NewParticipant(user, socketID))
	r.setRoster(next)

	r.log.Infof("[Room %s] %s joined as %s (%d participants)", r.ID, user.Name, socketID, len(next))
}

func (r *Room) handleLeave(socketID string) {
	delete(r.members, socketID)

	idx := r.indexOf(socketID)
	if idx < 0 {
		return
	}
	next := make([]protocol.Participant, 0, len(r.roster)-1)
	next = append(next, r.roster[:idx]...)
	next = append(next, r.roster[idx+1:]...)
	r.setRoster(next)

	r.log.Infof("[Room %s] %s left (%d participants)", r.ID, socketID, len(next))
}

func (r *Room) handleActivity(socketID string, active bool) {
	idx := r.indexOf(socketID)
	if idx < 0 || r.roster[idx].IsActive == active {
		return
	}
	next := make([]protocol.Participant, len(r.roster))
	copy(next, r.roster)
	next[idx].IsActive = active
	r.setRoster(next)
}

func (r *Room) indexOf(socketID string) int {
	for i, p := range r.roster {
		if p.SocketID == socketID {
			return i
		}
	}
	return -1
}

// setRoster stores the roster and broadcasts it to every member, the joiner included.
func (r *Room) setRoster(next []protocol.Participant) {
	metrics.ParticipantsActive.Add(float64(len(next) - len(r.roster)))
	r.roster = next

	snap := make([]protocol.Participant, len(next))
	copy(snap, next)
	r.snapshot.Store(&snap)

	frame, err := protocol.Encode(protocol.TypePresenceUpdate, snap)
	if err != nil {
		r.log.Errorf("[Room %s] Failed to encode roster: %v", r.ID, err)
		return
	}
	r.fanOut(frame, "")

	if r.sink != nil {
		r.sink.SetRoster(r.ID, snap)
	}
}

// fanOut sends frame to every member except the one with socket id except.
func (r *Room) fanOut(frame []byte, except string) {
	for id, peer := range r.members {
		if id == except {
			continue
		}
		if !peer.Send(frame) {
			metrics.RecordDrop(metrics.DropBufferFull)
			r.log.Warnf("[Room %s] Send buffer full, dropping frame for %s", r.ID, id)
		}
	}
}
