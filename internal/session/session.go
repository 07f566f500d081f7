// Package session tracks the presence state of one client in one drawing.
package session

import (
	"fmt"
	"sync"
	"time"
)

// State 클라이언트 연결 상태
type State int

const (
	StateDisconnected State = iota // 연결 없음
	StateConnecting                // 소켓 연결 중
	StateJoined                    // 연결됨, join-room 전송 전
	StateActive                    // 룸 참가 + 창 포커스
	StateIdle                      // 룸 참가 + 창 포커스 없음
	StateClosed                    // 세션 종료 (재연결 없음)
)

// String 상태를 문자열로 반환
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// InRoom reports whether the client is a room member (Active or Idle).
func (s State) InRoom() bool {
	return s == StateActive || s == StateIdle
}

// TransitionError 허용되지 않은 상태 전이
type TransitionError struct {
	From  State
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: %s not allowed in state %s", e.Event, e.From)
}

// Machine 연결 상태 머신 (Thread-Safe)
type Machine struct {
	mu       sync.RWMutex
	state    State
	changed  time.Time
	onChange func(from, to State)
	now      func() time.Time
}

// New 새 상태 머신 생성 (Disconnected)
func New(onChange func(from, to State)) *Machine {
	return &Machine{
		state:    StateDisconnected,
		changed:  time.Now(),
		onChange: onChange,
		now:      time.Now,
	}
}

// GetState 현재 상태 조회
func (m *Machine) GetState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Since 현재 상태 유지 시간
func (m *Machine) Since() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now().Sub(m.changed)
}

// Connect Disconnected -> Connecting
func (m *Machine) Connect() error {
	return m.transition("connect", StateConnecting, StateDisconnected)
}

// Connected Connecting -> Joined
func (m *Machine) Connected() error {
	return m.transition("connected", StateJoined, StateConnecting)
}

// JoinSent Joined -> Active
func (m *Machine) JoinSent() error {
	return m.transition("join", StateActive, StateJoined)
}

// SetActive Active <-> Idle. Setting the current state again is a no-op.
func (m *Machine) SetActive(active bool) error {
	to := StateIdle
	if active {
		to = StateActive
	}
	return m.transition("activity", to, StateActive, StateIdle)
}

// Disconnect any live state -> Disconnected
func (m *Machine) Disconnect() error {
	return m.transition("disconnect", StateDisconnected, StateConnecting, StateJoined, StateActive, StateIdle, StateDisconnected)
}

// Close 세션 종료 (idempotent)
func (m *Machine) Close() {
	m.mu.Lock()
	from := m.state
	if from == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = StateClosed
	m.changed = m.now()
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, StateClosed)
	}
}

// IsClosed 세션 종료 여부 확인
func (m *Machine) IsClosed() bool {
	return m.GetState() == StateClosed
}

func (m *Machine) transition(event string, to State, allowed ...State) error {
	m.mu.Lock()
	from := m.state
	ok := false
	for _, s := range allowed {
		if s == from {
			ok = true
			break
		}
	}
	if !ok {
		m.mu.Unlock()
		return &TransitionError{From: from, Event: event}
	}
	if from == to {
		m.mu.Unlock()
		return nil
	}
	m.state = to
	m.changed = m.now()
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}
