package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"drawboard/internal/protocol"
)

// Mirror 룸 참가자 목록을 Redis 해시에 미러링 (필드 = 인스턴스 ID)
//
// SetRoster only records the latest roster per room; Run writes it out so that
// the room goroutine never waits on Redis.
type Mirror struct {
	client     *redis.Client
	instanceID string
	ttl        time.Duration
	log        *zap.SugaredLogger

	mu      sync.Mutex
	pending map[string][]protocol.Participant
	known   map[string]struct{}
	notify  chan struct{}
}

// NewMirror 생성자
func NewMirror(client *redis.Client, instanceID string, ttl time.Duration, log *zap.SugaredLogger) *Mirror {
	return &Mirror{
		client:     client,
		instanceID: instanceID,
		ttl:        ttl,
		log:        log,
		pending:    make(map[string][]protocol.Participant),
		known:      make(map[string]struct{}),
		notify:     make(chan struct{}, 1),
	}
}

// Key 생성 유틸
func (m *Mirror) getRoomKey(roomID string) string {
	return fmt.Sprintf("presence:room:%s", roomID)
}

// SetRoster 최신 참가자 목록 기록 (빈 목록 = 제거)
func (m *Mirror) SetRoster(roomID string, roster []protocol.Participant) {
	cp := make([]protocol.Participant, len(roster))
	copy(cp, roster)

	m.mu.Lock()
	m.pending[roomID] = cp
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Run writes pending rosters and refreshes TTLs until ctx is cancelled.
// On exit this instance's entries are removed.
func (m *Mirror) Run(ctx context.Context) {
	// 하트비트는 TTL의 절반 주기
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			m.removeAll(cleanup)
			cancel()
			return
		case <-m.notify:
			if err := m.Flush(ctx); err != nil {
				m.log.Warnf("[Presence] Flush failed: %v", err)
			}
		case <-ticker.C:
			// 실패했던 목록 재시도
			if err := m.Flush(ctx); err != nil {
				m.log.Warnf("[Presence] Retry flush failed: %v", err)
			}
			m.refresh(ctx)
		}
	}
}

// Flush 대기 중인 목록을 즉시 기록
//
// Rooms whose write fails go back to pending unless a newer roster was set in
// the meantime; the next flush or heartbeat retries them.
func (m *Mirror) Flush(ctx context.Context) error {
	m.mu.Lock()
	batch := m.pending
	m.pending = make(map[string][]protocol.Participant)
	m.mu.Unlock()

	var firstErr error
	for roomID, roster := range batch {
		err := m.write(ctx, roomID, roster)
		if err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
		m.mu.Lock()
		if _, newer := m.pending[roomID]; !newer {
			m.pending[roomID] = roster
		}
		m.mu.Unlock()
	}
	return firstErr
}

// Pending 기록 대기 중인 룸 수
func (m *Mirror) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Mirror) write(ctx context.Context, roomID string, roster []protocol.Participant) error {
	key := m.getRoomKey(roomID)

	if len(roster) == 0 {
		m.mu.Lock()
		delete(m.known, roomID)
		m.mu.Unlock()
		return m.client.HDel(ctx, key, m.instanceID).Err()
	}

	data, err := json.Marshal(roster)
	if err != nil {
		return err
	}

	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, key, m.instanceID, data)
	pipe.Expire(ctx, key, m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.known[roomID] = struct{}{}
	m.mu.Unlock()
	return nil
}

// refresh 활성 룸 TTL 연장
func (m *Mirror) refresh(ctx context.Context) {
	m.mu.Lock()
	rooms := make([]string, 0, len(m.known))
	for id := range m.known {
		rooms = append(rooms, id)
	}
	m.mu.Unlock()

	for _, id := range rooms {
		if err := m.client.Expire(ctx, m.getRoomKey(id), m.ttl).Err(); err != nil {
			m.log.Warnf("[Presence] Heartbeat for room %s failed: %v", id, err)
		}
	}
}

func (m *Mirror) removeAll(ctx context.Context) {
	m.mu.Lock()
	rooms := make([]string, 0, len(m.known))
	for id := range m.known {
		rooms = append(rooms, id)
	}
	m.known = make(map[string]struct{})
	m.mu.Unlock()

	for _, id := range rooms {
		m.client.HDel(ctx, m.getRoomKey(id), m.instanceID)
	}
}

// GetRoster 모든 인스턴스의 룸 참가자 조회
func (m *Mirror) GetRoster(ctx context.Context, roomID string) ([]protocol.Participant, error) {
	fields, err := m.client.HGetAll(ctx, m.getRoomKey(roomID)).Result()
	if err != nil {
		return nil, err
	}

	instances := make([]string, 0, len(fields))
	for id := range fields {
		instances = append(instances, id)
	}
	sort.Strings(instances)

	roster := make([]protocol.Participant, 0)
	for _, id := range instances {
		var part []protocol.Participant
		if err := json.Unmarshal([]byte(fields[id]), &part); err != nil {
			m.log.Warnf("[Presence] Skipping corrupt roster of instance %s in room %s", id, roomID)
			continue
		}
		roster = append(roster, part...)
	}
	return roster, nil
}
