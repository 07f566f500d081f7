package cache

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const roomChannelPrefix = "drawboard:room:"

// relayMessage 인스턴스 간 릴레이 메시지
type relayMessage struct {
	Origin string          `json:"origin"`
	Sender string          `json:"sender"`
	Frame  json.RawMessage `json:"frame"`
}

// RemoteHandler receives a frame relayed by another instance.
type RemoteHandler func(roomID, senderSocketID string, frame []byte)

// RoomRelay fans room frames out to other server instances over Redis pub/sub.
// Messages published by this instance are ignored on receipt.
type RoomRelay struct {
	client     *redis.Client
	instanceID string
	log        *zap.SugaredLogger
}

// NewRoomRelay RoomRelay 생성
func NewRoomRelay(client *redis.Client, instanceID string, log *zap.SugaredLogger) *RoomRelay {
	return &RoomRelay{client: client, instanceID: instanceID, log: log}
}

func roomChannel(roomID string) string {
	return roomChannelPrefix + roomID
}

// Publish 룸 프레임 발행 (frame은 JSON 봉투)
func (r *RoomRelay) Publish(ctx context.Context, roomID, senderSocketID string, frame []byte) error {
	data, err := json.Marshal(relayMessage{
		Origin: r.instanceID,
		Sender: senderSocketID,
		Frame:  frame,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Publish(ctx, roomChannel(roomID), data).Err()
}

// Run subscribes to every room channel and calls handle for frames from
// other instances until ctx is cancelled.
func (r *RoomRelay) Run(ctx context.Context, handle RemoteHandler) error {
	pubsub := r.client.PSubscribe(ctx, roomChannelPrefix+"*")
	defer pubsub.Close()

	// 구독 확정 대기
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.log.Infof("[Relay %s] Subscribed to room channels", r.instanceID)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.log.Warnf("[Relay %s] Dropping malformed message on %s: %v", r.instanceID, msg.Channel, err)
				continue
			}
			if m.Origin == r.instanceID {
				continue
			}
			handle(strings.TrimPrefix(msg.Channel, roomChannelPrefix), m.Sender, m.Frame)
		}
	}
}
