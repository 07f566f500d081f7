package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisClient 공유 Redis 연결 (presence 미러, 룸 릴레이)
type RedisClient struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

// NewRedisClient creates a client and verifies the connection with PING.
func NewRedisClient(addr, password string, db int, log *zap.SugaredLogger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Infof("[Redis] Connected to %s", addr)
	return &RedisClient{client: client, log: log}, nil
}

// Client 내부 go-redis 클라이언트
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Health PING 기반 상태 확인
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close 연결 종료
func (r *RedisClient) Close() error {
	return r.client.Close()
}
