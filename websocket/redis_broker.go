package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/logger"
	"github.com/redis/go-redis/v9"
)

const (
	presenceTTL       = 60 * time.Second
	heartbeatInterval = presenceTTL / 3
	closeTimeout      = 2 * time.Second
)

// RedisBroker fans deliveries out over one pub/sub channel shared by every instance.
// Presence is counted per instance in a hash that expires unless the instance keeps its
// heartbeat, so counts held by a crashed instance disappear after presenceTTL.
type RedisBroker struct {
	client   *redis.Client
	prefix   string
	channel  string
	instance string
	pubsub   *redis.PubSub

	mu      sync.RWMutex
	handler func(Delivery)
	done    chan struct{}

	stopHeartbeat context.CancelFunc
	heartbeatDone chan struct{}
}

func NewRedisBroker(ctx context.Context, client *redis.Client, prefix string) (*RedisBroker, error) {
	if prefix == "" {
		prefix = "motion"
	}
	b := &RedisBroker{
		client:        client,
		prefix:        prefix,
		channel:       prefix + ":deliveries",
		instance:      uuid.NewString(),
		done:          make(chan struct{}),
		heartbeatDone: make(chan struct{}),
	}

	b.pubsub = client.Subscribe(ctx, b.channel)
	// Receive blocks until the subscription is confirmed so no early publish is missed.
	if _, err := b.pubsub.Receive(ctx); err != nil {
		_ = b.pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	if err := b.beat(ctx); err != nil {
		_ = b.pubsub.Close()
		return nil, fmt.Errorf("failed to register instance: %w", err)
	}

	hbCtx, cancel := context.WithCancel(context.Background())
	b.stopHeartbeat = cancel
	go b.listen()
	go b.heartbeat(hbCtx)
	return b, nil
}

func (b *RedisBroker) listen() {
	defer close(b.done)
	for msg := range b.pubsub.Channel() {
		var d Delivery
		if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
			logger.Log.Warnw("dropping malformed delivery", "channel", msg.Channel, "err", err)
			continue
		}
		b.mu.RLock()
		handler := b.handler
		b.mu.RUnlock()
		if handler != nil {
			handler(d)
		}
	}
}

func (b *RedisBroker) Publish(ctx context.Context, d Delivery) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, raw).Err()
}

func (b *RedisBroker) Subscribe(handler func(Delivery)) {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()
}

func (b *RedisBroker) instancesKey() string {
	return b.prefix + ":instances"
}

func (b *RedisBroker) presenceKey(instance string) string {
	return b.prefix + ":presence:" + instance
}

func presenceField(room string, userID uuid.UUID) string {
	return room + "|" + userID.String()
}

// beat marks the instance alive, extends its presence hash and forgets instances that stopped beating.
func (b *RedisBroker) beat(ctx context.Context) error {
	now := time.Now()
	pipe := b.client.TxPipeline()
	pipe.ZAdd(ctx, b.instancesKey(), redis.Z{Score: float64(now.Unix()), Member: b.instance})
	pipe.ZRemRangeByScore(ctx, b.instancesKey(), "-inf", strconv.FormatInt(now.Add(-presenceTTL).Unix(), 10))
	pipe.Expire(ctx, b.presenceKey(b.instance), presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (b *RedisBroker) heartbeat(ctx context.Context) {
	defer close(b.heartbeatDone)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.beat(ctx); err != nil && ctx.Err() == nil {
				logger.Log.Warnw("redis presence heartbeat failed", "instance", b.instance, "err", err)
			}
		}
	}
}

// Join and Leave touch only this instance's hash, and the hub calls them from one goroutine.
func (b *RedisBroker) Join(ctx context.Context, room string, userID uuid.UUID) error {
	pipe := b.client.TxPipeline()
	pipe.HIncrBy(ctx, b.presenceKey(b.instance), presenceField(room, userID), 1)
	pipe.Expire(ctx, b.presenceKey(b.instance), presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (b *RedisBroker) Leave(ctx context.Context, room string, userID uuid.UUID) error {
	key, field := b.presenceKey(b.instance), presenceField(room, userID)
	n, err := b.client.HIncrBy(ctx, key, field, -1).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return b.client.HDel(ctx, key, field).Err()
	}
	return nil
}

// Present checks the hash of every live instance.
func (b *RedisBroker) Present(ctx context.Context, room string, userID uuid.UUID) (bool, error) {
	since := strconv.FormatInt(time.Now().Add(-presenceTTL).Unix(), 10)
	instances, err := b.client.ZRangeByScore(ctx, b.instancesKey(), &redis.ZRangeBy{Min: since, Max: "+inf"}).Result()
	if err != nil {
		return false, err
	}
	if len(instances) == 0 {
		return false, nil
	}

	field := presenceField(room, userID)
	pipe := b.client.Pipeline()
	counts := make([]*redis.StringCmd, len(instances))
	for i, instance := range instances {
		counts[i] = pipe.HGet(ctx, b.presenceKey(instance), field)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	for _, cmd := range counts {
		if n, err := cmd.Int(); err == nil && n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Close drops this instance's presence and stops listening.
func (b *RedisBroker) Close() error {
	b.stopHeartbeat()
	<-b.heartbeatDone

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.presenceKey(b.instance))
	pipe.ZRem(ctx, b.instancesKey(), b.instance)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Warnw("failed to drop instance presence", "instance", b.instance, "err", err)
	}

	err := b.pubsub.Close()
	select {
	case <-b.done:
	case <-time.After(closeTimeout):
		logger.Log.Warnw("redis listener did not stop in time", "channel", b.channel)
	}
	return err
}
