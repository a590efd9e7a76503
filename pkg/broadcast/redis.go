package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel used when none is given.
const DefaultRedisChannel = "sessionkit:broadcast"

// RedisChannel is a direct channel transport over Redis pub/sub. It lets
// processes that do not share memory (for example several desktop webviews
// or server rendered tabs) exchange session notifications.
type RedisChannel struct {
	client  redis.UniversalClient
	channel string

	mu     sync.Mutex
	closed bool
	subs   map[*redis.PubSub]struct{}
}

// NewRedisChannel creates a transport publishing to channel.
func NewRedisChannel(client redis.UniversalClient, channel string) *RedisChannel {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisChannel{
		client:  client,
		channel: channel,
		subs:    make(map[*redis.PubSub]struct{}),
	}
}

func (r *RedisChannel) Send(ctx context.Context, data []byte) error {
	if r.isClosed() {
		return ErrTransportClosed
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

func (r *RedisChannel) Listen(ctx context.Context) (<-chan []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrTransportClosed
	}

	ps := r.client.Subscribe(ctx, r.channel)
	// Receive blocks until the subscription is confirmed, so no message sent
	// after Listen returns is lost.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Join(ErrTransportUnavailable, err)
	}
	r.subs[ps] = struct{}{}

	out := make(chan []byte, 16)
	go r.pump(ctx, ps, out)
	return out, nil
}

func (r *RedisChannel) pump(ctx context.Context, ps *redis.PubSub, out chan<- []byte) {
	defer close(out)
	defer r.release(ps)

	in := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *RedisChannel) release(ps *redis.PubSub) {
	r.mu.Lock()
	delete(r.subs, ps)
	r.mu.Unlock()
	_ = ps.Close()
}

func (r *RedisChannel) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close closes every subscription. The Redis client is owned by the caller.
func (r *RedisChannel) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := make([]*redis.PubSub, 0, len(r.subs))
	for ps := range r.subs {
		subs = append(subs, ps)
	}
	clear(r.subs)
	r.mu.Unlock()

	for _, ps := range subs {
		_ = ps.Close()
	}
	return nil
}
