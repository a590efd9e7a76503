package broadcast

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStorage is a SharedStorage backed by Redis. Changes are announced on a
// companion pub/sub channel named "<key>:changes".
type RedisStorage struct {
	client redis.UniversalClient
}

// NewRedisStorage wraps client.
func NewRedisStorage(client redis.UniversalClient) *RedisStorage {
	return &RedisStorage{client: client}
}

func changesChannel(key string) string {
	return key + ":changes"
}

func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	old, err := s.client.SetArgs(ctx, key, value, redis.SetArgs{Get: true}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if err == nil && old == value {
		return nil
	}
	return s.publish(ctx, StorageEvent{Key: key, OldValue: old, NewValue: value})
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	old, err := s.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.publish(ctx, StorageEvent{Key: key, OldValue: old})
}

func (s *RedisStorage) Watch(ctx context.Context, key string) (<-chan StorageEvent, error) {
	ps := s.client.Subscribe(ctx, changesChannel(key))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Join(ErrTransportUnavailable, err)
	}

	out := make(chan StorageEvent, 16)
	go func() {
		defer close(out)
		defer ps.Close()

		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				var evt StorageEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *RedisStorage) publish(ctx context.Context, evt StorageEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, changesChannel(evt.Key), data).Err()
}
