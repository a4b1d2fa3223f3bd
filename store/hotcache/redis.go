package hotcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/crewmind/crewmind/store"
)

const keyPrefix = "crewmind:hot:"

// Redis is the shared hot tier backed by Redis lists, one list per
// conversation, newest message at the head.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the given Redis URL and verifies connectivity.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	return &Redis{
		client: client,
		ttl:    time.Duration(store.HotTTLSeconds) * time.Second,
	}, nil
}

func key(conversationUID string) string {
	return keyPrefix + conversationUID
}

func (r *Redis) Push(ctx context.Context, conversationUID string, msg *store.Message) error {
	k := key(conversationUID)
	exists, err := r.client.Exists(ctx, k).Result()
	if err != nil {
		return errors.Wrap(err, "hot exists")
	}
	if exists == 0 {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal hot message")
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, k, payload)
	pipe.LTrim(ctx, k, 0, int64(store.HotDepth-1))
	pipe.Expire(ctx, k, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "hot push")
	}
	return nil
}

func (r *Redis) Recent(ctx context.Context, conversationUID string, limit int) ([]*store.Message, bool, error) {
	if limit <= 0 || limit > store.HotDepth {
		limit = store.HotDepth
	}
	raw, err := r.client.LRange(ctx, key(conversationUID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, "hot range")
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	msgs := make([]*store.Message, 0, len(raw))
	for _, item := range raw {
		var msg store.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			// A corrupt entry poisons the list; treat it as a miss so
			// the durable read path repopulates it.
			return nil, false, nil
		}
		msgs = append(msgs, &msg)
	}
	return msgs, true, nil
}

func (r *Redis) Replace(ctx context.Context, conversationUID string, msgs []*store.Message) error {
	k := key(conversationUID)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, k)
	// RPush in newest-first order keeps the head newest.
	for _, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			return errors.Wrap(err, "marshal hot message")
		}
		pipe.RPush(ctx, k, payload)
	}
	pipe.LTrim(ctx, k, 0, int64(store.HotDepth-1))
	pipe.Expire(ctx, k, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "hot replace")
	}
	return nil
}

func (r *Redis) Evict(ctx context.Context, conversationUID string) error {
	if err := r.client.Del(ctx, key(conversationUID)).Err(); err != nil {
		return errors.Wrap(err, "hot evict")
	}
	return nil
}

// Close releases the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
