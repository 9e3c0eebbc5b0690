package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps records as JSON strings in a single redis list. RPUSH keeps
// insertion order and each list command is atomic on the server.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisStore connects to the redis server at addr and stores records under
// key.
func NewRedisStore(ctx context.Context, addr, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	// Check the connection.
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client, key: key}, nil
}

func (s *RedisStore) Close() error {
	if c, ok := s.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}
	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		var r Record
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *RedisStore) Append(ctx context.Context, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	return nil
}

// Remove finds the stored values whose filename matches and removes them by
// value with LREM.
func (s *RedisStore) Remove(ctx context.Context, filename string) (int, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to fetch records: %w", err)
	}
	seen := make(map[string]bool)
	removed := 0
	for _, item := range raw {
		if seen[item] {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return removed, fmt.Errorf("failed to decode record: %w", err)
		}
		if r.Filename != filename {
			continue
		}
		seen[item] = true
		n, err := s.client.LRem(ctx, s.key, 0, item).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to remove record: %w", err)
		}
		removed += int(n)
	}
	return removed, nil
}
