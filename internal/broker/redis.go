package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/park285/cheese-wargame/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRelayKey = "wargame:relay"
	ttlRelay        = 24 * time.Hour
)

// RedisRelay keeps the latest TurnRecord as JSON under a single key, like the HTTP relay's
// stored_information. Both clients point at the same key.
type RedisRelay struct {
	rdb *redis.Client
	key string
}

func NewRedisRelay(rdb *redis.Client, key string) *RedisRelay {
	key = strings.TrimSpace(key)
	if key == "" {
		key = defaultRelayKey
	}
	return &RedisRelay{rdb: rdb, key: key}
}

// NewRedisRelayFromURL parses redis://[:pass@]host:port/db?key=name. password is used when
// the URL carries none.
func NewRedisRelayFromURL(raw, password string) (*RedisRelay, error) {
	opts, key, err := parseRedisURL(raw)
	if err != nil {
		return nil, err
	}
	if opts.Password == "" {
		opts.Password = password
	}
	return NewRedisRelay(redis.NewClient(opts), key), nil
}

func (r *RedisRelay) Post(ctx context.Context, rec domain.TurnRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key, raw, ttlRelay).Err()
}

func (r *RedisRelay) Fetch(ctx context.Context) (json.RawMessage, error) {
	raw, err := r.rdb.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (r *RedisRelay) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

// parseRedisURL strips the relay's own key parameter and leaves the rest, TLS for
// rediss included, to redis.ParseURL.
func parseRedisURL(raw string) (*redis.Options, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, "", err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedURL, u.Scheme)
	}
	q := u.Query()
	key := q.Get("key")
	q.Del("key")
	u.RawQuery = q.Encode()

	opts, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, "", err
	}
	return opts, key, nil
}
