package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ardrone-svr/internal/codec/navflags"
	"ardrone-svr/internal/pipeline"
)

// Redis refleja el último estado de cada sesión con TTL, para dashboards.
// Nunca se lee de vuelta como fuente de verdad.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(ctx context.Context, addr string, db int, ttl time.Duration) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisFromClient(rdb, ttl), nil
}

func NewRedisFromClient(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Close() error { return r.rdb.Close() }

func (r *Redis) Name() string { return "redis" }

func stateKey(session string) string { return "drone:" + session + ":state" }
func seqKey(session string) string { return "drone:" + session + ":seq" }
func snapKey(session string) string { return "drone:" + session + ":snapshot" }
func flagKey(session, flag string) string {
	return "drone:" + session + ":flag:" + flag
}

// Publish guarda la palabra de estado, la secuencia, cada bit y el snapshot JSON.
func (r *Redis) Publish(ctx context.Context, s *pipeline.Snapshot) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, stateKey(s.SessionID), s.State, r.ttl)
		p.Set(ctx, seqKey(s.SessionID), s.Sequence, r.ttl)
		p.Set(ctx, snapKey(s.SessionID), body, r.ttl)
		for name, v := range s.Flags {
			p.Set(ctx, flagKey(s.SessionID, name), v, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", s.SessionID, err)
	}
	return nil
}

func (r *Redis) GetState(ctx context.Context, session string) (uint32, bool) {
	val, err := r.rdb.Get(ctx, stateKey(session)).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// GetFlags lee los bits con nombre en un solo MGET. Los que no existen se omiten.
func (r *Redis) GetFlags(ctx context.Context, session string) map[string]int {
	keys := make([]string, 0, navflags.Count)
	for _, n := range navflags.Names {
		keys = append(keys, flagKey(session, n))
	}
	out := make(map[string]int, len(keys))
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return out
	}
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, _ := v.(string)
		n, _ := strconv.Atoi(s)
		out[navflags.Names[i]] = n
	}
	return out
}

// GetSnapshot devuelve el último snapshot publicado.
func (r *Redis) GetSnapshot(ctx context.Context, session string) (*pipeline.Snapshot, error) {
	b, err := r.rdb.Get(ctx, snapKey(session)).Bytes()
	if err != nil {
		return nil, err
	}
	var s pipeline.Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
