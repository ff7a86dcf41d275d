package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"ardrone-svr/internal/codec/navflags"
	"ardrone-svr/internal/pipeline"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	t.Cleanup(func() { r.Close() })
	return r, mr
}

func TestPublish(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	state := navflags.Mask(navflags.Flying) | navflags.Mask(navflags.VbatLow)
	snap := pipeline.BuildSnapshot("abcd1234", pipeline.Update{New: state})
	if err := r.Publish(ctx, snap); err != nil {
		t.Fatal(err)
	}

	got, ok := r.GetState(ctx, "abcd1234")
	if !ok || got != state {
		t.Errorf("GetState = %#x, %v", got, ok)
	}
	flags := r.GetFlags(ctx, "abcd1234")
	if len(flags) != navflags.Count || flags["flying"] != 1 || flags["vbat_low"] != 1 || flags["emergency"] != 0 {
		t.Errorf("flags = %v", flags)
	}
	back, err := r.GetSnapshot(ctx, "abcd1234")
	if err != nil || back.State != state || !back.Flying {
		t.Errorf("snapshot = %+v, %v", back, err)
	}

	if ttl := mr.TTL("drone:abcd1234:state"); ttl != time.Minute {
		t.Errorf("ttl = %s", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok := r.GetState(ctx, "abcd1234"); ok {
		t.Error("state survived its TTL")
	}
}

func TestGetMissing(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()
	if _, ok := r.GetState(ctx, "nobody"); ok {
		t.Error("GetState found a missing session")
	}
	if f := r.GetFlags(ctx, "nobody"); len(f) != 0 {
		t.Errorf("flags = %v", f)
	}
	if _, err := r.GetSnapshot(ctx, "nobody"); err == nil {
		t.Error("GetSnapshot found a missing session")
	}
}

func TestNewRedisPingFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewRedis(ctx, "127.0.0.1:1", 0, 0); err == nil {
		t.Error("expected ping error")
	}
}
