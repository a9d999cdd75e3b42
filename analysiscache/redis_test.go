package analysiscache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/stevecastle/galleria/focus"
)

func setupRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), RedisOptions{Addr: mr.Addr(), TTL: ttl})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, mr
}

func TestRedisMiss(t *testing.T) {
	r, _ := setupRedis(t, time.Hour)

	got, err := r.Get(context.Background(), Key([]byte("nothing"), 512))
	if err != nil || got != nil {
		t.Errorf("Get(miss) = %v, %v; want nil, nil", got, err)
	}
}

func TestRedisSetGet(t *testing.T) {
	ctx := context.Background()
	r, mr := setupRedis(t, time.Hour)

	tests := []struct {
		name string
		res  focus.Result
	}{
		{"sharp", focus.Result{Score: 812.25, IsBlurred: false, Width: 512, Height: 384}},
		{"blurred", focus.Result{Score: 3.5, IsBlurred: true, Width: 300, Height: 200}},
		{"degenerate", focus.Result{Width: 2, Height: 2, Degenerate: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := Key([]byte(tt.name), 512)
			if err := r.Set(ctx, key, tt.res); err != nil {
				t.Fatalf("Set: %v", err)
			}

			raw, err := mr.Get("focus:" + key)
			if err != nil {
				t.Fatalf("value not stored under focus: prefix: %v", err)
			}
			if strings.Contains(raw, "degenerate") != tt.res.Degenerate {
				t.Errorf("stored JSON %s; degenerate should only appear when set", raw)
			}
			if ttl := mr.TTL("focus:" + key); ttl != time.Hour {
				t.Errorf("TTL = %v; want 1h", ttl)
			}

			got, err := r.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got == nil || *got != tt.res {
				t.Errorf("Get = %+v; want %+v", got, tt.res)
			}
		})
	}
}

func TestRedisCorruptValue(t *testing.T) {
	r, mr := setupRedis(t, time.Hour)
	key := Key([]byte("corrupt"), 512)
	if err := mr.Set("focus:"+key, "{not json"); err != nil {
		t.Fatal(err)
	}

	got, err := r.Get(context.Background(), key)
	if err == nil {
		t.Errorf("Get(corrupt) = %+v, nil; want an error", got)
	}
	if got != nil {
		t.Errorf("Get(corrupt) returned a result: %+v", got)
	}
}

func TestRedisExpiry(t *testing.T) {
	ctx := context.Background()
	r, mr := setupRedis(t, time.Minute)
	key := Key([]byte("short-lived"), 512)
	if err := r.Set(ctx, key, focus.Result{Score: 99, Width: 10, Height: 10}); err != nil {
		t.Fatal(err)
	}

	mr.FastForward(59 * time.Second)
	if got, err := r.Get(ctx, key); err != nil || got == nil {
		t.Fatalf("Get before expiry = %v, %v; want a hit", got, err)
	}

	mr.FastForward(2 * time.Second)
	if got, err := r.Get(ctx, key); err != nil || got != nil {
		t.Errorf("Get after expiry = %v, %v; want nil, nil", got, err)
	}
}

func TestRedisServerDown(t *testing.T) {
	r, mr := setupRedis(t, time.Hour)
	mr.Close()

	got, err := r.Get(context.Background(), Key([]byte("x"), 512))
	if err == nil || got != nil {
		t.Errorf("Get with server down = %v, %v; want an error", got, err)
	}
	if err := r.Set(context.Background(), "k", focus.Result{}); err == nil {
		t.Error("Set with server down returned nil error")
	}
}
