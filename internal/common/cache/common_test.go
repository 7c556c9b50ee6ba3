package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("create cache failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func marshalRecord(r *testRecord) string {
	data, _ := json.Marshal(r)
	return string(data)
}

func unmarshalRecord(data string) (*testRecord, error) {
	var r testRecord
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func TestGetWithCachedFetchesOnceAndCaches(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	fetches := 0
	fetch := func(ctx context.Context) (*testRecord, error) {
		fetches++
		return &testRecord{ID: "1", Name: "first"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := GetWithCached[*testRecord](ctx, c, "rec:1", time.Minute, time.Minute,
			func(r *testRecord) bool { return r == nil }, marshalRecord, unmarshalRecord, fetch)
		if err != nil {
			t.Fatalf("get %d failed: %v", i, err)
		}
		if got == nil || got.Name != "first" {
			t.Fatalf("get %d returned %+v", i, got)
		}
	}
	if fetches != 1 {
		t.Fatalf("expected 1 fetch, got %d", fetches)
	}
}

func TestGetWithCachedNullSentinelStopsPenetration(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	fetches := 0
	fetch := func(ctx context.Context) (*testRecord, error) {
		fetches++
		return nil, nil
	}

	for i := 0; i < 3; i++ {
		got, err := GetWithCached[*testRecord](ctx, c, "rec:missing", time.Minute, time.Minute,
			func(r *testRecord) bool { return r == nil }, marshalRecord, unmarshalRecord, fetch)
		if err != nil {
			t.Fatalf("get %d failed: %v", i, err)
		}
		if got != nil {
			t.Fatalf("expected nil record, got %+v", got)
		}
	}
	if fetches != 1 {
		t.Fatalf("confirmed miss fetched %d times", fetches)
	}

	value, err := c.Get(ctx, "rec:missing")
	if err != nil || value != NullCacheValue {
		t.Fatalf("null sentinel not stored: %q, %v", value, err)
	}
}

func TestGetWithCachedFetchError(t *testing.T) {
	c, _ := newTestCache(t)
	wantErr := stderrors.New("db down")
	_, err := GetWithCached[*testRecord](context.Background(), c, "rec:err", time.Minute, time.Minute,
		func(r *testRecord) bool { return r == nil }, marshalRecord, unmarshalRecord,
		func(ctx context.Context) (*testRecord, error) { return nil, wantErr })
	if !stderrors.Is(err, wantErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestGetWithCachedExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	fetches := 0
	fetch := func(ctx context.Context) (*testRecord, error) {
		fetches++
		return &testRecord{ID: "1", Name: "v"}, nil
	}
	read := func() {
		if _, err := GetWithCached[*testRecord](ctx, c, "rec:ttl", time.Second, time.Second,
			func(r *testRecord) bool { return r == nil }, marshalRecord, unmarshalRecord, fetch); err != nil {
			t.Fatalf("get failed: %v", err)
		}
	}

	read()
	mr.FastForward(2 * time.Second)
	read()
	if fetches != 2 {
		t.Fatalf("expected refetch after expiry, got %d fetches", fetches)
	}
}

func TestIncrAndExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	count, err := c.Incr(ctx, "fail:user")
	if err != nil || count != 1 {
		t.Fatalf("first incr: %d, %v", count, err)
	}
	if err := c.Expire(ctx, "fail:user", time.Minute); err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	if count, err = c.Incr(ctx, "fail:user"); err != nil || count != 2 {
		t.Fatalf("second incr: %d, %v", count, err)
	}

	mr.FastForward(2 * time.Minute)
	value, err := c.Get(ctx, "fail:user")
	if err != nil || value != "" {
		t.Fatalf("counter survived expiry: %q, %v", value, err)
	}
}

func TestTryLockIsExclusive(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	locked, err := c.TryLock(ctx, "lock:a", time.Minute)
	if err != nil || !locked {
		t.Fatalf("first lock: %v, %v", locked, err)
	}
	locked, err = c.TryLock(ctx, "lock:a", time.Minute)
	if err != nil || locked {
		t.Fatalf("second lock acquired: %v, %v", locked, err)
	}
	if err := c.Unlock(ctx, "lock:a"); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	locked, err = c.TryLock(ctx, "lock:a", time.Minute)
	if err != nil || !locked {
		t.Fatalf("relock after unlock: %v, %v", locked, err)
	}
}
