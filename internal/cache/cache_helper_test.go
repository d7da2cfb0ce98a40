package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type entry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func newTestManager(t *testing.T) (*CacheManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheManager(client), mr
}

func TestCacheHelper_SetGet(t *testing.T) {
	ctx := context.Background()
	cm, mr := newTestManager(t)

	if err := cm.Result.Set(ctx, ResultKey("a1"), entry{Name: "a1", Score: 7}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !mr.Exists("result:attempt:a1") {
		t.Fatalf("key not stored under its prefix; keys = %v", mr.Keys())
	}

	var got entry
	if err := cm.Result.Get(ctx, ResultKey("a1"), &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != (entry{Name: "a1", Score: 7}) {
		t.Errorf("Get() = %+v", got)
	}

	mr.FastForward(2 * time.Minute)
	if err := cm.Result.Get(ctx, ResultKey("a1"), &got); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("Get() after TTL error = %v, want ErrCacheNotFound", err)
	}
}

func TestCacheHelper_CacheOrExecute(t *testing.T) {
	ctx := context.Background()
	cm, _ := newTestManager(t)

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return entry{Name: "summary", Score: calls}, nil
	}

	for i := 0; i < 3; i++ {
		var got entry
		if err := cm.Summary.CacheOrExecute(ctx, SummaryKey("t1"), &got, time.Minute, fetch); err != nil {
			t.Fatalf("CacheOrExecute() error = %v", err)
		}
		if got.Score != 1 {
			t.Errorf("call %d returned %+v, want the first fetch", i, got)
		}
	}
	if calls != 1 {
		t.Errorf("fetch ran %d times, want 1", calls)
	}

	InvalidateSummaryCache(ctx, cm, "t1")
	var got entry
	if err := cm.Summary.CacheOrExecute(ctx, SummaryKey("t1"), &got, time.Minute, fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 2 || got.Score != 2 {
		t.Errorf("after invalidation calls = %d got = %+v", calls, got)
	}

	boom := errors.New("boom")
	err := cm.Summary.CacheOrExecute(ctx, SummaryKey("t2"), &got, time.Minute, func() (interface{}, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("fetch error = %v, want boom", err)
	}
}

func TestCacheHelper_InvalidatePattern(t *testing.T) {
	ctx := context.Background()
	cm, mr := newTestManager(t)

	for _, id := range []string{"a1", "a2", "a3"} {
		if err := cm.Result.Set(ctx, ResultKey(id), entry{Name: id}, time.Minute); err != nil {
			t.Fatal(err)
		}
	}
	if err := cm.Summary.Set(ctx, SummaryKey("t1"), entry{}, time.Minute); err != nil {
		t.Fatal(err)
	}

	if err := cm.Result.InvalidatePattern(ctx, "attempt:*"); err != nil {
		t.Fatalf("InvalidatePattern() error = %v", err)
	}
	keys := mr.Keys()
	if len(keys) != 1 || keys[0] != "summary:test:t1" {
		t.Errorf("remaining keys = %v, want only the summary", keys)
	}
}

func TestInvalidateTestCache(t *testing.T) {
	ctx := context.Background()
	cm, mr := newTestManager(t)

	_ = cm.Test.Set(ctx, TestKey("t1"), entry{}, time.Minute)
	_ = cm.Summary.Set(ctx, SummaryKey("t1"), entry{}, time.Minute)
	_ = cm.Summary.Set(ctx, SummaryKey("t2"), entry{}, time.Minute)

	InvalidateTestCache(ctx, cm, "t1")

	if mr.Exists("test:id:t1") || mr.Exists("summary:test:t1") {
		t.Errorf("t1 keys survived: %v", mr.Keys())
	}
	if !mr.Exists("summary:test:t2") {
		t.Error("unrelated summary was dropped")
	}
}

func TestCacheHelper_Unavailable(t *testing.T) {
	ctx := context.Background()
	cm := NewCacheManager(nil)

	if cm.Result.Available() {
		t.Fatal("nil client reported as available")
	}
	if err := cm.Result.Set(ctx, "k", entry{}, time.Minute); err != nil {
		t.Errorf("Set() error = %v, want silent no-op", err)
	}
	var got entry
	if err := cm.Result.Get(ctx, "k", &got); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("Get() error = %v, want ErrCacheNotAvailable", err)
	}
	if err := cm.HealthCheck(ctx); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("HealthCheck() error = %v", err)
	}

	calls := 0
	err := cm.Summary.CacheOrExecute(ctx, "k", &got, time.Minute, func() (interface{}, error) {
		calls++
		return entry{Name: "fresh"}, nil
	})
	if err != nil || got.Name != "fresh" || calls != 1 {
		t.Errorf("CacheOrExecute() without redis = %+v, %v", got, err)
	}
	// Safe to call with nothing behind it.
	InvalidateTestCache(ctx, cm, "t1")
}

func TestCacheManager_HealthCheck(t *testing.T) {
	cm, mr := newTestManager(t)
	if err := cm.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	mr.Close()
	if err := cm.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() succeeded with redis down")
	}
}
