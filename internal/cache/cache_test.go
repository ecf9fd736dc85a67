package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memStore struct {
	data map[string]string
	ttl  time.Duration
	err  error
}

func (m *memStore) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	v, ok := m.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (m *memStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	m.data[key] = string(value.([]byte))
	m.ttl = expiration
	cmd.SetVal("OK")
	return cmd
}

func TestKey(t *testing.T) {
	a := Key([]byte("pdf-bytes"), "smart", "invoice")
	b := Key([]byte("pdf-bytes"), "smart", "invoice")
	if a != b {
		t.Error("key must be deterministic")
	}
	if !strings.HasPrefix(a, keyPrefix) {
		t.Errorf("expected prefix %s, got %s", keyPrefix, a)
	}
	if a == Key([]byte("pdf-bytes"), "local", "invoice") {
		t.Error("mode must change the key")
	}
	// separator keeps ("ab","c") distinct from ("a","bc")
	if Key(nil, "ab", "c") == Key(nil, "a", "bc") {
		t.Error("parts must be delimited")
	}
}

func TestResultCache_RoundTrip(t *testing.T) {
	store := &memStore{data: map[string]string{}}
	c := New(store, time.Hour)
	ctx := context.Background()
	key := Key([]byte("doc"), "smart")

	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set(ctx, key, []byte(`{"success":true}`))
	got, ok := c.Get(ctx, key)
	if !ok || string(got) != `{"success":true}` {
		t.Errorf("expected hit with payload, got %q ok=%v", got, ok)
	}
	if store.ttl != time.Hour {
		t.Errorf("expected ttl 1h, got %s", store.ttl)
	}
}

func TestResultCache_Disabled(t *testing.T) {
	c := NewFromClient(nil, 0)
	if c.Enabled() {
		t.Fatal("nil client should disable the cache")
	}
	c.Set(context.Background(), "k", []byte("v"))
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("disabled cache must always miss")
	}

	var nilCache *ResultCache
	if nilCache.Enabled() {
		t.Error("nil cache should report disabled")
	}
}

func TestResultCache_ErrorsAreMisses(t *testing.T) {
	c := New(&memStore{data: map[string]string{}, err: errors.New("connection refused")}, time.Minute)
	c.Set(context.Background(), "k", []byte("v"))
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("store error should be a miss")
	}
}
