//go:build integration
// +build integration

package cache

import (
	"context"
	"testing"
	"time"
)

// TestMemcachedStore_GetSet_Integration verifies that MemcachedStore stores and
// retrieves payloads when a memcached server is available.
func TestMemcachedStore_GetSet_Integration(t *testing.T) {
	s := NewMemcachedStore("localhost:11211", 500*time.Millisecond, 2)
	defer s.Close()

	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Skipf("memcached not running: %v", err)
	}
	val := []byte(`{"temperature":12}`)
	if err := s.Set(ctx, "weather:47.6:-122.3", val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := s.Get(ctx, "weather:47.6:-122.3")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if string(got) != string(val) {
		t.Errorf("Get() = %s, want %s", got, val)
	}
}

// TestMemcachedStore_Get_Miss_Integration verifies that MemcachedStore returns
// ok=false when the key does not exist.
func TestMemcachedStore_Get_Miss_Integration(t *testing.T) {
	s := NewMemcachedStore("localhost:11211", 500*time.Millisecond, 2)
	defer s.Close()

	ctx := context.Background()
	_, ok, err := s.Get(ctx, "nonexistent")
	if err != nil {
		t.Skipf("Get failed (memcached may not be running): %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}
