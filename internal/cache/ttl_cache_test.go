package cache

import (
	"sync"
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	cache := New[string, int](1 * time.Minute)

	cache.Set("TIT", 42)

	value, ok := cache.Get("TIT")
	if !ok {
		t.Fatal("Get returned ok=false for existing key")
	}
	if value != 42 {
		t.Errorf("Get = %d, want 42", value)
	}

	if _, ok := cache.Get("GEN"); ok {
		t.Error("Get returned ok=true for absent key")
	}
}

func TestEntryExpiry(t *testing.T) {
	cache := New[string, int](30 * time.Millisecond)

	cache.Set("old", 1)
	time.Sleep(20 * time.Millisecond)
	cache.Set("new", 2)
	time.Sleep(15 * time.Millisecond)

	// "old" is past its deadline, "new" is not. A whole-cache timestamp
	// would expire both or neither.
	if _, ok := cache.Get("old"); ok {
		t.Error("expired entry still served")
	}
	if v, ok := cache.Get("new"); !ok || v != 2 {
		t.Errorf("live entry: got (%d, %v), want (2, true)", v, ok)
	}
}

func TestSetRefreshesDeadline(t *testing.T) {
	cache := New[string, int](40 * time.Millisecond)

	cache.Set("key", 1)
	time.Sleep(25 * time.Millisecond)
	cache.Set("key", 2)
	time.Sleep(25 * time.Millisecond)

	v, ok := cache.Get("key")
	if !ok {
		t.Fatal("re-set entry expired on the original deadline")
	}
	if v != 2 {
		t.Errorf("Get = %d, want 2", v)
	}
}

func TestDelete(t *testing.T) {
	cache := New[string, int](1 * time.Minute)

	cache.Set("key", 1)
	cache.Delete("key")

	if _, ok := cache.Get("key"); ok {
		t.Error("deleted entry still served")
	}

	// Deleting an absent key is a no-op.
	cache.Delete("missing")
}

func TestInvalidate(t *testing.T) {
	cache := New[string, int](1 * time.Minute)

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Invalidate()

	if _, ok := cache.Get("a"); ok {
		t.Error("entry survived Invalidate")
	}
	if cache.Len() != 0 {
		t.Errorf("Len = %d after Invalidate, want 0", cache.Len())
	}

	// The cache stays usable after invalidation.
	cache.Set("c", 3)
	if v, ok := cache.Get("c"); !ok || v != 3 {
		t.Errorf("Get after Invalidate = (%d, %v), want (3, true)", v, ok)
	}
}

func TestLenDropsExpired(t *testing.T) {
	cache := New[string, int](25 * time.Millisecond)

	cache.Set("a", 1)
	cache.Set("b", 2)
	if got := cache.Len(); got != 2 {
		t.Errorf("Len = %d, want 2", got)
	}

	time.Sleep(35 * time.Millisecond)
	if got := cache.Len(); got != 0 {
		t.Errorf("Len = %d after expiry, want 0", got)
	}
}

func TestZeroTTL(t *testing.T) {
	cache := New[string, int](0)

	cache.Set("key", 1)
	if _, ok := cache.Get("key"); ok {
		t.Error("zero-TTL cache served an entry")
	}
}

func TestConcurrentAccess(t *testing.T) {
	cache := New[int, int](1 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cache.Set(n, j)
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cache.Get(n)
				cache.Len()
			}
		}(i)
	}
	wg.Wait()

	if got := cache.Len(); got != 10 {
		t.Errorf("Len = %d, want 10", got)
	}
}
