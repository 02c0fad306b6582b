package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Sternrassler/cps-audit/pkg/enrollment"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips the test when none is
// running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager_NilClient(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewManager(nil) did not panic")
		}
	}()
	NewManager(nil)
}

// fresh returns an entry for id that stays valid for d.
func fresh(id enrollment.ID, d time.Duration) *CacheEntry {
	return &CacheEntry{
		Data:       json.RawMessage(fmt.Sprintf(`{"id":%d}`, id)),
		StatusCode: 200,
		Expires:    time.Now().Add(d),
		CachedAt:   time.Now(),
	}
}

func TestManager_SetAndGet(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()

	key := CacheKey{EnrollmentID: 10}
	entry := fresh(10, 5*time.Minute)

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(retrieved.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", retrieved.Data, entry.Data)
	}
	if retrieved.StatusCode != entry.StatusCode {
		t.Errorf("StatusCode mismatch: got %d, want %d", retrieved.StatusCode, entry.StatusCode)
	}

	// Another account's view of the same enrollment is a separate entry.
	if _, err := manager.Get(ctx, CacheKey{EnrollmentID: 10, AccountSwitchKey: "1-X"}); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get for another account = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	manager := NewManager(setupTestRedis(t))

	_, err := manager.Get(context.Background(), CacheKey{EnrollmentID: 404})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Get_InvalidEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := CacheKey{EnrollmentID: 11}
	if err := client.Set(ctx, key.String(), "not json", time.Minute).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Get() error = %v, want ErrInvalidEntry", err)
	}
}

func TestManager_Set_SkipsUncacheable(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()

	tests := []struct {
		name  string
		entry *CacheEntry
	}{
		{"expired", &CacheEntry{Data: []byte(`{"id":1}`), Expires: time.Now().Add(-time.Hour)}},
		{"empty payload", &CacheEntry{Expires: time.Now().Add(time.Hour)}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := CacheKey{EnrollmentID: enrollment.ID(100 + i)}
			if err := manager.Set(ctx, key, tt.entry); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
				t.Errorf("Expected ErrCacheMiss, got %v", err)
			}
		})
	}
}

func TestManager_Delete(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()

	key := CacheKey{EnrollmentID: 12}
	if err := manager.Set(ctx, key, fresh(12, 5*time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after Delete = %v, want ErrCacheMiss", err)
	}
	// Deleting again is fine.
	if err := manager.Delete(ctx, key); err != nil {
		t.Errorf("second Delete = %v, want nil", err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	manager := NewManager(setupTestRedis(t))

	if err := manager.Set(context.Background(), CacheKey{EnrollmentID: 1}, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}

func TestManager_Purge(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()

	own := []enrollment.ID{1, 2, 3}
	switched := []enrollment.ID{1, 4}
	for _, id := range own {
		if err := manager.Set(ctx, CacheKey{EnrollmentID: id}, fresh(id, time.Hour)); err != nil {
			t.Fatalf("Set(%d) failed: %v", id, err)
		}
	}
	for _, id := range switched {
		if err := manager.Set(ctx, CacheKey{EnrollmentID: id, AccountSwitchKey: "1-X"}, fresh(id, time.Hour)); err != nil {
			t.Fatalf("Set(%d, 1-X) failed: %v", id, err)
		}
	}

	n, err := manager.Purge(ctx, "1-X")
	if err != nil {
		t.Fatalf("Purge(1-X) failed: %v", err)
	}
	if n != len(switched) {
		t.Errorf("Purge(1-X) = %d, want %d", n, len(switched))
	}
	if _, err := manager.Get(ctx, CacheKey{EnrollmentID: 1}); err != nil {
		t.Errorf("own entry 1 gone after purging 1-X: %v", err)
	}

	n, err = manager.Purge(ctx, "")
	if err != nil {
		t.Fatalf("Purge() failed: %v", err)
	}
	if n != len(own) {
		t.Errorf("Purge() = %d, want %d", n, len(own))
	}
	for _, id := range own {
		if _, err := manager.Get(ctx, CacheKey{EnrollmentID: id}); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get(%d) after Purge = %v, want ErrCacheMiss", id, err)
		}
	}
}
