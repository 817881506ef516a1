package kv_test

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeisme/agrivault/pkg/internal/storage/kv"
)

// openTestDB 打开一个内存 sqlite 库.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	return gdb
}

// newStores 返回本机可直接运行的 KV 实现.
func newStores(t *testing.T) map[string]kv.KVStore {
	t.Helper()

	ctx := context.Background()

	mem, err := kv.NewKVStore(ctx, kv.KVTypeMemory, nil)
	if err != nil {
		t.Fatalf("create memory kv: %v", err)
	}

	sql, err := kv.NewKVStore(ctx, kv.KVTypeSQLite, openTestDB(t))
	if err != nil {
		t.Fatalf("create sqlite kv: %v", err)
	}

	return map[string]kv.KVStore{"memory": mem, "sqlite": sql}
}

// TestKVRoundTrip 验证 Set/Get/Exists/Delete 的基本语义.
func TestKVRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			key := "quota:config"
			val := []byte(`{"total_limit":104857600}`)

			if err := store.Set(ctx, key, val, 0); err != nil {
				t.Fatalf("set: %v", err)
			}

			got, err := store.Get(ctx, key)
			if err != nil {
				t.Fatalf("get: %v", err)
			}

			if string(got) != string(val) {
				t.Errorf("get = %q, want %q", got, val)
			}

			exists, err := store.Exists(ctx, key)
			if err != nil || !exists {
				t.Errorf("exists = %v, %v; want true, nil", exists, err)
			}

			if err := store.Delete(ctx, key); err != nil {
				t.Fatalf("delete: %v", err)
			}

			if _, err := store.Get(ctx, key); err == nil {
				t.Error("expected error getting deleted key")
			}
		})
	}
}

// TestKVKeysPrefix 验证尾部 '*' 前缀匹配，clearUserData 依赖该语义.
func TestKVKeysPrefix(t *testing.T) {
	ctx := context.Background()

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			seed := map[string]string{
				"access:alice@example.com:photos:p1": "1",
				"access:alice@example.com:cache:c1":  "1",
				"access:bob@example.com:photos:p2":   "1",
			}
			for k, v := range seed {
				if err := store.Set(ctx, k, []byte(v), 0); err != nil {
					t.Fatalf("set %s: %v", k, err)
				}
			}

			keys, err := store.Keys(ctx, "access:alice@example.com:*")
			if err != nil {
				t.Fatalf("keys: %v", err)
			}

			sort.Strings(keys)

			want := []string{
				"access:alice@example.com:cache:c1",
				"access:alice@example.com:photos:p1",
			}
			if len(keys) != len(want) {
				t.Fatalf("keys = %v, want %v", keys, want)
			}

			for i := range want {
				if keys[i] != want[i] {
					t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
				}
			}
		})
	}
}

// TestKVTTLExpiry 验证带 TTL 的键过期后不可见.
func TestKVTTLExpiry(t *testing.T) {
	ctx := context.Background()

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Set(ctx, "probe:free", []byte("123"), time.Second); err != nil {
				t.Fatalf("set: %v", err)
			}

			if _, err := store.Get(ctx, "probe:free"); err != nil {
				t.Fatalf("get before expiry: %v", err)
			}

			// sqlite/memory 的过期粒度是秒级，等过期
			time.Sleep(1100 * time.Millisecond)

			if _, err := store.Get(ctx, "probe:free"); err == nil {
				t.Error("expected expired key to be gone")
			}
		})
	}
}

func BenchmarkMemoryKV(b *testing.B) {
	store, err := kv.NewKVStore(context.Background(), kv.KVTypeMemory, nil)
	if err != nil {
		b.Fatalf("create memory kv: %v", err)
	}

	ctx := context.Background()
	payload := []byte(`{"last_accessed":1724630400}`)

	b.ReportAllocs()

	for i := 0; b.Loop(); i++ {
		key := fmt.Sprintf("access:bench:%d", i)
		if err := store.Set(ctx, key, payload, 0); err != nil {
			b.Fatalf("set failed: %v", err)
		}

		if _, err := store.Get(ctx, key); err != nil {
			b.Fatalf("get failed: %v", err)
		}

		if err := store.Delete(ctx, key); err != nil {
			b.Fatalf("delete failed: %v", err)
		}
	}

	_ = store.Close()
}
