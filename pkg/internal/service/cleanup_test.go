package service_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/yeisme/agrivault/pkg/internal/model"
	"github.com/yeisme/agrivault/pkg/internal/storage/areas"
	"github.com/yeisme/agrivault/pkg/internal/types"
)

func TestCleanupNotNeeded(t *testing.T) {
	env := setupEnv(t)
	cs := env.newCleanup()

	env.seedItem(t, "alice", types.CategoryJournalEntries, "j1", 10*testMB)

	result := cs.PerformSmartCleanup(env.ctx, "", false)
	if result.Success || result.BytesFreed != 0 {
		t.Fatalf("low usage cleanup = %+v", result)
	}

	if result.Message != "No cleanup needed" {
		t.Fatalf("message = %q", result.Message)
	}

	if !env.itemExists(t, "j1") {
		t.Fatal("no-op cleanup removed data")
	}
}

func TestForcedCleanupClearsCache(t *testing.T) {
	env := setupEnv(t)
	cs := env.newCleanup()

	blob := bytes.Repeat([]byte{0xAB}, 3*testMB)
	env.seedFile(t, "alice", types.CategoryCache, "c1", blob)
	env.seedFile(t, "alice", types.CategoryCache, "c2", blob)

	result := cs.PerformSmartCleanup(env.ctx, "", true)
	if !result.Success {
		t.Fatalf("forced cleanup failed: %+v", result)
	}

	if result.BytesFreed < 6*testMB {
		t.Fatalf("bytes freed = %d, want >= %d", result.BytesFreed, 6*testMB)
	}

	for _, id := range []string{"c1", "c2"} {
		if env.itemExists(t, id) {
			t.Errorf("cache item %s survived cleanup", id)
		}

		if _, err := env.mgr.Areas.ReadFile(areas.KindCache, "alice/"+id); err == nil {
			t.Errorf("cache file %s survived cleanup", id)
		}
	}

	if _, ok := cs.LastCleanupAt(env.ctx); !ok {
		t.Fatal("last cleanup timestamp not persisted")
	}
}

func TestCleanupSurvivesCallerCancellation(t *testing.T) {
	env := setupEnv(t)
	cs := env.newCleanup()

	env.seedFile(t, "alice", types.CategoryCache, "c1", bytes.Repeat([]byte{0xCD}, 3*testMB))

	// 发起方的请求已取消，共享的清理结果仍要完整跑完
	cancelled, cancel := context.WithCancel(env.ctx)
	cancel()

	result := cs.PerformSmartCleanup(cancelled, "", true)
	if !result.Success {
		t.Fatalf("cleanup under cancelled caller = %+v", result)
	}

	if env.itemExists(t, "c1") {
		t.Fatal("cache item survived cleanup")
	}
}

func TestCleanupRespectsProtectedSet(t *testing.T) {
	env := setupEnv(t)
	cs := env.newCleanup()

	blob := bytes.Repeat([]byte{0x01}, 1024)
	env.seedFile(t, "alice", types.CategoryCache, "unsynced", blob)
	env.seedFile(t, "alice", types.CategoryCache, "recent", blob)
	env.seedFile(t, "alice", types.CategoryCache, "victim", blob)

	env.markUnsynced(t, "alice", types.CategoryCache, "unsynced")

	if err := env.newAccess().TrackDataAccess(env.ctx, "alice", types.CategoryCache, "recent"); err != nil {
		t.Fatalf("track access: %v", err)
	}

	result := cs.PerformSmartCleanup(env.ctx, "", true)
	if !result.Success {
		t.Fatalf("cleanup failed: %+v", result)
	}

	if !env.itemExists(t, "unsynced") {
		t.Fatal("unsynced item was evicted")
	}

	if !env.itemExists(t, "recent") {
		t.Fatal("recently accessed item was evicted")
	}

	if env.itemExists(t, "victim") {
		t.Fatal("unprotected item survived")
	}
}

func TestCleanupIdempotent(t *testing.T) {
	env := setupEnv(t)
	cs := env.newCleanup()

	env.seedFile(t, "alice", types.CategoryCache, "c1", bytes.Repeat([]byte{0x02}, 2*testMB))

	first := cs.PerformSmartCleanup(env.ctx, "", true)
	if !first.Success || first.BytesFreed == 0 {
		t.Fatalf("first run = %+v", first)
	}

	second := cs.PerformSmartCleanup(env.ctx, "", true)
	if second.BytesFreed != 0 {
		t.Fatalf("second run freed %d bytes, want 0", second.BytesFreed)
	}
}

// noisyPNG 生成压缩空间很大的 PNG（噪点图 PNG 无损编码显著大于 JPEG 重编码）.
func noisyPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 256, 256))

	seed := uint32(0x9E3779B9)
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			seed = seed*1664525 + 1013904223
			img.Set(x, y, color.RGBA{uint8(seed >> 24), uint8(seed >> 16), uint8(seed >> 8), 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	return buf.Bytes()
}

func TestCleanupCompressesOldPhotos(t *testing.T) {
	env := setupEnv(t)

	photo := noisyPNG(t)
	env.seedFile(t, "alice", types.CategoryPhotos, "p1", photo)

	// 把总预算压到与照片同量级，保证缓存级之后仍高于滞回目标
	total := int64(len(photo))
	limits := types.QuotaUpdate{TotalLimit: &total, PhotoLimit: &total}

	qs := env.newQuota()
	if _, err := qs.SetStorageQuotas(env.ctx, limits); err != nil {
		t.Fatalf("set quotas: %v", err)
	}

	// 40 天后照片超过压缩年龄
	env.now = testNow.AddDate(0, 0, 40)
	cs := env.newCleanup()

	result := cs.PerformSmartCleanup(env.ctx, "", true)
	if !result.Success || result.BytesFreed == 0 {
		t.Fatalf("photo cleanup = %+v", result)
	}

	var item model.Item
	if err := env.mgr.DB.GetDB().First(&item, "id = ?", "p1").Error; err != nil {
		t.Fatalf("load photo item: %v", err)
	}

	if !item.Compressed {
		t.Fatal("photo not marked compressed")
	}

	if item.SizeBytes >= int64(len(photo)) {
		t.Fatalf("photo size = %d, want < %d", item.SizeBytes, len(photo))
	}

	data, err := env.mgr.Areas.ReadFile(areas.KindPhotos, "alice/p1")
	if err != nil {
		t.Fatalf("read compressed photo: %v", err)
	}

	if int64(len(data)) != item.SizeBytes {
		t.Fatalf("file size %d disagrees with accounting %d", len(data), item.SizeBytes)
	}

	// 再跑一轮：已压缩的照片不再处理
	again := cs.PerformSmartCleanup(env.ctx, "", true)
	if again.BytesFreed != 0 {
		t.Fatalf("second photo pass freed %d bytes", again.BytesFreed)
	}
}

func TestCleanupArchivesOldRecords(t *testing.T) {
	env := setupEnv(t)

	env.seedItem(t, "alice", types.CategoryJournalEntries, "j-old", 5*testMB)

	total := int64(6 * testMB)
	data := int64(6 * testMB)

	qs := env.newQuota()
	if _, err := qs.SetStorageQuotas(env.ctx, types.QuotaUpdate{TotalLimit: &total, DataLimit: &data}); err != nil {
		t.Fatalf("set quotas: %v", err)
	}

	env.now = testNow.AddDate(0, 0, 100)
	cs := env.newCleanup()

	result := cs.PerformSmartCleanup(env.ctx, "", true)
	if !result.Success || result.BytesFreed != 5*testMB {
		t.Fatalf("archive cleanup = %+v", result)
	}

	if env.itemExists(t, "j-old") {
		t.Fatal("archived record still in active table")
	}

	var archived model.ArchivedItem
	if err := env.mgr.DB.GetDB().First(&archived, "id = ?", "j-old").Error; err != nil {
		t.Fatalf("archive index missing: %v", err)
	}

	if archived.OriginalSize != 5*testMB {
		t.Fatalf("archived size = %d, want %d", archived.OriginalSize, 5*testMB)
	}

	// 归档块可以读回原记录
	restored, err := cs.ArchivedRecord(env.ctx, "j-old")
	if err != nil {
		t.Fatalf("read archived record: %v", err)
	}

	if restored.ID != "j-old" || restored.SizeBytes != 5*testMB {
		t.Fatalf("restored record = %+v", restored)
	}
}

func TestCleanupAbortsWhenSyncStateUnknown(t *testing.T) {
	env := setupEnv(t)
	cs := env.newCleanup()
	cs.WithSyncProvider(&stubSync{err: errors.New("sync layer offline")})

	env.seedFile(t, "alice", types.CategoryCache, "c1", bytes.Repeat([]byte{0x03}, 1024))

	result := cs.PerformSmartCleanup(env.ctx, "", true)
	if result.Success {
		t.Fatalf("cleanup ran without sync state: %+v", result)
	}

	if !env.itemExists(t, "c1") {
		t.Fatal("data removed although sync state was unknown")
	}
}

func TestEnforceRetentionByAgeTier(t *testing.T) {
	env := setupEnv(t)

	env.setBirthDate(t, "kid", testNow.AddDate(-10, 0, 0))

	env.seedItem(t, "kid", types.CategoryJournalEntries, "kid-old", testMB)
	env.seedItem(t, "kid", types.CategoryJournalEntries, "kid-unsynced", testMB)
	env.seedItem(t, "bob", types.CategoryJournalEntries, "bob-old", testMB)

	env.markUnsynced(t, "kid", types.CategoryJournalEntries, "kid-unsynced")

	// 40 天后：超过未成年 30 天保留期，但远小于成年 365 天
	env.now = testNow.AddDate(0, 0, 40)
	cs := env.newCleanup()

	freed, err := cs.EnforceRetention(env.ctx)
	if err != nil {
		t.Fatalf("enforce retention: %v", err)
	}

	if freed != testMB {
		t.Fatalf("retention freed %d, want %d", freed, testMB)
	}

	if env.itemExists(t, "kid-old") {
		t.Fatal("expired minor data survived retention")
	}

	if !env.itemExists(t, "kid-unsynced") {
		t.Fatal("unsynced data removed by retention")
	}

	if !env.itemExists(t, "bob-old") {
		t.Fatal("adult data removed before its retention period")
	}
}
