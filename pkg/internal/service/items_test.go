package service_test

import (
	"bytes"
	"testing"

	"github.com/yeisme/agrivault/pkg/internal/model"
	"github.com/yeisme/agrivault/pkg/internal/service"
	"github.com/yeisme/agrivault/pkg/internal/storage/areas"
	"github.com/yeisme/agrivault/pkg/internal/types"
)

func TestRecordItemFileBacked(t *testing.T) {
	env := setupEnv(t)
	is := service.NewItemsService(env.ctx)
	is.WithClock(env.clock)

	content := bytes.Repeat([]byte{0x5A}, 4096)
	if err := is.RecordItem(env.ctx, "alice", types.CategoryPhotos, "p1", 0, content); err != nil {
		t.Fatalf("record: %v", err)
	}

	var item model.Item
	if err := env.mgr.DB.GetDB().First(&item, "id = ?", "p1").Error; err != nil {
		t.Fatalf("load item: %v", err)
	}

	if item.SizeBytes != int64(len(content)) {
		t.Fatalf("size = %d, want %d", item.SizeBytes, len(content))
	}

	got, err := env.mgr.Areas.ReadFile(areas.KindPhotos, "alice/p1")
	if err != nil {
		t.Fatalf("read photo: %v", err)
	}

	if !bytes.Equal(got, content) {
		t.Fatal("stored content mismatch")
	}

	// 登记即视为一次访问
	if _, ok := env.newAccess().LastAccessedAt(env.ctx, "alice", types.CategoryPhotos, "p1"); !ok {
		t.Fatal("record did not track access")
	}
}

func TestRecordItemUpdateResetsCompression(t *testing.T) {
	env := setupEnv(t)
	is := service.NewItemsService(env.ctx)
	is.WithClock(env.clock)

	if err := is.RecordItem(env.ctx, "alice", types.CategoryJournalEntries, "j1", 100, nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	// 人为打上压缩标记，更新后必须被重置
	if err := env.mgr.DB.GetDB().Model(&model.Item{}).Where("id = ?", "j1").
		Updates(map[string]any{"compressed": true, "fingerprint": 42}).Error; err != nil {
		t.Fatalf("mark: %v", err)
	}

	if err := is.RecordItem(env.ctx, "alice", types.CategoryJournalEntries, "j1", 200, nil); err != nil {
		t.Fatalf("re-record: %v", err)
	}

	var item model.Item
	if err := env.mgr.DB.GetDB().First(&item, "id = ?", "j1").Error; err != nil {
		t.Fatalf("load item: %v", err)
	}

	if item.SizeBytes != 200 || item.Compressed || item.Fingerprint != 0 {
		t.Fatalf("updated item = %+v", item)
	}
}

func TestRemoveItem(t *testing.T) {
	env := setupEnv(t)
	is := service.NewItemsService(env.ctx)
	is.WithClock(env.clock)

	if err := is.RecordItem(env.ctx, "alice", types.CategoryCache, "c1", 0, []byte("payload")); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := is.RemoveItem(env.ctx, "alice", types.CategoryCache, "c1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if env.itemExists(t, "c1") {
		t.Fatal("item row survived removal")
	}

	if _, err := env.mgr.Areas.ReadFile(areas.KindCache, "alice/c1"); err == nil {
		t.Fatal("cache file survived removal")
	}

	// 再删一次不算错误
	if err := is.RemoveItem(env.ctx, "alice", types.CategoryCache, "c1"); err != nil {
		t.Fatalf("double remove: %v", err)
	}

	if err := is.RecordItem(env.ctx, "alice", types.CategoryJournalEntries, "j1", 0, nil); err == nil {
		t.Fatal("zero size structured item accepted")
	}
}
