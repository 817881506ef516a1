package service_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/yeisme/agrivault/pkg/internal/storage/areas"
	"github.com/yeisme/agrivault/pkg/internal/types"
)

func TestUserStorageInfoMinor(t *testing.T) {
	env := setupEnv(t)
	ps := env.newProfile()

	env.setBirthDate(t, "kid", testNow.AddDate(-10, 0, 0))
	env.seedItem(t, "kid", types.CategoryJournalEntries, "j1", 2*testMB)

	info, err := ps.UserStorageInfo(env.ctx, "kid")
	if err != nil {
		t.Fatalf("user storage info: %v", err)
	}

	if !info.IsMinor {
		t.Fatal("10 year old not classified as minor")
	}

	if info.TotalQuota != 25*testMB {
		t.Fatalf("minor quota = %d, want %d", info.TotalQuota, 25*testMB)
	}

	if info.DataRetentionDays != 30 {
		t.Fatalf("minor retention = %d, want 30", info.DataRetentionDays)
	}

	if info.TotalSize != 2*testMB {
		t.Fatalf("total size = %d, want %d", info.TotalSize, 2*testMB)
	}
}

func TestUserStorageInfoAdultDefaults(t *testing.T) {
	env := setupEnv(t)
	ps := env.newProfile()

	// 无出生日期：按成年档位
	info, err := ps.UserStorageInfo(env.ctx, "bob")
	if err != nil {
		t.Fatalf("user storage info: %v", err)
	}

	if info.IsMinor {
		t.Fatal("user without birth date classified as minor")
	}

	if info.TotalQuota != 100*testMB || info.DataRetentionDays != 365 {
		t.Fatalf("adult tier = %+v", info)
	}
}

func TestMinorTierNeverExceedsAdult(t *testing.T) {
	env := setupEnv(t)
	ps := env.newProfile()

	env.setBirthDate(t, "kid", testNow.AddDate(-12, 0, 0))
	env.setBirthDate(t, "teen", testNow.AddDate(-13, 0, -1))

	kid, err := ps.UserStorageInfo(env.ctx, "kid")
	if err != nil {
		t.Fatalf("kid info: %v", err)
	}

	teen, err := ps.UserStorageInfo(env.ctx, "teen")
	if err != nil {
		t.Fatalf("teen info: %v", err)
	}

	if !kid.IsMinor {
		t.Fatal("12 year old not a minor")
	}

	if teen.IsMinor {
		t.Fatal("13 year old classified as minor")
	}

	if kid.TotalQuota > teen.TotalQuota || kid.DataRetentionDays > teen.DataRetentionDays {
		t.Fatalf("minor tier looser than adult: kid=%+v teen=%+v", kid, teen)
	}
}

func TestClearUserDataRemovesOnlyThatUser(t *testing.T) {
	env := setupEnv(t)
	ps := env.newProfile()
	as := env.newAccess()

	blob := bytes.Repeat([]byte{0x7F}, 512)

	env.seedFile(t, "alice", types.CategoryPhotos, "a-p1", blob)
	env.seedItem(t, "alice", types.CategoryJournalEntries, "a-j1", testMB)
	env.seedFile(t, "bob", types.CategoryPhotos, "b-p1", blob)
	env.seedItem(t, "bob", types.CategoryJournalEntries, "b-j1", testMB)

	env.markUnsynced(t, "alice", types.CategoryJournalEntries, "a-j1")
	env.setBirthDate(t, "alice", testNow.AddDate(-20, 0, 0))

	if err := as.TrackDataAccess(env.ctx, "alice", types.CategoryPhotos, "a-p1"); err != nil {
		t.Fatalf("track: %v", err)
	}

	if err := as.TrackDataAccess(env.ctx, "bob", types.CategoryPhotos, "b-p1"); err != nil {
		t.Fatalf("track: %v", err)
	}

	if err := ps.ClearUserData(env.ctx, "alice"); err != nil {
		t.Fatalf("clear user data: %v", err)
	}

	// alice 的足迹必须清空
	if env.itemExists(t, "a-p1") || env.itemExists(t, "a-j1") {
		t.Fatal("alice items survived")
	}

	if _, err := env.mgr.Areas.ReadFile(areas.KindPhotos, "alice/a-p1"); err == nil {
		t.Fatal("alice photo file survived")
	}

	keys, err := env.mgr.KV.Keys(context.Background(), "access:alice:*")
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}

	if len(keys) != 0 {
		t.Fatalf("alice access keys survived: %v", keys)
	}

	keys, err = env.mgr.KV.Keys(context.Background(), "sync:unsynced:alice:*")
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}

	if len(keys) != 0 {
		t.Fatalf("alice unsynced keys survived: %v", keys)
	}

	// bob 不受影响
	if !env.itemExists(t, "b-p1") || !env.itemExists(t, "b-j1") {
		t.Fatal("bob items removed")
	}

	if _, err := env.mgr.Areas.ReadFile(areas.KindPhotos, "bob/b-p1"); err != nil {
		t.Fatalf("bob photo file removed: %v", err)
	}

	if _, ok := as.LastAccessedAt(env.ctx, "bob", types.CategoryPhotos, "b-p1"); !ok {
		t.Fatal("bob access record removed")
	}
}

func TestClearUserDataWithoutFootprint(t *testing.T) {
	env := setupEnv(t)
	ps := env.newProfile()

	if err := ps.ClearUserData(env.ctx, "ghost"); err != nil {
		t.Fatalf("clearing unknown user: %v", err)
	}
}
