package service_test

import (
	"errors"
	"testing"

	"github.com/yeisme/agrivault/pkg/internal/types"
)

func hasWarning(r types.PermissionResult, want string) bool {
	for _, w := range r.Warnings {
		if w == want {
			return true
		}
	}

	return false
}

func TestCanStoreDataAllowed(t *testing.T) {
	env := setupEnv(t)
	gate := env.newGate()

	env.seedItem(t, "alice", types.CategoryJournalEntries, "j1", testMB)

	result, err := gate.CanStoreData(env.ctx, "alice", types.CategoryJournalEntries, testMB)
	if err != nil {
		t.Fatalf("can store: %v", err)
	}

	if !result.CanStore || len(result.Warnings) != 0 || result.SuggestCleanup {
		t.Fatalf("low usage write = %+v", result)
	}
}

func TestCanStoreDataTotalQuotaExceeded(t *testing.T) {
	env := setupEnv(t)
	gate := env.newGate()

	env.seedItem(t, "alice", types.CategoryPhotos, "p1", 49*testMB)
	env.seedItem(t, "alice", types.CategoryJournalEntries, "j1", 29*testMB)
	env.seedItem(t, "alice", types.CategoryCache, "c1", 19*testMB)

	result, err := gate.CanStoreData(env.ctx, "alice", types.CategoryJournalEntries, 4*testMB)
	if err != nil {
		t.Fatalf("can store: %v", err)
	}

	if result.CanStore {
		t.Fatalf("over-quota write allowed: %+v", result)
	}

	if !hasWarning(result, "Total storage quota exceeded") {
		t.Fatalf("missing total quota warning: %v", result.Warnings)
	}

	if !result.SuggestCleanup {
		t.Fatal("denied write should suggest cleanup")
	}
}

func TestCanStoreDataPhotoQuotaExceeded(t *testing.T) {
	env := setupEnv(t)
	gate := env.newGate()

	// 照片离配额只差 1KB，再写 2KB 必须被拒
	env.seedItem(t, "alice", types.CategoryPhotos, "p1", 50*testMB-1024)

	result, err := gate.CanStoreData(env.ctx, "alice", types.CategoryPhotos, 2048)
	if err != nil {
		t.Fatalf("can store: %v", err)
	}

	if result.CanStore {
		t.Fatalf("photo over-quota write allowed: %+v", result)
	}

	if !hasWarning(result, "Photo storage quota exceeded") {
		t.Fatalf("missing photo quota warning: %v", result.Warnings)
	}
}

func TestCanStoreDataDeviceFull(t *testing.T) {
	env := setupEnv(t)
	gate := env.newGate()
	gate.WithCapacityProbe(&stubProbe{free: 1024})

	result, err := gate.CanStoreData(env.ctx, "alice", types.CategoryJournalEntries, 2048)
	if err != nil {
		t.Fatalf("can store: %v", err)
	}

	if result.CanStore {
		t.Fatalf("write beyond device capacity allowed: %+v", result)
	}

	if !hasWarning(result, "Insufficient device storage") {
		t.Fatalf("missing device warning: %v", result.Warnings)
	}
}

func TestCanStoreDataExactRemainingSpaceDenied(t *testing.T) {
	env := setupEnv(t)
	gate := env.newGate()
	gate.WithCapacityProbe(&stubProbe{free: 2048})

	result, err := gate.CanStoreData(env.ctx, "alice", types.CategoryJournalEntries, 2048)
	if err != nil {
		t.Fatalf("can store: %v", err)
	}

	if result.CanStore {
		t.Fatalf("write of exactly the remaining device space allowed: %+v", result)
	}

	if !hasWarning(result, "Insufficient device storage") {
		t.Fatalf("missing device warning: %v", result.Warnings)
	}
}

func TestCanStoreDataProbeFailureSkipsDeviceCheck(t *testing.T) {
	env := setupEnv(t)
	gate := env.newGate()
	gate.WithCapacityProbe(&stubProbe{err: errors.New("statfs unavailable")})

	env.seedItem(t, "alice", types.CategoryJournalEntries, "j1", testMB)

	result, err := gate.CanStoreData(env.ctx, "alice", types.CategoryJournalEntries, testMB)
	if err != nil {
		t.Fatalf("can store: %v", err)
	}

	if !result.CanStore || len(result.Warnings) != 0 {
		t.Fatalf("probe failure must fall back to quota-only judgement: %+v", result)
	}

	// 预算仍然生效：探测失败不会把超额写入放进来
	env.seedItem(t, "alice", types.CategoryPhotos, "p1", 49*testMB)
	env.seedItem(t, "alice", types.CategoryJournalEntries, "j2", 28*testMB)
	env.seedItem(t, "alice", types.CategoryCache, "c1", 19*testMB)

	result, err = gate.CanStoreData(env.ctx, "alice", types.CategoryJournalEntries, 4*testMB)
	if err != nil {
		t.Fatalf("can store: %v", err)
	}

	if result.CanStore || !hasWarning(result, "Total storage quota exceeded") {
		t.Fatalf("quota denial lost under probe failure: %+v", result)
	}
}

func TestCanStoreDataWarningBandSuggestsCleanup(t *testing.T) {
	env := setupEnv(t)
	gate := env.newGate()

	env.seedItem(t, "alice", types.CategoryJournalEntries, "j1", 25*testMB)
	env.seedItem(t, "alice", types.CategoryPhotos, "p1", 39*testMB)
	env.seedItem(t, "alice", types.CategoryCache, "c1", 19*testMB)

	// 83% 占用：写入放行，但要建议清理
	result, err := gate.CanStoreData(env.ctx, "alice", types.CategoryPhotos, testMB)
	if err != nil {
		t.Fatalf("can store: %v", err)
	}

	if !result.CanStore {
		t.Fatalf("in-band write denied: %+v", result)
	}

	if !result.SuggestCleanup {
		t.Fatal("warning band should suggest cleanup")
	}
}

// 放行与"总配额超限"告警互斥.
func TestCanStoreNeverAllowsWithTotalWarning(t *testing.T) {
	env := setupEnv(t)
	gate := env.newGate()

	env.seedItem(t, "alice", types.CategoryJournalEntries, "j1", 25*testMB)

	sizes := []int64{1024, testMB, 74 * testMB, 75 * testMB, 80 * testMB}
	for _, size := range sizes {
		result, err := gate.CanStoreData(env.ctx, "alice", types.CategoryJournalEntries, size)
		if err != nil {
			t.Fatalf("can store %d: %v", size, err)
		}

		if result.CanStore && hasWarning(result, "Total storage quota exceeded") {
			t.Fatalf("size %d: allowed together with total quota warning", size)
		}
	}
}

func TestCanStoreDataRejectsNonPositiveSize(t *testing.T) {
	env := setupEnv(t)
	gate := env.newGate()

	if _, err := gate.CanStoreData(env.ctx, "alice", types.CategoryCache, 0); err == nil {
		t.Fatal("zero size accepted")
	}

	if _, err := gate.CanStoreData(env.ctx, "alice", types.CategoryCache, -5); err == nil {
		t.Fatal("negative size accepted")
	}
}
