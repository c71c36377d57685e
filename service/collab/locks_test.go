package collab

import (
	"testing"
	"time"
)

var lockEpoch = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func TestLockContention(t *testing.T) {
	tbl := newLockTable()
	key := LockKey{ResourceType: "dashboard", ResourceID: "42", ElementID: "title"}

	granted, l := tbl.acquire(key, "alice", time.Minute, lockEpoch)
	if !granted || l.LockedBy != "alice" {
		t.Fatalf("first acquire: granted=%v lock=%+v", granted, l)
	}

	granted, l = tbl.acquire(key, "bob", time.Minute, lockEpoch.Add(time.Second))
	if granted {
		t.Fatalf("second acquire should be denied")
	}
	if l.LockedBy != "alice" {
		t.Fatalf("denial should carry the holder, got %q", l.LockedBy)
	}

	// 不同 element 互不影响
	other := LockKey{ResourceType: "dashboard", ResourceID: "42", ElementID: "chart-1"}
	if granted, _ := tbl.acquire(other, "bob", time.Minute, lockEpoch); !granted {
		t.Fatalf("distinct element should be independently lockable")
	}
}

func TestLockExpiry(t *testing.T) {
	tbl := newLockTable()
	key := LockKey{ResourceType: "report", ResourceID: "7"}

	tbl.acquire(key, "alice", time.Minute, lockEpoch)

	// 过期前拒绝
	if granted, _ := tbl.acquire(key, "bob", time.Minute, lockEpoch.Add(59*time.Second)); granted {
		t.Fatalf("acquire before expiry should be denied")
	}
	// 正好到期视为不存在
	granted, l := tbl.acquire(key, "bob", time.Minute, lockEpoch.Add(time.Minute))
	if !granted || l.LockedBy != "bob" {
		t.Fatalf("acquire at expiry: granted=%v holder=%s", granted, l.LockedBy)
	}
}

func TestLockReacquireExtends(t *testing.T) {
	tbl := newLockTable()
	key := LockKey{ResourceType: "report", ResourceID: "7"}

	tbl.acquire(key, "alice", time.Minute, lockEpoch)
	granted, l := tbl.acquire(key, "alice", time.Minute, lockEpoch.Add(30*time.Second))
	if !granted {
		t.Fatalf("holder re-acquire should succeed")
	}
	want := lockEpoch.Add(30 * time.Second).Add(time.Minute)
	if !l.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", l.ExpiresAt, want)
	}
}

func TestLockReleaseIdempotent(t *testing.T) {
	tbl := newLockTable()
	key := LockKey{ResourceType: "chart", ResourceID: "3"}

	tbl.acquire(key, "alice", time.Minute, lockEpoch)

	if tbl.release(key, "bob") {
		t.Fatalf("non-holder release should be a no-op")
	}
	if tbl.holder(key, lockEpoch) == nil {
		t.Fatalf("lock should survive non-holder release")
	}
	if !tbl.release(key, "alice") {
		t.Fatalf("holder release should succeed")
	}
	if tbl.release(key, "alice") {
		t.Fatalf("double release should be a no-op")
	}
}

func TestLockReleaseAllFor(t *testing.T) {
	tbl := newLockTable()
	k1 := LockKey{ResourceType: "dashboard", ResourceID: "1", ElementID: "a"}
	k2 := LockKey{ResourceType: "dashboard", ResourceID: "1", ElementID: "b"}
	k3 := LockKey{ResourceType: "dashboard", ResourceID: "1", ElementID: "c"}
	tbl.acquire(k1, "alice", time.Minute, lockEpoch)
	tbl.acquire(k2, "alice", time.Minute, lockEpoch)
	tbl.acquire(k3, "bob", time.Minute, lockEpoch)

	released := tbl.releaseAllFor("alice")
	if len(released) != 2 {
		t.Fatalf("released %d locks, want 2", len(released))
	}
	if tbl.holder(k3, lockEpoch) == nil {
		t.Fatalf("bob's lock should survive")
	}
	if got := tbl.list(lockEpoch); len(got) != 1 {
		t.Fatalf("list = %d locks, want 1", len(got))
	}
}

func TestLockListDropsExpired(t *testing.T) {
	tbl := newLockTable()
	tbl.acquire(LockKey{ResourceType: "a", ResourceID: "1"}, "alice", time.Minute, lockEpoch)
	tbl.acquire(LockKey{ResourceType: "a", ResourceID: "2"}, "bob", 2*time.Minute, lockEpoch)

	got := tbl.list(lockEpoch.Add(90 * time.Second))
	if len(got) != 1 || got[0].LockedBy != "bob" {
		t.Fatalf("list after partial expiry = %+v", got)
	}
}
