package collab

import (
	"testing"
	"time"
)

var presEpoch = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

func TestPresenceJoinAssignsColors(t *testing.T) {
	tbl := newPresenceTable()

	a := tbl.join("alice", presEpoch)
	b := tbl.join("bob", presEpoch)
	if a.Color == b.Color {
		t.Fatalf("distinct users should get distinct palette slots: %s", a.Color)
	}
	if a.Status != StatusOnline {
		t.Fatalf("join status = %s", a.Status)
	}

	// 同一用户第二个标签页：沿用颜色，不推进调色盘游标
	a2 := tbl.join("alice", presEpoch.Add(time.Second))
	if a2.Color != a.Color {
		t.Fatalf("rejoin color changed: %s -> %s", a.Color, a2.Color)
	}
	c := tbl.join("carol", presEpoch)
	if c.Color != displayPalette[2] {
		t.Fatalf("third user color = %s, want %s", c.Color, displayPalette[2])
	}
}

func TestPresencePaletteWraps(t *testing.T) {
	tbl := newPresenceTable()
	for i := 0; i < len(displayPalette); i++ {
		tbl.join(string(rune('a'+i)), presEpoch)
	}
	p := tbl.join("overflow", presEpoch)
	if p.Color != displayPalette[0] {
		t.Fatalf("palette should wrap, got %s", p.Color)
	}
}

func TestPresencePartialUpdate(t *testing.T) {
	tbl := newPresenceTable()
	tbl.join("alice", presEpoch)

	tbl.update("alice", &PresencePayload{Status: StatusAway, CurrentResource: "chart-1"}, presEpoch.Add(time.Second))
	// 只带 cursor 的更新不能清掉 status / currentResource
	p := tbl.update("alice", &PresencePayload{Cursor: &Cursor{X: 5, Y: 6}}, presEpoch.Add(2*time.Second))
	if p.Status != StatusAway || p.CurrentResource != "chart-1" {
		t.Fatalf("partial update clobbered fields: %+v", p)
	}
	if p.Cursor == nil || p.Cursor.X != 5 {
		t.Fatalf("cursor not merged: %+v", p.Cursor)
	}

	if got := tbl.update("ghost", &PresencePayload{Status: StatusBusy}, presEpoch); got != nil {
		t.Fatalf("update for unknown user should return nil")
	}
}

func TestPresenceSweepStale(t *testing.T) {
	tbl := newPresenceTable()
	tbl.join("alice", presEpoch)
	tbl.join("bob", presEpoch)
	tbl.touch("bob", presEpoch.Add(25*time.Second))

	evicted := tbl.sweepStale(presEpoch.Add(31*time.Second), 30*time.Second)
	if len(evicted) != 1 || evicted[0].UserID != "alice" {
		t.Fatalf("evicted = %+v", evicted)
	}
	if _, ok := tbl.get("bob"); !ok {
		t.Fatalf("bob should survive the sweep")
	}
	if len(tbl.list()) != 1 {
		t.Fatalf("list after sweep = %d entries", len(tbl.list()))
	}
}

func TestPresenceSweepBoundary(t *testing.T) {
	tbl := newPresenceTable()
	tbl.join("alice", presEpoch)

	// 恰好等于超时不淘汰，必须严格超过
	if got := tbl.sweepStale(presEpoch.Add(30*time.Second), 30*time.Second); len(got) != 0 {
		t.Fatalf("sweep at exactly timeout should keep the entry")
	}
	if got := tbl.sweepStale(presEpoch.Add(30*time.Second+time.Millisecond), 30*time.Second); len(got) != 1 {
		t.Fatalf("sweep past timeout should evict")
	}
}
