package collab

import "time"

// 状态枚举
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

// displayPalette 固定调色盘，按房间内加入顺序取色。
var displayPalette = []string{
	"#E53E3E", "#DD6B20", "#D69E2E", "#38A169", "#319795",
	"#3182CE", "#5A67D8", "#805AD5", "#D53F8C", "#718096",
}

// Presence 一个用户在一个房间内的实时状态。每 (room, user) 至多一条。
type Presence struct {
	UserID          string
	Status          string
	Cursor          *Cursor
	CurrentResource string
	Color           string
	LastActivity    time.Time
}

func (p *Presence) snapshot() PresencePayload {
	return PresencePayload{
		UserID:          p.UserID,
		Status:          p.Status,
		Cursor:          p.Cursor,
		CurrentResource: p.CurrentResource,
		Color:           p.Color,
	}
}

// presenceTable 房间内 presence 状态。非并发安全：持有它的 Room
// 的互斥锁是唯一的串行化点。
type presenceTable struct {
	byUser    map[string]*Presence
	joinOrder int // 调色盘游标，只增不减，保证会话期内颜色稳定
}

func newPresenceTable() *presenceTable {
	return &presenceTable{byUser: make(map[string]*Presence)}
}

// join 建立（或复用）presence 条目并返回分配的颜色。同一用户第二个
// 标签页加入时沿用已分配的颜色。
func (t *presenceTable) join(userID string, now time.Time) *Presence {
	if p, ok := t.byUser[userID]; ok {
		p.LastActivity = now
		if p.Status == StatusOffline {
			p.Status = StatusOnline
		}
		return p
	}
	p := &Presence{
		UserID:       userID,
		Status:       StatusOnline,
		Color:        displayPalette[t.joinOrder%len(displayPalette)],
		LastActivity: now,
	}
	t.joinOrder++
	t.byUser[userID] = p
	return p
}

// update 合并局部更新：只覆盖来帧里出现的字段，并刷新活跃时间。
func (t *presenceTable) update(userID string, in *PresencePayload, now time.Time) *Presence {
	p, ok := t.byUser[userID]
	if !ok {
		return nil
	}
	if in.Status != "" {
		p.Status = in.Status
	}
	if in.Cursor != nil {
		p.Cursor = in.Cursor
	}
	if in.CurrentResource != "" {
		p.CurrentResource = in.CurrentResource
	}
	p.LastActivity = now
	return p
}

func (t *presenceTable) touch(userID string, now time.Time) {
	if p, ok := t.byUser[userID]; ok {
		p.LastActivity = now
	}
}

func (t *presenceTable) remove(userID string) {
	delete(t.byUser, userID)
}

func (t *presenceTable) get(userID string) (*Presence, bool) {
	p, ok := t.byUser[userID]
	return p, ok
}

// list 全量快照，房间加入时同步回给新会话。
func (t *presenceTable) list() []PresencePayload {
	out := make([]PresencePayload, 0, len(t.byUser))
	for _, p := range t.byUser {
		out = append(out, p.snapshot())
	}
	return out
}

// sweepStale 淘汰 lastActivity 早于 now-timeout 的条目。这是对
// 不告而别的客户端（杀标签页、断网）的唯一正确性兜底。
func (t *presenceTable) sweepStale(now time.Time, timeout time.Duration) []*Presence {
	var evicted []*Presence
	for userID, p := range t.byUser {
		if now.Sub(p.LastActivity) > timeout {
			evicted = append(evicted, p)
			delete(t.byUser, userID)
		}
	}
	return evicted
}
