package collab

import "time"

// LockKey 锁粒度：资源本身，或资源内的一个元素。
type LockKey struct {
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
	ElementID    string `json:"elementId,omitempty"`
}

// EditLock 建议性 TTL 排他锁。过期即视为不存在，获取成功从不依赖
// 显式释放。
type EditLock struct {
	Key       LockKey   `json:"key"`
	LockedBy  string    `json:"lockedBy"`
	LockedAt  time.Time `json:"lockedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (l *EditLock) expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// lockTable 房间内锁状态。非并发安全，Room 互斥锁串行化。
type lockTable struct {
	byKey map[LockKey]*EditLock
}

func newLockTable() *lockTable {
	return &lockTable{byKey: make(map[LockKey]*EditLock)}
}

// acquire 先到先得，不排队。已过期的锁等同缺席；持有者重复获取等于
// 续期。拒绝时返回当前持有者，UI 用来显示 “being edited by X”。
func (t *lockTable) acquire(key LockKey, userID string, ttl time.Duration, now time.Time) (granted bool, lock *EditLock) {
	cur, ok := t.byKey[key]
	if ok && !cur.expired(now) && cur.LockedBy != userID {
		return false, cur
	}
	if ok && cur.LockedBy == userID && !cur.expired(now) {
		cur.ExpiresAt = now.Add(ttl)
		return true, cur
	}
	l := &EditLock{Key: key, LockedBy: userID, LockedAt: now, ExpiresAt: now.Add(ttl)}
	t.byKey[key] = l
	return true, l
}

// release 幂等：非持有者或锁已不存在都是 no-op，不报错。
func (t *lockTable) release(key LockKey, userID string) bool {
	cur, ok := t.byKey[key]
	if !ok || cur.LockedBy != userID {
		return false
	}
	delete(t.byKey, key)
	return true
}

// holder 返回未过期的锁；过期的顺手清掉。
func (t *lockTable) holder(key LockKey, now time.Time) *EditLock {
	cur, ok := t.byKey[key]
	if !ok {
		return nil
	}
	if cur.expired(now) {
		delete(t.byKey, key)
		return nil
	}
	return cur
}

// releaseAllFor 会话断开时回收该用户的全部锁。
func (t *lockTable) releaseAllFor(userID string) []*EditLock {
	var released []*EditLock
	for key, l := range t.byKey {
		if l.LockedBy == userID {
			released = append(released, l)
			delete(t.byKey, key)
		}
	}
	return released
}

// list 未过期锁的快照（房间加入同步用）。
func (t *lockTable) list(now time.Time) []EditLock {
	out := make([]EditLock, 0, len(t.byKey))
	for key, l := range t.byKey {
		if l.expired(now) {
			delete(t.byKey, key)
			continue
		}
		out = append(out, *l)
	}
	return out
}
