package collab

import (
	"sync"
	"time"

	"collabcore/logger"
)

// RegistryConf 房间级参数。
type RegistryConf struct {
	PresenceTimeout time.Duration    // 超过该时长无活动即视为离线（30s）
	SweepEvery      time.Duration    // stale 扫描周期
	DefaultLockTTL  time.Duration    // acquire 未带 TTL 时的默认值
	Clock           func() time.Time // 可注入时钟（单测用）
}

func (c *RegistryConf) norm() {
	if c.PresenceTimeout <= 0 {
		c.PresenceTimeout = 30 * time.Second
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Second
	}
	if c.DefaultLockTTL <= 0 {
		c.DefaultLockTTL = 60 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// RoomHooks 房间生命周期与广播旁路。多实例部署时 OnRoomOpen/Close
// 用来订阅/退订 NATS 房间主题，OnBroadcast 把本地广播转发上总线；
// presence 钩子维护 redis 在线镜像。全部可空。
type RoomHooks struct {
	OnRoomOpen        func(room RoomID)
	OnRoomClose       func(room RoomID)
	OnBroadcast       func(room RoomID, data []byte)
	OnPresenceOnline  func(room RoomID, userID string)
	OnPresenceOffline func(room RoomID, userID string)
	OnPresenceTouch   func(room RoomID, userID string)
}

// room 单个房间的全部可变状态。一把互斥锁就是房间的串行化点：
// 会话表、presence、锁表都在它下面变更，跨房间互不相干。
type room struct {
	id        RoomID
	mu        sync.Mutex
	sessions  map[string]*Session
	presence  *presenceTable
	locks     *lockTable
	stopCh    chan struct{}
	destroyed bool // destroy 提交后置位，拿着旧指针的 Join 必须重试
}

// Registry 房间注册表：room -> 已连接会话集合。
type Registry struct {
	mu    sync.RWMutex
	rooms map[RoomID]*room
	conf  RegistryConf
	hooks RoomHooks
}

func NewRegistry(conf RegistryConf, hooks RoomHooks) *Registry {
	conf.norm()
	return &Registry{
		rooms: make(map[RoomID]*room),
		conf:  conf,
		hooks: hooks,
	}
}

func (r *Registry) getOrCreate(id RoomID) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[id]
	if !ok {
		rm = &room{
			id:       id,
			sessions: make(map[string]*Session),
			presence: newPresenceTable(),
			locks:    newLockTable(),
			stopCh:   make(chan struct{}),
		}
		r.rooms[id] = rm
		go r.sweeper(rm)
		if r.hooks.OnRoomOpen != nil {
			r.hooks.OnRoomOpen(id)
		}
	}
	return rm
}

func (r *Registry) get(id RoomID) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[id]
}

// Join 把会话加入房间：登记会话、建立 presence、分配颜色，向房间
// 其余会话广播 USER_JOINED，并同步返回完整快照。迟到者必须立刻看到
// 已在场的所有人。getOrCreate 返回的指针可能在拿到 rm.mu 之前被
// 并发的 destroy 作废，落座失败就重取重试。
func (r *Registry) Join(id RoomID, sess *Session) SyncPayload {
	for {
		rm := r.getOrCreate(id)
		if snapshot, ok := r.joinRoom(rm, id, sess); ok {
			if r.hooks.OnPresenceOnline != nil {
				r.hooks.OnPresenceOnline(id, sess.UserID)
			}
			return snapshot
		}
	}
}

func (r *Registry) joinRoom(rm *room, id RoomID, sess *Session) (SyncPayload, bool) {
	now := r.conf.Clock()

	rm.mu.Lock()
	if rm.destroyed {
		rm.mu.Unlock()
		return SyncPayload{}, false
	}
	rm.sessions[sess.SessionID] = sess
	p := rm.presence.join(sess.UserID, now)
	sess.SetRoom(id)
	sess.SetColor(p.Color)

	snapshot := SyncPayload{
		Room:      id.String(),
		SessionID: sess.SessionID,
		Color:     p.Color,
		Presences: rm.presence.list(),
		Locks:     rm.locks.list(now),
	}
	joined := NewEnvelope(MsgUserJoined, id.String(), sess.UserID, UserJoinedPayload{
		UserID:      sess.UserID,
		DisplayName: sess.DisplayName,
		AvatarURL:   sess.AvatarURL,
		Color:       p.Color,
	})
	r.broadcastLocked(rm, &joined, sess.SessionID)
	rm.mu.Unlock()
	return snapshot, true
}

// Leave 移除会话。该用户在房间内已无其他会话时：删 presence、回收
// 其全部锁并广播 EDIT_END，最后广播 USER_LEFT。房间清空则停掉
// sweeper 并销毁房间。
func (r *Registry) Leave(id RoomID, sess *Session, reason string) {
	rm := r.get(id)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	if _, ok := rm.sessions[sess.SessionID]; !ok {
		rm.mu.Unlock()
		return
	}
	delete(rm.sessions, sess.SessionID)
	sess.SetRoom("")

	userGone := true
	for _, other := range rm.sessions {
		if other.UserID == sess.UserID {
			userGone = false
			break
		}
	}
	if userGone {
		rm.presence.remove(sess.UserID)
		for _, l := range rm.locks.releaseAllFor(sess.UserID) {
			end := NewEnvelope(MsgEditEnd, id.String(), sess.UserID, EditPayload{Key: l.Key, UserID: sess.UserID})
			r.broadcastLocked(rm, &end, "")
		}
		left := NewEnvelope(MsgUserLeft, id.String(), sess.UserID, UserLeftPayload{UserID: sess.UserID, Reason: reason})
		r.broadcastLocked(rm, &left, "")
	}
	empty := len(rm.sessions) == 0
	rm.mu.Unlock()

	if userGone && r.hooks.OnPresenceOffline != nil {
		r.hooks.OnPresenceOffline(id, sess.UserID)
	}
	if empty {
		r.destroy(rm)
	}
}

func (r *Registry) destroy(rm *room) {
	r.mu.Lock()
	cur, ok := r.rooms[rm.id]
	if !ok || cur != rm {
		r.mu.Unlock()
		return
	}
	// 销毁与新 Join 竞争时以会话表为准；提交销毁即置 destroyed，
	// 已经拿到旧指针的 Join 在 joinRoom 里看到后重试
	rm.mu.Lock()
	if len(rm.sessions) > 0 {
		rm.mu.Unlock()
		r.mu.Unlock()
		return
	}
	rm.destroyed = true
	rm.mu.Unlock()
	delete(r.rooms, rm.id)
	r.mu.Unlock()

	close(rm.stopCh)
	if r.hooks.OnRoomClose != nil {
		r.hooks.OnRoomClose(rm.id)
	}
}

// ListSessions 房间当前会话快照。
func (r *Registry) ListSessions(id RoomID) []*Session {
	rm := r.get(id)
	if rm == nil {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make([]*Session, 0, len(rm.sessions))
	for _, s := range rm.sessions {
		out = append(out, s)
	}
	return out
}

// Broadcast 向房间内除 excludeSessionID 外的所有会话投递。尽力而为：
// 不确认、不重试，慢客户端丢帧。
func (r *Registry) Broadcast(id RoomID, env *Envelope, excludeSessionID string) {
	rm := r.get(id)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	r.broadcastLocked(rm, env, excludeSessionID)
	rm.mu.Unlock()
}

// broadcastLocked 调用方持有 rm.mu。广播在房间锁内按到达顺序编码、
// 投递、上总线，保证单房间 FIFO。
func (r *Registry) broadcastLocked(rm *room, env *Envelope, excludeSessionID string) {
	data := env.Encode()
	for sid, s := range rm.sessions {
		if sid == excludeSessionID {
			continue
		}
		if !s.TrySend(data) {
			logger.Warnf("[room %s] send queue full, drop %s for session=%s", rm.id, env.Type, sid)
		}
	}
	if r.hooks.OnBroadcast != nil {
		r.hooks.OnBroadcast(rm.id, data)
	}
}

// ApplyRemote 应用来自总线的对端节点广播：只投本地会话，不再回流
// 总线。
func (r *Registry) ApplyRemote(id RoomID, data []byte) {
	rm := r.get(id)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	for sid, s := range rm.sessions {
		if !s.TrySend(data) {
			logger.Warnf("[room %s] send queue full, drop remote frame for session=%s", rm.id, sid)
		}
	}
	rm.mu.Unlock()
}

// ===== presence =====

// MergePresence 合并局部更新并广播 PRESENCE_UPDATE（不回发给发送方，
// 避免回声）。广播路径不做节流，节流是发送端客户端的责任。
func (r *Registry) MergePresence(id RoomID, sess *Session, in *PresencePayload) *Presence {
	rm := r.get(id)
	if rm == nil {
		return nil
	}
	now := r.conf.Clock()
	rm.mu.Lock()
	p := rm.presence.update(sess.UserID, in, now)
	if p != nil {
		env := NewEnvelope(MsgPresenceUpdate, id.String(), sess.UserID, p.snapshot())
		r.broadcastLocked(rm, &env, sess.SessionID)
	}
	rm.mu.Unlock()
	return p
}

// MoveCursor 高频路径：更新光标并广播 CURSOR_MOVE（不回发送方）。
// 下行不节流，上行节流是客户端的事。
func (r *Registry) MoveCursor(id RoomID, sess *Session, cursor *Cursor) {
	rm := r.get(id)
	if rm == nil {
		return
	}
	now := r.conf.Clock()
	rm.mu.Lock()
	if p, ok := rm.presence.get(sess.UserID); ok {
		p.Cursor = cursor
		p.LastActivity = now
		env := NewEnvelope(MsgCursorMove, id.String(), sess.UserID, CursorMovePayload{UserID: sess.UserID, Cursor: *cursor})
		r.broadcastLocked(rm, &env, sess.SessionID)
	}
	rm.mu.Unlock()
}

// TouchPresence 仅刷新活跃时间（任何入站帧都算活跃）。镜像续期是
// 粗粒度的：活跃间隔超过超时的 1/3 才触发 hook，高频帧不打 redis。
func (r *Registry) TouchPresence(id RoomID, userID string) {
	rm := r.get(id)
	if rm == nil {
		return
	}
	now := r.conf.Clock()
	var refresh bool
	rm.mu.Lock()
	if p, ok := rm.presence.get(userID); ok {
		refresh = now.Sub(p.LastActivity) > r.conf.PresenceTimeout/3
	}
	rm.presence.touch(userID, now)
	rm.mu.Unlock()
	if refresh && r.hooks.OnPresenceTouch != nil {
		r.hooks.OnPresenceTouch(id, userID)
	}
}

// RoomPresence 房间 presence 快照。
func (r *Registry) RoomPresence(id RoomID) []PresencePayload {
	rm := r.get(id)
	if rm == nil {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.presence.list()
}

// ===== locks =====

// AcquireLock 先到先得；拒绝时返回当前持有者。ttl<=0 用默认值。
func (r *Registry) AcquireLock(id RoomID, key LockKey, userID string, ttl time.Duration) (bool, *EditLock) {
	rm := r.get(id)
	if rm == nil {
		return false, nil
	}
	if ttl <= 0 {
		ttl = r.conf.DefaultLockTTL
	}
	now := r.conf.Clock()
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.locks.acquire(key, userID, ttl, now)
}

// ReleaseLock 幂等释放。
func (r *Registry) ReleaseLock(id RoomID, key LockKey, userID string) bool {
	rm := r.get(id)
	if rm == nil {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.locks.release(key, userID)
}

// LockHolder 返回未过期的锁，没有则为 nil。
func (r *Registry) LockHolder(id RoomID, key LockKey) *EditLock {
	rm := r.get(id)
	if rm == nil {
		return nil
	}
	now := r.conf.Clock()
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.locks.holder(key, now)
}

// ===== stale sweep =====

func (r *Registry) sweeper(rm *room) {
	t := time.NewTicker(r.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-rm.stopCh:
			return
		case <-t.C:
			r.SweepStale(rm.id, r.conf.Clock())
		}
	}
}

// SweepStale 淘汰超时 presence：广播 USER_LEFT（reason=stale），回收
// 该用户的锁并广播 EDIT_END。这是对无声消失客户端的唯一兜底。
func (r *Registry) SweepStale(id RoomID, now time.Time) []string {
	rm := r.get(id)
	if rm == nil {
		return nil
	}

	var gone []string
	rm.mu.Lock()
	for _, p := range rm.presence.sweepStale(now, r.conf.PresenceTimeout) {
		gone = append(gone, p.UserID)
		for _, l := range rm.locks.releaseAllFor(p.UserID) {
			end := NewEnvelope(MsgEditEnd, id.String(), p.UserID, EditPayload{Key: l.Key, UserID: p.UserID})
			r.broadcastLocked(rm, &end, "")
		}
		left := NewEnvelope(MsgUserLeft, id.String(), p.UserID, UserLeftPayload{UserID: p.UserID, Reason: "stale"})
		r.broadcastLocked(rm, &left, "")
	}
	rm.mu.Unlock()

	if r.hooks.OnPresenceOffline != nil {
		for _, u := range gone {
			r.hooks.OnPresenceOffline(id, u)
		}
	}
	return gone
}

// Rooms 当前活跃房间列表（调试/统计用，勿高频调用）。
func (r *Registry) Rooms() []RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomID, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}
