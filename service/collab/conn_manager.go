package collab

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ===== 配置 =====

type ManagerConf struct {
	SessionTTL time.Duration    // 会话 TTL，心跳续期（如 90s）
	SweepEvery time.Duration    // 清理周期（如 30s）
	SendBuffer int              // 每连接发送队列长度
	Clock      func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 90 * time.Second
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 30 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
}

// ===== 数据结构 =====

// Session 一条活跃连接。由创建它的 websocket 独占，断开即销毁，
// 从不落库。
type Session struct {
	SessionID   string
	UserID      string
	DisplayName string
	AvatarURL   string

	Conn   *websocket.Conn
	Remote net.Addr

	ConnectedAt time.Time
	UpdatedAt   time.Time
	Heartbeat   time.Time
	TTL         time.Duration
	ExpireAt    time.Time

	SendChan chan []byte // 每连接独立发送队列，写协程独占 socket

	// 读循环、清理协程、通知直投都会摸这几个字段，走锁
	mu         sync.Mutex
	room       RoomID // 当前房间，未加入为空
	color      string // 房间内按加入顺序分配，会话期内稳定
	sendClosed bool
}

// Room 当前房间 id；未加入返回空。
func (s *Session) Room() RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) SetRoom(id RoomID) {
	s.mu.Lock()
	s.room = id
	s.mu.Unlock()
}

func (s *Session) Color() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.color
}

func (s *Session) SetColor(c string) {
	s.mu.Lock()
	s.color = c
	s.mu.Unlock()
}

// TrySend 非阻塞投递；慢客户端直接丢帧（presence/cursor 可丢语义）。
// CloseSend 之后恒为 false：并发的通知直投可能拿着刚注销的会话，
// 不能撞上已关闭的通道。
func (s *Session) TrySend(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed {
		return false
	}
	select {
	case s.SendChan <- data:
		return true
	default:
		return false
	}
}

// CloseSend 关闭发送队列（写协程随之退出）。幂等。
func (s *Session) CloseSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed {
		return
	}
	s.sendClosed = true
	close(s.SendChan)
}

// ConnManager 会话登记表。主索引 sessionID，辅助索引 userID
// （一个用户可以开多个标签页）。
type ConnManager struct {
	mu        sync.RWMutex
	bySession map[string]*Session
	byUser    map[string]map[string]*Session

	conf     ManagerConf
	nodeID   string
	onExpire func(*Session) // 过期回调，在锁外执行
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewConnManager(conf ManagerConf, nodeID string) *ConnManager {
	conf.norm()
	m := &ConnManager{
		bySession: make(map[string]*Session),
		byUser:    make(map[string]map[string]*Session),
		conf:      conf,
		nodeID:    nodeID,
		stopCh:    make(chan struct{}),
	}
	go m.sweeper()
	return m
}

func (m *ConnManager) NodeID() string { return m.nodeID }

// OnExpire 注册过期回调（一般由 Server 用来走与断连相同的收尾路径）。
func (m *ConnManager) OnExpire(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = fn
}

func (m *ConnManager) NewSession(sessionID string, conn *websocket.Conn) *Session {
	now := m.conf.Clock()
	s := &Session{
		SessionID:   sessionID,
		Conn:        conn,
		ConnectedAt: now,
		UpdatedAt:   now,
		Heartbeat:   now,
		TTL:         m.conf.SessionTTL,
		ExpireAt:    now.Add(m.conf.SessionTTL),
		SendChan:    make(chan []byte, m.conf.SendBuffer),
	}
	if conn != nil {
		if ra := conn.RemoteAddr(); ra != nil {
			s.Remote = ra
		}
	}
	return s
}

func (m *ConnManager) Add(s *Session) error {
	if s == nil || s.SessionID == "" {
		return errors.New("session empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bySession[s.SessionID]; exists {
		return errors.New("session exists")
	}
	m.bySession[s.SessionID] = s
	if s.UserID != "" {
		if m.byUser[s.UserID] == nil {
			m.byUser[s.UserID] = make(map[string]*Session)
		}
		m.byUser[s.UserID][s.SessionID] = s
	}
	return nil
}

func (m *ConnManager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.bySession[sessionID]
	return s, ok
}

// SessionsByUser 用户的全部连接（通知直投用）。
func (m *ConnManager) SessionsByUser(userID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mm := m.byUser[userID]
	if len(mm) == 0 {
		return nil
	}
	out := make([]*Session, 0, len(mm))
	for _, s := range mm {
		out = append(out, s)
	}
	return out
}

func (m *ConnManager) Remove(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(sessionID)
}

func (m *ConnManager) removeLocked(sessionID string) *Session {
	s, ok := m.bySession[sessionID]
	if !ok {
		return nil
	}
	delete(m.bySession, sessionID)
	if s.UserID != "" {
		if mm := m.byUser[s.UserID]; mm != nil {
			delete(mm, sessionID)
			if len(mm) == 0 {
				delete(m.byUser, s.UserID)
			}
		}
	}
	return s
}

// Touch 刷新心跳与到期时间（PING 或任何入站流量都算活跃）。
func (m *ConnManager) Touch(sessionID string) error {
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySession[sessionID]
	if !ok {
		return errors.New("session not found")
	}
	s.Heartbeat = now
	s.ExpireAt = now.Add(s.TTL)
	s.UpdatedAt = now
	return nil
}

func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySession)
}

func (m *ConnManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.bySession))
	for _, s := range m.bySession {
		sessions = append(sessions, s)
	}
	m.bySession = map[string]*Session{}
	m.byUser = map[string]map[string]*Session{}
	m.mu.Unlock()

	for _, s := range sessions {
		closeQuiet(s.Conn)
	}
}

// ===== 清理协程 =====

func (m *ConnManager) sweeper() {
	t := time.NewTicker(m.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-t.C:
			m.SweepOnce(now)
		}
	}
}

// SweepOnce 淘汰到期会话；回调与关闭都在锁外做，避免持锁关 socket。
func (m *ConnManager) SweepOnce(now time.Time) []*Session {
	var expired []*Session
	m.mu.Lock()
	for sid, s := range m.bySession {
		if now.After(s.ExpireAt) {
			expired = append(expired, s)
			m.removeLocked(sid)
		}
	}
	onExpire := m.onExpire
	m.mu.Unlock()

	for _, s := range expired {
		if onExpire != nil {
			onExpire(s)
		}
		closeQuiet(s.Conn)
	}
	return expired
}

// ===== 工具函数 =====

func closeQuiet(c *websocket.Conn) {
	if c != nil {
		_ = c.Close()
	}
}
