package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"collabcore/logger"
	"collabcore/service/collab"

	"github.com/gorilla/websocket"
)

// State 连接状态机：Disconnected → Connecting → Connected →
// Reconnecting → Disconnected。迁移触发：open、close、心跳超时、
// 手动断开。
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

const (
	defaultHeartbeat = 10 * time.Second
	defaultMaxRetry  = 5
)

// BackoffDelay 第 attempt 次重连前的等待：min(1000*2^attempt, 30000) ms。
func BackoffDelay(attempt int) time.Duration {
	ms := int64(1000) << uint(attempt)
	if ms > 30000 || ms <= 0 {
		ms = 30000
	}
	return time.Duration(ms) * time.Millisecond
}

type Config struct {
	URL   string // ws://host/collab
	Room  string // "<resourceType>:<resourceId>"
	Token string // 身份提供方签发的 JWT

	SenderID       string
	HeartbeatEvery time.Duration // 默认 10s
	MaxReconnects  int           // 默认 5，超过即终态 Disconnected
	OnStateChange  func(State)
}

type handlerEntry struct {
	id int
	fn func(*collab.Envelope)
}

// Transport 每 (client, room) 一条全双工连接。Send 在未连接时是
// 静默 no-op：presence/cursor 可丢；要求持久化的调用方（评论）先走
// 存储 API，socket 只当通知通道。
type Transport struct {
	cfg Config

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	writeMu  sync.Mutex
	attempt  int
	retryTmr *time.Timer
	closed   bool
	gen      int // 连接代次，旧读协程的掉线通知作废

	handlerMu sync.RWMutex
	handlers  map[collab.MsgType][]handlerEntry
	nextID    int

	lastTraffic atomic.Int64 // unixnano，入站任何帧都刷新
}

func NewTransport(cfg Config) *Transport {
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = defaultHeartbeat
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = defaultMaxRetry
	}
	return &Transport{
		cfg:      cfg,
		handlers: make(map[collab.MsgType][]handlerEntry),
	}
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) setStateLocked(s State) {
	if t.state == s {
		return
	}
	t.state = s
	if t.cfg.OnStateChange != nil {
		go t.cfg.OnStateChange(s)
	}
}

// Connect 建连。失败直接走重连调度，不向调用方抛传输层错误。
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport closed")
	}
	if t.state == StateConnected || t.state == StateConnecting {
		t.mu.Unlock()
		return nil
	}
	t.setStateLocked(StateConnecting)
	t.mu.Unlock()

	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		t.mu.Lock()
		t.setStateLocked(StateDisconnected)
		t.mu.Unlock()
		return err
	}
	q := u.Query()
	q.Set("room", t.cfg.Room)
	q.Set("token", t.cfg.Token)
	u.RawQuery = q.Encode()

	conn, _, derr := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return fmt.Errorf("transport closed")
	}
	if derr != nil {
		logger.Infof("[client] dial %s failed: %v", t.cfg.Room, derr)
		t.scheduleReconnectLocked()
		t.mu.Unlock()
		return nil
	}
	t.conn = conn
	t.attempt = 0 // onopen 重置重连计数
	t.gen++
	gen := t.gen
	t.setStateLocked(StateConnected)
	t.mu.Unlock()

	t.lastTraffic.Store(time.Now().UnixNano())
	go t.readLoop(conn, gen)
	go t.heartbeat(conn, gen)
	return nil
}

// Disconnect 手动断开：取消未触发的重连定时器，之后不再自动重试。
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.closed = true
	if t.retryTmr != nil {
		t.retryTmr.Stop()
		t.retryTmr = nil
	}
	conn := t.conn
	t.conn = nil
	t.setStateLocked(StateDisconnected)
	t.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// Send 未连接时静默丢弃。
func (t *Transport) Send(typ collab.MsgType, payload any) {
	t.mu.Lock()
	conn := t.conn
	ok := t.state == StateConnected && conn != nil
	t.mu.Unlock()
	if !ok {
		return
	}
	env := collab.NewEnvelope(typ, t.cfg.Room, t.cfg.SenderID, payload)
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, env.Encode()); err != nil {
		logger.Infof("[client] write %s failed: %v", typ, err)
	}
}

// On 注册消息处理器，返回解绑函数。同类型多个 handler 按注册顺序
// 执行，单个出错不影响其余。
func (t *Transport) On(typ collab.MsgType, fn func(*collab.Envelope)) (unsubscribe func()) {
	t.handlerMu.Lock()
	t.nextID++
	id := t.nextID
	t.handlers[typ] = append(t.handlers[typ], handlerEntry{id: id, fn: fn})
	t.handlerMu.Unlock()

	return func() {
		t.handlerMu.Lock()
		defer t.handlerMu.Unlock()
		hs := t.handlers[typ]
		for i, h := range hs {
			if h.id == id {
				t.handlers[typ] = append(hs[:i], hs[i+1:]...)
				return
			}
		}
	}
}

func (t *Transport) dispatch(env *collab.Envelope) {
	t.handlerMu.RLock()
	hs := append([]handlerEntry(nil), t.handlers[env.Type]...)
	t.handlerMu.RUnlock()
	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("[client] handler panic type=%s: %v", env.Type, r)
				}
			}()
			h.fn(env)
		}()
	}
}

func (t *Transport) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.onDrop(conn, gen)
			return
		}
		t.lastTraffic.Store(time.Now().UnixNano())

		env, perr := collab.ParseEnvelope(data)
		if perr != nil {
			// 坏帧记日志后丢弃，绝不抛给调用方
			logger.Warnf("[client] drop bad frame: %v", perr)
			continue
		}
		t.dispatch(env)
	}
}

// heartbeat 固定间隔发 PING；两个周期无任何入站流量视为死连接，
// 与 onclose 走同一条路径。
func (t *Transport) heartbeat(conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(t.cfg.HeartbeatEvery)
	defer ticker.Stop()
	for range ticker.C {
		t.mu.Lock()
		live := t.gen == gen && t.conn == conn && !t.closed
		t.mu.Unlock()
		if !live {
			return
		}

		idle := time.Duration(time.Now().UnixNano() - t.lastTraffic.Load())
		if idle > 2*t.cfg.HeartbeatEvery {
			logger.Infof("[client] heartbeat timeout room=%s idle=%v", t.cfg.Room, idle)
			_ = conn.Close() // 读协程报错后统一走 onDrop
			return
		}
		t.Send(collab.MsgPing, nil)
	}
}

// onDrop 连接断开（含心跳超时）。未超过最大次数则按指数退避调度
// 重连；超过即终态 Disconnected，不再自动重试。
func (t *Transport) onDrop(conn *websocket.Conn, gen int) {
	_ = conn.Close()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen || t.closed {
		return
	}
	t.conn = nil
	t.scheduleReconnectLocked()
}

func (t *Transport) scheduleReconnectLocked() {
	if t.attempt >= t.cfg.MaxReconnects {
		logger.Infof("[client] reconnect attempts exhausted room=%s", t.cfg.Room)
		t.setStateLocked(StateDisconnected)
		return
	}
	delay := BackoffDelay(t.attempt)
	t.attempt++
	t.setStateLocked(StateReconnecting)
	logger.Infof("[client] reconnect in %v (attempt %d/%d) room=%s", delay, t.attempt, t.cfg.MaxReconnects, t.cfg.Room)

	t.retryTmr = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		t.state = StateDisconnected // Connect 的前置状态
		t.mu.Unlock()
		_ = t.Connect(context.Background())
	})
}
