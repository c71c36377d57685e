package collab

import (
	"time"

	"collabcore/logger"
	"collabcore/tools/decode"
	errs "collabcore/tools/errs"
)

// ServerConf 汇聚各组件配置。
type ServerConf struct {
	NodeID   string
	Manager  ManagerConf
	Registry RegistryConf
}

// Server 协作枢纽：连接管理 + 房间注册表 + 类型分发器。
// 评论/通知等需要落库的 handler 在 handlers 子包注册。
type Server struct {
	conf  ServerConf
	conns *ConnManager
	rooms *Registry
	disp  *Dispatcher
}

func NewServer(conf ServerConf, hooks RoomHooks) *Server {
	s := &Server{
		conf:  conf,
		conns: NewConnManager(conf.Manager, conf.NodeID),
		rooms: NewRegistry(conf.Registry, hooks),
		disp:  NewDispatcher(),
	}
	// 会话 TTL 过期与断连走同一条收尾路径
	s.conns.OnExpire(func(sess *Session) { s.Leave(sess, "stale") })
	s.registerBuiltins()
	return s
}

func (s *Server) Conns() *ConnManager { return s.conns }
func (s *Server) Rooms() *Registry    { return s.rooms }
func (s *Server) Disp() *Dispatcher   { return s.disp }
func (s *Server) NodeID() string      { return s.conf.NodeID }

func (s *Server) Close() {
	s.conns.Close()
}

// HandleInbound 入站帧入口：防御式解析，坏帧记日志丢弃；身份字段
// 一律以服务端会话为准，不信任客户端自报。
func (s *Server) HandleInbound(sess *Session, raw []byte) {
	env, err := ParseEnvelope(raw)
	if err != nil {
		sample := raw
		if len(sample) > 256 {
			sample = sample[:256]
		}
		logger.Warnf("[inbound] drop bad frame session=%s err=%v sample=%q", sess.SessionID, err, sample)
		return
	}
	room := sess.Room()
	env.SenderID = sess.UserID
	env.Room = room.String()

	_ = s.conns.Touch(sess.SessionID)
	if room != "" {
		s.rooms.TouchPresence(room, sess.UserID)
	}

	if err := s.disp.Dispatch(sess, env); err != nil {
		if ce, ok := err.(*errs.CodeError); ok {
			s.SendTo(sess, NewErrorEnvelope(env.Room, ce.Code, ce.Msg))
		}
	}
}

// SendTo 直发单个会话。
func (s *Server) SendTo(sess *Session, env Envelope) {
	if !sess.TrySend(env.Encode()) {
		logger.Warnf("[send] queue full session=%s type=%s", sess.SessionID, env.Type)
	}
}

// SendToUser 直发某用户的全部本地会话（通知路径，非房间广播）。
func (s *Server) SendToUser(userID string, env Envelope) int {
	n := 0
	data := env.Encode()
	for _, sess := range s.conns.SessionsByUser(userID) {
		if sess.TrySend(data) {
			n++
		}
	}
	return n
}

// BroadcastRoom handlers 子包的广播入口。
func (s *Server) BroadcastRoom(roomID string, env Envelope, excludeSessionID string) {
	id, err := ParseRoomID(roomID)
	if err != nil {
		logger.Warnf("[broadcast] %v", err)
		return
	}
	s.rooms.Broadcast(id, &env, excludeSessionID)
}

// Leave 会话收尾：退房（presence 清理、锁回收、USER_LEFT 广播）。
func (s *Server) Leave(sess *Session, reason string) {
	if room := sess.Room(); room != "" {
		s.rooms.Leave(room, sess, reason)
	}
}

// ===== 内建 handler =====

func (s *Server) registerBuiltins() {
	s.disp.On(MsgPing, s.handlePing)
	s.disp.On(MsgPresenceUpdate, s.handlePresenceUpdate)
	s.disp.On(MsgCursorMove, s.handleCursorMove)
	s.disp.On(MsgEditStart, s.handleEditStart)
	s.disp.On(MsgEditEnd, s.handleEditEnd)
	s.disp.On(MsgChange, s.handleChange)
	s.disp.On(MsgDisconnect, s.handleDisconnect)
}

func (s *Server) handlePing(sess *Session, env *Envelope) error {
	s.SendTo(sess, NewEnvelope(MsgPong, env.Room, "", nil))
	return nil
}

func (s *Server) handlePresenceUpdate(sess *Session, env *Envelope) error {
	room := sess.Room()
	if room == "" {
		return errs.NewCodeError(errs.CodeNotInRoom, "join a room first")
	}
	in, err := DecodePayload[PresencePayload](env)
	if err != nil {
		logger.Warnf("[presence] %v", err)
		return nil // 可丢语义，不回错
	}
	s.rooms.MergePresence(room, sess, in)
	return nil
}

func (s *Server) handleCursorMove(sess *Session, env *Envelope) error {
	room := sess.Room()
	if room == "" {
		return errs.NewCodeError(errs.CodeNotInRoom, "join a room first")
	}
	in, err := DecodePayload[CursorMovePayload](env)
	if err != nil {
		logger.Warnf("[cursor] %v", err)
		return nil
	}
	s.rooms.MoveCursor(room, sess, &in.Cursor)
	return nil
}

func (s *Server) handleEditStart(sess *Session, env *Envelope) error {
	room := sess.Room()
	if room == "" {
		return errs.NewCodeError(errs.CodeNotInRoom, "join a room first")
	}
	in, err := DecodePayload[EditPayload](env)
	if err != nil {
		return errs.NewCodeError(errs.CodeBadEnvelope, "bad EDIT_START payload")
	}
	ttl := time.Duration(in.TTLSec) * time.Second
	granted, lock := s.rooms.AcquireLock(room, in.Key, sess.UserID, ttl)

	if !granted {
		// 拒绝是普通结果值，不是异常；只回给请求方
		reply := EditPayload{Key: in.Key, Granted: false}
		if lock != nil {
			reply.HolderID = lock.LockedBy
			reply.ExpiresAt = lock.ExpiresAt
		}
		s.SendTo(sess, NewEnvelope(MsgEditStart, env.Room, "", reply))
		return nil
	}

	reply := EditPayload{Key: in.Key, UserID: sess.UserID, Granted: true, ExpiresAt: lock.ExpiresAt}
	s.SendTo(sess, NewEnvelope(MsgEditStart, env.Room, "", reply))
	broadcast := NewEnvelope(MsgEditStart, env.Room, sess.UserID, reply)
	s.rooms.Broadcast(room, &broadcast, sess.SessionID)
	return nil
}

func (s *Server) handleEditEnd(sess *Session, env *Envelope) error {
	room := sess.Room()
	if room == "" {
		return errs.NewCodeError(errs.CodeNotInRoom, "join a room first")
	}
	in, err := DecodePayload[EditPayload](env)
	if err != nil {
		return errs.NewCodeError(errs.CodeBadEnvelope, "bad EDIT_END payload")
	}
	if s.rooms.ReleaseLock(room, in.Key, sess.UserID) {
		broadcast := NewEnvelope(MsgEditEnd, env.Room, sess.UserID, EditPayload{Key: in.Key, UserID: sess.UserID})
		s.rooms.Broadcast(room, &broadcast, sess.SessionID)
	}
	return nil
}

// handleChange 内容编辑透传。payload 是动态 map，宽松解码成
// ChangePayload 后原样广播；服务端不做合并。
func (s *Server) handleChange(sess *Session, env *Envelope) error {
	room := sess.Room()
	if room == "" {
		return errs.NewCodeError(errs.CodeNotInRoom, "join a room first")
	}
	var m map[string]any
	if raw, err := DecodePayload[map[string]any](env); err == nil {
		m = *raw
	}
	if m != nil {
		if _, err := decode.DecodeMap[ChangePayload](m); err != nil {
			logger.Warnf("[change] drop malformed patch from user=%s: %v", sess.UserID, err)
			return nil
		}
	}
	s.rooms.Broadcast(room, env, sess.SessionID)
	return nil
}

func (s *Server) handleDisconnect(sess *Session, _ *Envelope) error {
	s.Leave(sess, "leave")
	return nil
}
