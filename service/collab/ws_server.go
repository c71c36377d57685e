package collab

import (
	"net"
	"net/http"
	"time"

	"collabcore/global"
	"collabcore/logger"
	"collabcore/middleware/security"
	"collabcore/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	pingInterval   = 25 * time.Second
	writeWait      = 10 * time.Second
	firstPingDelay = 5 * time.Second
)

// HandleWS websocket 入口：ws://host/collab?room=dashboard:42&token=...
// 资源存在性校验由调用方在发起 join 前完成，这里只认 room id 形状。
func (s *Server) HandleWS(c *gin.Context) {
	ident, err := security.ParseIdentity(security.TokenFromRequest(c), global.GetJwtSecret())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	roomID, err := ParseRoomID(c.Query("room"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad room"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[HandleWS] upgrade websocket error: %v", err)
		return
	}

	sess := s.conns.NewSession(ids.GenerateString(), ws)
	sess.UserID = ident.UserID
	sess.DisplayName = ident.DisplayName
	sess.AvatarURL = ident.AvatarURL
	if err := s.conns.Add(sess); err != nil {
		logger.Errorf("[HandleWS] add session: %v", err)
		closeQuiet(ws)
		return
	}

	// 入房并同步快照：迟到者立刻看到全量 presence 与锁
	snapshot := s.rooms.Join(roomID, sess)
	s.SendTo(sess, NewEnvelope(MsgSync, roomID.String(), "", snapshot))
	s.SendTo(sess, NewEnvelope(MsgConnect, roomID.String(), "", map[string]string{
		"sessionId": sess.SessionID,
		"nodeId":    s.conf.NodeID,
	}))
	logger.Infof("[WS] joined room=%s user=%s session=%s remote=%v", roomID, sess.UserID, sess.SessionID, sess.Remote)

	// 协议层 pong 也算心跳续期
	ws.SetPongHandler(func(string) error {
		_ = s.conns.Touch(sess.SessionID)
		return nil
	})

	done := make(chan struct{})
	go s.writePump(sess, done)

	// ---- 读循环：只读不写，出错即退出（写协程收尾） ----
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed session=%s err=%v", sess.SessionID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout session=%s err=%v", sess.SessionID, rerr)
			} else {
				logger.Infof("[WS] read err session=%s err=%v", sess.SessionID, rerr)
			}
			break
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		s.HandleInbound(sess, data)
	}

	// ---- 退出阶段：退房、注销会话，等写协程真正关掉 socket ----
	// 发送队列经 CloseSend 关闭：并发路径（通知直投）可能在 Remove
	// 之前就快照到了这条会话，TrySend 必须安全地失败而不是撞关闭通道
	s.Leave(sess, "disconnect")
	s.conns.Remove(sess.SessionID)
	sess.CloseSend()
	<-done
}

// writePump 写协程独占 socket：业务帧优先，协议层 ping 保活。
func (s *Server) writePump(sess *Session, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	first := time.NewTimer(firstPingDelay)
	defer func() {
		ticker.Stop()
		first.Stop()
		_ = sess.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = sess.Conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		closeQuiet(sess.Conn)
		close(done)
		logger.Infof("[WS] closed session=%s user=%s", sess.SessionID, sess.UserID)
	}()

	for {
		select {
		case payload, ok := <-sess.SendChan:
			if !ok {
				return
			}
			_ = sess.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Infof("[WS] write err session=%s user=%s err=%v", sess.SessionID, sess.UserID, err)
				return
			}

		case <-first.C: // 首个 ping 延后，避免刚连上即写超时
			if err := sess.Conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				logger.Infof("[WS] first ping err session=%s err=%v", sess.SessionID, err)
				return
			}

		case <-ticker.C:
			if err := sess.Conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				logger.Infof("[WS] ping err session=%s err=%v", sess.SessionID, err)
				return
			}
		}
	}
}
