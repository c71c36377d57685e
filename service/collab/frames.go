package collab

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MsgType 闭合的消息类型集合。信封 payload 与类型一一对应，
// 新增类型必须同时给出 payload 结构体。
type MsgType string

const (
	// connection
	MsgConnect    MsgType = "CONNECT"
	MsgDisconnect MsgType = "DISCONNECT"
	MsgPing       MsgType = "PING"
	MsgPong       MsgType = "PONG"

	// presence
	MsgPresenceUpdate MsgType = "PRESENCE_UPDATE"
	MsgCursorMove     MsgType = "CURSOR_MOVE"
	MsgUserJoined     MsgType = "USER_JOINED"
	MsgUserLeft       MsgType = "USER_LEFT"

	// collaboration
	MsgEditStart MsgType = "EDIT_START"
	MsgEditEnd   MsgType = "EDIT_END"
	MsgChange    MsgType = "CHANGE"
	MsgSync      MsgType = "SYNC"

	// comments
	MsgCommentAdded    MsgType = "COMMENT_ADDED"
	MsgCommentUpdated  MsgType = "COMMENT_UPDATED"
	MsgCommentDeleted  MsgType = "COMMENT_DELETED"
	MsgReactionAdded   MsgType = "REACTION_ADDED"
	MsgReactionRemoved MsgType = "REACTION_REMOVED"

	// activity
	MsgActivity     MsgType = "ACTIVITY"
	MsgNotification MsgType = "NOTIFICATION"

	MsgError MsgType = "ERROR"
)

// Envelope 统一线格式：{type, room, senderId, payload, timestamp}。
type Envelope struct {
	Type      MsgType         `json:"type"`
	Room      string          `json:"room,omitempty"`
	SenderID  string          `json:"senderId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ParseEnvelope 防御式解析：坏帧返回 error，调用方记日志后丢弃，
// 绝不向上抛。
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope failed: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("envelope missing type")
	}
	return &env, nil
}

// NewEnvelope wraps a typed payload. Marshal errors only happen for
// non-JSON-able payloads, which is a programming error; payload is left
// empty in that case.
func NewEnvelope(t MsgType, room, senderID string, payload any) Envelope {
	env := Envelope{
		Type:      t,
		Room:      room,
		SenderID:  senderID,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			env.Payload = b
		}
	}
	return env
}

func (e *Envelope) Encode() []byte {
	b, _ := json.Marshal(e)
	return b
}

// DecodePayload 解出具体类型的 payload。
func DecodePayload[T any](e *Envelope) (*T, error) {
	if len(e.Payload) == 0 {
		return nil, fmt.Errorf("envelope %s has no payload", e.Type)
	}
	var out T
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return &out, nil
}

// ---- room id ----

// RoomID 广播域标识："<resourceType>:<resourceId>"。
type RoomID string

func NewRoomID(resourceType, resourceID string) RoomID {
	return RoomID(resourceType + ":" + resourceID)
}

func ParseRoomID(s string) (RoomID, error) {
	i := strings.IndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return "", fmt.Errorf("bad room id %q", s)
	}
	return RoomID(s), nil
}

func (r RoomID) Resource() (resourceType, resourceID string) {
	i := strings.IndexByte(string(r), ':')
	if i < 0 {
		return string(r), ""
	}
	return string(r)[:i], string(r)[i+1:]
}

func (r RoomID) String() string { return string(r) }

// ---- payloads ----

type Cursor struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	ElementID   string  `json:"elementId,omitempty"`
	ElementType string  `json:"elementType,omitempty"`
}

// PresencePayload 既用于客户端上行的局部更新（字段可空），也用于
// 服务端下行的全量状态。
type PresencePayload struct {
	UserID          string  `json:"userId,omitempty"`
	Status          string  `json:"status,omitempty"`
	Cursor          *Cursor `json:"cursor,omitempty"`
	CurrentResource string  `json:"currentResource,omitempty"`
	Color           string  `json:"color,omitempty"`
}

type CursorMovePayload struct {
	UserID string `json:"userId,omitempty"`
	Cursor Cursor `json:"cursor"`
}

type UserJoinedPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Color       string `json:"color"`
}

type UserLeftPayload struct {
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"` // "leave" | "stale" | "disconnect"
}

// SyncPayload 加入房间时回给新会话的完整快照。迟到者必须立刻看到
// 已在场的所有人，presence 对新加入者不允许最终一致。
type SyncPayload struct {
	Room      string            `json:"room"`
	SessionID string            `json:"sessionId"`
	Color     string            `json:"color"`
	Presences []PresencePayload `json:"presences"`
	Locks     []EditLock        `json:"locks"`
}

type EditPayload struct {
	Key       LockKey   `json:"key"`
	UserID    string    `json:"userId,omitempty"`
	TTLSec    int       `json:"ttlSec,omitempty"`
	Granted   bool      `json:"granted,omitempty"`
	HolderID  string    `json:"holderId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// ChangePayload 内容编辑的透传广播。Patch 不做服务端合并，
// last-writer-wins 由调用方接受。
type ChangePayload struct {
	ElementID string         `json:"elementId,omitempty"`
	Patch     map[string]any `json:"patch,omitempty"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewErrorEnvelope(room string, code int, message string) Envelope {
	return NewEnvelope(MsgError, room, "", ErrorPayload{Code: code, Message: message})
}
