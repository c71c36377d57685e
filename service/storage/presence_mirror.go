package storage

import (
	"context"
	"time"

	rediscli "collabcore/service/storage/redis"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// 跨节点在线镜像。房间内的权威 presence 在各节点内存里；redis 只回答
// “这个用户现在还在某个节点的某个房间里吗”，通知直投前用它判在线。
//
// key: collab:presence:<room>:<user> -> nodeID，TTL 即 presence 超时。

func presenceKey(room, user string) string { return "collab:presence:" + room + ":" + user }

type PresenceMirror struct {
	ttl time.Duration
}

func NewPresenceMirror(ttl time.Duration) *PresenceMirror {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PresenceMirror{ttl: ttl}
}

// Online 标记在线并续 TTL。
func (m *PresenceMirror) Online(ctx context.Context, room, user, nodeID string) error {
	rdb := rediscli.GetClient()
	if rdb == nil {
		return errors.New("redis not initialized")
	}
	return rdb.Set(ctx, presenceKey(room, user), nodeID, m.ttl).Err()
}

// Offline 主动下线（删 key）。
func (m *PresenceMirror) Offline(ctx context.Context, room, user string) error {
	rdb := rediscli.GetClient()
	if rdb == nil {
		return errors.New("redis not initialized")
	}
	return rdb.Del(ctx, presenceKey(room, user)).Err()
}

// Lookup 查询用户是否在线（任一节点）。
func (m *PresenceMirror) Lookup(ctx context.Context, room, user string) (nodeID string, online bool, err error) {
	rdb := rediscli.GetClient()
	if rdb == nil {
		return "", false, errors.New("redis not initialized")
	}
	val, err := rdb.Get(ctx, presenceKey(room, user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Touch 活跃续期；key 已经没了就当离线，不补建。
func (m *PresenceMirror) Touch(ctx context.Context, room, user string) error {
	rdb := rediscli.GetClient()
	if rdb == nil {
		return errors.New("redis not initialized")
	}
	return rdb.Expire(ctx, presenceKey(room, user), m.ttl).Err()
}
