package activity

import (
	"context"
	"encoding/json"
	"time"

	"collabcore/logger"
	"collabcore/service/kafka"
	"collabcore/tools/ids"
)

// Deliver 在线直投回调：把通知推给某用户的全部本地会话。
// 由装配方注入（枢纽的 SendToUser），这里不反向依赖协作层。
type Deliver func(recipientID string, n Notification)

// Fanout 活动记录与通知扇出。收件人集合完全由调用方的 mention/
// 线程数据给出，这一层绝不从 presence 反推。
type Fanout struct {
	store      *Store
	deliver    Deliver
	auditTopic string
}

func NewFanout(store *Store, deliver Deliver, auditTopic string) *Fanout {
	return &Fanout{store: store, deliver: deliver, auditTopic: auditTopic}
}

// RecordActivity 落库 Activity，为每个收件人生成独立可读的
// Notification 并直投在线会话；离线收件人下次拉取时看到。从不
// 阻塞等待离线收件人。actor 自己不收通知。
func (f *Fanout) RecordActivity(ctx context.Context, act Activity, recipients []string) (*Activity, error) {
	if act.CreatedAt == 0 {
		act.CreatedAt = time.Now().UnixMilli()
	}
	if f.store != nil {
		if err := f.store.InsertActivity(ctx, &act); err != nil {
			return nil, err
		}
	} else if act.ID == "" {
		act.ID = ids.GenerateString()
	}

	notifs := make([]Notification, 0, len(recipients))
	seen := make(map[string]struct{}, len(recipients))
	for _, r := range recipients {
		if r == "" || r == act.Actor {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		notifs = append(notifs, NotificationFor(act, ids.GenerateString(), r))
	}

	if f.store != nil {
		if err := f.store.InsertNotifications(ctx, notifs); err != nil {
			// 通知落库失败不回滚 Activity，直投仍然进行
			logger.Warnf("[fanout] insert notifications: %v", err)
		}
	}

	if f.deliver != nil {
		for _, n := range notifs {
			f.deliver(n.RecipientID, n)
		}
	}

	f.audit(act)
	return &act, nil
}

// audit 审计管道：整条 Activity 发 kafka，分析侧消费。可丢。
func (f *Fanout) audit(act Activity) {
	if f.auditTopic == "" {
		return
	}
	b, err := json.Marshal(act)
	if err != nil {
		return
	}
	kafka.SendAsync(f.auditTopic, act.ResourceType+":"+act.ResourceID, b)
}
