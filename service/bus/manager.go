package bus

import (
	"context"
	"fmt"
	"sync"

	"collabcore/logger"

	"github.com/nats-io/nats.go"
)

// HeaderNode 自发消息过滤用的节点标记头。
const HeaderNode = "Collab-Node"

// Manager 统一门面：对外只暴露这一个对象来用。房间主题是临时流量，
// 走 core pub/sub，不上 JetStream（断线期间的帧按约定可丢）。
type Manager struct {
	client *Client
	node   string
	mws    []Middleware

	mu   sync.Mutex
	subs map[string]*nats.Subscription // subject -> sub
}

func NewManager(cfg Config, mws ...Middleware) (*Manager, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{client: c, node: cfg.Name, mws: mws, subs: make(map[string]*nats.Subscription)}, nil
}

func (m *Manager) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Publish 带节点头发布。
func (m *Manager) Publish(_ context.Context, subject string, data []byte, hdr map[string]string) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("bus not initialized")
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(HeaderNode, m.node)
	for k, v := range hdr {
		msg.Header.Set(k, v)
	}
	return m.client.Conn().PublishMsg(msg)
}

// Subscribe 订阅 subject；同一 subject 重复订阅是幂等 no-op。
// 本节点发出的消息自动跳过。
func (m *Manager) Subscribe(subject string, h Handler) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("bus not initialized")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[subject]; ok {
		return nil
	}

	wrapped := Chain(h, m.mws...)
	sub, err := m.client.Conn().Subscribe(subject, func(nm *nats.Msg) {
		if nm.Header.Get(HeaderNode) == m.node {
			return
		}
		hdr := make(map[string]string, len(nm.Header))
		for k := range nm.Header {
			hdr[k] = nm.Header.Get(k)
		}
		if err := wrapped(context.Background(), Message{Subject: nm.Subject, Data: nm.Data, Header: hdr}); err != nil {
			logger.Warnf("[bus] handler error subject=%s err=%v", nm.Subject, err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	m.subs[subject] = sub
	return nil
}

// Unsubscribe 房间清空时退订，避免空房间继续收总线流量。
func (m *Manager) Unsubscribe(subject string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[subject]; ok {
		if err := sub.Unsubscribe(); err != nil {
			logger.Warnf("[bus] unsubscribe %s: %v", subject, err)
		}
		delete(m.subs, subject)
	}
}
