package collab

import (
	"sync"

	"collabcore/logger"
)

// HandlerFunc 处理一条已解析的信封。返回 *errs.CodeError 时由
// 上层回发 ERROR 帧给发起会话。
type HandlerFunc func(sess *Session, env *Envelope) error

// Dispatcher 按类型分发。同一类型允许多个 handler，按注册顺序执行；
// 单个 handler panic 或报错不影响其余 handler。
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[MsgType][]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[MsgType][]HandlerFunc)}
}

func (d *Dispatcher) On(t MsgType, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = append(d.handlers[t], h)
}

// Dispatch returns the first error produced by a handler (for the ERROR
// reply path) after running every registered handler.
func (d *Dispatcher) Dispatch(sess *Session, env *Envelope) error {
	d.mu.RLock()
	hs := d.handlers[env.Type]
	d.mu.RUnlock()

	if len(hs) == 0 {
		logger.Infof("[dispatch] no handler for type=%s", env.Type)
		return nil
	}

	var first error
	for _, h := range hs {
		if err := d.invoke(h, sess, env); err != nil {
			logger.Warnf("[dispatch] handler error type=%s err=%v", env.Type, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (d *Dispatcher) invoke(h HandlerFunc, sess *Session, env *Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[dispatch] handler panic type=%s: %v", env.Type, r)
		}
	}()
	return h(sess, env)
}
