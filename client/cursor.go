package client

import (
	"sync"
	"time"

	"collabcore/service/collab"
)

const defaultCursorInterval = 50 * time.Millisecond

// CursorThrottle 光标上行节流：广播路径不限速，限速是发送端的
// 责任。两次发送间隔不小于 minInterval，间隔内的移动合并成一次
// 尾发，最后位置不丢。
type CursorThrottle struct {
	t           *Transport
	minInterval time.Duration

	mu       sync.Mutex
	lastSent time.Time
	pending  *collab.Cursor
	timer    *time.Timer
}

func NewCursorThrottle(t *Transport, minInterval time.Duration) *CursorThrottle {
	if minInterval <= 0 {
		minInterval = defaultCursorInterval
	}
	return &CursorThrottle{t: t, minInterval: minInterval}
}

// Move 上报光标位置。
func (c *CursorThrottle) Move(cur collab.Cursor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastSent) >= c.minInterval && c.timer == nil {
		c.lastSent = now
		go c.t.Send(collab.MsgCursorMove, collab.CursorMovePayload{Cursor: cur})
		return
	}

	// 窗口内：记下最新位置，到点尾发一次
	c.pending = &cur
	if c.timer == nil {
		wait := c.minInterval - now.Sub(c.lastSent)
		if wait <= 0 {
			wait = c.minInterval
		}
		c.timer = time.AfterFunc(wait, c.flush)
	}
}

func (c *CursorThrottle) flush() {
	c.mu.Lock()
	cur := c.pending
	c.pending = nil
	c.timer = nil
	c.lastSent = time.Now()
	c.mu.Unlock()

	if cur != nil {
		c.t.Send(collab.MsgCursorMove, collab.CursorMovePayload{Cursor: *cur})
	}
}

// Stop 取消挂起的尾发。
func (c *CursorThrottle) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
}
