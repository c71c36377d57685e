package client

import (
	"testing"
	"time"

	"collabcore/service/collab"
)

// 节流器下挂一个未连接的 Transport：Send 是 no-op，测试只看
// 合并与尾发的调度状态。

func TestCursorThrottleImmediateFirstSend(t *testing.T) {
	tr := NewTransport(Config{URL: "ws://localhost:0/collab", Room: "dashboard:1"})
	th := NewCursorThrottle(tr, 100*time.Millisecond)
	defer th.Stop()

	th.Move(collab.Cursor{X: 1, Y: 1})

	th.mu.Lock()
	defer th.mu.Unlock()
	if th.pending != nil || th.timer != nil {
		t.Fatalf("first move outside the window must go out immediately")
	}
	if th.lastSent.IsZero() {
		t.Fatalf("lastSent not recorded")
	}
}

func TestCursorThrottleCoalescesTrailing(t *testing.T) {
	tr := NewTransport(Config{URL: "ws://localhost:0/collab", Room: "dashboard:1"})
	th := NewCursorThrottle(tr, 80*time.Millisecond)
	defer th.Stop()

	th.Move(collab.Cursor{X: 1, Y: 1})
	th.Move(collab.Cursor{X: 2, Y: 2})
	th.Move(collab.Cursor{X: 3, Y: 3})

	th.mu.Lock()
	if th.pending == nil || th.pending.X != 3 {
		th.mu.Unlock()
		t.Fatalf("window moves must coalesce to the latest position, pending=%+v", th.pending)
	}
	if th.timer == nil {
		th.mu.Unlock()
		t.Fatalf("trailing flush must be scheduled")
	}
	th.mu.Unlock()

	// 尾发触发后挂起状态清空
	time.Sleep(150 * time.Millisecond)
	th.mu.Lock()
	defer th.mu.Unlock()
	if th.pending != nil || th.timer != nil {
		t.Fatalf("trailing flush did not fire")
	}
}

func TestCursorThrottleStop(t *testing.T) {
	tr := NewTransport(Config{URL: "ws://localhost:0/collab", Room: "dashboard:1"})
	th := NewCursorThrottle(tr, time.Hour) // 窗口拉长，尾发永不自然触发

	th.Move(collab.Cursor{X: 1, Y: 1})
	th.Move(collab.Cursor{X: 2, Y: 2})
	th.Stop()

	th.mu.Lock()
	defer th.mu.Unlock()
	if th.pending != nil || th.timer != nil {
		t.Fatalf("Stop must cancel the pending trailing send")
	}
}

func TestCursorThrottleDefaultInterval(t *testing.T) {
	tr := NewTransport(Config{URL: "ws://localhost:0/collab", Room: "dashboard:1"})
	th := NewCursorThrottle(tr, 0)
	if th.minInterval != defaultCursorInterval {
		t.Fatalf("minInterval = %v, want default %v", th.minInterval, defaultCursorInterval)
	}
}
