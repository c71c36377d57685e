package client

import (
	"testing"
	"time"

	"collabcore/service/collab"
)

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // 32s 封顶到 30s
		{10, 30 * time.Second},
		{63, 30 * time.Second}, // 移位溢出也要封顶
	}
	for _, c := range cases {
		if got := BackoffDelay(c.attempt); got != c.want {
			t.Fatalf("BackoffDelay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateConnected.String() != "connected" || StateReconnecting.String() != "reconnecting" {
		t.Fatalf("state strings wrong")
	}
	if State(99).String() != "disconnected" {
		t.Fatalf("unknown state should read disconnected")
	}
}

func TestSendWhileDisconnectedIsNoop(t *testing.T) {
	tr := NewTransport(Config{URL: "ws://localhost:0/collab", Room: "dashboard:1"})
	// 未连接时 Send 静默丢弃，不 panic 不报错
	tr.Send(collab.MsgCursorMove, collab.CursorMovePayload{Cursor: collab.Cursor{X: 1, Y: 2}})
	if tr.State() != StateDisconnected {
		t.Fatalf("state = %v", tr.State())
	}
}

func TestReconnectScheduleTerminates(t *testing.T) {
	states := make(chan State, 32)
	tr := NewTransport(Config{
		URL:           "ws://localhost:0/collab",
		Room:          "dashboard:1",
		MaxReconnects: 3,
		OnStateChange: func(s State) { states <- s },
	})

	tr.mu.Lock()
	for i := 0; i < 3; i++ {
		if tr.attempt != i {
			tr.mu.Unlock()
			t.Fatalf("attempt = %d, want %d", tr.attempt, i)
		}
		tr.scheduleReconnectLocked()
		if tr.state != StateReconnecting {
			tr.mu.Unlock()
			t.Fatalf("schedule %d: state = %v, want reconnecting", i, tr.state)
		}
		// 定时器别真的去拨号
		tr.retryTmr.Stop()
		tr.retryTmr = nil
	}
	// 次数用尽：终态 Disconnected，不再调度
	tr.scheduleReconnectLocked()
	if tr.state != StateDisconnected {
		tr.mu.Unlock()
		t.Fatalf("exhausted state = %v, want disconnected", tr.state)
	}
	if tr.retryTmr != nil {
		tr.mu.Unlock()
		t.Fatalf("no timer should be armed after exhaustion")
	}
	tr.mu.Unlock()
}

func TestDisconnectCancelsRetry(t *testing.T) {
	tr := NewTransport(Config{URL: "ws://localhost:0/collab", Room: "dashboard:1"})

	tr.mu.Lock()
	tr.scheduleReconnectLocked()
	tr.mu.Unlock()

	tr.Disconnect()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if !tr.closed || tr.retryTmr != nil || tr.state != StateDisconnected {
		t.Fatalf("Disconnect should cancel the pending retry: closed=%v timer=%v state=%v",
			tr.closed, tr.retryTmr, tr.state)
	}
}

func TestOnUnsubscribe(t *testing.T) {
	tr := NewTransport(Config{URL: "ws://localhost:0/collab", Room: "dashboard:1"})

	var aCalls, bCalls int
	offA := tr.On(collab.MsgUserJoined, func(*collab.Envelope) { aCalls++ })
	tr.On(collab.MsgUserJoined, func(*collab.Envelope) { bCalls++ })

	env := collab.NewEnvelope(collab.MsgUserJoined, "dashboard:1", "alice", nil)
	tr.dispatch(&env)
	if aCalls != 1 || bCalls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", aCalls, bCalls)
	}

	offA()
	offA() // 重复解绑无害
	tr.dispatch(&env)
	if aCalls != 1 || bCalls != 2 {
		t.Fatalf("after unsubscribe calls = %d/%d, want 1/2", aCalls, bCalls)
	}
}

func TestDispatchHandlerPanicIsolated(t *testing.T) {
	tr := NewTransport(Config{URL: "ws://localhost:0/collab", Room: "dashboard:1"})

	var survived bool
	tr.On(collab.MsgUserLeft, func(*collab.Envelope) { panic("handler bug") })
	tr.On(collab.MsgUserLeft, func(*collab.Envelope) { survived = true })

	env := collab.NewEnvelope(collab.MsgUserLeft, "dashboard:1", "alice", nil)
	tr.dispatch(&env)
	if !survived {
		t.Fatalf("panic in one handler must not stop the rest")
	}
}
