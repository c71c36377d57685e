package collab

import (
	"testing"

	"collabcore/tools/errs"
)

func TestDispatcherOrderAndFirstError(t *testing.T) {
	d := NewDispatcher()
	var calls []string
	d.On(MsgChange, func(*Session, *Envelope) error {
		calls = append(calls, "first")
		return errs.NewCodeError(errs.CodeInternal, "boom-1")
	})
	d.On(MsgChange, func(*Session, *Envelope) error {
		calls = append(calls, "second")
		return errs.NewCodeError(errs.CodeInternal, "boom-2")
	})

	env := NewEnvelope(MsgChange, "dashboard:1", "u1", nil)
	err := d.Dispatch(&Session{SessionID: "s1"}, &env)

	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("calls = %v, want registration order and all handlers run", calls)
	}
	ce, ok := err.(*errs.CodeError)
	if !ok || ce.Msg != "boom-1" {
		t.Fatalf("Dispatch should surface the first error, got %v", err)
	}
}

func TestDispatcherPanicIsolated(t *testing.T) {
	d := NewDispatcher()
	var survived bool
	d.On(MsgPing, func(*Session, *Envelope) error { panic("handler bug") })
	d.On(MsgPing, func(*Session, *Envelope) error {
		survived = true
		return nil
	})

	env := NewEnvelope(MsgPing, "dashboard:1", "u1", nil)
	if err := d.Dispatch(&Session{SessionID: "s1"}, &env); err != nil {
		t.Fatalf("panic must not surface as error, got %v", err)
	}
	if !survived {
		t.Fatalf("panic in one handler must not stop the rest")
	}
}

func TestDispatcherUnknownType(t *testing.T) {
	d := NewDispatcher()
	env := NewEnvelope(MsgType("BOGUS"), "dashboard:1", "u1", nil)
	if err := d.Dispatch(&Session{SessionID: "s1"}, &env); err != nil {
		t.Fatalf("unregistered type should be a silent no-op, got %v", err)
	}
}
