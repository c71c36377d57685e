package activity

import (
	"context"
	"testing"
)

func TestRecordActivityFanout(t *testing.T) {
	delivered := make(map[string]Notification)
	f := NewFanout(nil, func(recipient string, n Notification) {
		delivered[recipient] = n
	}, "")

	act := Activity{
		ActivityType: TypeCommentAdded,
		Actor:        "alice",
		ResourceType: "dashboard",
		ResourceID:   "42",
		TargetID:     "c-1",
		Description:  "alice commented",
	}
	// actor 本人、空串、重复收件人都要滤掉
	got, err := f.RecordActivity(context.Background(), act, []string{"bob", "alice", "", "carol", "bob"})
	if err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}
	if got.ID == "" || got.CreatedAt == 0 {
		t.Fatalf("activity not stamped: %+v", got)
	}

	if len(delivered) != 2 {
		t.Fatalf("delivered to %d recipients, want 2 (bob, carol)", len(delivered))
	}
	if _, ok := delivered["alice"]; ok {
		t.Fatalf("actor must not be notified")
	}
	n := delivered["bob"]
	if n.ActivityID != got.ID || n.RecipientID != "bob" || n.ActivityType != TypeCommentAdded {
		t.Fatalf("notification = %+v", n)
	}
	if n.ID == delivered["carol"].ID {
		t.Fatalf("each recipient needs its own notification id")
	}
	if n.IsRead {
		t.Fatalf("new notification must start unread")
	}
}

func TestRecordActivityNoRecipients(t *testing.T) {
	var calls int
	f := NewFanout(nil, func(string, Notification) { calls++ }, "")

	act := Activity{ActivityType: TypeEditStarted, Actor: "alice", ResourceType: "report", ResourceID: "7"}
	if _, err := f.RecordActivity(context.Background(), act, []string{"alice"}); err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}
	if calls != 0 {
		t.Fatalf("self-only recipient list must deliver nothing, got %d", calls)
	}
}

func TestNotificationFor(t *testing.T) {
	act := Activity{
		ID:           "a-1",
		ActivityType: TypeMention,
		Actor:        "alice",
		ResourceType: "dashboard",
		ResourceID:   "42",
		Description:  "alice mentioned you",
		CreatedAt:    123,
	}
	n := NotificationFor(act, "n-1", "bob")
	if n.ID != "n-1" || n.ActivityID != "a-1" || n.RecipientID != "bob" {
		t.Fatalf("notification = %+v", n)
	}
	if n.CreatedAt != 123 || n.Description != act.Description {
		t.Fatalf("denormalized fields lost: %+v", n)
	}
}
