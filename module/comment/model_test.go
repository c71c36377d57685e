package comment

import (
	"testing"
	"time"
)

func TestAddReactionIdempotent(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	list, added := AddReaction(nil, "alice", "👍", now)
	if !added || len(list) != 1 {
		t.Fatalf("first add: added=%v len=%d", added, len(list))
	}
	list, added = AddReaction(list, "alice", "👍", now.Add(time.Second))
	if added || len(list) != 1 {
		t.Fatalf("duplicate add must be a no-op: added=%v len=%d", added, len(list))
	}
	// 同用户不同表情、同表情不同用户都允许
	list, _ = AddReaction(list, "alice", "🎉", now)
	list, _ = AddReaction(list, "bob", "👍", now)
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}

	counts := ReactionCounts(list)
	if counts["👍"] != 2 || counts["🎉"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestRemoveReaction(t *testing.T) {
	now := time.Now()
	list, _ := AddReaction(nil, "alice", "👍", now)
	list, _ = AddReaction(list, "bob", "👍", now)

	list, removed := RemoveReaction(list, "alice", "👍")
	if !removed || len(list) != 1 || list[0].UserID != "bob" {
		t.Fatalf("remove: removed=%v list=%+v", removed, list)
	}
	if _, removed = RemoveReaction(list, "alice", "👍"); removed {
		t.Fatalf("removing an absent reaction must be a no-op")
	}
}

func TestBuildThreads(t *testing.T) {
	comments := []Comment{
		{ID: "c1", Content: "root one", CreatedAt: 100},
		{ID: "c2", Content: "root two", CreatedAt: 200},
		{ID: "r3", ParentID: "c1", Content: "late reply", CreatedAt: 300},
		{ID: "r2", ParentID: "c1", Content: "early reply", CreatedAt: 150},
		{ID: "orphan", ParentID: "gone", Content: "dangling", CreatedAt: 400},
	}

	threads := BuildThreads(comments)
	if len(threads) != 2 {
		t.Fatalf("threads = %d, want 2", len(threads))
	}
	if threads[0].ID != "c1" || len(threads[0].Replies) != 2 {
		t.Fatalf("thread c1 = %+v", threads[0])
	}
	// 回复按创建时间升序
	if threads[0].Replies[0].ID != "r2" || threads[0].Replies[1].ID != "r3" {
		t.Fatalf("replies out of order: %s, %s", threads[0].Replies[0].ID, threads[0].Replies[1].ID)
	}
	if len(threads[1].Replies) != 0 {
		t.Fatalf("thread c2 should have no replies")
	}
}

func TestServedViewHidesDeleted(t *testing.T) {
	c := Comment{
		ID:       "c1",
		Content:  "secret",
		Status:   StatusDeleted,
		Mentions: []Mention{{UserID: "alice", Resolved: true}},
		Attachments: []Attachment{
			{Name: "report.pdf", URL: "https://files/1"},
		},
		Reactions: []Reaction{{Type: "👍", UserID: "bob"}},
	}
	v := c.ServedView()
	if v.Content != "" || v.Mentions != nil || v.Attachments != nil {
		t.Fatalf("deleted view leaks content: %+v", v)
	}
	if v.ID != "c1" || v.Status != StatusDeleted {
		t.Fatalf("placeholder identity must survive: %+v", v)
	}

	active := Comment{ID: "c2", Content: "visible", Status: StatusActive}
	if got := active.ServedView(); got.Content != "visible" {
		t.Fatalf("active view altered: %+v", got)
	}
}

// 测试用目录：handle -> userId。
type lookupMap map[string]string

func (m lookupMap) LookupUser(identifier string) (string, bool) {
	id, ok := m[identifier]
	return id, ok
}

func TestResolveMentions(t *testing.T) {
	dir := lookupMap{"@jane": "u-42"}
	spans := []MentionSpan{
		{Identifier: "@jane", Start: 0, End: 5},
		{Identifier: "@ghost", Start: 10, End: 16},
	}

	mentions := ResolveMentions(spans, dir)
	if len(mentions) != 2 {
		t.Fatalf("mentions = %d", len(mentions))
	}
	if !mentions[0].Resolved || mentions[0].UserID != "u-42" {
		t.Fatalf("known handle not resolved: %+v", mentions[0])
	}
	// 查不到的原样保存，标记未解析
	if mentions[1].Resolved || mentions[1].UserID != "@ghost" {
		t.Fatalf("unknown handle mishandled: %+v", mentions[1])
	}

	if got := ResolveMentions(nil, dir); got != nil {
		t.Fatalf("no spans should yield nil")
	}
	// lookup 缺席时全部按未解析处理
	raw := ResolveMentions(spans[:1], nil)
	if raw[0].Resolved {
		t.Fatalf("nil lookup must not resolve")
	}
}

func TestMentionedUserIDs(t *testing.T) {
	mentions := []Mention{
		{UserID: "u-1", Resolved: true},
		{UserID: "@ghost", Resolved: false},
		{UserID: "u-1", Resolved: true}, // 重复
		{UserID: "u-2", Resolved: true},
	}
	got := MentionedUserIDs(mentions)
	if len(got) != 2 || got[0] != "u-1" || got[1] != "u-2" {
		t.Fatalf("recipients = %v, want [u-1 u-2]", got)
	}
}
