package comment

import "time"

// 评论状态
const (
	StatusActive   = "active"
	StatusResolved = "resolved"
	StatusDeleted  = "deleted"
)

// Mention content 里的一个 @ 片段。Resolved=false 表示创建时
// 身份查找失败，标识符原样保存，但不参与通知扇出。
type Mention struct {
	UserID   string `bson:"user_id" json:"userId"`
	Start    int    `bson:"start" json:"start"`
	End      int    `bson:"end" json:"end"`
	Resolved bool   `bson:"resolved" json:"resolved"`
}

// Reaction 同一 (user, type) 至多一条，重复添加幂等。
type Reaction struct {
	Type      string `bson:"type" json:"type"`
	UserID    string `bson:"user_id" json:"userId"`
	CreatedAt int64  `bson:"created_at" json:"createdAt"`
}

type Attachment struct {
	Name string `bson:"name" json:"name"`
	URL  string `bson:"url" json:"url"`
	Size int64  `bson:"size,omitempty" json:"size,omitempty"`
}

// Comment 线程化评论。只建模一层回复：顶层评论持有平铺的回复列表，
// 不再往下递归。
type Comment struct {
	ID           string       `bson:"_id" json:"id"`
	Content      string       `bson:"content" json:"content"`
	ResourceType string       `bson:"resource_type" json:"resourceType"`
	ResourceID   string       `bson:"resource_id" json:"resourceId"`
	ParentID     string       `bson:"parent_id,omitempty" json:"parentId,omitempty"`
	AuthorID     string       `bson:"author_id" json:"authorId"`
	Status       string       `bson:"status" json:"status"`
	Mentions     []Mention    `bson:"mentions,omitempty" json:"mentions,omitempty"`
	Reactions    []Reaction   `bson:"reactions,omitempty" json:"reactions,omitempty"`
	Attachments  []Attachment `bson:"attachments,omitempty" json:"attachments,omitempty"`
	ResolvedBy   string       `bson:"resolved_by,omitempty" json:"resolvedBy,omitempty"`
	CreatedAt    int64        `bson:"created_at" json:"createdAt"`
	UpdatedAt    int64        `bson:"updated_at" json:"updatedAt"`
}

// ServedView 对外表示：已删除节点保留占位以维持回复可寻址，
// 但不再提供正文。
func (c Comment) ServedView() Comment {
	if c.Status == StatusDeleted {
		c.Content = ""
		c.Mentions = nil
		c.Attachments = nil
	}
	return c
}

// CommentThread 顶层评论 + 平铺回复。
type CommentThread struct {
	Comment
	Replies []Comment `json:"replies"`
}

// BuildThreads 把按资源捞出的评论组装成线程。回复按创建时间排序
// （snowflake id 同序，稳定）。父节点缺失的回复丢弃。
func BuildThreads(comments []Comment) []CommentThread {
	byID := make(map[string]int, len(comments))
	var threads []CommentThread
	for _, c := range comments {
		if c.ParentID == "" {
			byID[c.ID] = len(threads)
			threads = append(threads, CommentThread{Comment: c.ServedView()})
		}
	}
	for _, c := range comments {
		if c.ParentID == "" {
			continue
		}
		if i, ok := byID[c.ParentID]; ok {
			threads[i].Replies = append(threads[i].Replies, c.ServedView())
		}
	}
	for i := range threads {
		sortByCreatedAt(threads[i].Replies)
	}
	return threads
}

func sortByCreatedAt(cs []Comment) {
	// 插入排序：回复列表很短
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].CreatedAt < cs[j-1].CreatedAt; j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

// ---- reactions（纯逻辑，store 与单测共用） ----

// AddReaction 幂等追加；已存在同 (user, type) 时原样返回。
func AddReaction(list []Reaction, userID, typ string, now time.Time) ([]Reaction, bool) {
	for _, r := range list {
		if r.UserID == userID && r.Type == typ {
			return list, false
		}
	}
	return append(list, Reaction{Type: typ, UserID: userID, CreatedAt: now.UnixMilli()}), true
}

func RemoveReaction(list []Reaction, userID, typ string) ([]Reaction, bool) {
	for i, r := range list {
		if r.UserID == userID && r.Type == typ {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}

// ReactionCounts type -> 数量。
func ReactionCounts(list []Reaction) map[string]int {
	out := make(map[string]int)
	for _, r := range list {
		out[r.Type]++
	}
	return out
}

// ---- mentions ----

// MentionSpan 客户端上行的 @ 片段：标识符 + 在 content 里的区间。
type MentionSpan struct {
	Identifier string `json:"identifier"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// UserLookup 身份查找协作方：标识符 -> userId。
type UserLookup interface {
	LookupUser(identifier string) (userID string, ok bool)
}

// ResolveMentions 创建时解析 @：找得到的换成 userId，找不到的
// 原样保存并标记未解析（不进通知扇出）。
func ResolveMentions(spans []MentionSpan, lookup UserLookup) []Mention {
	if len(spans) == 0 {
		return nil
	}
	out := make([]Mention, 0, len(spans))
	for _, sp := range spans {
		m := Mention{UserID: sp.Identifier, Start: sp.Start, End: sp.End}
		if lookup != nil {
			if id, ok := lookup.LookupUser(sp.Identifier); ok {
				m.UserID = id
				m.Resolved = true
			}
		}
		out = append(out, m)
	}
	return out
}

// MentionedUserIDs 已解析 mention 的收件人集合（去重）。
func MentionedUserIDs(mentions []Mention) []string {
	seen := make(map[string]struct{}, len(mentions))
	var out []string
	for _, m := range mentions {
		if !m.Resolved {
			continue
		}
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		out = append(out, m.UserID)
	}
	return out
}
