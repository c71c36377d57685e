package activity

// 活动类型
const (
	TypeCommentAdded    = "comment_added"
	TypeCommentUpdated  = "comment_updated"
	TypeCommentDeleted  = "comment_deleted"
	TypeCommentResolved = "comment_resolved"
	TypeReactionAdded   = "reaction_added"
	TypeMention         = "mention"
	TypeEditStarted     = "edit_started"
)

// Activity 不可变事件记录：谁对什么做了什么。
type Activity struct {
	ID           string `bson:"_id" json:"id"`
	ActivityType string `bson:"activity_type" json:"activityType"`
	Actor        string `bson:"actor" json:"actor"`
	ResourceType string `bson:"resource_type" json:"resourceType"`
	ResourceID   string `bson:"resource_id" json:"resourceId"`
	TargetID     string `bson:"target_id,omitempty" json:"targetId,omitempty"` // 评论 id、元素 id 等
	Description  string `bson:"description,omitempty" json:"description,omitempty"`
	CreatedAt    int64  `bson:"created_at" json:"createdAt"`
}

// Notification 一条 Activity 扇出到受影响用户的每人一份副本，
// 已读状态彼此独立。
type Notification struct {
	ID           string `bson:"_id" json:"id"`
	ActivityID   string `bson:"activity_id" json:"activityId"`
	RecipientID  string `bson:"recipient_id" json:"recipientId"`
	ActivityType string `bson:"activity_type" json:"activityType"`
	Actor        string `bson:"actor" json:"actor"`
	ResourceType string `bson:"resource_type" json:"resourceType"`
	ResourceID   string `bson:"resource_id" json:"resourceId"`
	Description  string `bson:"description,omitempty" json:"description,omitempty"`
	CreatedAt    int64  `bson:"created_at" json:"createdAt"`
	IsRead       bool   `bson:"is_read" json:"isRead"`
	ReadAt       int64  `bson:"read_at,omitempty" json:"readAt,omitempty"`
}

// NotificationFor 给单个收件人生成副本。
func NotificationFor(act Activity, notifID, recipient string) Notification {
	return Notification{
		ID:           notifID,
		ActivityID:   act.ID,
		RecipientID:  recipient,
		ActivityType: act.ActivityType,
		Actor:        act.Actor,
		ResourceType: act.ResourceType,
		ResourceID:   act.ResourceID,
		Description:  act.Description,
		CreatedAt:    act.CreatedAt,
	}
}
