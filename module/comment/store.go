package comment

import (
	"context"
	"time"

	errs "collabcore/tools/errs"
	"collabcore/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const collName = "collab_comment"

// Store 评论的持久层。先落库再广播：只有写穿成功的变更才会出现在
// 房间里。
type Store struct {
	Coll *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{Coll: db.Collection(collName)}
}

// CreateInput 创建入参；mention 在这里解析。
type CreateInput struct {
	Content      string
	ResourceType string
	ResourceID   string
	ParentID     string
	AuthorID     string
	Mentions     []MentionSpan
	Attachments  []Attachment
}

func (s *Store) Create(ctx context.Context, in CreateInput, lookup UserLookup) (*Comment, error) {
	now := time.Now().UnixMilli()

	if in.ParentID != "" {
		parent, err := s.Get(ctx, in.ParentID)
		if err != nil {
			return nil, err
		}
		// 只建模一层：对回复的回复挂到顶层评论下
		if parent.ParentID != "" {
			in.ParentID = parent.ParentID
		}
	}

	c := &Comment{
		ID:           ids.GenerateString(),
		Content:      in.Content,
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		ParentID:     in.ParentID,
		AuthorID:     in.AuthorID,
		Status:       StatusActive,
		Mentions:     ResolveMentions(in.Mentions, lookup),
		Attachments:  in.Attachments,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.Coll.InsertOne(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Comment, error) {
	var c Comment
	err := s.Coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, errs.NewCodeError(errs.CodeCommentMissing, "comment not found")
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Update 作者改正文；mention 重新解析。
func (s *Store) Update(ctx context.Context, id, editorID, content string, spans []MentionSpan, lookup UserLookup) (*Comment, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.AuthorID != editorID {
		return nil, errs.NewCodeError(errs.CodeNotAuthor, "only the author can edit")
	}
	now := time.Now().UnixMilli()
	mentions := ResolveMentions(spans, lookup)
	_, err = s.Coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"content":    content,
		"mentions":   mentions,
		"updated_at": now,
	}})
	if err != nil {
		return nil, err
	}
	cur.Content = content
	cur.Mentions = mentions
	cur.UpdatedAt = now
	return cur, nil
}

// Resolve 任何参与者都可以标记已解决。
func (s *Store) Resolve(ctx context.Context, id, resolverID string) (*Comment, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	_, err = s.Coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":      StatusResolved,
		"resolved_by": resolverID,
		"updated_at":  now,
	}})
	if err != nil {
		return nil, err
	}
	cur.Status = StatusResolved
	cur.ResolvedBy = resolverID
	cur.UpdatedAt = now
	return cur, nil
}

// SoftDelete 没有回复的评论整条移除；有回复的翻成 deleted 并保留
// 节点以维持线程可寻址。返回 removed=true 表示物理删除。
func (s *Store) SoftDelete(ctx context.Context, id, requesterID string) (c *Comment, removed bool, err error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if cur.AuthorID != requesterID {
		return nil, false, errs.NewCodeError(errs.CodeNotAuthor, "only the author can delete")
	}

	replies, err := s.Coll.CountDocuments(ctx, bson.M{"parent_id": id})
	if err != nil {
		return nil, false, err
	}
	if replies == 0 {
		if _, err := s.Coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
			return nil, false, err
		}
		return cur, true, nil
	}

	now := time.Now().UnixMilli()
	_, err = s.Coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":     StatusDeleted,
		"updated_at": now,
	}})
	if err != nil {
		return nil, false, err
	}
	cur.Status = StatusDeleted
	cur.UpdatedAt = now
	return cur, false, nil
}

// React 幂等加表情：filter 排除已存在的同 (user, type)，重复请求
// 不会产生第二条。
func (s *Store) React(ctx context.Context, id, userID, typ string) (*Comment, bool, error) {
	now := time.Now().UnixMilli()
	res, err := s.Coll.UpdateOne(ctx,
		bson.M{"_id": id, "reactions": bson.M{"$not": bson.M{"$elemMatch": bson.M{"user_id": userID, "type": typ}}}},
		bson.M{
			"$push": bson.M{"reactions": Reaction{Type: typ, UserID: userID, CreatedAt: now}},
			"$set":  bson.M{"updated_at": now},
		})
	if err != nil {
		return nil, false, err
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return cur, res.ModifiedCount > 0, nil
}

func (s *Store) Unreact(ctx context.Context, id, userID, typ string) (*Comment, bool, error) {
	now := time.Now().UnixMilli()
	res, err := s.Coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$pull": bson.M{"reactions": bson.M{"user_id": userID, "type": typ}},
			"$set":  bson.M{"updated_at": now},
		})
	if err != nil {
		return nil, false, err
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return cur, res.ModifiedCount > 0, nil
}

// ListThread 资源下的全部线程（含 resolved 与 deleted 占位）。
func (s *Store) ListThread(ctx context.Context, resourceType, resourceID string) ([]CommentThread, error) {
	cursor, err := s.Coll.Find(ctx, bson.M{
		"resource_type": resourceType,
		"resource_id":   resourceID,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var all []Comment
	if err := cursor.All(ctx, &all); err != nil {
		return nil, err
	}
	return BuildThreads(all), nil
}

// ThreadParticipants 线程里出现过的作者集合（通知收件人来源之一）。
func (s *Store) ThreadParticipants(ctx context.Context, threadRootID string) ([]string, error) {
	cursor, err := s.Coll.Find(ctx, bson.M{"$or": bson.A{
		bson.M{"_id": threadRootID},
		bson.M{"parent_id": threadRootID},
	}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var all []Comment
	if err := cursor.All(ctx, &all); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, c := range all {
		if _, ok := seen[c.AuthorID]; ok {
			continue
		}
		seen[c.AuthorID] = struct{}{}
		out = append(out, c.AuthorID)
	}
	return out, nil
}
