package handlers

import (
	"context"
	"time"

	"collabcore/logger"
	"collabcore/module/activity"
	"collabcore/module/comment"
	"collabcore/service/collab"
	errs "collabcore/tools/errs"
)

const storeTimeout = 5 * time.Second

// CommentHandlers 评论相关消息的落库 + 扇出。写穿成功才广播：
// socket 只是通知通道，持久化先行。
type CommentHandlers struct {
	srv    *collab.Server
	store  *comment.Store
	fanout *activity.Fanout
	lookup comment.UserLookup
}

func RegisterComment(srv *collab.Server, store *comment.Store, fanout *activity.Fanout, lookup comment.UserLookup) *CommentHandlers {
	h := &CommentHandlers{srv: srv, store: store, fanout: fanout, lookup: lookup}
	d := srv.Disp()
	d.On(collab.MsgCommentAdded, h.handleAdd)
	d.On(collab.MsgCommentUpdated, h.handleUpdate)
	d.On(collab.MsgCommentDeleted, h.handleDelete)
	d.On(collab.MsgReactionAdded, h.handleReact)
	d.On(collab.MsgReactionRemoved, h.handleUnreact)
	return h
}

// ---- payloads ----

type CommentAddPayload struct {
	Content     string                `json:"content"`
	ParentID    string                `json:"parentId,omitempty"`
	Mentions    []comment.MentionSpan `json:"mentions,omitempty"`
	Attachments []comment.Attachment  `json:"attachments,omitempty"`
}

type CommentUpdatePayload struct {
	ID       string                `json:"id"`
	Content  string                `json:"content,omitempty"`
	Mentions []comment.MentionSpan `json:"mentions,omitempty"`
	Resolve  bool                  `json:"resolve,omitempty"`
}

type CommentDeletePayload struct {
	ID string `json:"id"`
}

type ReactionPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type CommentEventPayload struct {
	Comment *comment.Comment `json:"comment,omitempty"`
	ID      string           `json:"id,omitempty"`
	Removed bool             `json:"removed,omitempty"`
	Counts  map[string]int   `json:"counts,omitempty"`
}

// ---- handlers ----

func (h *CommentHandlers) handleAdd(sess *collab.Session, env *collab.Envelope) error {
	if sess.Room() == "" {
		return errs.NewCodeError(errs.CodeNotInRoom, "join a room first")
	}
	in, err := collab.DecodePayload[CommentAddPayload](env)
	if err != nil {
		return errs.NewCodeError(errs.CodeBadEnvelope, "bad COMMENT_ADDED payload")
	}
	rt, rid := sess.Room().Resource()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	c, err := h.store.Create(ctx, comment.CreateInput{
		Content:      in.Content,
		ResourceType: rt,
		ResourceID:   rid,
		ParentID:     in.ParentID,
		AuthorID:     sess.UserID,
		Mentions:     in.Mentions,
		Attachments:  in.Attachments,
	}, h.lookup)
	if err != nil {
		return asCodeError(err)
	}

	view := c.ServedView()
	h.srv.BroadcastRoom(env.Room, collab.NewEnvelope(collab.MsgCommentAdded, env.Room, sess.UserID,
		CommentEventPayload{Comment: &view}), sess.SessionID)

	h.record(ctx, sess, activity.TypeCommentAdded, c, "commented")
	return nil
}

func (h *CommentHandlers) handleUpdate(sess *collab.Session, env *collab.Envelope) error {
	if sess.Room() == "" {
		return errs.NewCodeError(errs.CodeNotInRoom, "join a room first")
	}
	in, err := collab.DecodePayload[CommentUpdatePayload](env)
	if err != nil {
		return errs.NewCodeError(errs.CodeBadEnvelope, "bad COMMENT_UPDATED payload")
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var c *comment.Comment
	actType := activity.TypeCommentUpdated
	verb := "edited a comment"
	if in.Resolve {
		c, err = h.store.Resolve(ctx, in.ID, sess.UserID)
		actType = activity.TypeCommentResolved
		verb = "resolved a thread"
	} else {
		c, err = h.store.Update(ctx, in.ID, sess.UserID, in.Content, in.Mentions, h.lookup)
	}
	if err != nil {
		return asCodeError(err)
	}

	view := c.ServedView()
	h.srv.BroadcastRoom(env.Room, collab.NewEnvelope(collab.MsgCommentUpdated, env.Room, sess.UserID,
		CommentEventPayload{Comment: &view}), sess.SessionID)

	h.record(ctx, sess, actType, c, verb)
	return nil
}

func (h *CommentHandlers) handleDelete(sess *collab.Session, env *collab.Envelope) error {
	if sess.Room() == "" {
		return errs.NewCodeError(errs.CodeNotInRoom, "join a room first")
	}
	in, err := collab.DecodePayload[CommentDeletePayload](env)
	if err != nil {
		return errs.NewCodeError(errs.CodeBadEnvelope, "bad COMMENT_DELETED payload")
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	c, removed, err := h.store.SoftDelete(ctx, in.ID, sess.UserID)
	if err != nil {
		return asCodeError(err)
	}

	h.srv.BroadcastRoom(env.Room, collab.NewEnvelope(collab.MsgCommentDeleted, env.Room, sess.UserID,
		CommentEventPayload{ID: in.ID, Removed: removed}), sess.SessionID)

	h.record(ctx, sess, activity.TypeCommentDeleted, c, "deleted a comment")
	return nil
}

func (h *CommentHandlers) handleReact(sess *collab.Session, env *collab.Envelope) error {
	return h.reaction(sess, env, true)
}

func (h *CommentHandlers) handleUnreact(sess *collab.Session, env *collab.Envelope) error {
	return h.reaction(sess, env, false)
}

func (h *CommentHandlers) reaction(sess *collab.Session, env *collab.Envelope, add bool) error {
	if sess.Room() == "" {
		return errs.NewCodeError(errs.CodeNotInRoom, "join a room first")
	}
	in, err := collab.DecodePayload[ReactionPayload](env)
	if err != nil {
		return errs.NewCodeError(errs.CodeBadEnvelope, "bad reaction payload")
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var c *comment.Comment
	var changed bool
	if add {
		c, changed, err = h.store.React(ctx, in.ID, sess.UserID, in.Type)
	} else {
		c, changed, err = h.store.Unreact(ctx, in.ID, sess.UserID, in.Type)
	}
	if err != nil {
		return asCodeError(err)
	}
	if !changed {
		return nil // 重复 react/unreact 幂等，无事发生就不广播
	}

	t := collab.MsgReactionAdded
	if !add {
		t = collab.MsgReactionRemoved
	}
	h.srv.BroadcastRoom(env.Room, collab.NewEnvelope(t, env.Room, sess.UserID,
		CommentEventPayload{ID: in.ID, Counts: comment.ReactionCounts(c.Reactions)}), sess.SessionID)

	if add {
		h.record(ctx, sess, activity.TypeReactionAdded, c, "reacted")
	}
	return nil
}

// record 评论作者 + 被 @ 的用户 + 线程参与者进收件人集合，由
// mention/线程数据给出，绝不从 presence 反推。
func (h *CommentHandlers) record(ctx context.Context, sess *collab.Session, actType string, c *comment.Comment, desc string) {
	if h.fanout == nil || c == nil {
		return
	}
	recipients := comment.MentionedUserIDs(c.Mentions)
	root := c.ID
	if c.ParentID != "" {
		root = c.ParentID
	}
	if participants, err := h.store.ThreadParticipants(ctx, root); err == nil {
		recipients = append(recipients, participants...)
	}

	act, err := h.fanout.RecordActivity(ctx, activity.Activity{
		ActivityType: actType,
		Actor:        sess.UserID,
		ResourceType: c.ResourceType,
		ResourceID:   c.ResourceID,
		TargetID:     c.ID,
		Description:  desc,
	}, recipients)
	if err != nil {
		logger.Warnf("[comment] record activity: %v", err)
		return
	}

	// 活动流同时进房间：在场的人不用等拉取就能刷新 feed
	room := sess.Room().String()
	h.srv.BroadcastRoom(room, collab.NewEnvelope(collab.MsgActivity, room, sess.UserID, act), sess.SessionID)
}

func asCodeError(err error) error {
	if ce, ok := err.(*errs.CodeError); ok {
		return ce
	}
	return errs.NewCodeError(errs.CodeInternal, "storage error")
}
