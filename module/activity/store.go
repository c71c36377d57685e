package activity

import (
	"context"
	"time"

	"collabcore/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	activityColl     = "collab_activity"
	notificationColl = "collab_notification"
)

type Store struct {
	ActColl   *mongo.Collection
	NotifColl *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		ActColl:   db.Collection(activityColl),
		NotifColl: db.Collection(notificationColl),
	}
}

// InsertActivity 补齐 id/时间并落库。
func (s *Store) InsertActivity(ctx context.Context, act *Activity) error {
	if act.ID == "" {
		act.ID = ids.GenerateString()
	}
	if act.CreatedAt == 0 {
		act.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.ActColl.InsertOne(ctx, act)
	return err
}

// InsertNotifications 批量写入每收件人副本。
func (s *Store) InsertNotifications(ctx context.Context, notifs []Notification) error {
	if len(notifs) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(notifs))
	for _, n := range notifs {
		docs = append(docs, n)
	}
	_, err := s.NotifColl.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

// MarkRead 单条已读；每个收件人只能动自己的。
func (s *Store) MarkRead(ctx context.Context, notifID, recipientID string) error {
	_, err := s.NotifColl.UpdateOne(ctx,
		bson.M{"_id": notifID, "recipient_id": recipientID},
		bson.M{"$set": bson.M{"is_read": true, "read_at": time.Now().UnixMilli()}})
	return err
}

func (s *Store) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	return s.NotifColl.CountDocuments(ctx, bson.M{"recipient_id": recipientID, "is_read": false})
}

// ListNotifications 离线收件人重连后的拉取入口，新的在前。
func (s *Store) ListNotifications(ctx context.Context, recipientID string, limit int64) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	cursor, err := s.NotifColl.Find(ctx,
		bson.M{"recipient_id": recipientID},
		options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Notification
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
