package user

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// 身份目录是外部协作方（主应用的用户表），这里只读。
// mention 解析用：handle -> userId。

type record struct {
	ID     string `bson:"_id"`
	Handle string `bson:"handle"`
}

type Directory struct {
	Coll *mongo.Collection
}

func NewDirectory(db *mongo.Database) *Directory {
	return &Directory{Coll: db.Collection("users")}
}

// LookupUser 实现 comment.UserLookup。查不到（或超时）按未解析
// 处理，标识符原样入库。
func (d *Directory) LookupUser(identifier string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var rec record
	err := d.Coll.FindOne(ctx, bson.M{"$or": bson.A{
		bson.M{"_id": identifier},
		bson.M{"handle": identifier},
	}}).Decode(&rec)
	if err != nil {
		return "", false
	}
	return rec.ID, true
}
