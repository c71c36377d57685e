package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"collabcore/global"
	"collabcore/logger"
	"collabcore/module/activity"
	"collabcore/module/comment"
	"collabcore/module/user"
	"collabcore/service/bus"
	"collabcore/service/collab"
	"collabcore/service/collab/handlers"
	"collabcore/service/kafka"
	"collabcore/service/mgo"
	"collabcore/service/storage"
	rediscli "collabcore/service/storage/redis"

	"github.com/gin-gonic/gin"
)

func main() {
	global.ConfigAll()
	cfg := global.Global

	// 1) 外部依赖：缺谁降级谁，协作枢纽单机也能跑
	if err := rediscli.InitRedis(rediscli.Config{
		Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
	}); err != nil {
		logger.Warnf("init redis: %v (presence mirror disabled)", err)
	}

	if err := mgo.InitMongo(context.Background(), mgo.Config{
		URI: cfg.MongoURI, Database: cfg.MongoDB,
	}); err != nil {
		logger.Warnf("init mongo: %v (comments/notifications disabled)", err)
	}

	if err := kafka.InitKafkaClient(cfg.KafkaBrokers); err != nil {
		logger.Warnf("init kafka: %v (activity audit disabled)", err)
	}

	busMgr, err := bus.NewManager(bus.Config{Servers: cfg.NatsServers, Name: cfg.NodeId})
	if err != nil {
		logger.Warnf("init nats: %v (single-node mode)", err)
		busMgr = nil
	}

	// 2) 协作枢纽 + 房间生命周期挂钩（NATS 桥 + redis 在线镜像）
	mirror := storage.NewPresenceMirror(cfg.PresenceTimeout)
	var srv *collab.Server

	hooks := collab.RoomHooks{
		OnRoomOpen: func(room collab.RoomID) {
			if busMgr == nil {
				return
			}
			err := busMgr.Subscribe(roomSubject(room), func(_ context.Context, m bus.Message) error {
				srv.Rooms().ApplyRemote(room, m.Data)
				return nil
			})
			if err != nil {
				logger.Warnf("subscribe %s: %v", roomSubject(room), err)
			}
		},
		OnRoomClose: func(room collab.RoomID) {
			if busMgr != nil {
				busMgr.Unsubscribe(roomSubject(room))
			}
		},
		OnBroadcast: func(room collab.RoomID, data []byte) {
			if busMgr == nil {
				return
			}
			if err := busMgr.Publish(context.Background(), roomSubject(room), data, nil); err != nil {
				logger.Warnf("publish %s: %v", roomSubject(room), err)
			}
		},
		OnPresenceOnline: func(room collab.RoomID, userID string) {
			if rediscli.GetClient() == nil {
				return
			}
			_ = mirror.Online(context.Background(), room.String(), userID, cfg.NodeId)
		},
		OnPresenceOffline: func(room collab.RoomID, userID string) {
			if rediscli.GetClient() == nil {
				return
			}
			_ = mirror.Offline(context.Background(), room.String(), userID)
		},
		OnPresenceTouch: func(room collab.RoomID, userID string) {
			if rediscli.GetClient() == nil {
				return
			}
			_ = mirror.Touch(context.Background(), room.String(), userID)
		},
	}

	srv = collab.NewServer(collab.ServerConf{
		NodeID: cfg.NodeId,
		Registry: collab.RegistryConf{
			PresenceTimeout: cfg.PresenceTimeout,
			SweepEvery:      cfg.SweepEvery,
			DefaultLockTTL:  cfg.LockTTL,
		},
	}, hooks)

	// 3) 评论 / 通知（需要 mongo）
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(cfg.WSPath, srv.HandleWS)

	if db := mgo.GetDB(); db != nil {
		commentStore := comment.NewStore(db)
		activityStore := activity.NewStore(db)
		fanout := activity.NewFanout(activityStore, handlers.NewDeliver(srv), cfg.ActivityTopic)
		handlers.RegisterComment(srv, commentStore, fanout, user.NewDirectory(db))

		r.GET("/comments", comment.HandlerListThread(commentStore))
		r.GET("/notifications", activity.HandlerListNotifications(activityStore))
		r.POST("/notifications/:id/read", activity.HandlerMarkRead(activityStore))
	}

	logger.Infof("[HTTP] node=%s listening on :%d ws=%s", cfg.NodeId, cfg.Port, cfg.WSPath)
	if err := r.Run(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}

// roomSubject 每房间一个 NATS 主题：collab.room.<type>.<id>。
func roomSubject(room collab.RoomID) string {
	rt, rid := room.Resource()
	// NATS 主题里 "." 是分隔符，资源 id 里出现要转义
	rid = strings.ReplaceAll(rid, ".", "_")
	return "collab.room." + rt + "." + rid
}
