package global

import (
	"os"
	"strconv"
	"time"

	"collabcore/logger"
	"collabcore/tools/ids"
)

// AppConfig 协作节点配置。多实例部署时 NodeId 必须唯一（参与
// NATS 自发消息过滤与 redis presence 镜像 key）。
type AppConfig struct {
	NodeId   string
	Port     int
	WSPath   string
	JwtKey   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoURI string
	MongoDB  string

	NatsServers []string

	KafkaBrokers    []string
	ActivityTopic   string // 活动审计 topic，分析侧消费
	PresenceTimeout time.Duration
	SweepEvery      time.Duration
	LockTTL         time.Duration
}

var Global = AppConfig{
	NodeId:          "collab_1",
	Port:            8080,
	WSPath:          "/collab",
	JwtKey:          "mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o=",
	RedisAddr:       "127.0.0.1:6379",
	RedisPassword:   "",
	RedisDB:         0,
	MongoURI:        "mongodb://127.0.0.1:27017",
	MongoDB:         "collab",
	NatsServers:     []string{"nats://127.0.0.1:4222"},
	KafkaBrokers:    []string{"127.0.0.1:9092"},
	ActivityTopic:   "collab_activity_audit",
	PresenceTimeout: 30 * time.Second,
	SweepEvery:      10 * time.Second,
	LockTTL:         60 * time.Second,
}

// ConfigAll 读取环境变量覆盖默认值，并初始化 id 生成器。
func ConfigAll() {
	ConfigEnv()
	ConfigIds()
}

func ConfigEnv() {
	if v := os.Getenv("COLLAB_NODE_ID"); v != "" {
		Global.NodeId = v
	}
	if v := os.Getenv("COLLAB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			Global.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		Global.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		Global.RedisPassword = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		Global.MongoURI = v
	}
	if v := os.Getenv("MONGO_DB"); v != "" {
		Global.MongoDB = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		Global.NatsServers = []string{v}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		Global.KafkaBrokers = []string{v}
	}
	if v := os.Getenv("COLLAB_JWT_KEY"); v != "" {
		Global.JwtKey = v
	}
}

func ConfigIds() {
	logger.Infof("config snowflake id generator")
	ids.SetNodeID(100)
}

func GetJwtSecret() []byte {
	return []byte(Global.JwtKey)
}
