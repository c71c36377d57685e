package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

var rdb *redis.Client

func InitRedis(c Config) error {
	cli := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	if err := cli.Ping(context.Background()).Err(); err != nil {
		// ping 不通就不对外暴露客户端，调用方按 redis 缺席降级
		_ = cli.Close()
		return err
	}
	rdb = cli
	return nil
}

// SetClient 注入已有客户端（单测用 miniredis）。
func SetClient(c *redis.Client) { rdb = c }

func GetClient() *redis.Client { return rdb }
