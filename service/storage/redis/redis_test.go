package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Cleanup(func() { SetClient(nil) })

	if err := InitRedis(Config{Addr: mr.Addr()}); err != nil {
		t.Fatalf("InitRedis: %v", err)
	}
	if GetClient() == nil {
		t.Fatalf("client should be exposed after a successful ping")
	}
}

func TestInitRedisPingFailure(t *testing.T) {
	SetClient(nil)
	t.Cleanup(func() { SetClient(nil) })

	// 端口 0 拨不通；ping 失败时不得暴露半初始化的客户端
	if err := InitRedis(Config{Addr: "127.0.0.1:0"}); err == nil {
		t.Fatalf("InitRedis against a dead address should error")
	}
	if GetClient() != nil {
		t.Fatalf("failed init must leave no client behind")
	}
}
