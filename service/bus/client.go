package bus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Config NATS 连接配置。
type Config struct {
	Servers       []string
	Name          string // 连接名，一般用节点 ID
	MaxReconnects int
	ReconnectWait time.Duration
}

func (c *Config) norm() {
	if len(c.Servers) == 0 {
		c.Servers = []string{nats.DefaultURL}
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1 // 底层连接无限重连，房间流量可丢但连接要自愈
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
}

type Client struct {
	nc   *nats.Conn
	name string
}

func NewClient(cfg Config) (*Client, error) {
	cfg.norm()
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	}
	nc, err := nats.Connect(joinServers(cfg.Servers), opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Client{nc: nc, name: cfg.Name}, nil
}

func (c *Client) Conn() *nats.Conn { return c.nc }

func (c *Client) Close() error {
	if c == nil || c.nc == nil {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return err
	}
	return nil
}

func joinServers(servers []string) string {
	out := ""
	for i, s := range servers {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
