package kafka

import (
	"fmt"
	"sync"

	"collabcore/logger"

	"github.com/Shopify/sarama"
)

// 活动审计管道的生产侧。协作层把每条 Activity 发到审计 topic，
// 分析侧自己消费自己的协作数据。投递失败只记日志，不影响协作路径。

var (
	mu       sync.RWMutex
	client   sarama.Client
	producer sarama.AsyncProducer
)

func InitKafkaClient(brokers []string) error {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Errors = true

	c, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return fmt.Errorf("new kafka client: %w", err)
	}
	p, err := sarama.NewAsyncProducerFromClient(c)
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("new async producer: %w", err)
	}

	mu.Lock()
	client = c
	producer = p
	mu.Unlock()

	go func() {
		for perr := range p.Errors() {
			logger.Warnf("[kafka] produce error topic=%s err=%v", perr.Msg.Topic, perr.Err)
		}
	}()
	return nil
}

// SendAsync 异步投递一条 key/value。未初始化时静默丢弃（审计流量
// 可丢，协作路径不等它）。
func SendAsync(topic, key string, value []byte) {
	mu.RLock()
	p := producer
	mu.RUnlock()
	if p == nil {
		return
	}
	p.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	if producer != nil {
		producer.AsyncClose()
		producer = nil
	}
	if client != nil {
		_ = client.Close()
		client = nil
	}
}
