package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
)

// MailMessage 表示一封待投递的验证码邮件
type MailMessage struct {
	Email     string `json:"email"`
	Code      string `json:"code"`
	Timestamp int64  `json:"timestamp"`
	MessageID string `json:"message_id"` // 用于幂等性处理
}

// 全局RocketMQ生产者和消费者
var (
	rocketProducer rocketmq.Producer
	rocketConsumer rocketmq.PushConsumer
	rocketInitOnce sync.Once
	rocketReady    bool
)

// 主题常量
const (
	TopicMailEvents = "otp_mail_events"
)

// InitRocketMQ 初始化RocketMQ生产者
func InitRocketMQ() error {
	var initErr error

	rocketInitOnce.Do(func() {
		// 从环境变量获取RocketMQ地址
		nameServerAddr := os.Getenv("ROCKETMQ_NAMESRV_ADDR")
		if nameServerAddr == "" {
			nameServerAddr = "localhost:9876"
		}

		log.Printf("初始化RocketMQ连接, 地址: %s", nameServerAddr)

		p, err := rocketmq.NewProducer(
			producer.WithNameServer([]string{nameServerAddr}),
			producer.WithGroupName("otp_mail_producer"),
			producer.WithRetry(2),
			producer.WithSendMsgTimeout(time.Second*10),
			producer.WithVIPChannel(false),
		)
		if err != nil {
			initErr = fmt.Errorf("创建RocketMQ生产者失败: %v", err)
			return
		}

		if err := p.Start(); err != nil {
			initErr = fmt.Errorf("启动RocketMQ生产者失败: %v", err)
			return
		}

		rocketProducer = p
		rocketReady = true
		log.Println("RocketMQ生产者初始化成功")
	})

	return initErr
}

// SendRocketMailMessage 发送邮件消息到RocketMQ
func SendRocketMailMessage(email, code, messageID string) error {
	if !rocketReady {
		return fmt.Errorf("RocketMQ生产者未初始化")
	}

	msg := MailMessage{
		Email:     email,
		Code:      code,
		Timestamp: time.Now().Unix(),
		MessageID: messageID,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %v", err)
	}

	message := primitive.NewMessage(TopicMailEvents, body)
	message.WithTag("otp_mail")
	// 消息键用于去重，分区键保证同一邮箱的消息顺序
	message.WithKeys([]string{messageID})
	message.WithShardingKey(email)

	res, err := rocketProducer.SendSync(context.Background(), message)
	if err != nil {
		return fmt.Errorf("发送消息失败: %v", err)
	}

	log.Printf("发送邮件消息成功, MsgID: %s, MessageID: %s", res.MsgID, messageID)
	return nil
}

// StartRocketConsumer 注册并启动RocketMQ消费者
func StartRocketConsumer(handler func(email, code string) error) error {
	nameServerAddr := os.Getenv("ROCKETMQ_NAMESRV_ADDR")
	if nameServerAddr == "" {
		nameServerAddr = "localhost:9876"
	}

	c, err := rocketmq.NewPushConsumer(
		consumer.WithNameServer([]string{nameServerAddr}),
		consumer.WithGroupName("otp_mail_consumer"),
		consumer.WithConsumerModel(consumer.Clustering),
	)
	if err != nil {
		return fmt.Errorf("创建RocketMQ消费者失败: %v", err)
	}

	err = c.Subscribe(TopicMailEvents, consumer.MessageSelector{},
		func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
			for _, m := range msgs {
				var msg MailMessage
				if err := json.Unmarshal(m.Body, &msg); err != nil {
					log.Printf("解析邮件消息失败: %v", err)
					continue
				}

				if err := handler(msg.Email, msg.Code); err != nil {
					log.Printf("处理邮件消息失败: %v", err)
					return consumer.ConsumeRetryLater, nil
				}
			}
			return consumer.ConsumeSuccess, nil
		})
	if err != nil {
		return fmt.Errorf("订阅主题失败: %v", err)
	}

	if err := c.Start(); err != nil {
		return fmt.Errorf("启动RocketMQ消费者失败: %v", err)
	}

	rocketConsumer = c
	log.Println("RocketMQ消费者已启动")
	return nil
}

// ShutdownRocketMQ 关闭RocketMQ生产者和消费者
func ShutdownRocketMQ() {
	if rocketConsumer != nil {
		_ = rocketConsumer.Shutdown()
	}
	if rocketProducer != nil {
		_ = rocketProducer.Shutdown()
	}
	rocketReady = false
}
