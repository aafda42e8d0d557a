package mq

import (
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"campus-voting-backend/cache"
)

// MQType 消息队列类型
type MQType string

const (
	TypeRocketMQ MQType = "rocketmq"
	TypeRedisMQ  MQType = "redis"
)

// Adapter 邮件消息队列适配器，屏蔽底层MQ实现差异
type Adapter struct {
	mqType  MQType
	redisMQ *RedisMQ
}

// NewAdapter 根据环境变量MQ_TYPE选择消息队列实现，默认使用Redis
func NewAdapter() *Adapter {
	mqType := TypeRedisMQ
	if os.Getenv("MQ_TYPE") == string(TypeRocketMQ) {
		mqType = TypeRocketMQ
	}
	return &Adapter{mqType: mqType}
}

// Initialize 初始化底层消息队列
func (a *Adapter) Initialize() error {
	switch a.mqType {
	case TypeRocketMQ:
		if err := InitRocketMQ(); err != nil {
			log.Printf("RocketMQ初始化失败，降级使用Redis队列: %v", err)
			a.mqType = TypeRedisMQ
			return a.initRedisMQ()
		}
		log.Println("使用RocketMQ作为邮件消息队列")
		return nil
	default:
		return a.initRedisMQ()
	}
}

func (a *Adapter) initRedisMQ() error {
	client, err := cache.GetClient()
	if err != nil {
		return fmt.Errorf("Redis客户端不可用，无法初始化邮件队列: %v", err)
	}
	a.redisMQ = NewRedisMQ(client)
	log.Println("使用Redis列表作为邮件消息队列")
	return nil
}

// RegisterHandler 注册邮件发送处理函数并启动消费者
func (a *Adapter) RegisterHandler(handler func(email, code string) error) error {
	switch a.mqType {
	case TypeRocketMQ:
		return StartRocketConsumer(handler)
	default:
		a.redisMQ.RegisterHandler(handler)
		return a.redisMQ.Start()
	}
}

// SendMailMessage 发送一次性验证码邮件消息
func (a *Adapter) SendMailMessage(email, code string) error {
	messageID := uuid.New().String()

	switch a.mqType {
	case TypeRocketMQ:
		return SendRocketMailMessage(email, code, messageID)
	default:
		return a.redisMQ.SendMailMessage(email, code, messageID)
	}
}

// GetQueueStats 获取队列统计信息（仅Redis队列支持）
func (a *Adapter) GetQueueStats() map[string]int64 {
	if a.mqType == TypeRedisMQ && a.redisMQ != nil {
		return a.redisMQ.GetQueueStats()
	}
	return map[string]int64{}
}

// RetryDeadLetters 把死信队列中的消息移回主队列（仅Redis队列支持，
// RocketMQ的重试由broker端负责）
func (a *Adapter) RetryDeadLetters() error {
	if a.mqType == TypeRedisMQ && a.redisMQ != nil {
		return a.redisMQ.RetryDeadLetters()
	}
	return fmt.Errorf("当前消息队列不支持死信重试")
}

// Close 关闭消息队列
func (a *Adapter) Close() {
	switch a.mqType {
	case TypeRocketMQ:
		ShutdownRocketMQ()
	default:
		if a.redisMQ != nil {
			a.redisMQ.Stop()
		}
	}
}
