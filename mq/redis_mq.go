package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMQ 是基于Redis List实现的邮件消息队列
type RedisMQ struct {
	client            *redis.Client
	ctx               context.Context
	processHandler    func(email, code string) error
	isRunning         bool
	stopChan          chan struct{}
	wg                sync.WaitGroup
	processingTimeout time.Duration // 消息处理超时时间
	retryDelay        time.Duration // 重试延迟
	maxRetries        int           // 最大重试次数
}

// 消息队列的队列名称常量
const (
	MainQueueName       = "otp_mail_queue"       // 主队列
	ProcessingQueueName = "otp_mail_processing"  // 处理中队列
	DeadLetterQueueName = "otp_mail_dead_letter" // 死信队列
	RetriesHashName     = "otp_mail_retries"     // 重试次数记录
	ProcessedSetName    = "otp_mail_message_ids" // 幂等性集合
)

// NewRedisMQ 创建基于Redis的邮件消息队列
func NewRedisMQ(redisClient *redis.Client) *RedisMQ {
	return &RedisMQ{
		client:            redisClient,
		ctx:               context.Background(),
		isRunning:         false,
		stopChan:          make(chan struct{}),
		processingTimeout: 5 * time.Minute,
		retryDelay:        30 * time.Second,
		maxRetries:        3,
	}
}

// RegisterHandler 注册消息处理函数
func (r *RedisMQ) RegisterHandler(handler func(email, code string) error) {
	r.processHandler = handler
}

// SendMailMessage 发送邮件消息
func (r *RedisMQ) SendMailMessage(email, code, messageID string) error {
	msg := MailMessage{
		Email:     email,
		Code:      code,
		Timestamp: time.Now().Unix(),
		MessageID: messageID,
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %v", err)
	}

	// 幂等性检查 - 同一消息ID只入队一次
	exists, err := r.client.SIsMember(r.ctx, ProcessedSetName, messageID).Result()
	if err != nil {
		// 继续处理，不因此阻止业务 - 但记录错误
		log.Printf("检查消息幂等性出错: %v", err)
	} else if exists {
		log.Printf("消息已入队过，跳过: %s", messageID)
		return nil
	}

	// 添加消息ID到集合，用于幂等性检查
	if err := r.client.SAdd(r.ctx, ProcessedSetName, messageID).Err(); err != nil {
		log.Printf("添加消息ID到幂等性集合出错: %v", err)
	}
	// 设置过期时间，避免集合无限增长
	r.client.Expire(r.ctx, ProcessedSetName, 48*time.Hour)

	// 发送消息到主队列
	if err := r.client.LPush(r.ctx, MainQueueName, jsonData).Err(); err != nil {
		return fmt.Errorf("发送消息到队列失败: %v", err)
	}

	log.Printf("邮件消息成功入队: %s, 消息ID: %s", MainQueueName, messageID)
	return nil
}

// Start 启动消费者
func (r *RedisMQ) Start() error {
	if r.processHandler == nil {
		return fmt.Errorf("处理函数未注册")
	}

	if r.isRunning {
		return nil // 已经在运行中
	}

	r.isRunning = true

	// 启动主消费循环
	r.wg.Add(1)
	go r.consumeLoop()

	// 启动处理中消息的超时检查
	r.wg.Add(1)
	go r.timeoutCheckLoop()

	log.Println("Redis邮件队列消费者已启动")
	return nil
}

// Stop 关闭消费者
func (r *RedisMQ) Stop() {
	if !r.isRunning {
		return
	}

	close(r.stopChan)
	r.wg.Wait()
	r.isRunning = false
	log.Println("Redis邮件队列消费者已关闭")
}

// consumeLoop 主消费循环
func (r *RedisMQ) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopChan:
			return
		default:
			// 使用BRPOPLPUSH原子操作从主队列获取并移动到处理中队列
			result, err := r.client.BRPopLPush(r.ctx, MainQueueName, ProcessingQueueName, 1*time.Second).Result()

			if err != nil {
				if err != redis.Nil { // 忽略超时错误
					log.Printf("从队列获取消息失败: %v", err)
				}
				continue
			}

			// 异步处理消息
			go r.processMessage(result)
		}
	}
}

// timeoutCheckLoop 超时检查循环
func (r *RedisMQ) timeoutCheckLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.checkTimeouts()
		}
	}
}

// checkTimeouts 把处理超时的消息重新入队或移入死信队列
func (r *RedisMQ) checkTimeouts() {
	messages, err := r.client.LRange(r.ctx, ProcessingQueueName, 0, -1).Result()
	if err != nil {
		log.Printf("获取处理中队列消息失败: %v", err)
		return
	}

	now := time.Now().Unix()

	for _, msgData := range messages {
		var msg MailMessage
		if err := json.Unmarshal([]byte(msgData), &msg); err != nil {
			log.Printf("解析消息数据失败: %v", err)
			continue
		}

		if now-msg.Timestamp > int64(r.processingTimeout.Seconds()) {
			r.retryOrDeadLetter(msg, msgData)
		}
	}
}

// processMessage 处理单个消息
func (r *RedisMQ) processMessage(msgData string) {
	var msg MailMessage
	if err := json.Unmarshal([]byte(msgData), &msg); err != nil {
		log.Printf("解析消息失败: %v", err)
		r.moveToDeadLetter(msgData)
		return
	}

	// 调用处理函数
	if err := r.processHandler(msg.Email, msg.Code); err != nil {
		log.Printf("处理邮件消息失败: %v", err)
		r.retryOrDeadLetter(msg, msgData)
	} else {
		log.Printf("邮件消息处理成功: %s", msg.MessageID)
	}

	// 无论成功失败，都从处理中队列移除
	r.client.LRem(r.ctx, ProcessingQueueName, 1, msgData)
}

// retryOrDeadLetter 根据重试次数决定重新入队还是移入死信队列
func (r *RedisMQ) retryOrDeadLetter(msg MailMessage, msgData string) {
	retries, _ := r.client.HGet(r.ctx, RetriesHashName, msg.MessageID).Int()

	if retries >= r.maxRetries {
		log.Printf("消息 %s 超过最大重试次数，移至死信队列", msg.MessageID)
		r.moveToDeadLetter(msgData)
		return
	}

	// 增加重试计数
	r.client.HIncrBy(r.ctx, RetriesHashName, msg.MessageID, 1)

	// 更新时间戳
	msg.Timestamp = time.Now().Unix()
	updatedData, _ := json.Marshal(msg)

	// 从处理中队列删除
	r.client.LRem(r.ctx, ProcessingQueueName, 1, msgData)

	// 延迟一段时间后重新入队
	time.AfterFunc(r.retryDelay, func() {
		r.client.LPush(r.ctx, MainQueueName, updatedData)
		log.Printf("消息 %s 重新入队，重试次数: %d", msg.MessageID, retries+1)
	})
}

// moveToDeadLetter 将消息移动到死信队列
func (r *RedisMQ) moveToDeadLetter(msgData string) {
	r.client.LPush(r.ctx, DeadLetterQueueName, msgData)
	r.client.LRem(r.ctx, ProcessingQueueName, 1, msgData)
}

// RetryDeadLetters 重新处理死信队列中的消息
func (r *RedisMQ) RetryDeadLetters() error {
	messages, err := r.client.LRange(r.ctx, DeadLetterQueueName, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("获取死信队列消息失败: %v", err)
	}

	count := 0
	for _, msgData := range messages {
		if err := r.client.LPush(r.ctx, MainQueueName, msgData).Err(); err != nil {
			log.Printf("重新入队消息失败: %v", err)
			continue
		}

		r.client.LRem(r.ctx, DeadLetterQueueName, 1, msgData)

		// 重置重试计数
		var msg MailMessage
		if json.Unmarshal([]byte(msgData), &msg) == nil {
			r.client.HDel(r.ctx, RetriesHashName, msg.MessageID)
		}

		count++
	}

	log.Printf("成功将 %d 条消息从死信队列移回主队列", count)
	return nil
}

// GetQueueStats 获取各队列的消息数量统计
func (r *RedisMQ) GetQueueStats() map[string]int64 {
	stats := make(map[string]int64)

	mainLen, _ := r.client.LLen(r.ctx, MainQueueName).Result()
	procLen, _ := r.client.LLen(r.ctx, ProcessingQueueName).Result()
	deadLen, _ := r.client.LLen(r.ctx, DeadLetterQueueName).Result()

	stats["main_queue"] = mainLen
	stats["processing_queue"] = procLen
	stats["dead_letter_queue"] = deadLen

	return stats
}
