package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-voting-backend/mq"
)

// 全局邮件队列适配器，main在启动时注入
var mailQueue *mq.Adapter

// SetMailQueue 注入邮件消息队列适配器，可为nil（队列不可用）
func SetMailQueue(adapter *mq.Adapter) {
	mailQueue = adapter
}

// GetMailQueueStats 返回邮件队列各队列的消息数量
func GetMailQueueStats(c *gin.Context) {
	if mailQueue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "mail queue is not available"})
		return
	}
	c.JSON(http.StatusOK, mailQueue.GetQueueStats())
}

// RetryMailDeadLetters 把死信队列中的邮件消息移回主队列重新投递
func RetryMailDeadLetters(c *gin.Context) {
	if mailQueue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "mail queue is not available"})
		return
	}

	if err := mailQueue.RetryDeadLetters(); err != nil {
		log.Printf("重试死信队列失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "dead letters moved back to the mail queue",
		"stats":   mailQueue.GetQueueStats(),
	})
}
