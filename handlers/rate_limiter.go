package handlers

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// 全局限流器
var (
	globalLimiter    *rate.Limiter
	rateLimitEnabled bool
	limitStatistics  = make(map[string]int64)
	limitStatsLock   = &sync.RWMutex{}
	limiterConfig    = RateLimiterConfig{
		GlobalRate:  100,
		GlobalBurst: 200,
	}
)

// RateLimiterConfig 限流器配置结构
type RateLimiterConfig struct {
	Enabled     bool `json:"enabled"`
	GlobalRate  int  `json:"globalRate"`
	GlobalBurst int  `json:"globalBurst"`
}

// RateLimiterStats 限流器统计信息
type RateLimiterStats struct {
	TotalRequests    int64             `json:"totalRequests"`
	AllowedRequests  int64             `json:"allowedRequests"`
	RejectedRequests int64             `json:"rejectedRequests"`
	Config           RateLimiterConfig `json:"config"`
}

// InitRateLimiters 初始化限流器
func InitRateLimiters() {
	if os.Getenv("ENABLE_RATE_LIMIT") == "true" {
		rateLimitEnabled = true
	}

	if rateStr := os.Getenv("GLOBAL_RATE_LIMIT"); rateStr != "" {
		if r, err := strconv.Atoi(rateStr); err == nil && r > 0 {
			limiterConfig.GlobalRate = r
			limiterConfig.GlobalBurst = r * 2
		}
	}

	limiterConfig.Enabled = rateLimitEnabled

	if rateLimitEnabled {
		globalLimiter = rate.NewLimiter(rate.Limit(limiterConfig.GlobalRate), limiterConfig.GlobalBurst)

		limitStatsLock.Lock()
		limitStatistics = map[string]int64{
			"total":    0,
			"allowed":  0,
			"rejected": 0,
		}
		limitStatsLock.Unlock()

		log.Printf("限流器已初始化：全局速率=%d/秒，突发=%d", limiterConfig.GlobalRate, limiterConfig.GlobalBurst)
	}
}

// RateLimitMiddleware 限流中间件
func RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 如果限流未启用，直接通过
		if !rateLimitEnabled || globalLimiter == nil {
			c.Next()
			return
		}

		limitStatsLock.Lock()
		limitStatistics["total"]++
		limitStatsLock.Unlock()

		if !globalLimiter.Allow() {
			limitStatsLock.Lock()
			limitStatistics["rejected"]++
			limitStatsLock.Unlock()

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please try again later",
			})
			c.Abort()
			return
		}

		limitStatsLock.Lock()
		limitStatistics["allowed"]++
		limitStatsLock.Unlock()

		c.Next()
	}
}

// GetRateLimiterStats 获取限流器状态
func GetRateLimiterStats(c *gin.Context) {
	limitStatsLock.RLock()
	stats := RateLimiterStats{
		TotalRequests:    limitStatistics["total"],
		AllowedRequests:  limitStatistics["allowed"],
		RejectedRequests: limitStatistics["rejected"],
		Config:           limiterConfig,
	}
	limitStatsLock.RUnlock()

	c.JSON(http.StatusOK, stats)
}
