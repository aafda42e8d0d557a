package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore 基于Redis的验证码存储，TTL由Redis负责，
// 进程重启和水平扩展都不丢状态
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建Redis验证码存储
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func codeKey(email string) string {
	return fmt.Sprintf("otp:code:%s", email)
}

func verifiedKey(email string) string {
	return fmt.Sprintf("otp:verified:%s", email)
}

// SaveCode 保存验证码，SET自带覆盖语义
func (s *RedisStore) SaveCode(ctx context.Context, email, code string, ttl time.Duration) error {
	return s.client.Set(ctx, codeKey(email), code, ttl).Err()
}

// ConsumeCode 校验并消费验证码
func (s *RedisStore) ConsumeCode(ctx context.Context, email, code string) (bool, error) {
	stored, err := s.client.Get(ctx, codeKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		// 不存在或已过期，过期记录由Redis自动清除
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if stored != code {
		return false, nil
	}

	// 匹配成功，删除记录保证一次性
	if err := s.client.Del(ctx, codeKey(email)).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// SetVerified 标记邮箱已验证
func (s *RedisStore) SetVerified(ctx context.Context, email string, ttl time.Duration) error {
	return s.client.Set(ctx, verifiedKey(email), "1", ttl).Err()
}

// IsVerified 检查邮箱是否已验证
func (s *RedisStore) IsVerified(ctx context.Context, email string) (bool, error) {
	n, err := s.client.Exists(ctx, verifiedKey(email)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
