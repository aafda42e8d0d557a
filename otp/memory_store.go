package otp

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore 进程内验证码存储，用于单实例部署和测试。
// 不跨重启保留状态，多实例部署请使用RedisStore。
type MemoryStore struct {
	codes    *gocache.Cache
	verified *gocache.Cache
}

// NewMemoryStore 创建内存验证码存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codes:    gocache.New(gocache.NoExpiration, time.Minute),
		verified: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

// SaveCode 保存验证码，覆盖旧记录
func (s *MemoryStore) SaveCode(_ context.Context, email, code string, ttl time.Duration) error {
	s.codes.Set(email, code, ttl)
	return nil
}

// ConsumeCode 校验并消费验证码
func (s *MemoryStore) ConsumeCode(_ context.Context, email, code string) (bool, error) {
	v, ok := s.codes.Get(email)
	if !ok {
		// 不存在或已过期，go-cache的Get对过期条目返回未命中
		return false, nil
	}

	if v.(string) != code {
		return false, nil
	}

	s.codes.Delete(email)
	return true, nil
}

// SetVerified 标记邮箱已验证
func (s *MemoryStore) SetVerified(_ context.Context, email string, ttl time.Duration) error {
	s.verified.Set(email, true, ttl)
	return nil
}

// IsVerified 检查邮箱是否已验证
func (s *MemoryStore) IsVerified(_ context.Context, email string) (bool, error) {
	_, ok := s.verified.Get(email)
	return ok, nil
}
