package otp

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrForbiddenDomain 非校内邮箱错误
	ErrForbiddenDomain = errors.New("email domain is not allowed to vote")
)

// Store 定义验证码存储接口。同一邮箱重复申请会覆盖旧记录，
// 验证成功即删除（一次性）。单实例部署用内存实现，
// 多实例部署用Redis实现，接口保持可替换。
type Store interface {
	// SaveCode 保存验证码，覆盖该邮箱之前未使用的记录
	SaveCode(ctx context.Context, email, code string, ttl time.Duration) error

	// ConsumeCode 校验验证码。记录不存在、已过期或不匹配时返回false；
	// 匹配成功时删除记录并返回true
	ConsumeCode(ctx context.Context, email, code string) (bool, error)

	// SetVerified 标记该邮箱已通过验证，供投票前校验
	SetVerified(ctx context.Context, email string, ttl time.Duration) error

	// IsVerified 检查该邮箱是否已通过验证
	IsVerified(ctx context.Context, email string) (bool, error)
}
