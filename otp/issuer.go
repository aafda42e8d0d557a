package otp

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"
)

const (
	// DefaultCodeTTL 验证码有效期
	DefaultCodeTTL = 5 * time.Minute

	// DefaultVerifiedTTL 验证通过标记有效期，投票必须在此窗口内完成
	DefaultVerifiedTTL = 10 * time.Minute

	// DefaultEmailDomain 默认允许的校内邮箱后缀
	DefaultEmailDomain = "@sggs.ac.in"
)

// Issuer 负责验证码的签发与校验。所有校验失败都只返回false，
// 不区分"未申请"、"已过期"和"验证码错误"，避免枚举攻击。
type Issuer struct {
	store    Store
	dispatch func(email, code string) error
	domain   string

	// CodeTTL 和 VerifiedTTL 可在测试中缩短
	CodeTTL     time.Duration
	VerifiedTTL time.Duration
}

// NewIssuer 创建验证码签发器。dispatch负责把验证码投递给邮件通道，
// 允许的邮箱后缀可用OTP_EMAIL_DOMAIN环境变量覆盖
func NewIssuer(store Store, dispatch func(email, code string) error) *Issuer {
	domain := os.Getenv("OTP_EMAIL_DOMAIN")
	if domain == "" {
		domain = DefaultEmailDomain
	}

	return &Issuer{
		store:       store,
		dispatch:    dispatch,
		domain:      domain,
		CodeTTL:     DefaultCodeTTL,
		VerifiedTTL: DefaultVerifiedTTL,
	}
}

// Request 为指定邮箱签发6位数字验证码。非校内邮箱返回ErrForbiddenDomain，
// 不产生任何存储副作用
func (i *Issuer) Request(ctx context.Context, email string) error {
	if !strings.HasSuffix(email, i.domain) {
		return ErrForbiddenDomain
	}

	// 生成6位数字验证码
	code := fmt.Sprintf("%06d", rand.Intn(900000)+100000)

	// 保存验证码，覆盖该邮箱之前未使用的记录
	if err := i.store.SaveCode(ctx, email, code, i.CodeTTL); err != nil {
		return fmt.Errorf("保存验证码失败: %w", err)
	}

	// 投递邮件
	if err := i.dispatch(email, code); err != nil {
		return fmt.Errorf("投递验证码邮件失败: %w", err)
	}

	log.Printf("已为 %s 签发验证码, 有效期 %v", email, i.CodeTTL)
	return nil
}

// Verify 校验验证码。成功时消费验证码并写入验证通过标记
func (i *Issuer) Verify(ctx context.Context, email, code string) (bool, error) {
	ok, err := i.store.ConsumeCode(ctx, email, code)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := i.store.SetVerified(ctx, email, i.VerifiedTTL); err != nil {
		return false, err
	}
	return true, nil
}

// IsVerified 检查邮箱是否在验证窗口内
func (i *Issuer) IsVerified(ctx context.Context, email string) (bool, error) {
	return i.store.IsVerified(ctx, email)
}

// IsInstitutional 判断邮箱是否属于允许的校内域
func (i *Issuer) IsInstitutional(email string) bool {
	return strings.HasSuffix(email, i.domain)
}

// AllowedDomain 返回允许的邮箱后缀
func (i *Issuer) AllowedDomain() string {
	return i.domain
}
