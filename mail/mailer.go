package mail

import (
	"fmt"
	"log"
	"net/smtp"
	"os"
)

// Sender 邮件发送接口，邮件投递属于外部协作方，核心逻辑只依赖这个边界
type Sender interface {
	Send(to, subject, body string) error
}

// SMTPSender 通过SMTP发送邮件
type SMTPSender struct {
	host string
	port string
	user string
	pass string
	from string
}

// NewSMTPSenderFromEnv 从环境变量创建SMTP发送器
func NewSMTPSenderFromEnv() *SMTPSender {
	return &SMTPSender{
		host: getEnv("SMTP_HOST", "localhost"),
		port: getEnv("SMTP_PORT", "587"),
		user: os.Getenv("SMTP_USER"),
		pass: os.Getenv("SMTP_PASSWORD"),
		from: getEnv("SMTP_FROM", "no-reply@sggs.ac.in"),
	}
}

// Send 发送一封纯文本邮件
func (s *SMTPSender) Send(to, subject, body string) error {
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.from, to, subject, body))

	addr := s.host + ":" + s.port

	var auth smtp.Auth
	if s.user != "" {
		auth = smtp.PlainAuth("", s.user, s.pass, s.host)
	}

	if err := smtp.SendMail(addr, auth, s.from, []string{to}, msg); err != nil {
		return fmt.Errorf("发送邮件到 %s 失败: %w", to, err)
	}
	return nil
}

// LogSender 只记录日志不真正发送，用于开发环境和测试
type LogSender struct{}

// Send 记录邮件内容
func (LogSender) Send(to, subject, body string) error {
	log.Printf("[mail] to=%s subject=%q body=%q", to, subject, body)
	return nil
}

// OTPSubject 验证码邮件主题
const OTPSubject = "Your voting verification code"

// OTPBody 构造验证码邮件正文
func OTPBody(code string) string {
	return fmt.Sprintf("Your one-time verification code is %s. It expires in 5 minutes.", code)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
