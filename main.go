package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"campus-voting-backend/cache"
	"campus-voting-backend/database"
	"campus-voting-backend/handlers"
	"campus-voting-backend/mail"
	"campus-voting-backend/mq"
	"campus-voting-backend/otp"
	"campus-voting-backend/routes"
	"campus-voting-backend/scheduler"
	"campus-voting-backend/websocket"
)

// 全局邮件消息队列适配器
var mqAdapter *mq.Adapter

// buildOTPStore 根据Redis可用性选择验证码存储
func buildOTPStore() otp.Store {
	if os.Getenv("OTP_STORE") != "memory" {
		if client, err := cache.GetClient(); err == nil {
			log.Println("验证码存储使用Redis")
			return otp.NewRedisStore(client)
		}
	}
	log.Println("验证码存储使用进程内缓存")
	return otp.NewMemoryStore()
}

// buildMailSender 根据配置选择邮件发送方式
func buildMailSender() mail.Sender {
	if os.Getenv("SMTP_HOST") != "" {
		return mail.NewSMTPSenderFromEnv()
	}
	log.Println("未配置SMTP，验证码邮件仅写入日志")
	return mail.LogSender{}
}

func main() {
	// 加载.env配置，文件不存在时直接使用进程环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("未找到.env文件，使用进程环境变量")
	}

	// 初始化数据库连接
	if err := database.InitDB(); err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("数据库连接初始化成功")

	// 初始化Redis连接，失败时降级为mock模式继续服务
	if err := cache.InitRedis(); err != nil {
		log.Printf("警告: Redis初始化失败: %v", err)
	} else {
		log.Println("Redis连接初始化成功")
	}

	// 初始化分布式锁
	cache.InitDistLock()

	// 邮件发送通道：消息队列异步投递，队列不可用时同步发送
	sender := buildMailSender()
	sendMail := func(email, code string) error {
		return sender.Send(email, mail.OTPSubject, mail.OTPBody(code))
	}

	dispatch := sendMail
	mqAdapter = mq.NewAdapter()
	if err := mqAdapter.Initialize(); err != nil {
		log.Printf("警告: 消息队列初始化失败，验证码邮件将同步发送: %v", err)
		mqAdapter = nil
	} else {
		if err := mqAdapter.RegisterHandler(sendMail); err != nil {
			log.Printf("警告: 注册邮件处理函数失败: %v", err)
			mqAdapter = nil
		} else {
			log.Println("邮件消息队列处理函数注册成功")
			dispatch = mqAdapter.SendMailMessage
		}
	}

	// 把队列适配器交给运维端点，并输出启动时的队列积压情况
	handlers.SetMailQueue(mqAdapter)
	if mqAdapter != nil {
		log.Printf("邮件队列状态: %v", mqAdapter.GetQueueStats())
	}

	// 初始化验证码签发器并注入处理程序
	issuer := otp.NewIssuer(buildOTPStore(), dispatch)
	handlers.SetOTPIssuer(issuer)

	// 启动实时结果推送Hub
	hub := websocket.NewHub()
	go hub.Run()
	handlers.SetResultsHub(hub)
	wsHandler := websocket.NewHandler(hub)

	// 启动场地回收服务
	reconcilerCtx, stopReconciler := context.WithCancel(context.Background())
	reconciler := scheduler.New(database.DB, cache.GetLockService(), scheduler.DefaultInterval)
	go reconciler.Start(reconcilerCtx)

	// 设置路由并启动服务器
	router := routes.SetupRouter(wsHandler)
	srv := routes.StartServer(router)
	log.Println("服务器启动成功")

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("关闭服务器...")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 不接受新请求并等待现有请求完成
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务器强制关闭: %v", err)
	}

	// 停止后台任务并关闭连接
	stopReconciler()
	reconciler.Stop()
	if mqAdapter != nil {
		mqAdapter.Close()
	}
	cache.CloseRedis()
	database.CloseDB()

	log.Println("服务器优雅关闭")
}
