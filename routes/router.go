package routes

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"campus-voting-backend/handlers"
	"campus-voting-backend/middleware"
	"campus-voting-backend/models"
	"campus-voting-backend/websocket"
)

// Server 是HTTP服务器的封装
type Server struct {
	*http.Server
}

// SetupRouter 设置和配置Gin路由。wsHandler可为nil（禁用实时推送）
func SetupRouter(wsHandler *websocket.Handler) *gin.Engine {
	// 创建Gin路由器
	router := gin.Default()

	// 配置CORS中间件
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // 生产环境中应限制为前端域名
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 初始化限流器
	handlers.InitRateLimiters()

	// 定义API路由
	api := router.Group("/api")
	{
		// 全局API限流中间件
		api.Use(handlers.RateLimitMiddleware())

		// 健康检查和状态端点
		api.GET("/health", handlers.HealthCheck)
		api.GET("/status", handlers.SystemStatus)
		api.GET("/ratelimit/stats", handlers.GetRateLimiterStats)

		// 选举相关端点
		elections := api.Group("/elections")
		{
			elections.GET("", handlers.GetElections)
			elections.GET("/:electionId", handlers.GetElection)
			elections.GET("/:electionId/results", handlers.GetResults)
			elections.GET("/:electionId/positions/:positionName/votes", handlers.GetPositionVotes)
			elections.GET("/:electionId/positions/:positionName/candidate/:candidateName/votes", handlers.GetCandidateVotes)

			// 投票资格：验证码签发与校验（无需令牌）
			elections.POST("/vote/request-otp", handlers.RequestOTP)
			elections.POST("/vote/verify-otp", handlers.VerifyOTP)

			// 投票需要通过令牌确认选民身份
			elections.POST("/vote", middleware.Auth(), handlers.CastVote)

			// 选举管理仅限管理员
			elections.POST("", middleware.Auth(), middleware.RequireRole(models.RoleAdmin), handlers.CreateElection)
			elections.POST("/candidate", middleware.Auth(), middleware.RequireRole(models.RoleAdmin), handlers.AddCandidate)

			// 实时结果推送
			if wsHandler != nil {
				elections.GET("/:electionId/ws", wsHandler.HandleConnection)
			}
		}

		// 场地与预约端点
		facilities := api.Group("/facilities")
		{
			facilities.GET("", handlers.ListFacilities)
			facilities.POST("", middleware.Auth(), middleware.RequireRole(models.RoleAdmin), handlers.CreateFacility)
		}

		bookings := api.Group("/bookings")
		bookings.Use(middleware.Auth())
		{
			bookings.POST("", handlers.CreateBooking)
			bookings.PUT("/:id/approve", middleware.RequireRole(models.RoleAdmin), handlers.ApproveBooking)
			bookings.PUT("/:id/reject", middleware.RequireRole(models.RoleAdmin), handlers.RejectBooking)
		}

		// 邮件队列运维端点仅限管理员
		admin := api.Group("/admin")
		admin.Use(middleware.Auth(), middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/mailqueue/stats", handlers.GetMailQueueStats)
			admin.POST("/mailqueue/retry", handlers.RetryMailDeadLetters)
		}
	}

	return router
}

// StartServer 启动HTTP服务器
func StartServer(router *gin.Engine) *Server {
	// 从环境变量获取端口，默认为8090
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8090" // 默认端口
	}

	addr := ":" + port

	srv := &Server{
		&http.Server{
			Addr:    addr,
			Handler: router,
		},
	}

	// 在单独的goroutine中启动服务器
	go func() {
		log.Printf("服务器启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	return srv
}
