package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"campus-voting-backend/database"
	"campus-voting-backend/middleware"
	"campus-voting-backend/models"
	"campus-voting-backend/otp"
)

// sentMail records an OTP mail captured by the test dispatcher.
type sentMail struct {
	Email string
	Code  string
}

// mailbox collects dispatched OTP codes so tests can read them back.
type mailbox struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *mailbox) dispatch(email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{Email: email, Code: code})
	return nil
}

// LastCodeFor returns the most recently dispatched code for email.
func (m *mailbox) LastCodeFor(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Email == email {
			return m.sent[i].Code
		}
	}
	return ""
}

// SetupTestEnvironment sets up the Gin router, an in-memory SQLite database
// and an in-process OTP issuer for testing. The returned mailbox captures
// every dispatched OTP code.
func SetupTestEnvironment(t *testing.T) (*gin.Engine, *gorm.DB, *otp.Issuer, *mailbox) {
	testing.Init()
	gin.SetMode(gin.TestMode)

	// Each test gets its own named in-memory database. TranslateError is
	// required so unique-index violations surface as gorm.ErrDuplicatedKey,
	// the same way the MySQL setup behaves in production.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	database.DB = db

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	})

	// OTP issuer backed by the in-process store, codes captured in a mailbox.
	box := &mailbox{}
	issuer := otp.NewIssuer(otp.NewMemoryStore(), box.dispatch)
	SetOTPIssuer(issuer)
	SetResultsHub(nil)
	SetMailQueue(nil)

	// Same route layout as routes.SetupRouter, without CORS and rate limiting.
	router := gin.New()
	api := router.Group("/api")
	{
		api.GET("/health", HealthCheck)

		elections := api.Group("/elections")
		{
			elections.GET("", GetElections)
			elections.GET("/:electionId", GetElection)
			elections.GET("/:electionId/results", GetResults)
			elections.GET("/:electionId/positions/:positionName/votes", GetPositionVotes)
			elections.GET("/:electionId/positions/:positionName/candidate/:candidateName/votes", GetCandidateVotes)
			elections.POST("/vote/request-otp", RequestOTP)
			elections.POST("/vote/verify-otp", VerifyOTP)
			elections.POST("/vote", middleware.Auth(), CastVote)
			elections.POST("", middleware.Auth(), middleware.RequireRole(models.RoleAdmin), CreateElection)
			elections.POST("/candidate", middleware.Auth(), middleware.RequireRole(models.RoleAdmin), AddCandidate)
		}

		facilities := api.Group("/facilities")
		{
			facilities.GET("", ListFacilities)
			facilities.POST("", middleware.Auth(), middleware.RequireRole(models.RoleAdmin), CreateFacility)
		}

		bookings := api.Group("/bookings")
		bookings.Use(middleware.Auth())
		{
			bookings.POST("", CreateBooking)
			bookings.PUT("/:id/approve", middleware.RequireRole(models.RoleAdmin), ApproveBooking)
			bookings.PUT("/:id/reject", middleware.RequireRole(models.RoleAdmin), RejectBooking)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.Auth(), middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/mailqueue/stats", GetMailQueueStats)
			admin.POST("/mailqueue/retry", RetryMailDeadLetters)
		}
	}

	return router, db, issuer, box
}

// PerformRequest sends a JSON request to the router and returns the recorder.
// authorization is attached as-is when non-empty.
func PerformRequest(router *gin.Engine, method, path string, body interface{}, authorization string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		jsonData, _ := json.Marshal(body)
		buf = bytes.NewBuffer(jsonData)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	router.ServeHTTP(w, req)
	return w
}

// BearerToken returns an Authorization header value for the given identity.
func BearerToken(t *testing.T, email string, role models.Role) string {
	token, err := middleware.IssueToken(email, role)
	if err != nil {
		t.Fatalf("Failed to issue test token: %v", err)
	}
	return "Bearer " + token
}
