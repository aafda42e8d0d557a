package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"campus-voting-backend/database"
	"campus-voting-backend/models"
	"campus-voting-backend/otp"
	"campus-voting-backend/websocket"
)

var (
	otpIssuer  *otp.Issuer
	resultsHub *websocket.Hub
)

// SetOTPIssuer 注入OTP签发器，main和测试环境在启动时调用
func SetOTPIssuer(issuer *otp.Issuer) {
	otpIssuer = issuer
}

// SetResultsHub 注入结果广播Hub，可为nil（禁用推送）
func SetResultsHub(hub *websocket.Hub) {
	resultsHub = hub
}

// RequestOTPRequest 请求验证码的请求结构
type RequestOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// VerifyOTPRequest 校验验证码的请求结构
type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// CastVoteRequest 投票请求结构
type CastVoteRequest struct {
	ElectionID    uint   `json:"electionId" binding:"required"`
	PositionName  string `json:"positionName" binding:"required"`
	CandidateName string `json:"candidateName" binding:"required"`
}

// RequestOTP 向校内邮箱发送一次性验证码
func RequestOTP(c *gin.Context) {
	var req RequestOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid fields"})
		return
	}

	if err := otpIssuer.Request(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, otp.ErrForbiddenDomain) {
			c.JSON(http.StatusForbidden, gin.H{"error": "only institutional email addresses may vote"})
			return
		}
		log.Printf("发送验证码失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "otp sent to your email"})
}

// VerifyOTP 校验验证码，失败原因统一为invalid or expired，避免泄露细节
func VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid fields"})
		return
	}

	ok, err := otpIssuer.Verify(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		log.Printf("校验验证码失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "otp is invalid or expired"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "otp verified"})
}

// CastVote 处理投票请求
func CastVote(c *gin.Context) {
	// 1. 解析请求，electionId非法或字段缺失时返回400
	var req CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid fields"})
		return
	}

	voterEmail := c.GetString("voter_email")
	if voterEmail == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization header"})
		return
	}

	// 2. 加载选举，不存在、停用或已过结束时间都按404处理
	var election models.Election
	err := database.DB.Where("id = ? AND is_active = ?", req.ElectionID, true).First(&election).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "election not found or inactive"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if election.EndDate != nil && election.EndDate.Before(time.Now()) {
		c.JSON(http.StatusNotFound, gin.H{"error": "election not found or inactive"})
		return
	}

	// 3. 按归一化名称定位职位
	position, err := findPosition(election.ID, req.PositionName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	// 4. 按归一化名称定位候选人
	candidate, err := findCandidate(position.ID, req.CandidateName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "candidate not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	// 5. 资格检查：校内邮箱 + 验证码已通过
	if !otpIssuer.IsInstitutional(voterEmail) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only institutional email addresses may vote"})
		return
	}
	verified, err := otpIssuer.IsVerified(c.Request.Context(), voterEmail)
	if err != nil {
		log.Printf("查询验证状态失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if !verified {
		c.JSON(http.StatusForbidden, gin.H{"error": "voter is not verified, request an otp first"})
		return
	}

	// 6. 同一事务内写入投票台账并累加计票，
	//    (position_id, voter_email)唯一索引保证并发下也只有一票能提交
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		record := models.VoteRecord{
			PositionID:  position.ID,
			CandidateID: candidate.ID,
			VoterEmail:  voterEmail,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		return tx.Model(&models.Candidate{}).
			Where("id = ?", candidate.ID).
			UpdateColumn("votes", gorm.Expr("votes + ?", 1)).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "you have already voted for this position"})
			return
		}
		log.Printf("投票写入失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	log.Printf("投票成功: election=%d position=%s candidate=%s", election.ID, position.Name, candidate.Name)

	// 7. 推送最新结果给订阅该选举的客户端
	if resultsHub != nil {
		if results, err := buildElectionResults(election.ID); err == nil {
			resultsHub.BroadcastResults(election.ID, results)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "vote cast successfully"})
}
