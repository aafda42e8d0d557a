package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"campus-voting-backend/database"
	"campus-voting-backend/models"
)

// CandidateRequest 候选人请求结构
type CandidateRequest struct {
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Manifesto string `json:"manifesto"`
}

// PositionRequest 职位请求结构
type PositionRequest struct {
	Name       string             `json:"name" binding:"required"`
	Candidates []CandidateRequest `json:"candidates" binding:"dive"`
}

// CreateElectionRequest 创建选举请求结构
type CreateElectionRequest struct {
	Title     string            `json:"title" binding:"required"`
	StartDate *time.Time        `json:"startDate"`
	EndDate   *time.Time        `json:"endDate"`
	Positions []PositionRequest `json:"positions" binding:"dive"`
}

// AddCandidateRequest 追加候选人请求结构
type AddCandidateRequest struct {
	ElectionID   uint   `json:"electionId" binding:"required"`
	PositionName string `json:"positionName" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Manifesto    string `json:"manifesto"`
}

// CreateElection 创建选举，标题全局唯一
func CreateElection(c *gin.Context) {
	// 1. 解析并校验请求
	var req CreateElectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid fields"})
		return
	}

	election := models.Election{
		Title:    req.Title,
		EndDate:  req.EndDate,
		IsActive: true,
	}
	if req.StartDate != nil {
		election.StartDate = *req.StartDate
	} else {
		election.StartDate = time.Now()
	}
	for _, p := range req.Positions {
		position := models.Position{Name: p.Name}
		for _, cand := range p.Candidates {
			position.Candidates = append(position.Candidates, models.Candidate{
				Name:      cand.Name,
				Email:     cand.Email,
				Manifesto: cand.Manifesto,
				IsActive:  true,
			})
		}
		election.Positions = append(election.Positions, position)
	}

	// 2. 入库，标题冲突由唯一索引兜底
	if err := database.DB.Create(&election).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "an election with this title already exists"})
			return
		}
		log.Printf("创建选举失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	log.Printf("选举已创建: %s (id=%d)", election.Title, election.ID)
	c.JSON(http.StatusCreated, election)
}

// AddCandidate 向已有选举的职位追加零票候选人
func AddCandidate(c *gin.Context) {
	// 1. 解析请求
	var req AddCandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid fields"})
		return
	}

	// 2. 定位选举和职位
	var election models.Election
	if err := database.DB.First(&election, req.ElectionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "election not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	position, err := findPosition(election.ID, req.PositionName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	// 3. 追加候选人，(position_id, email)唯一索引防止重复参选
	candidate := models.Candidate{
		PositionID: position.ID,
		Name:       req.Name,
		Email:      req.Email,
		Manifesto:  req.Manifesto,
		IsActive:   true,
	}
	if err := database.DB.Create(&candidate).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "candidate already exists for this position"})
			return
		}
		log.Printf("追加候选人失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, candidate)
}

// GetElections 返回所有选举及其职位和候选人
func GetElections(c *gin.Context) {
	var elections []models.Election
	if err := database.DB.Preload("Positions.Candidates").Find(&elections).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, elections)
}

// GetElection 返回单个选举详情
func GetElection(c *gin.Context) {
	electionID, ok := parseElectionID(c)
	if !ok {
		return
	}

	var election models.Election
	err := database.DB.Preload("Positions.Candidates").First(&election, electionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "election not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, election)
}

// parseElectionID 解析路径参数中的选举ID，非法格式直接响应400
func parseElectionID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("electionId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid election id format"})
		return 0, false
	}
	return uint(id), true
}

// findPosition 在选举内按归一化名称查找职位
func findPosition(electionID uint, name string) (*models.Position, error) {
	var positions []models.Position
	if err := database.DB.Where("election_id = ?", electionID).Order("id").Find(&positions).Error; err != nil {
		return nil, err
	}
	target := models.NormalizeName(name)
	for i := range positions {
		if models.NormalizeName(positions[i].Name) == target {
			return &positions[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// findCandidate 在职位内按归一化名称查找在役候选人
func findCandidate(positionID uint, name string) (*models.Candidate, error) {
	var candidates []models.Candidate
	if err := database.DB.Where("position_id = ?", positionID).Order("id").Find(&candidates).Error; err != nil {
		return nil, err
	}
	target := models.NormalizeName(name)
	for i := range candidates {
		if candidates[i].IsActive && models.NormalizeName(candidates[i].Name) == target {
			return &candidates[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
