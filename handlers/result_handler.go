package handlers

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"campus-voting-backend/database"
	"campus-voting-backend/models"
)

// CandidateResult 单个候选人的计票结果
type CandidateResult struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Manifesto string `json:"manifesto"`
	Votes     int64  `json:"votes"`
}

// PositionResult 单个职位的计票结果，候选人按得票数降序排列
type PositionResult struct {
	Name       string            `json:"name"`
	TotalVotes int64             `json:"total_votes"`
	Candidates []CandidateResult `json:"candidates"`
}

// ElectionResults 整场选举的聚合结果
type ElectionResults struct {
	ElectionID uint             `json:"election_id"`
	Title      string           `json:"title"`
	TotalVotes int64            `json:"total_votes"`
	Positions  []PositionResult `json:"positions"`
}

// buildElectionResults 聚合一场选举的计票结果。
// 排序使用稳定排序，同票候选人保持登记顺序
func buildElectionResults(electionID uint) (*ElectionResults, error) {
	var election models.Election
	err := database.DB.Preload("Positions", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).Preload("Positions.Candidates", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).First(&election, electionID).Error
	if err != nil {
		return nil, err
	}

	results := &ElectionResults{
		ElectionID: election.ID,
		Title:      election.Title,
	}

	for _, position := range election.Positions {
		pr := PositionResult{Name: position.Name}
		for _, cand := range position.Candidates {
			pr.Candidates = append(pr.Candidates, CandidateResult{
				ID:        cand.ID,
				Name:      cand.Name,
				Email:     cand.Email,
				Manifesto: cand.Manifesto,
				Votes:     cand.Votes,
			})
			pr.TotalVotes += cand.Votes
		}
		sort.SliceStable(pr.Candidates, func(i, j int) bool {
			return pr.Candidates[i].Votes > pr.Candidates[j].Votes
		})
		results.TotalVotes += pr.TotalVotes
		results.Positions = append(results.Positions, pr)
	}

	return results, nil
}

// GetResults 返回整场选举的聚合计票结果
func GetResults(c *gin.Context) {
	electionID, ok := parseElectionID(c)
	if !ok {
		return
	}

	results, err := buildElectionResults(electionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "election not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, results)
}

// GetPositionVotes 返回单个职位下所有候选人的得票数
func GetPositionVotes(c *gin.Context) {
	electionID, ok := parseElectionID(c)
	if !ok {
		return
	}

	position, err := findPosition(electionID, c.Param("positionName"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	var candidates []models.Candidate
	if err := database.DB.Where("position_id = ?", position.ID).Order("id").Find(&candidates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	pr := PositionResult{Name: position.Name}
	for _, cand := range candidates {
		pr.Candidates = append(pr.Candidates, CandidateResult{
			ID:        cand.ID,
			Name:      cand.Name,
			Email:     cand.Email,
			Manifesto: cand.Manifesto,
			Votes:     cand.Votes,
		})
		pr.TotalVotes += cand.Votes
	}
	sort.SliceStable(pr.Candidates, func(i, j int) bool {
		return pr.Candidates[i].Votes > pr.Candidates[j].Votes
	})

	c.JSON(http.StatusOK, pr)
}

// GetCandidateVotes 返回单个候选人的得票数
func GetCandidateVotes(c *gin.Context) {
	electionID, ok := parseElectionID(c)
	if !ok {
		return
	}

	position, err := findPosition(electionID, c.Param("positionName"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	candidate, err := findCandidate(position.ID, c.Param("candidateName"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "candidate not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, CandidateResult{
		ID:        candidate.ID,
		Name:      candidate.Name,
		Email:     candidate.Email,
		Manifesto: candidate.Manifesto,
		Votes:     candidate.Votes,
	})
}
