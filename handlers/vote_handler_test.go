package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"campus-voting-backend/models"
	"campus-voting-backend/otp"
)

// verifyVoter walks email through the full OTP round trip.
func verifyVoter(t *testing.T, router *gin.Engine, box *mailbox, email string) {
	w := PerformRequest(router, "POST", "/api/elections/vote/request-otp", gin.H{"email": email}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	code := box.LastCodeFor(email)
	assert.NotEmpty(t, code)

	w = PerformRequest(router, "POST", "/api/elections/vote/verify-otp", gin.H{"email": email, "code": code}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// seedElection creates the default two-position election and returns it.
func seedElection(t *testing.T, router *gin.Engine) models.Election {
	admin := BearerToken(t, "admin@sggs.ac.in", models.RoleAdmin)
	w := PerformRequest(router, "POST", "/api/elections", electionBody("Student Council 2026"), admin)
	assert.Equal(t, http.StatusCreated, w.Code)

	var created models.Election
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	return created
}

func candidateVotes(t *testing.T, router *gin.Engine, electionID uint, position, candidate string) int64 {
	path := fmt.Sprintf("/api/elections/%d/positions/%s/candidate/%s/votes", electionID, position, candidate)
	w := PerformRequest(router, "GET", path, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var result CandidateResult
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	return result.Votes
}

func TestRequestOTP_NonInstitutional(t *testing.T) {
	router, _, _, box := SetupTestEnvironment(t)

	w := PerformRequest(router, "POST", "/api/elections/vote/request-otp", gin.H{"email": "alice@gmail.com"}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// No OTP record was created, so nothing was dispatched either
	assert.Empty(t, box.LastCodeFor("alice@gmail.com"))
}

func TestVerifyOTP_WrongCode(t *testing.T) {
	router, _, _, box := SetupTestEnvironment(t)

	w := PerformRequest(router, "POST", "/api/elections/vote/request-otp", gin.H{"email": "alice@sggs.ac.in"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, box.LastCodeFor("alice@sggs.ac.in"))

	w = PerformRequest(router, "POST", "/api/elections/vote/verify-otp",
		gin.H{"email": "alice@sggs.ac.in", "code": "000000"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid or expired")
}

func TestVerifyOTP_SingleUse(t *testing.T) {
	router, _, _, box := SetupTestEnvironment(t)

	w := PerformRequest(router, "POST", "/api/elections/vote/request-otp", gin.H{"email": "alice@sggs.ac.in"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	code := box.LastCodeFor("alice@sggs.ac.in")

	w = PerformRequest(router, "POST", "/api/elections/vote/verify-otp",
		gin.H{"email": "alice@sggs.ac.in", "code": code}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	// The code was consumed on first use
	w = PerformRequest(router, "POST", "/api/elections/vote/verify-otp",
		gin.H{"email": "alice@sggs.ac.in", "code": code}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyOTP_Expired(t *testing.T) {
	router, _, issuer, box := SetupTestEnvironment(t)
	issuer.CodeTTL = 50 * time.Millisecond

	w := PerformRequest(router, "POST", "/api/elections/vote/request-otp", gin.H{"email": "alice@sggs.ac.in"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	code := box.LastCodeFor("alice@sggs.ac.in")

	time.Sleep(100 * time.Millisecond)

	w = PerformRequest(router, "POST", "/api/elections/vote/verify-otp",
		gin.H{"email": "alice@sggs.ac.in", "code": code}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid or expired")
}

func TestCastVote(t *testing.T) {
	router, db, _, box := SetupTestEnvironment(t)
	election := seedElection(t, router)
	verifyVoter(t, router, box, "alice@sggs.ac.in")
	alice := BearerToken(t, "alice@sggs.ac.in", models.RoleStudent)

	w := PerformRequest(router, "POST", "/api/elections/vote", gin.H{
		"electionId":    election.ID,
		"positionName":  "President",
		"candidateName": "Bob",
	}, alice)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, int64(1), candidateVotes(t, router, election.ID, "President", "Bob"))
	assert.Equal(t, int64(0), candidateVotes(t, router, election.ID, "President", "Carol"))

	// The counter always equals the number of ledger rows
	var ledger int64
	db.Model(&models.VoteRecord{}).
		Where("candidate_id = ?", election.Positions[0].Candidates[0].ID).
		Count(&ledger)
	assert.Equal(t, int64(1), ledger)
}

func TestCastVote_AlreadyVoted(t *testing.T) {
	router, _, _, box := SetupTestEnvironment(t)
	election := seedElection(t, router)
	verifyVoter(t, router, box, "alice@sggs.ac.in")
	alice := BearerToken(t, "alice@sggs.ac.in", models.RoleStudent)

	w := PerformRequest(router, "POST", "/api/elections/vote", gin.H{
		"electionId":    election.ID,
		"positionName":  "President",
		"candidateName": "Bob",
	}, alice)
	assert.Equal(t, http.StatusOK, w.Code)

	// A second vote for the same position fails regardless of candidate
	w = PerformRequest(router, "POST", "/api/elections/vote", gin.H{
		"electionId":    election.ID,
		"positionName":  "President",
		"candidateName": "Carol",
	}, alice)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "already voted")

	assert.Equal(t, int64(1), candidateVotes(t, router, election.ID, "President", "Bob"))
	assert.Equal(t, int64(0), candidateVotes(t, router, election.ID, "President", "Carol"))

	// Voting for a different position of the same election still works
	w = PerformRequest(router, "POST", "/api/elections/vote", gin.H{
		"electionId":    election.ID,
		"positionName":  "Secretary",
		"candidateName": "Dave",
	}, alice)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCastVote_ConcurrentDuplicates(t *testing.T) {
	router, db, _, box := SetupTestEnvironment(t)
	election := seedElection(t, router)
	verifyVoter(t, router, box, "alice@sggs.ac.in")
	alice := BearerToken(t, "alice@sggs.ac.in", models.RoleStudent)

	// A single pooled connection keeps SQLite from returning busy errors;
	// the goroutines still interleave above the storage layer, so the
	// uniqueness guarantee has to come from the ledger index.
	sqlDB, err := db.DB()
	assert.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	candidates := []string{"Bob", "Carol"}
	const attempts = 8
	codes := make(chan int, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := PerformRequest(router, "POST", "/api/elections/vote", gin.H{
				"electionId":    election.ID,
				"positionName":  "President",
				"candidateName": candidates[i%len(candidates)],
			}, alice)
			codes <- w.Code
		}(i)
	}
	wg.Wait()
	close(codes)

	// Exactly one call succeeds no matter which candidate it targeted
	succeeded, conflicted := 0, 0
	for code := range codes {
		switch code {
		case http.StatusOK:
			succeeded++
		case http.StatusUnprocessableEntity:
			conflicted++
		default:
			t.Fatalf("unexpected status code %d", code)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicted)

	// One ledger row and a total tally of one across the whole position
	positionID := election.Positions[0].ID
	var ledger int64
	db.Model(&models.VoteRecord{}).Where("position_id = ?", positionID).Count(&ledger)
	assert.Equal(t, int64(1), ledger)

	var tally int64
	db.Model(&models.Candidate{}).Where("position_id = ?", positionID).
		Select("COALESCE(SUM(votes), 0)").Scan(&tally)
	assert.Equal(t, int64(1), tally)
}

func TestCastVote_NormalizedNames(t *testing.T) {
	router, _, _, box := SetupTestEnvironment(t)
	election := seedElection(t, router)
	verifyVoter(t, router, box, "alice@sggs.ac.in")
	alice := BearerToken(t, "alice@sggs.ac.in", models.RoleStudent)

	// Position and candidate lookups trim and case-fold
	w := PerformRequest(router, "POST", "/api/elections/vote", gin.H{
		"electionId":    election.ID,
		"positionName":  "  PRESIDENT ",
		"candidateName": " bob  ",
	}, alice)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), candidateVotes(t, router, election.ID, "President", "Bob"))
}

func TestCastVote_NotVerified(t *testing.T) {
	router, _, _, _ := SetupTestEnvironment(t)
	election := seedElection(t, router)
	alice := BearerToken(t, "alice@sggs.ac.in", models.RoleStudent)

	w := PerformRequest(router, "POST", "/api/elections/vote", gin.H{
		"electionId":    election.ID,
		"positionName":  "President",
		"candidateName": "Bob",
	}, alice)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "not verified")
}

func TestCastVote_NonInstitutionalVoter(t *testing.T) {
	router, _, _, _ := SetupTestEnvironment(t)
	election := seedElection(t, router)
	outsider := BearerToken(t, "alice@gmail.com", models.RoleStudent)

	w := PerformRequest(router, "POST", "/api/elections/vote", gin.H{
		"electionId":    election.ID,
		"positionName":  "President",
		"candidateName": "Bob",
	}, outsider)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "institutional")
}

func TestCastVote_VerificationWindowExpired(t *testing.T) {
	router, _, issuer, box := SetupTestEnvironment(t)
	issuer.VerifiedTTL = 50 * time.Millisecond
	election := seedElection(t, router)
	verifyVoter(t, router, box, "alice@sggs.ac.in")
	alice := BearerToken(t, "alice@sggs.ac.in", models.RoleStudent)

	time.Sleep(100 * time.Millisecond)

	w := PerformRequest(router, "POST", "/api/elections/vote", gin.H{
		"electionId":    election.ID,
		"positionName":  "President",
		"candidateName": "Bob",
	}, alice)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCastVote_NotFound(t *testing.T) {
	router, db, _, box := SetupTestEnvironment(t)
	election := seedElection(t, router)
	verifyVoter(t, router, box, "alice@sggs.ac.in")
	alice := BearerToken(t, "alice@sggs.ac.in", models.RoleStudent)

	tests := []struct {
		name string
		body gin.H
	}{
		{
			name: "Unknown election",
			body: gin.H{"electionId": 9999, "positionName": "President", "candidateName": "Bob"},
		},
		{
			name: "Unknown position",
			body: gin.H{"electionId": election.ID, "positionName": "Treasurer", "candidateName": "Bob"},
		},
		{
			name: "Unknown candidate",
			body: gin.H{"electionId": election.ID, "positionName": "President", "candidateName": "Mallory"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := PerformRequest(router, "POST", "/api/elections/vote", tc.body, alice)
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}

	// Deactivated election behaves like a missing one
	db.Model(&models.Election{}).Where("id = ?", election.ID).Update("is_active", false)
	w := PerformRequest(router, "POST", "/api/elections/vote", gin.H{
		"electionId":    election.ID,
		"positionName":  "President",
		"candidateName": "Bob",
	}, alice)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// So does one whose end date has passed
	past := time.Now().Add(-time.Hour)
	db.Model(&models.Election{}).Where("id = ?", election.ID).
		Updates(map[string]interface{}{"is_active": true, "end_date": past})
	w = PerformRequest(router, "POST", "/api/elections/vote", gin.H{
		"electionId":    election.ID,
		"positionName":  "President",
		"candidateName": "Bob",
	}, alice)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCastVote_MissingFields(t *testing.T) {
	router, _, _, box := SetupTestEnvironment(t)
	seedElection(t, router)
	verifyVoter(t, router, box, "alice@sggs.ac.in")
	alice := BearerToken(t, "alice@sggs.ac.in", models.RoleStudent)

	w := PerformRequest(router, "POST", "/api/elections/vote", gin.H{
		"positionName": "President",
	}, alice)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIssuerRequest_NoSideEffectsOnForbiddenDomain(t *testing.T) {
	store := otp.NewMemoryStore()
	box := &mailbox{}
	issuer := otp.NewIssuer(store, box.dispatch)

	err := issuer.Request(context.Background(), "alice@gmail.com")
	assert.ErrorIs(t, err, otp.ErrForbiddenDomain)
	assert.Empty(t, box.sent)
}
