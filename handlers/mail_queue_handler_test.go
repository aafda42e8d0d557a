package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"campus-voting-backend/models"
)

func TestMailQueueAdmin_Unavailable(t *testing.T) {
	router, _, _, _ := SetupTestEnvironment(t)
	admin := BearerToken(t, "admin@sggs.ac.in", models.RoleAdmin)

	// Without a queue adapter both endpoints report unavailability
	w := PerformRequest(router, "GET", "/api/admin/mailqueue/stats", nil, admin)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not available")

	w = PerformRequest(router, "POST", "/api/admin/mailqueue/retry", nil, admin)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMailQueueAdmin_AdminOnly(t *testing.T) {
	router, _, _, _ := SetupTestEnvironment(t)
	student := BearerToken(t, "alice@sggs.ac.in", models.RoleStudent)

	w := PerformRequest(router, "GET", "/api/admin/mailqueue/stats", nil, student)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = PerformRequest(router, "POST", "/api/admin/mailqueue/retry", nil, student)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = PerformRequest(router, "POST", "/api/admin/mailqueue/retry", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
