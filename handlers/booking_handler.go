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

// CreateFacilityRequest 创建场地请求结构
type CreateFacilityRequest struct {
	Name        string `json:"name" binding:"required"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// CreateBookingRequest 创建预约请求结构
type CreateBookingRequest struct {
	FacilityID uint      `json:"facilityId" binding:"required"`
	StartTime  time.Time `json:"startTime" binding:"required"`
	EndTime    time.Time `json:"endTime" binding:"required"`
	Reason     string    `json:"reason"`
}

// CreateFacility 登记新场地
func CreateFacility(c *gin.Context) {
	var req CreateFacilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid fields"})
		return
	}

	facility := models.Facility{
		Name:        req.Name,
		Location:    req.Location,
		Description: req.Description,
		Status:      models.FacilityAvailable,
	}
	if err := database.DB.Create(&facility).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "a facility with this name already exists"})
			return
		}
		log.Printf("创建场地失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, facility)
}

// ListFacilities 返回所有场地及其当前状态
func ListFacilities(c *gin.Context) {
	var facilities []models.Facility
	if err := database.DB.Order("id").Find(&facilities).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, facilities)
}

// CreateBooking 创建待审批的场地预约
func CreateBooking(c *gin.Context) {
	// 1. 解析并校验请求
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid fields"})
		return
	}
	if !req.EndTime.After(req.StartTime) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end time must be after start time"})
		return
	}

	// 2. 场地必须存在
	var facility models.Facility
	if err := database.DB.First(&facility, req.FacilityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "facility not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	// 3. 创建pending预约，申请人身份取自令牌
	role, _ := c.Get("role")
	booking := models.Booking{
		FacilityID:     facility.ID,
		RequesterEmail: c.GetString("voter_email"),
		RequesterRole:  role.(models.Role),
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Reason:         req.Reason,
		Status:         models.BookingPending,
	}
	if err := database.DB.Create(&booking).Error; err != nil {
		log.Printf("创建预约失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// ApproveBooking 批准预约并把场地置为booked
func ApproveBooking(c *gin.Context) {
	booking, ok := loadBooking(c)
	if !ok {
		return
	}

	// 审批和场地状态变更放在同一事务
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(booking).Update("status", models.BookingApproved).Error; err != nil {
			return err
		}
		return tx.Model(&models.Facility{}).
			Where("id = ?", booking.FacilityID).
			Update("status", models.FacilityBooked).Error
	})
	if err != nil {
		log.Printf("批准预约失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	booking.Status = models.BookingApproved
	c.JSON(http.StatusOK, booking)
}

// RejectBooking 驳回预约，场地状态不变
func RejectBooking(c *gin.Context) {
	booking, ok := loadBooking(c)
	if !ok {
		return
	}

	if err := database.DB.Model(booking).Update("status", models.BookingRejected).Error; err != nil {
		log.Printf("驳回预约失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	booking.Status = models.BookingRejected
	c.JSON(http.StatusOK, booking)
}

// loadBooking 解析路径参数并加载预约，失败时已写好响应
func loadBooking(c *gin.Context) (*models.Booking, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id format"})
		return nil, false
	}

	var booking models.Booking
	if err := database.DB.First(&booking, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return nil, false
	}
	return &booking, true
}
