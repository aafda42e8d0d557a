package scheduler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"campus-voting-backend/models"
)

func setupDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&models.Facility{}, &models.Booking{}); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedBooking(t *testing.T, db *gorm.DB, facilityStatus models.FacilityStatus, bookingStatus models.BookingStatus, end time.Time) (models.Facility, models.Booking) {
	facility := models.Facility{
		Name:   fmt.Sprintf("Hall-%s-%d", t.Name(), time.Now().UnixNano()),
		Status: facilityStatus,
	}
	assert.NoError(t, db.Create(&facility).Error)

	booking := models.Booking{
		FacilityID:     facility.ID,
		RequesterEmail: "alice@sggs.ac.in",
		RequesterRole:  models.RoleStudent,
		StartTime:      end.Add(-time.Hour),
		EndTime:        end,
		Status:         bookingStatus,
	}
	assert.NoError(t, db.Create(&booking).Error)
	return facility, booking
}

func TestReleaseExpired(t *testing.T) {
	db := setupDB(t)
	facility, _ := seedBooking(t, db, models.FacilityBooked, models.BookingApproved, time.Now().Add(-time.Minute))

	r := New(db, nil, DefaultInterval)
	assert.NoError(t, r.ReleaseExpired())

	var updated models.Facility
	assert.NoError(t, db.First(&updated, facility.ID).Error)
	assert.Equal(t, models.FacilityAvailable, updated.Status)
}

func TestReleaseExpired_LeavesOngoingBookings(t *testing.T) {
	db := setupDB(t)
	facility, _ := seedBooking(t, db, models.FacilityBooked, models.BookingApproved, time.Now().Add(time.Hour))

	r := New(db, nil, DefaultInterval)
	assert.NoError(t, r.ReleaseExpired())

	var updated models.Facility
	assert.NoError(t, db.First(&updated, facility.ID).Error)
	assert.Equal(t, models.FacilityBooked, updated.Status)
}

func TestReleaseExpired_SkipsPendingAndRejected(t *testing.T) {
	db := setupDB(t)
	past := time.Now().Add(-time.Minute)
	f1, _ := seedBooking(t, db, models.FacilityBooked, models.BookingPending, past)
	f2, _ := seedBooking(t, db, models.FacilityBooked, models.BookingRejected, past)

	r := New(db, nil, DefaultInterval)
	assert.NoError(t, r.ReleaseExpired())

	for _, id := range []uint{f1.ID, f2.ID} {
		var updated models.Facility
		assert.NoError(t, db.First(&updated, id).Error)
		assert.Equal(t, models.FacilityBooked, updated.Status)
	}
}

func TestReleaseExpired_KeepsFacilityWithCurrentBooking(t *testing.T) {
	db := setupDB(t)
	// Same facility: one expired booking and one still running
	facility, _ := seedBooking(t, db, models.FacilityBooked, models.BookingApproved, time.Now().Add(-time.Minute))
	current := models.Booking{
		FacilityID:     facility.ID,
		RequesterEmail: "bob@sggs.ac.in",
		RequesterRole:  models.RoleFaculty,
		StartTime:      time.Now().Add(-time.Minute),
		EndTime:        time.Now().Add(time.Hour),
		Status:         models.BookingApproved,
	}
	assert.NoError(t, db.Create(&current).Error)

	r := New(db, nil, DefaultInterval)
	assert.NoError(t, r.ReleaseExpired())

	var updated models.Facility
	assert.NoError(t, db.First(&updated, facility.ID).Error)
	assert.Equal(t, models.FacilityBooked, updated.Status)
}

func TestReleaseExpired_PreservesMaintenanceStatus(t *testing.T) {
	db := setupDB(t)
	facility, _ := seedBooking(t, db, models.FacilityUnderMaintenance, models.BookingApproved, time.Now().Add(-time.Minute))

	r := New(db, nil, DefaultInterval)
	assert.NoError(t, r.ReleaseExpired())

	var updated models.Facility
	assert.NoError(t, db.First(&updated, facility.ID).Error)
	assert.Equal(t, models.FacilityUnderMaintenance, updated.Status)
}

func TestReleaseExpired_Idempotent(t *testing.T) {
	db := setupDB(t)
	facility, booking := seedBooking(t, db, models.FacilityBooked, models.BookingApproved, time.Now().Add(-time.Minute))

	r := New(db, nil, DefaultInterval)
	assert.NoError(t, r.ReleaseExpired())
	assert.NoError(t, r.ReleaseExpired())

	var updated models.Facility
	assert.NoError(t, db.First(&updated, facility.ID).Error)
	assert.Equal(t, models.FacilityAvailable, updated.Status)

	// The booking itself is never touched
	var same models.Booking
	assert.NoError(t, db.First(&same, booking.ID).Error)
	assert.Equal(t, models.BookingApproved, same.Status)
}

func TestStartStop(t *testing.T) {
	db := setupDB(t)
	facility, _ := seedBooking(t, db, models.FacilityBooked, models.BookingApproved, time.Now().Add(-time.Minute))

	r := New(db, nil, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)

	assert.Eventually(t, func() bool {
		var updated models.Facility
		if err := db.First(&updated, facility.ID).Error; err != nil {
			return false
		}
		return updated.Status == models.FacilityAvailable
	}, time.Second, 10*time.Millisecond)

	r.Stop()
}
