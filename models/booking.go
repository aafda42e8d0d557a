package models

import (
	"time"

	"gorm.io/gorm"
)

// FacilityStatus enumerates the states a facility can be in.
type FacilityStatus string

const (
	FacilityAvailable        FacilityStatus = "available"
	FacilityBooked           FacilityStatus = "booked"
	FacilityUnderMaintenance FacilityStatus = "under_maintenance"
)

// BookingStatus enumerates the approval states of a booking.
type BookingStatus string

const (
	BookingPending  BookingStatus = "pending"
	BookingApproved BookingStatus = "approved"
	BookingRejected BookingStatus = "rejected"
)

// Facility represents a bookable campus facility.
type Facility struct {
	gorm.Model
	Name        string         `gorm:"not null;uniqueIndex" json:"name"`
	Location    string         `json:"location"`
	Description string         `gorm:"type:text" json:"description"`
	Status      FacilityStatus `gorm:"not null;default:available" json:"status"`
}

// Booking represents a request for a facility over a time window. Created
// pending by the requester, moved to approved/rejected by an admin only.
// An approved booking whose end time has passed is picked up by the
// reconciler, which releases the owning facility.
type Booking struct {
	gorm.Model
	FacilityID     uint          `gorm:"not null;index" json:"facility_id"`
	Facility       Facility      `json:"facility,omitempty"`
	RequesterEmail string        `gorm:"not null;index" json:"requester_email"`
	RequesterRole  Role          `json:"requester_role"`
	StartTime      time.Time     `gorm:"not null" json:"start_time"`
	EndTime        time.Time     `gorm:"not null;index" json:"end_time"`
	Reason         string        `gorm:"type:text" json:"reason"`
	Status         BookingStatus `gorm:"not null;default:pending;index" json:"approval_status"`
}
