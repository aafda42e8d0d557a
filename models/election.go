package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Election represents a named voting event with a start/end window.
// Positions are kept in insertion order (ordered by primary key).
type Election struct {
	gorm.Model
	Title     string     `gorm:"not null;uniqueIndex" json:"title"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"` // Optional end date for the election
	IsActive  bool       `gorm:"default:true" json:"is_active"`
	Positions []Position `gorm:"foreignKey:ElectionID" json:"positions"`
}

// Position represents a contestable role within an election (e.g. "President").
// The name is unique within its election.
type Position struct {
	gorm.Model
	ElectionID uint        `gorm:"not null;index;uniqueIndex:idx_election_position" json:"election_id"`
	Name       string      `gorm:"not null;uniqueIndex:idx_election_position" json:"name"`
	Candidates []Candidate `gorm:"foreignKey:PositionID" json:"candidates"`
}

// Candidate represents a voter nominated for a position. Votes must always
// equal the number of VoteRecord rows referencing the candidate; both are
// written in the same transaction.
type Candidate struct {
	gorm.Model
	PositionID uint   `gorm:"not null;index;uniqueIndex:idx_position_candidate" json:"position_id"`
	Name       string `gorm:"not null" json:"name"`
	Email      string `gorm:"not null;uniqueIndex:idx_position_candidate" json:"email"`
	Manifesto  string `gorm:"type:text" json:"manifesto"`
	Votes      int64  `gorm:"default:0" json:"votes"`
	IsActive   bool   `gorm:"default:true" json:"is_active"`
}

// VoteRecord is the vote ledger. The unique index on (position_id, voter_email)
// makes the storage engine reject a second vote for the same position no matter
// how the writes interleave.
type VoteRecord struct {
	gorm.Model
	PositionID  uint   `gorm:"not null;index;uniqueIndex:idx_position_voter" json:"position_id"`
	CandidateID uint   `gorm:"not null;index" json:"candidate_id"`
	VoterEmail  string `gorm:"not null;uniqueIndex:idx_position_voter" json:"voter_email"`
}

// NormalizeName folds a position or candidate name for lookup: leading and
// trailing whitespace is ignored and matching is case-insensitive.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
