package models

import "time"

// Claim gives one reviewer exclusive rights to decide an application.
// The primary key on app_id is the invariant: at most one live claim
// per application. The row is deleted on unclaim or terminal decision.
type Claim struct {
	AppID      string    `gorm:"primaryKey;type:uuid" json:"app_id"`
	ReviewerID string    `gorm:"not null;size:32;index" json:"reviewer_id"`
	ClaimedAt  time.Time `gorm:"not null" json:"claimed_at"`
}

// TableName keeps the table name in line with the other plural tables.
func (Claim) TableName() string {
	return "claims"
}
