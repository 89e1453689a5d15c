package models

import "time"

// ApplicationStatus tracks where a join application is in its lifecycle.
type ApplicationStatus string

const (
	ApplicationStatusDraft        ApplicationStatus = "draft"
	ApplicationStatusSubmitted    ApplicationStatus = "submitted"
	ApplicationStatusApproved     ApplicationStatus = "approved"
	ApplicationStatusRejected     ApplicationStatus = "rejected"
	ApplicationStatusPermRejected ApplicationStatus = "perm_rejected"
	ApplicationStatusKicked       ApplicationStatus = "kicked"
)

// Terminal reports whether the status is a final decision. Terminal
// transitions are one-directional; once decided an application never
// returns to submitted.
func (s ApplicationStatus) Terminal() bool {
	switch s {
	case ApplicationStatusApproved, ApplicationStatusRejected,
		ApplicationStatusPermRejected, ApplicationStatusKicked:
		return true
	}
	return false
}

// Application is a join request submitted by a prospective member.
// Rows are retained forever for audit; only the status and decision
// fields are ever mutated, and only by the decision service.
type Application struct {
	BaseModel
	GuildID        string            `gorm:"not null;size:32;index:idx_applications_guild_user" json:"guild_id"`
	UserID         string            `gorm:"not null;size:32;index:idx_applications_guild_user" json:"user_id"`
	Code           string            `gorm:"not null;size:16;uniqueIndex" json:"code"`
	Status         ApplicationStatus `gorm:"not null;default:draft;index" json:"status"`
	SubmittedAt    *time.Time        `json:"submitted_at,omitempty"`
	DecidedAt      *time.Time        `json:"decided_at,omitempty"`
	DecidedBy      *string           `gorm:"size:32" json:"decided_by,omitempty"`
	DecisionReason string            `json:"decision_reason,omitempty"`
}
