package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Review actions recorded in the append-only log.
const (
	ActionClaim       = "claim"
	ActionUnclaim     = "unclaim"
	ActionApprove     = "approve"
	ActionReject      = "reject"
	ActionPermReject  = "perm_reject"
	ActionKick        = "kick"
	ActionTicketOpen  = "ticket_open"
	ActionTicketClose = "ticket_close"
)

// ReviewAction is one entry in the append-only moderation log. Entries
// are never updated or deleted; they are the sole source of truth for
// history and analytics.
type ReviewAction struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	AppID     *string        `gorm:"type:uuid;index" json:"app_id,omitempty"`
	GuildID   string         `gorm:"not null;size:32;index" json:"guild_id"`
	ActorID   string         `gorm:"not null;size:32;index" json:"actor_id"`
	Action    string         `gorm:"not null;index" json:"action"`
	Reason    string         `json:"reason,omitempty"`
	Meta      datatypes.JSON `json:"meta,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (a *ReviewAction) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
