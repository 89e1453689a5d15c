package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// GuildSettings holds the per-guild moderation configuration consumed by
// the lifecycle services. The core only reads these rows; the ops API
// writes them.
type GuildSettings struct {
	GuildID             string         `gorm:"primaryKey;size:32" json:"guild_id"`
	ModRoleIDs          datatypes.JSON `json:"mod_role_ids,omitempty"`
	TicketParentID      string         `gorm:"size:32" json:"ticket_parent_id,omitempty"`
	LogChannelID        string         `gorm:"size:32" json:"log_channel_id,omitempty"`
	DeleteOnClose       bool           `gorm:"not null;default:false" json:"delete_on_close"`
	AutoCloseOnDecision bool           `gorm:"not null;default:true" json:"auto_close_on_decision"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// ModRoles decodes the configured moderator role ids, returning nil when
// none are configured.
func (s *GuildSettings) ModRoles() []string {
	if len(s.ModRoleIDs) == 0 {
		return nil
	}
	var roles []string
	if err := json.Unmarshal(s.ModRoleIDs, &roles); err != nil {
		return nil
	}
	return roles
}

// SetModRoles encodes the moderator role id list.
func (s *GuildSettings) SetModRoles(roles []string) error {
	raw, err := json.Marshal(roles)
	if err != nil {
		return err
	}
	s.ModRoleIDs = datatypes.JSON(raw)
	return nil
}
