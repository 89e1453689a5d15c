package models

import "time"

// TicketStatus is the lifecycle state of a modmail ticket.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// ModmailTicket records one open period of a private staff/applicant
// channel. The "at most one open ticket per (guild, user)" invariant is
// not enforced on this table; the ticket_guards row protects it. A
// reopened ticket is a fresh row, so the open->closed transition happens
// exactly once per row.
type ModmailTicket struct {
	BaseModel
	GuildID      string       `gorm:"not null;size:32;index:idx_modmail_tickets_guild_user" json:"guild_id"`
	UserID       string       `gorm:"not null;size:32;index:idx_modmail_tickets_guild_user" json:"user_id"`
	AppCode      *string      `gorm:"size:16" json:"app_code,omitempty"`
	ParentID     *string      `gorm:"size:32;index" json:"parent_id,omitempty"`
	ThreadID     *string      `gorm:"size:32;index" json:"thread_id,omitempty"`
	Status       TicketStatus `gorm:"not null;default:open;index" json:"status"`
	ClosedAt     *time.Time   `json:"closed_at,omitempty"`
	LogChannelID *string      `gorm:"size:32" json:"log_channel_id,omitempty"`
	LogMessageID *string      `gorm:"size:32" json:"log_message_id,omitempty"`
}

// Open reports whether the ticket is currently open.
func (t *ModmailTicket) Open() bool {
	return t.Status == TicketStatusOpen
}
