package models

import "time"

// GuardThreadPending is the sentinel thread id stored while the external
// channel is still being created.
const GuardThreadPending = "pending"

// TicketGuard is the creation mutex for modmail tickets. The composite
// primary key serialises ticket creation per (guild, user): the row's
// existence means "a ticket is being created or exists", its absence
// means "no ticket". It is inserted in the same transaction as the
// ModmailTicket row and removed on close or compensating cleanup.
type TicketGuard struct {
	GuildID   string    `gorm:"primaryKey;size:32" json:"guild_id"`
	UserID    string    `gorm:"primaryKey;size:32" json:"user_id"`
	ThreadID  string    `gorm:"not null;size:32" json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Pending reports whether channel creation is still in flight.
func (g *TicketGuard) Pending() bool {
	return g.ThreadID == GuardThreadPending
}

// TableName names the mutex table explicitly.
func (TicketGuard) TableName() string {
	return "ticket_guards"
}
