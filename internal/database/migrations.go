package database

import (
	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/internal/models"
)

// AutoMigrate creates or updates the database schema for all models. The
// composite primary key on ticket_guards and the single-column primary
// key on claims are the load-bearing constraints; everything else is
// conventional indexing.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Application{},
		&models.Claim{},
		&models.ModmailTicket{},
		&models.TicketGuard{},
		&models.ReviewAction{},
		&models.GuildSettings{},
	)
}
