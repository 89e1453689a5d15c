package database

import (
	"testing"

	"github.com/gatewarden/gatewarden/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("expected health query to succeed: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestAutoMigrateCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	for _, table := range []string{"applications", "claims", "modmail_tickets", "ticket_guards", "review_actions", "guild_settings"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %s to exist", table)
		}
	}

	guard := models.TicketGuard{GuildID: "g1", UserID: "u1", ThreadID: models.GuardThreadPending}
	if err := db.Create(&guard).Error; err != nil {
		t.Fatalf("create guard: %v", err)
	}

	dup := models.TicketGuard{GuildID: "g1", UserID: "u1", ThreadID: "999"}
	if err := db.Create(&dup).Error; err == nil {
		t.Fatal("expected duplicate guard insert to violate the primary key")
	}
}
