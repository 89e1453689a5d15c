package services

import (
	"sync"

	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/internal/models"
)

// openTicketIndex is a guild-scoped cache of open tickets, rebuilt from
// the modmail_tickets table on start and invalidated only by the ticket
// service's own writes. It is advisory: the guard table and ticket row
// remain the source of truth for the open-ticket invariant.
type openTicketIndex struct {
	mu      sync.RWMutex
	byGuild map[string]map[string]string // guild id -> user id -> thread id ("" while pending)
}

func newOpenTicketIndex() *openTicketIndex {
	return &openTicketIndex{byGuild: make(map[string]map[string]string)}
}

func (i *openTicketIndex) rebuild(db *gorm.DB) error {
	var tickets []models.ModmailTicket
	if err := db.Where("status = ?", models.TicketStatusOpen).Find(&tickets).Error; err != nil {
		return err
	}

	fresh := make(map[string]map[string]string)
	for _, t := range tickets {
		users, ok := fresh[t.GuildID]
		if !ok {
			users = make(map[string]string)
			fresh[t.GuildID] = users
		}
		thread := ""
		if t.ThreadID != nil {
			thread = *t.ThreadID
		}
		users[t.UserID] = thread
	}

	i.mu.Lock()
	i.byGuild = fresh
	i.mu.Unlock()
	return nil
}

func (i *openTicketIndex) set(guildID, userID, threadID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	users, ok := i.byGuild[guildID]
	if !ok {
		users = make(map[string]string)
		i.byGuild[guildID] = users
	}
	users[userID] = threadID
}

func (i *openTicketIndex) remove(guildID, userID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if users, ok := i.byGuild[guildID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(i.byGuild, guildID)
		}
	}
}

func (i *openTicketIndex) lookup(guildID, userID string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	users, ok := i.byGuild[guildID]
	if !ok {
		return "", false
	}
	thread, ok := users[userID]
	return thread, ok
}

func (i *openTicketIndex) count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	total := 0
	for _, users := range i.byGuild {
		total += len(users)
	}
	return total
}
