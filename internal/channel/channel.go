// Package channel defines the contract the lifecycle services use to
// talk to the external channel/messaging platform. The production
// implementation is an adapter in front of the bot gateway; tests use
// the in-memory Fake.
package channel

import (
	"context"
	"time"
)

// Kind selects the type of channel to create.
type Kind string

const (
	KindPrivateThread Kind = "private_thread"
	KindText          Kind = "text"
)

// PermissionFlags is a bit set of channel-level permissions.
type PermissionFlags uint64

const (
	// PermSendMessagesInThreads allows a role to participate in
	// sub-threads of a channel.
	PermSendMessagesInThreads PermissionFlags = 1 << iota
	PermViewChannel
	PermManageThreads
)

// Message is a message previously posted to a channel, newest first in
// RecentMessages results.
type Message struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// API is the external channel surface consumed by the ticket lifecycle
// and the permission reconciler. All methods perform network I/O and
// must never be called while a local store transaction is open.
type API interface {
	// CreateChannel creates a channel under the given parent and
	// returns its id.
	CreateChannel(ctx context.Context, parentID, name string, kind Kind) (string, error)

	// DeleteChannel permanently removes the channel.
	DeleteChannel(ctx context.Context, channelID string) error

	// ArchiveAndLock archives the channel and prevents further posts.
	ArchiveAndLock(ctx context.Context, channelID string) error

	// RemoveSelfMembership removes the bot's own membership from the
	// channel, hiding it from the bot's views as a last resort.
	RemoveSelfMembership(ctx context.Context, channelID string) error

	// EditPermissionOverwrite grants the role the given permissions on
	// the channel.
	EditPermissionOverwrite(ctx context.Context, channelID, roleID string, allow PermissionFlags) error

	// HasPermissionOverwrite reports whether the role already holds the
	// given permissions on the channel.
	HasPermissionOverwrite(ctx context.Context, channelID, roleID string, allow PermissionFlags) (bool, error)

	// SendMessage posts to a channel and returns the message id.
	SendMessage(ctx context.Context, channelID, content string) (string, error)

	// RecentMessages returns up to limit of the channel's most recent
	// messages, newest first.
	RecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error)

	// SendDirectMessage delivers a direct message to a user. Always
	// best-effort from the caller's perspective.
	SendDirectMessage(ctx context.Context, userID, content string) error
}
