package channel

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeChannel is the in-memory state Fake keeps per channel.
type FakeChannel struct {
	ID          string
	ParentID    string
	Name        string
	Kind        Kind
	Archived    bool
	Locked      bool
	SelfRemoved bool
	Messages    []Message
	Overwrites  map[string]PermissionFlags
}

// Fake is an in-memory API implementation for tests. Error fields, when
// set, are returned by the corresponding method; call counters allow
// asserting how often the external surface was hit.
type Fake struct {
	mu     sync.Mutex
	nextID int

	Channels map[string]*FakeChannel
	DMs      map[string][]string

	CreateErr     error
	DeleteErr     error
	ArchiveErr    error
	RemoveSelfErr error
	OverwriteErr  error
	SendErr       error
	DMErr         error

	CreateCalls     int
	DeleteCalls     int
	ArchiveCalls    int
	RemoveSelfCalls int
	OverwriteCalls  int
}

// NewFake returns an empty fake channel platform.
func NewFake() *Fake {
	return &Fake{
		Channels: make(map[string]*FakeChannel),
		DMs:      make(map[string][]string),
	}
}

var _ API = (*Fake)(nil)

func (f *Fake) CreateChannel(_ context.Context, parentID, name string, kind Kind) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreateCalls++
	if f.CreateErr != nil {
		return "", f.CreateErr
	}

	f.nextID++
	id := fmt.Sprintf("chan-%d", f.nextID)
	f.Channels[id] = &FakeChannel{
		ID:         id,
		ParentID:   parentID,
		Name:       name,
		Kind:       kind,
		Overwrites: make(map[string]PermissionFlags),
	}
	return id, nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.DeleteCalls++
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.Channels[channelID]; !ok {
		return ErrNotFound
	}
	delete(f.Channels, channelID)
	return nil
}

func (f *Fake) ArchiveAndLock(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ArchiveCalls++
	if f.ArchiveErr != nil {
		return f.ArchiveErr
	}
	ch, ok := f.Channels[channelID]
	if !ok {
		return ErrNotFound
	}
	ch.Archived = true
	ch.Locked = true
	return nil
}

func (f *Fake) RemoveSelfMembership(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.RemoveSelfCalls++
	if f.RemoveSelfErr != nil {
		return f.RemoveSelfErr
	}
	ch, ok := f.Channels[channelID]
	if !ok {
		return ErrNotFound
	}
	ch.SelfRemoved = true
	return nil
}

func (f *Fake) EditPermissionOverwrite(_ context.Context, channelID, roleID string, allow PermissionFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OverwriteCalls++
	if f.OverwriteErr != nil {
		return f.OverwriteErr
	}
	ch, ok := f.Channels[channelID]
	if !ok {
		return ErrNotFound
	}
	ch.Overwrites[roleID] |= allow
	return nil
}

func (f *Fake) HasPermissionOverwrite(_ context.Context, channelID, roleID string, allow PermissionFlags) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch, ok := f.Channels[channelID]
	if !ok {
		return false, ErrNotFound
	}
	return ch.Overwrites[roleID]&allow == allow, nil
}

func (f *Fake) SendMessage(_ context.Context, channelID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SendErr != nil {
		return "", f.SendErr
	}
	ch, ok := f.Channels[channelID]
	if !ok {
		return "", ErrNotFound
	}

	f.nextID++
	msg := Message{
		ID:        fmt.Sprintf("msg-%d", f.nextID),
		AuthorID:  "self",
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	ch.Messages = append(ch.Messages, msg)
	return msg.ID, nil
}

func (f *Fake) RecentMessages(_ context.Context, channelID string, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch, ok := f.Channels[channelID]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]Message, 0, limit)
	for i := len(ch.Messages) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, ch.Messages[i])
	}
	return out, nil
}

func (f *Fake) SendDirectMessage(_ context.Context, userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DMErr != nil {
		return f.DMErr
	}
	f.DMs[userID] = append(f.DMs[userID], content)
	return nil
}

// MustChannel returns the channel with the given id, or nil when absent.
func (f *Fake) MustChannel(id string) *FakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Channels[id]
}
