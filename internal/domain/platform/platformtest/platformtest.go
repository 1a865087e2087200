// Package platformtest provides an in-memory platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/platform"
)

// Message is a channel message held by Fake.
type Message struct {
	ChannelID string
	Content   string
}

// Fake records every call and answers from its configuration fields.
type Fake struct {
	mu sync.Mutex

	// Names holds current display names by member ID.
	Names map[string]string
	// Owners lists members the platform treats as owners.
	Owners map[string]bool
	// RefuseRename and RefuseNotify make the matching calls fail with
	// platform.ErrRefused for the given members.
	RefuseRename map[string]bool
	RefuseNotify map[string]bool
	// RenameErr, when set, is returned by every Rename.
	RenameErr error
	// PublishErr and EditErr, when set, are returned by Publish and Edit.
	PublishErr error
	EditErr    error

	Renames       []Rename
	Notifications []Notification
	Messages      map[string]Message
	nextID        int
}

// Rename is one recorded rename request.
type Rename struct {
	MemberID string
	Name     string
}

// Notification is one recorded private message.
type Notification struct {
	MemberID string
	Text     string
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Names:        map[string]string{},
		Owners:       map[string]bool{},
		RefuseRename: map[string]bool{},
		RefuseNotify: map[string]bool{},
		Messages:     map[string]Message{},
	}
}

var (
	_ platform.Platform  = (*Fake)(nil)
	_ platform.Publisher = (*Fake)(nil)
)

func (f *Fake) Rename(_ context.Context, member model.MemberRef, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Renames = append(f.Renames, Rename{MemberID: member.MemberID, Name: name})
	if f.RenameErr != nil {
		return f.RenameErr
	}
	if f.RefuseRename[member.MemberID] {
		return platform.ErrRefused
	}
	f.Names[member.MemberID] = name
	return nil
}

func (f *Fake) Notify(_ context.Context, member model.MemberRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RefuseNotify[member.MemberID] {
		return platform.ErrRefused
	}
	f.Notifications = append(f.Notifications, Notification{MemberID: member.MemberID, Text: text})
	return nil
}

func (f *Fake) IsOwner(_ context.Context, member model.MemberRef) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Owners[member.MemberID]
}

func (f *Fake) DisplayName(_ context.Context, member model.MemberRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name, ok := f.Names[member.MemberID]
	if !ok {
		return "", platform.ErrNotFound
	}
	return name, nil
}

func (f *Fake) Publish(_ context.Context, channelID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishErr != nil {
		return "", f.PublishErr
	}
	f.nextID++
	id := fmt.Sprintf("m%d", f.nextID)
	f.Messages[id] = Message{ChannelID: channelID, Content: content}
	return id, nil
}

func (f *Fake) Edit(_ context.Context, channelID, messageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.EditErr != nil {
		return f.EditErr
	}
	msg, ok := f.Messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return platform.ErrNotFound
	}
	f.Messages[messageID] = Message{ChannelID: channelID, Content: content}
	return nil
}

// Delete removes a published message as if a moderator deleted it.
func (f *Fake) Delete(messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Messages, messageID)
}

// LastRename returns the most recent rename for member.
func (f *Fake) LastRename(memberID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.Renames) - 1; i >= 0; i-- {
		if f.Renames[i].MemberID == memberID {
			return f.Renames[i].Name, true
		}
	}
	return "", false
}

// RenameCount returns the number of rename calls.
func (f *Fake) RenameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Renames)
}

// NotificationCount returns the number of delivered notifications.
func (f *Fake) NotificationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Notifications)
}
