// Package platform declares what the core needs from the chat platform.
// Adapters translate their own failures into the sentinel errors below.
package platform

import (
	"context"

	"github.com/okian/promille/internal/domain/model"
)

// Platform renames and notifies members.
type Platform interface {
	// Rename sets the member's display name. Returns ErrRefused when the
	// platform denies the change.
	Rename(ctx context.Context, member model.MemberRef, name string) error
	// Notify sends a private message. Returns ErrRefused when the member
	// does not accept messages.
	Notify(ctx context.Context, member model.MemberRef, text string) error
	// IsOwner reports whether the member owns the community. Rename can
	// never override an owner's name.
	IsOwner(ctx context.Context, member model.MemberRef) bool
	// DisplayName returns the member's current display name.
	DisplayName(ctx context.Context, member model.MemberRef) (string, error)
}

// Publisher posts and edits channel messages.
type Publisher interface {
	Publish(ctx context.Context, channelID, content string) (messageID string, err error)
	// Edit replaces a message's content. Returns ErrNotFound when the
	// message was deleted.
	Edit(ctx context.Context, channelID, messageID, content string) error
}
