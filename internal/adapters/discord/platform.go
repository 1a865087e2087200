package discord

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/permission"
	"github.com/okian/promille/internal/domain/platform"
	"github.com/okian/promille/pkg/logger"
)

// Adapter implements platform.Platform and platform.Publisher on a Discord
// session. Renames share one token bucket because Discord throttles member
// edits per guild.
type Adapter struct {
	session Session
	limiter *rate.Limiter
	logger  logger.Logger

	mu     sync.RWMutex
	owners map[string]string
}

var (
	_ platform.Platform  = (*Adapter)(nil)
	_ platform.Publisher = (*Adapter)(nil)
)

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithRenameRate limits renames to perSec with the given burst.
func WithRenameRate(perSec float64, burst int) AdapterOption {
	return func(a *Adapter) {
		if perSec > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(perSec), max(burst, 1))
		}
	}
}

// WithAdapterLogger sets the adapter logger.
func WithAdapterLogger(l logger.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAdapter wraps session.
func NewAdapter(session Session, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		session: session,
		limiter: rate.NewLimiter(rate.Limit(2), 5),
		owners:  map[string]string{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get()
	}
	a.logger = a.logger.Named("discord")
	return a
}

// Rename sets the member's nickname.
func (a *Adapter) Rename(ctx context.Context, member model.MemberRef, name string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rename %s: %w", member.MemberID, err)
	}
	return translate("rename", a.session.GuildMemberNickname(member.GuildID, member.MemberID, name, discordgo.WithContext(ctx)))
}

// Notify sends a direct message.
func (a *Adapter) Notify(ctx context.Context, member model.MemberRef, text string) error {
	ch, err := a.session.UserChannelCreate(member.MemberID, discordgo.WithContext(ctx))
	if err != nil {
		return translate("open dm", err)
	}
	_, err = a.session.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx))
	return translate("send dm", err)
}

// IsOwner reports whether member owns its guild. Guild owners are cached
// for the lifetime of the adapter.
func (a *Adapter) IsOwner(ctx context.Context, member model.MemberRef) bool {
	owner, err := a.ownerOf(ctx, member.GuildID)
	if err != nil {
		a.logger.Warn(ctx, "guild owner lookup failed",
			logger.String("guild_id", member.GuildID),
			logger.Error(err),
		)
		return false
	}
	return owner == member.MemberID
}

func (a *Adapter) ownerOf(ctx context.Context, guildID string) (string, error) {
	if guildID == "" {
		return "", ErrNotInGuild
	}
	a.mu.RLock()
	owner, ok := a.owners[guildID]
	a.mu.RUnlock()
	if ok {
		return owner, nil
	}
	g, err := a.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", translate("guild", err)
	}
	a.mu.Lock()
	a.owners[guildID] = g.OwnerID
	a.mu.Unlock()
	return g.OwnerID, nil
}

// DisplayName returns the nickname, global name or username, in that
// order.
func (a *Adapter) DisplayName(ctx context.Context, member model.MemberRef) (string, error) {
	m, err := a.session.GuildMember(member.GuildID, member.MemberID, discordgo.WithContext(ctx))
	if err != nil {
		return "", translate("member", err)
	}
	return memberName(m), nil
}

// Publish posts content and returns the message ID.
func (a *Adapter) Publish(ctx context.Context, channelID, content string) (string, error) {
	msg, err := a.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", translate("publish", err)
	}
	return msg.ID, nil
}

// Edit replaces a message's content.
func (a *Adapter) Edit(ctx context.Context, channelID, messageID, content string) error {
	_, err := a.session.ChannelMessageEdit(channelID, messageID, content, discordgo.WithContext(ctx))
	return translate("edit", err)
}

// SendFile attaches data to a new message.
func (a *Adapter) SendFile(ctx context.Context, channelID, name string, data []byte) error {
	_, err := a.session.ChannelFileSend(channelID, name, bytes.NewReader(data), discordgo.WithContext(ctx))
	return translate("send file", err)
}

// React adds emoji to a message as the bot.
func (a *Adapter) React(ctx context.Context, channelID, messageID, emoji string) error {
	return translate("react", a.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)))
}

// Unreact removes userID's emoji reaction.
func (a *Adapter) Unreact(ctx context.Context, channelID, messageID, emoji, userID string) error {
	return translate("unreact", a.session.MessageReactionRemove(channelID, messageID, emoji, userID, discordgo.WithContext(ctx)))
}

// Permissions snapshots what the actor may do in channelID.
func (a *Adapter) Permissions(ctx context.Context, guildID, channelID, userID string) (permission.Snapshot, error) {
	perms, err := a.session.UserChannelPermissions(userID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		return permission.Snapshot{}, fmt.Errorf("%w: %w", ErrPermissionCheck, translate("permissions", err))
	}
	owner, _ := a.ownerOf(ctx, guildID)
	return permission.Snapshot{
		Owner:           owner != "" && owner == userID,
		Administrator:   perms&discordgo.PermissionAdministrator != 0,
		ManageNicknames: perms&discordgo.PermissionManageNicknames != 0,
	}, nil
}

// FindMember resolves a mention, a raw ID or a username/nickname.
func (a *Adapter) FindMember(ctx context.Context, guildID, query string) (model.MemberRef, string, error) {
	if id, ok := parseMention(query); ok {
		m, err := a.session.GuildMember(guildID, id, discordgo.WithContext(ctx))
		if err != nil {
			return model.MemberRef{}, "", fmt.Errorf("%w: %s", ErrMemberNotFound, query)
		}
		return model.MemberRef{GuildID: guildID, MemberID: id}, memberName(m), nil
	}

	found, err := a.session.GuildMembersSearch(guildID, query, 10, discordgo.WithContext(ctx))
	if err != nil {
		return model.MemberRef{}, "", translate("member search", err)
	}
	for _, m := range found {
		if m.User == nil {
			continue
		}
		if strings.EqualFold(m.User.Username, query) || (m.Nick != "" && strings.EqualFold(m.Nick, query)) {
			return model.MemberRef{GuildID: guildID, MemberID: m.User.ID}, memberName(m), nil
		}
	}
	return model.MemberRef{}, "", fmt.Errorf("%w: %s", ErrMemberNotFound, query)
}

func memberName(m *discordgo.Member) string {
	if m == nil {
		return ""
	}
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

// parseMention accepts <@id>, <@!id> and bare numeric IDs.
func parseMention(s string) (string, bool) {
	if strings.HasPrefix(s, "<@") && strings.HasSuffix(s, ">") {
		s = strings.TrimPrefix(strings.TrimSuffix(s[2:], ">"), "!")
	}
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return s, true
}

// parseChannel accepts <#id> and bare numeric IDs.
func parseChannel(s string) (string, bool) {
	if strings.HasPrefix(s, "<#") && strings.HasSuffix(s, ">") {
		s = s[2 : len(s)-1]
	}
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return s, true
}
