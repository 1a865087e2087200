// Package discord connects the status service to a Discord guild: it
// implements the platform callbacks on a discordgo session and turns chat
// messages and reactions into serialised service tasks.
package discord

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/dedupe"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/permission"
	"github.com/okian/promille/internal/domain/render"
	"github.com/okian/promille/pkg/logger"
)

// ClearEmoji on the status panel clears the reacting member's status.
const ClearEmoji = "❌"

// Message is a chat message seen by the bot.
type Message struct {
	ID        string
	GuildID   string
	ChannelID string
	AuthorID  string
	// AuthorName is the author's current display name in the guild.
	AuthorName string
	AuthorBot  bool
	Content    string
}

// Reaction is an emoji added to a message.
type Reaction struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	UserName  string
	UserBot   bool
	Emoji     string
}

// Service is the state the router drives. Mutating calls run inside
// tasks handed to Submit.
type Service interface {
	Catalog() *catalog.Catalog
	Now() time.Time
	Submit(ctx context.Context, name string, fn func(context.Context) error) error
	RecordEvent(ctx context.Context, member model.MemberRef, baseNameHint string, tag catalog.Tag, qty int) (model.StatusRecord, error)
	ClearStatus(ctx context.Context, member model.MemberRef) (string, error)
	GetStatus(ctx context.Context, memberID string) (model.StatusRecord, error)
	LeaderboardText(ctx context.Context, month string) (string, error)
	LeaderboardChart(ctx context.Context, month string) ([]byte, error)
	PublishLeaderboard(ctx context.Context, channelID string) (string, error)
	Settings() model.Settings
	SetListeningChannel(ctx context.Context, channelID string)
	SetStatusMessage(ctx context.Context, messageID string)
}

// Chat is what the router needs to answer on the platform.
type Chat interface {
	Publish(ctx context.Context, channelID, content string) (string, error)
	Notify(ctx context.Context, member model.MemberRef, text string) error
	SendFile(ctx context.Context, channelID, name string, data []byte) error
	React(ctx context.Context, channelID, messageID, emoji string) error
	Unreact(ctx context.Context, channelID, messageID, emoji, userID string) error
	Permissions(ctx context.Context, guildID, channelID, userID string) (permission.Snapshot, error)
	FindMember(ctx context.Context, guildID, query string) (model.MemberRef, string, error)
}

var _ Chat = (*Adapter)(nil)

// Router dispatches prefix commands and status-panel reactions.
type Router struct {
	svc     Service
	chat    Chat
	deduper dedupe.Deduper
	prefix  string
	logger  logger.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithPrefix sets the command prefix.
func WithPrefix(prefix string) RouterOption {
	return func(r *Router) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithDeduper sets the redelivery filter.
func WithDeduper(d dedupe.Deduper) RouterOption {
	return func(r *Router) {
		if d != nil {
			r.deduper = d
		}
	}
}

// WithRouterLogger sets the router logger.
func WithRouterLogger(l logger.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter creates a Router.
func NewRouter(svc Service, chat Chat, opts ...RouterOption) *Router {
	r := &Router{svc: svc, chat: chat, prefix: "."}
	for _, opt := range opts {
		opt(r)
	}
	if r.deduper == nil {
		r.deduper = dedupe.NewInMemoryDeduper()
	}
	if r.logger == nil {
		r.logger = logger.Get()
	}
	r.logger = r.logger.Named("router")
	return r
}

// Attach registers gateway handlers on session. ctx bounds every task the
// handlers submit.
func (r *Router) Attach(ctx context.Context, session *discordgo.Session) {
	session.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageCreate) {
		if e.Message == nil || e.Author == nil {
			return
		}
		m := Message{
			ID:         e.ID,
			GuildID:    e.GuildID,
			ChannelID:  e.ChannelID,
			AuthorID:   e.Author.ID,
			AuthorName: e.Author.Username,
			AuthorBot:  e.Author.Bot,
			Content:    e.Content,
		}
		if e.Author.GlobalName != "" {
			m.AuthorName = e.Author.GlobalName
		}
		if e.Member != nil && e.Member.Nick != "" {
			m.AuthorName = e.Member.Nick
		}
		r.HandleMessage(ctx, m)
	})
	session.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageReactionAdd) {
		if e.MessageReaction == nil {
			return
		}
		rx := Reaction{
			GuildID:   e.GuildID,
			ChannelID: e.ChannelID,
			MessageID: e.MessageID,
			UserID:    e.UserID,
			Emoji:     e.Emoji.APIName(),
		}
		if e.Member != nil {
			rx.UserName = memberName(e.Member)
			rx.UserBot = e.Member.User != nil && e.Member.User.Bot
		}
		r.HandleReaction(ctx, rx)
	})
}

// HandleMessage queues a command task for m. Bot messages, messages
// without the prefix and messages outside the listening channel are
// ignored.
func (r *Router) HandleMessage(ctx context.Context, m Message) {
	if m.AuthorBot || !strings.HasPrefix(m.Content, r.prefix) {
		return
	}
	if ch := r.svc.Settings().ListeningChannelID; ch != "" && ch != m.ChannelID {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(m.Content, r.prefix))
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])
	cmd, ok := r.commands()[name]
	if !ok {
		return
	}

	key := "msg:" + m.ID
	if r.deduper.SeenAndRecord(ctx, key) {
		r.logger.Debug(ctx, "duplicate message dropped", logger.String("message_id", m.ID))
		return
	}
	args := fields[1:]
	err := r.svc.Submit(ctx, "command."+name, func(ctx context.Context) error {
		return cmd(ctx, m, args)
	})
	if err != nil {
		r.deduper.Unrecord(ctx, key)
		r.logger.Warn(ctx, "command dropped",
			logger.String("command", name),
			logger.Error(err),
		)
	}
}

// HandleReaction queues a panel task for rx. Only reactions on the status
// panel message count.
func (r *Router) HandleReaction(ctx context.Context, rx Reaction) {
	if rx.UserBot {
		return
	}
	if panel := r.svc.Settings().StatusMessageID; panel == "" || panel != rx.MessageID {
		return
	}

	// Held until the reaction is removed, so a redelivered add is dropped
	// while a later reaction with the same emoji still counts.
	key := "rx:" + rx.MessageID + ":" + rx.UserID + ":" + rx.Emoji
	if r.deduper.SeenAndRecord(ctx, key) {
		return
	}
	err := r.svc.Submit(ctx, "reaction", func(ctx context.Context) error {
		defer r.deduper.Unrecord(ctx, key)
		return r.react(ctx, rx)
	})
	if err != nil {
		r.deduper.Unrecord(ctx, key)
		r.logger.Warn(ctx, "reaction dropped", logger.Error(err))
	}
}

func (r *Router) react(ctx context.Context, rx Reaction) error {
	member := model.MemberRef{GuildID: rx.GuildID, MemberID: rx.UserID}
	defer func() {
		if err := r.chat.Unreact(ctx, rx.ChannelID, rx.MessageID, rx.Emoji, rx.UserID); err != nil {
			r.logger.Debug(ctx, "reaction not removed", logger.Error(err))
		}
	}()

	if rx.Emoji == ClearEmoji {
		if _, err := r.svc.ClearStatus(ctx, member); err != nil {
			return nil
		}
		r.say(ctx, rx.ChannelID, mention(rx.UserID)+" - your status has been cleared.")
		return nil
	}

	c, ok := r.svc.Catalog().Lookup(rx.Emoji)
	if !ok {
		return nil
	}
	if _, err := r.svc.RecordEvent(ctx, member, render.StripSuffix(rx.UserName), c.Tag, 1); err != nil {
		return err
	}
	r.say(ctx, rx.ChannelID, mention(rx.UserID)+" added +1 to **"+string(c.Tag)+"**.")
	return nil
}

func (r *Router) say(ctx context.Context, channelID, text string) {
	if _, err := r.chat.Publish(ctx, channelID, text); err != nil {
		r.logger.Warn(ctx, "reply failed",
			logger.String("channel_id", channelID),
			logger.Error(err),
		)
	}
}

func mention(userID string) string { return "<@" + userID + ">" }
