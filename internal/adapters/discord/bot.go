package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/okian/promille/pkg/logger"
)

// Intents the bot needs: guild messages with content for prefix commands,
// reactions for the status panel and members for name lookups.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsMessageContent |
	discordgo.IntentsGuildMembers

// NewSession creates an unconnected bot session for token. Attach handlers
// before calling Open on it.
func NewSession(ctx context.Context, token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.Identify.Intents = Intents
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		logger.Get().Named("discord").Info(ctx, "gateway ready",
			logger.String("user", r.User.Username),
			logger.Int("guilds", len(r.Guilds)),
		)
	})
	return s, nil
}
