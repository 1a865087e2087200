package ranking

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/platform"
	"github.com/okian/promille/pkg/logger"
	"github.com/okian/promille/pkg/metrics"
)

// SettingsStore keeps the published leaderboard references.
type SettingsStore interface {
	Settings() model.Settings
	UpdateSettings(fn func(*model.Settings)) model.Settings
}

// Refresher publishes the leaderboard and keeps a published copy current.
type Refresher struct {
	publisher platform.Publisher
	settings  SettingsStore
	logger    logger.Logger
}

// NewRefresher wires a Refresher.
func NewRefresher(pub platform.Publisher, settings SettingsStore, log logger.Logger) *Refresher {
	if log == nil {
		log = logger.Get()
	}
	return &Refresher{publisher: pub, settings: settings, logger: log.Named("leaderboard")}
}

// Publish posts content to channelID, or to the configured leaderboard
// channel when channelID is empty, and remembers the message for later
// refreshes.
func (r *Refresher) Publish(ctx context.Context, channelID, content string) (string, error) {
	if channelID == "" {
		channelID = r.settings.Settings().LeaderboardChannelID
	}
	if channelID == "" {
		return "", ErrNoChannel
	}
	id, err := r.publisher.Publish(ctx, channelID, content)
	if err != nil {
		metrics.RecordPublish("error")
		return "", fmt.Errorf("publish leaderboard: %w", err)
	}
	r.settings.UpdateSettings(func(s *model.Settings) {
		s.LeaderboardChannelID = channelID
		s.LeaderboardMessageID = id
	})
	metrics.RecordPublish("published")
	return id, nil
}

// Refresh edits the previously published message in place. It reports
// whether a message was updated. A message deleted on the platform is
// skipped without error and forgotten.
func (r *Refresher) Refresh(ctx context.Context, content string) (bool, error) {
	s := r.settings.Settings()
	if s.LeaderboardChannelID == "" || s.LeaderboardMessageID == "" {
		return false, nil
	}

	err := r.publisher.Edit(ctx, s.LeaderboardChannelID, s.LeaderboardMessageID, content)
	switch {
	case err == nil:
		metrics.RecordPublish("refreshed")
		return true, nil
	case errors.Is(err, platform.ErrNotFound):
		metrics.RecordPublish("skipped")
		r.logger.Info(ctx, "published leaderboard is gone; forgetting it",
			logger.String("channel_id", s.LeaderboardChannelID),
			logger.String("message_id", s.LeaderboardMessageID),
		)
		r.settings.UpdateSettings(func(cur *model.Settings) {
			if cur.LeaderboardMessageID == s.LeaderboardMessageID {
				cur.LeaderboardMessageID = ""
			}
		})
		return false, nil
	default:
		metrics.RecordPublish("error")
		return false, fmt.Errorf("refresh leaderboard: %w", err)
	}
}
