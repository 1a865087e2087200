// Package persistence stores the full status snapshot as a JSON document.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/pkg/logger"
	"github.com/okian/promille/pkg/metrics"
)

const formatVersion = 1

// FileStore loads and saves snapshots at a single path. Writes replace the
// file atomically so a crash never leaves a half-written document.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger logger.Logger
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *FileStore) {
		if l != nil {
			s.logger = l.Named("persistence")
		}
	}
}

// New returns a FileStore for path.
func New(path string, opts ...Option) *FileStore {
	s := &FileStore{path: path}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("persistence")
	}
	return s
}

// Path returns the data file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the snapshot. A missing file is created empty.
func (s *FileStore) Load(ctx context.Context) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info(ctx, "data file missing; creating", logger.String("path", s.path))
		empty := model.Snapshot{Records: map[string]model.StatusRecord{}}
		if err := s.write(empty); err != nil {
			return model.Snapshot{}, err
		}
		return empty, nil
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("read %s: %w", s.path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if doc.Version > formatVersion {
		return model.Snapshot{}, fmt.Errorf("%w: %d", ErrVersion, doc.Version)
	}

	snap, dropped := doc.snapshot()
	for _, d := range dropped {
		s.logger.Warn(ctx, "unreadable expiry timestamp; category treated as expired",
			logger.String("member_id", d.memberID),
			logger.String("category", string(d.tag)),
			logger.String("value", d.value),
		)
	}
	s.logger.Info(ctx, "data file loaded",
		logger.String("path", s.path),
		logger.Int("members", len(snap.Records)),
	)
	return snap, nil
}

// Save writes the snapshot.
func (s *FileStore) Save(ctx context.Context, snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(snap); err != nil {
		metrics.RecordSave("error")
		return err
	}
	metrics.RecordSave("ok")
	s.logger.Debug(ctx, "data file saved", logger.Int("members", len(snap.Records)))
	return nil
}

func (s *FileStore) write(snap model.Snapshot) error {
	raw, err := json.MarshalIndent(fromSnapshot(snap), "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

type document struct {
	Version  int                       `json:"version"`
	Settings settingsDoc               `json:"settings"`
	Members  map[string]memberDocument `json:"members"`
}

type settingsDoc struct {
	ListeningChannelID   string `json:"listening_channel_id,omitempty"`
	LeaderboardChannelID string `json:"leaderboard_channel_id,omitempty"`
	LeaderboardMessageID string `json:"leaderboard_message_id,omitempty"`
	StatusMessageID      string `json:"status_message_id,omitempty"`
}

type memberDocument struct {
	GuildID      string                         `json:"guild_id,omitempty"`
	BaseName     string                         `json:"base_name"`
	Counts       map[catalog.Tag]int            `json:"counts"`
	ExpiresAt    map[catalog.Tag]*string        `json:"expires_at"`
	MonthlyUsage map[string]map[catalog.Tag]int `json:"monthly_usage"`
}

type droppedTimer struct {
	memberID string
	tag      catalog.Tag
	value    string
}

func fromSnapshot(snap model.Snapshot) document {
	doc := document{
		Version: formatVersion,
		Settings: settingsDoc{
			ListeningChannelID:   snap.Settings.ListeningChannelID,
			LeaderboardChannelID: snap.Settings.LeaderboardChannelID,
			LeaderboardMessageID: snap.Settings.LeaderboardMessageID,
			StatusMessageID:      snap.Settings.StatusMessageID,
		},
		Members: make(map[string]memberDocument, len(snap.Records)),
	}
	for id, rec := range snap.Records {
		m := memberDocument{
			GuildID:      rec.GuildID,
			BaseName:     rec.BaseName,
			Counts:       map[catalog.Tag]int{},
			ExpiresAt:    map[catalog.Tag]*string{},
			MonthlyUsage: map[string]map[catalog.Tag]int{},
		}
		for tag, n := range rec.Counts {
			m.Counts[tag] = n
			m.ExpiresAt[tag] = nil
		}
		for tag, at := range rec.ExpiresAt {
			v := at.UTC().Format(time.RFC3339Nano)
			m.ExpiresAt[tag] = &v
		}
		for month, b := range rec.MonthlyUsage {
			m.MonthlyUsage[month] = map[catalog.Tag]int(b.Clone())
		}
		doc.Members[id] = m
	}
	return doc
}

func (d document) snapshot() (model.Snapshot, []droppedTimer) {
	snap := model.Snapshot{
		Settings: model.Settings{
			ListeningChannelID:   d.Settings.ListeningChannelID,
			LeaderboardChannelID: d.Settings.LeaderboardChannelID,
			LeaderboardMessageID: d.Settings.LeaderboardMessageID,
			StatusMessageID:      d.Settings.StatusMessageID,
		},
		Records: make(map[string]model.StatusRecord, len(d.Members)),
	}

	var dropped []droppedTimer
	ids := make([]string, 0, len(d.Members))
	for id := range d.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		m := d.Members[id]
		rec := model.NewStatusRecord(model.MemberRef{GuildID: m.GuildID, MemberID: id}, m.BaseName)
		for tag, n := range m.Counts {
			rec.Counts[tag] = min(max(n, 0), model.MaxCount)
		}
		for tag, v := range m.ExpiresAt {
			if v == nil {
				continue
			}
			at, err := time.Parse(time.RFC3339Nano, *v)
			if err != nil {
				dropped = append(dropped, droppedTimer{memberID: id, tag: tag, value: *v})
				continue
			}
			rec.ExpiresAt[tag] = at.UTC()
		}
		// A count without a timer could never expire.
		for tag, n := range rec.Counts {
			if _, ok := rec.ExpiresAt[tag]; n > 0 && !ok {
				rec.Counts[tag] = 0
			}
		}
		for tag := range rec.ExpiresAt {
			if rec.Counts[tag] <= 0 {
				delete(rec.ExpiresAt, tag)
			}
		}
		for month, b := range m.MonthlyUsage {
			bucket := make(model.Bucket, len(b))
			for tag, n := range b {
				bucket[tag] = min(max(n, 0), model.MaxCount)
			}
			rec.MonthlyUsage[month] = bucket
		}
		snap.Records[id] = rec.Clone()
	}
	return snap, dropped
}
