// Package repository holds the in-memory status store, the source of truth
// between persistence cycles.
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/internal/domain/clock"
	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/usage"
	"github.com/okian/promille/pkg/metrics"
)

// Store owns member status records and the process-wide settings.
//
// Every mutation applies its counter and ledger updates under one lock, and
// every read returns deep copies, so callers can talk to the platform
// without holding the lock or observing partial updates.
type Store struct {
	mu       sync.RWMutex
	records  map[string]*model.StatusRecord
	settings model.Settings

	catalog *catalog.Catalog
	clock   clock.Clock

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopOnce              sync.Once
	stopChan              chan struct{}
}

// New constructs an empty store.
func New(cat *catalog.Catalog, opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*model.StatusRecord),
		catalog: cat,
		clock:   clock.Real(),

		metricsUpdateInterval: metrics.RefreshInterval(),
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the background gauge updater. It stops when ctx is done
// or Close is called.
func (s *Store) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

// Close stops the background goroutines and waits for them to exit.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *Store) updateMetrics() {
	tracked, active := s.Count()
	metrics.UpdateMembers(tracked, active)
}

// RecordEvent adds qty to member's count for tag, replaces the tag's expiry
// timer with now+window and adds qty to the current month's ledger. The
// record is created on first use with baseNameHint as its base name.
func (s *Store) RecordEvent(_ context.Context, member model.MemberRef, baseNameHint string, tag catalog.Tag, qty int) (model.StatusRecord, error) {
	cat, ok := s.catalog.Get(tag)
	if !ok {
		metrics.RecordEventRejected("invalid_category")
		return model.StatusRecord{}, fmt.Errorf("%w: %q", ErrInvalidCategory, tag)
	}
	if qty <= 0 {
		metrics.RecordEventRejected("invalid_quantity")
		return model.StatusRecord{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	if member.MemberID == "" {
		return model.StatusRecord{}, ErrMissingMember
	}

	now := s.clock.Now()
	month := usage.MonthKey(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[member.MemberID]
	if !fits(rec, month, cat.Tag, qty) {
		metrics.RecordEventRejected("limit_exceeded")
		return model.StatusRecord{}, fmt.Errorf("%w: %d %s", ErrQuantityTooLarge, qty, cat.Tag)
	}
	if !ok {
		rec = model.NewStatusRecord(member, baseNameHint)
		s.records[member.MemberID] = rec
	} else if !rec.Active() && baseNameHint != "" {
		// Nothing is rendered while every count is zero, so the platform
		// name is clean and may carry a rename made in the meantime.
		rec.BaseName = baseNameHint
	}
	if rec.GuildID == "" {
		rec.GuildID = member.GuildID
	}

	rec.Counts[cat.Tag] += qty
	rec.ExpiresAt[cat.Tag] = now.Add(cat.Window)
	usage.AddUsage(rec, s.catalog, month, cat.Tag, qty)

	metrics.RecordEvent(string(cat.Tag))
	return rec.Clone(), nil
}

// fits reports whether adding qty keeps the live count of tag and the month
// total of rec within model.MaxCount. A nil rec starts from zero.
func fits(rec *model.StatusRecord, month string, tag catalog.Tag, qty int) bool {
	if qty > model.MaxCount {
		return false
	}
	if rec == nil {
		return true
	}
	room := model.MaxCount - qty
	return rec.Counts[tag] <= room && usage.Total(rec.MonthlyUsage[month]) <= room
}

// ClearStatus zeroes every count and timer of a member and returns the last
// known base name. Monthly usage is kept.
func (s *Store) ClearStatus(_ context.Context, memberID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[memberID]
	if !ok || !rec.Active() {
		return "", ErrNoActiveStatus
	}
	for tag := range rec.Counts {
		rec.Counts[tag] = 0
	}
	for tag := range rec.ExpiresAt {
		delete(rec.ExpiresAt, tag)
	}
	metrics.RecordStatusCleared()
	return rec.BaseName, nil
}

// GetStatus returns a copy of the member's record. Members without a record
// or with every count at zero have no active status.
func (s *Store) GetStatus(_ context.Context, memberID string) (model.StatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[memberID]
	if !ok || !rec.Active() {
		return model.StatusRecord{}, ErrNoActiveStatus
	}
	return rec.Clone(), nil
}

// Lookup returns a copy of the member's record whether active or not.
func (s *Store) Lookup(memberID string) (model.StatusRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[memberID]
	if !ok {
		return model.StatusRecord{}, false
	}
	return rec.Clone(), true
}

// SetBaseName stores name as the member's base name when none is set yet.
func (s *Store) SetBaseName(memberID, name string) bool {
	if name == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[memberID]
	if !ok || rec.BaseName != "" {
		return false
	}
	rec.BaseName = name
	return true
}

// Expire zeroes every positive count whose timer is at or before now and
// returns copies of the records that changed, ordered by member ID, plus the
// individual expirations. Records are retained even when all counts are zero.
func (s *Store) Expire(now time.Time) ([]model.StatusRecord, []model.Expiration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		changed []model.StatusRecord
		expired []model.Expiration
	)
	for _, id := range s.sortedIDs() {
		rec := s.records[id]
		touched := false
		for _, tag := range s.tagsOf(rec) {
			n := rec.Counts[tag]
			if n <= 0 {
				continue
			}
			at, ok := rec.ExpiresAt[tag]
			if ok && at.After(now) {
				continue
			}
			rec.Counts[tag] = 0
			delete(rec.ExpiresAt, tag)
			expired = append(expired, model.Expiration{MemberID: id, Tag: tag, Count: n})
			touched = true
		}
		if touched {
			changed = append(changed, rec.Clone())
		}
	}
	return changed, expired
}

// MonthUsage returns every member's bucket for month, ordered by member ID.
func (s *Store) MonthUsage(month string) []model.MemberUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.MemberUsage, 0, len(s.records))
	for _, id := range s.sortedIDs() {
		b, ok := s.records[id].MonthlyUsage[month]
		if !ok {
			continue
		}
		out = append(out, model.MemberUsage{MemberID: id, Usage: b.Clone()})
	}
	return out
}

// PendingMonths lists months before the given key still held by any record.
func (s *Store) PendingMonths(before string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]struct{}{}
	for _, rec := range s.records {
		for month := range rec.MonthlyUsage {
			if month < before {
				seen[month] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for month := range seen {
		out = append(out, month)
	}
	sort.Strings(out)
	return out
}

// MonthSnapshot builds the exportable ledger for month.
func (s *Store) MonthSnapshot(month string) model.MonthSnapshot {
	return model.MonthSnapshot{Month: month, Members: s.MonthUsage(month)}
}

// DropMonth removes month from every record's ledger.
func (s *Store) DropMonth(month string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.records {
		if _, ok := rec.MonthlyUsage[month]; ok {
			delete(rec.MonthlyUsage, month)
			n++
		}
	}
	return n
}

// Settings returns the process-wide settings.
func (s *Store) Settings() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings applies fn to the settings under the store lock.
func (s *Store) UpdateSettings(fn func(*model.Settings)) model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.settings)
	return s.settings
}

// Snapshot returns a deep copy of the whole state for persistence.
func (s *Store) Snapshot() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := model.Snapshot{
		Settings: s.settings,
		Records:  make(map[string]model.StatusRecord, len(s.records)),
	}
	for id, rec := range s.records {
		snap.Records[id] = rec.Clone()
	}
	return snap
}

// Restore replaces the whole state with snap. Live counts of categories the
// catalog no longer knows are dropped and returned, ordered by member ID
// then tag. Their ledger entries are kept.
func (s *Store) Restore(snap model.Snapshot) []model.Expiration {
	records := make(map[string]*model.StatusRecord, len(snap.Records))
	var dropped []model.Expiration
	for id, rec := range snap.Records {
		c := rec.Clone()
		if c.MemberID == "" {
			c.MemberID = id
		}
		for _, tag := range sortedTags(c.Counts) {
			if _, ok := s.catalog.Get(tag); ok {
				continue
			}
			if n := c.Counts[tag]; n > 0 {
				dropped = append(dropped, model.Expiration{MemberID: id, Tag: tag, Count: n})
			}
			delete(c.Counts, tag)
		}
		for tag := range c.ExpiresAt {
			if _, ok := s.catalog.Get(tag); !ok {
				delete(c.ExpiresAt, tag)
			}
		}
		records[id] = &c
	}
	sort.SliceStable(dropped, func(i, j int) bool { return dropped[i].MemberID < dropped[j].MemberID })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.settings = snap.Settings
	return dropped
}

// Count returns the number of records and how many of them are active.
func (s *Store) Count() (tracked, active int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Active() {
			active++
		}
	}
	return len(s.records), active
}

// tagsOf returns the catalog tags followed by any other tag rec counts,
// sorted.
func (s *Store) tagsOf(rec *model.StatusRecord) []catalog.Tag {
	tags := s.catalog.Tags()
	for _, tag := range sortedTags(rec.Counts) {
		if _, ok := s.catalog.Get(tag); !ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

func sortedTags(b model.Bucket) []catalog.Tag {
	tags := make([]catalog.Tag, 0, len(b))
	for tag := range b {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// sortedIDs must be called with s.mu held.
func (s *Store) sortedIDs() []string {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
