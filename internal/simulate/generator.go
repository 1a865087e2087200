package simulate

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/promille/internal/domain/catalog"
	"github.com/okian/promille/pkg/logger"
)

// Quantity distribution: most rounds are singles, some doubles, few triples.
const (
	quantityDivisor = 10
	singleCutoff    = 6
	doubleCutoff    = 9
)

func randInt(n int64) int64 {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0
	}
	return v.Int64()
}

// memberIDs returns n distinct snowflake-like IDs.
func memberIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = strconv.FormatInt(memberIDBase+int64(i), 10)
	}
	return ids
}

// generateEvents creates cfg.NumEvents events spread over cfg.Members members.
func generateEvents(ctx context.Context, cfg *Config, cat *catalog.Catalog, at time.Time, stats *Stats) ([]Event, error) {
	logger.Get().Info(ctx, "generating events",
		logger.Int("events", cfg.NumEvents),
		logger.Int("members", cfg.Members))

	if cfg.NumEvents <= 0 || cfg.Members <= 0 {
		return nil, fmt.Errorf("need at least one event and one member")
	}

	ids := memberIDs(cfg.Members)
	tags := cat.Tags()
	events := make([]Event, cfg.NumEvents)
	for i := range events {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during event generation: %w", err)
		}
		events[i] = Event{
			EventID:  uuid.NewString(),
			MemberID: ids[randInt(int64(len(ids)))],
			Category: string(tags[randInt(int64(len(tags)))]),
			Quantity: generateQuantity(),
			At:       at,
		}
	}

	stats.EventsGenerated = len(events)
	logger.Get().Info(ctx, "generated events", logger.Int("count", len(events)))
	return events, nil
}

func generateQuantity() int {
	switch r := randInt(quantityDivisor); {
	case r < singleCutoff:
		return 1
	case r < doubleCutoff:
		return 2
	default:
		return 3
	}
}
