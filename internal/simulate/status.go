package simulate

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/okian/promille/pkg/logger"
)

// retrieveStatuses fetches /status/{id} for every member concurrently. The
// result maps member IDs to the summed active counts; members answered
// with 404 map to zero.
func retrieveStatuses(ctx context.Context, cfg *Config, baseURL string, ids []string) (map[string]int, error) {
	log := logger.Get()
	client := newHTTPClient(cfg.Timeout)

	var (
		mu       sync.Mutex
		out      = make(map[string]int, len(ids))
		failures int
		firstErr error
	)

	idChan := make(chan string, cfg.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range idChan {
				total, err := retrieveSingleStatus(ctx, client, baseURL, id)
				mu.Lock()
				if err != nil {
					failures++
					if firstErr == nil {
						firstErr = err
					}
				} else {
					out[id] = total
				}
				mu.Unlock()
				if err != nil && cfg.Verbose {
					log.Warn(ctx, "status lookup failed", logger.String("member_id", id), logger.Error(err))
				}
			}
		}()
	}

	go func() {
		defer close(idChan)
		for _, id := range ids {
			select {
			case <-ctx.Done():
				return
			case idChan <- id:
			}
		}
	}()
	wg.Wait()

	if failures > 0 {
		return out, fmt.Errorf("%d status lookups failed: %w", failures, firstErr)
	}
	return out, ctx.Err()
}

func retrieveSingleStatus(ctx context.Context, client *HTTPClient, baseURL, id string) (int, error) {
	var st MemberStatus
	code, err := client.getJSON(ctx, baseURL+"/status/"+id, &st)
	if err != nil {
		return 0, err
	}
	switch code {
	case http.StatusOK:
		total := 0
		for _, c := range st.Categories {
			total += c.Count
		}
		return total, nil
	case http.StatusNotFound:
		return 0, nil
	default:
		return 0, fmt.Errorf("HTTP %d for %s", code, id)
	}
}

// getLeaderboard fetches the current month's leaderboard.
func getLeaderboard(ctx context.Context, cfg *Config, baseURL string) (Board, error) {
	var board Board
	code, err := newHTTPClient(cfg.Timeout).getJSON(ctx, baseURL+"/leaderboard", &board)
	if err != nil {
		return Board{}, err
	}
	if code != http.StatusOK {
		return Board{}, fmt.Errorf("HTTP %d", code)
	}
	return board, nil
}
