package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonesrussell/prospector/internal/domain"
	"github.com/jonesrussell/prospector/internal/logger"
)

// maxEngineBlocks is the consecutive blocked/rate-limited streak after
// which an engine is retired for the rest of the run.
const maxEngineBlocks = 3

// Chain runs queries through an ordered engine list. Each query goes to the
// first live engine; blocked or rate-limited engines are skipped for the
// query and retired entirely after a streak of failures. Every engine is
// paced by its own rate limiter so scraped endpoints see a minimum delay.
type Chain struct {
	mu      sync.Mutex
	engines []*chainEntry
	log     logger.Interface
}

type chainEntry struct {
	engine  Engine
	limiter *rate.Limiter
	strikes int
	retired bool
}

// NewChain builds a Chain over engines in priority order. minDelay is the
// minimum spacing between queries on the same engine.
func NewChain(engines []Engine, minDelay time.Duration, log logger.Interface) *Chain {
	c := &Chain{log: log}
	for _, e := range engines {
		limit := rate.Inf
		if minDelay > 0 {
			limit = rate.Every(minDelay)
		}
		c.engines = append(c.engines, &chainEntry{
			engine:  e,
			limiter: rate.NewLimiter(limit, 1),
		})
	}
	return c
}

// Search runs one query through the chain. It returns the first live
// engine's results along with the engine name that produced them, or
// ErrNoEngines once every engine is retired.
func (c *Chain) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, string, error) {
	tried := false
	for _, entry := range c.live() {
		tried = true
		if err := entry.limiter.Wait(ctx); err != nil {
			return nil, "", fmt.Errorf("rate limit wait: %w", err)
		}

		results, err := entry.engine.Search(ctx, query, maxResults)
		switch {
		case err == nil:
			c.clearStrikes(entry)
			return results, entry.engine.Name(), nil
		case errors.Is(err, ErrBlocked) || errors.Is(err, ErrRateLimited):
			c.strike(entry, err)
			// Partial pages before the block still count.
			if len(results) > 0 {
				return results, entry.engine.Name(), nil
			}
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil, "", err
		default:
			c.log.Warn("engine error, trying next",
				"engine", entry.engine.Name(), "query", query, "error", err)
		}
	}
	if !tried {
		return nil, "", ErrNoEngines
	}
	return nil, "", fmt.Errorf("query %q: every engine failed: %w", query, ErrNoEngines)
}

// Usable reports whether at least one engine remains in rotation.
func (c *Chain) Usable() bool {
	return len(c.live()) > 0
}

func (c *Chain) live() []*chainEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*chainEntry, 0, len(c.engines))
	for _, e := range c.engines {
		if !e.retired {
			out = append(out, e)
		}
	}
	return out
}

func (c *Chain) clearStrikes(entry *chainEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.strikes = 0
}

func (c *Chain) strike(entry *chainEntry, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.strikes++
	if entry.strikes >= maxEngineBlocks && !entry.retired {
		entry.retired = true
		c.log.Warn("engine retired for this run",
			"engine", entry.engine.Name(),
			"strikes", entry.strikes,
			"cause", cause.Error())
	}
}
