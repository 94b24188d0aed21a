package pagination

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Sternrassler/pure-api-client/pkg/client"
	"github.com/Sternrassler/pure-api-client/pkg/logging"
	"github.com/rs/zerolog"
)

// BatchConfig holds batch fetcher configuration.
type BatchConfig struct {
	// MaxConcurrency is the maximum number of parallel window requests.
	MaxConcurrency int
	// Timeout per window fetch, retries included.
	Timeout time.Duration
	// WindowSize is used when the query has no positive size.
	WindowSize int
}

// DefaultBatchConfig returns a conservative configuration for Pure.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxConcurrency: 4,
		Timeout:        5 * time.Minute,
		WindowSize:     DefaultWindowSize,
	}
}

// windowResult is the outcome of fetching a single window.
type windowResult struct {
	window Window
	page   *client.Page
	err    error
}

// BatchFetcher fetches every window of a GET query in parallel. Unlike
// Paginator it is not lazy: up to MaxConcurrency requests are in flight and
// all pages are returned at once.
type BatchFetcher struct {
	paginator *Paginator
	config    BatchConfig
	logger    zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(requester Requester, config BatchConfig) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultWindowSize
	}

	return &BatchFetcher{
		paginator: New(requester, Config{WindowSize: config.WindowSize}),
		config:    config,
		logger:    logging.NewLogger(logging.ComponentPagination),
	}
}

// FetchAll probes the query, then fetches all windows with a worker pool.
// Pages are returned in window order. The first failure cancels the
// remaining work and is returned.
func (bf *BatchFetcher) FetchAll(ctx context.Context, resourcePath string, params url.Values) ([]*client.Page, error) {
	start := time.Now()
	req := Request{ResourcePath: resourcePath, Params: params}

	size, err := req.Size()
	if err != nil {
		return nil, err
	}

	probe, err := bf.paginator.get(ctx, req.WithWindow(0, 0))
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", resourcePath, err)
	}

	windowSize := bf.paginator.windowSize(size)
	total := WindowCount(probe.Count, windowSize)

	bf.logger.Info().
		Str("resource_path", resourcePath).
		Int("count", probe.Count).
		Int("window_count", total).
		Msg("Starting parallel window fetch")

	pages := make([]*client.Page, total)
	if total == 0 {
		return pages, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan Window, total)
	for w := range Windows(probe.Count, windowSize) {
		queue <- w
	}
	close(queue)

	results := make(chan windowResult, total)

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < min(bf.config.MaxConcurrency, total); i++ {
		wg.Add(1)
		go bf.worker(ctx, req, queue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results
	var firstErr error
	fetched := 0
	for result := range results {
		if result.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("window %d (offset %d): %w", result.window.Index, result.window.Offset, result.err)
				cancel()
			}
			continue
		}

		pages[result.window.Index] = result.page
		fetched++
		purePagesTotal.WithLabelValues("batch").Inc()

		// Progress logging every 50 windows
		if fetched%50 == 0 {
			bf.logger.Info().
				Int("fetched", fetched).
				Int("total", total).
				Float64("progress_pct", float64(fetched)/float64(total)*100).
				Msg("Fetch progress")
		}
	}

	if firstErr == nil && fetched < total {
		firstErr = fmt.Errorf("fetched %d of %d windows: %w", fetched, total, context.Cause(ctx))
	}

	if firstErr != nil {
		bf.logger.Warn().
			Err(firstErr).
			Int("fetched_windows", fetched).
			Int("total_windows", total).
			Msg("Parallel window fetch failed")
		return nil, firstErr
	}

	bf.logger.Info().
		Str("resource_path", resourcePath).
		Int("windows", fetched).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return pages, nil
}

// worker processes windows from the queue.
func (bf *BatchFetcher) worker(ctx context.Context, req Request, queue <-chan Window, results chan<- windowResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for w := range queue {
		if ctx.Err() != nil {
			bf.logger.Debug().
				Int("worker_id", workerID).
				Int("windows_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		windowCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		page, err := bf.paginator.get(windowCtx, req.WithWindow(w.Offset, w.Size))
		cancel()

		results <- windowResult{window: w, page: page, err: err}
		if err != nil {
			return
		}
		processed++
	}

	if processed > 0 {
		bf.logger.Debug().
			Int("worker_id", workerID).
			Int("windows_processed", processed).
			Msg("Worker completed")
	}
}
