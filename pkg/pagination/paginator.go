package pagination

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"slices"

	"github.com/Sternrassler/pure-api-client/pkg/client"
	"github.com/Sternrassler/pure-api-client/pkg/logging"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var purePagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pure_pages_total",
	Help: "Total pages yielded by the pagination engine, by request kind",
}, []string{"engine"})

// Requester is the part of *client.Client the pagination engine uses.
type Requester interface {
	Get(ctx context.Context, resourcePath string, params url.Values) (*client.Response, error)
	Filter(ctx context.Context, resourcePath string, payload map[string]any) (*client.Response, error)
}

// Config holds paginator configuration.
type Config struct {
	// WindowSize is used when the caller's query has no positive size.
	WindowSize int

	// ItemsPerGroup is the default group length for uuid/id filters.
	ItemsPerGroup int
}

// DefaultConfig returns windows and groups of 100.
func DefaultConfig() Config {
	return Config{
		WindowSize:    DefaultWindowSize,
		ItemsPerGroup: DefaultItemsPerGroup,
	}
}

// Paginator turns queries into lazy page sequences.
type Paginator struct {
	requester Requester
	config    Config
	logger    zerolog.Logger
}

// New creates a paginator over requester.
func New(requester Requester, cfg Config) *Paginator {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.ItemsPerGroup <= 0 {
		cfg.ItemsPerGroup = DefaultItemsPerGroup
	}
	return &Paginator{
		requester: requester,
		config:    cfg,
		logger:    logging.NewLogger(logging.ComponentPagination),
	}
}

func (p *Paginator) windowSize(size int) int {
	if size <= 0 {
		return p.config.WindowSize
	}
	return size
}

// All pages through a collection with GET requests. params are merged under
// every request; the engine sets size and offset.
func (p *Paginator) All(ctx context.Context, resourcePath string, params url.Values) iter.Seq2[*client.Page, error] {
	req := Request{ResourcePath: resourcePath, Params: params}

	return func(yield func(*client.Page, error) bool) {
		size, err := req.Size()
		if err != nil {
			yield(nil, err)
			return
		}

		probe, err := p.get(ctx, req.WithWindow(0, 0))
		if err != nil {
			yield(nil, err)
			return
		}

		windowSize := p.windowSize(size)
		p.logger.Debug().
			Str("resource_path", resourcePath).
			Int("count", probe.Count).
			Int("size", windowSize).
			Int("window_count", WindowCount(probe.Count, windowSize)).
			Msg("Probed collection")

		for w := range Windows(probe.Count, windowSize) {
			page, err := p.get(ctx, req.WithWindow(w.Offset, w.Size))
			if err != nil {
				yield(nil, err)
				return
			}
			purePagesTotal.WithLabelValues("get").Inc()
			if !yield(page, nil) {
				return
			}
		}
	}
}

// FilterAll pages through a collection with POST filter requests. The probe
// and window logic are the same as All.
func (p *Paginator) FilterAll(ctx context.Context, resourcePath string, payload map[string]any) iter.Seq2[*client.Page, error] {
	req := FilterRequest{ResourcePath: resourcePath, Payload: payload}

	return func(yield func(*client.Page, error) bool) {
		size, err := req.Size()
		if err != nil {
			yield(nil, err)
			return
		}

		probe, err := p.filter(ctx, req.WithWindow(0, 0))
		if err != nil {
			yield(nil, err)
			return
		}

		windowSize := p.windowSize(size)
		p.logger.Debug().
			Str("resource_path", resourcePath).
			Int("count", probe.Count).
			Int("size", windowSize).
			Int("window_count", WindowCount(probe.Count, windowSize)).
			Msg("Probed filtered collection")

		for w := range Windows(probe.Count, windowSize) {
			page, err := p.filter(ctx, req.WithWindow(w.Offset, w.Size))
			if err != nil {
				yield(nil, err)
				return
			}
			purePagesTotal.WithLabelValues("filter").Inc()
			if !yield(page, nil) {
				return
			}
		}
	}
}

// FilterAllByUUID issues one filter request per group of uuids, merging
// {"uuids": group, "size": len(group)} over payload. Every uuid is checked
// before the first request. perGroup <= 0 uses Config.ItemsPerGroup.
func (p *Paginator) FilterAllByUUID(ctx context.Context, resourcePath string, payload map[string]any, uuids []string, perGroup int) iter.Seq2[*client.Page, error] {
	return func(yield func(*client.Page, error) bool) {
		for _, id := range uuids {
			if _, err := uuid.Parse(id); err != nil {
				yield(nil, fmt.Errorf("invalid uuid %q: %w", id, err))
				return
			}
		}
		for page, err := range p.filterGroups(ctx, resourcePath, payload, "uuids", uuids, perGroup) {
			if !yield(page, err) || err != nil {
				return
			}
		}
	}
}

// FilterAllByID is FilterAllByUUID for Pure ids, sent as "ids".
func (p *Paginator) FilterAllByID(ctx context.Context, resourcePath string, payload map[string]any, ids []string, perGroup int) iter.Seq2[*client.Page, error] {
	return p.filterGroups(ctx, resourcePath, payload, "ids", ids, perGroup)
}

func (p *Paginator) filterGroups(ctx context.Context, resourcePath string, payload map[string]any, field string, values []string, perGroup int) iter.Seq2[*client.Page, error] {
	if perGroup <= 0 {
		perGroup = p.config.ItemsPerGroup
	}
	req := FilterRequest{ResourcePath: resourcePath, Payload: payload}

	return func(yield func(*client.Page, error) bool) {
		for _, group := range GroupItems(values, perGroup) {
			page, err := p.filter(ctx, req.With(map[string]any{
				field:  group,
				"size": len(group),
			}))
			if err != nil {
				yield(nil, err)
				return
			}
			purePagesTotal.WithLabelValues("group").Inc()
			if !yield(page, nil) {
				return
			}
		}
	}
}

// GroupItems splits items into consecutive groups of at most perGroup,
// preserving order. perGroup <= 0 uses DefaultItemsPerGroup.
func GroupItems[T any](items []T, perGroup int) [][]T {
	if perGroup <= 0 {
		perGroup = DefaultItemsPerGroup
	}
	groups := make([][]T, 0, WindowCount(len(items), perGroup))
	for group := range slices.Chunk(items, perGroup) {
		groups = append(groups, group)
	}
	return groups
}

func (p *Paginator) get(ctx context.Context, req Request) (*client.Page, error) {
	resp, err := p.requester.Get(ctx, req.ResourcePath, req.Params)
	if err != nil {
		return nil, err
	}
	return decode(resp)
}

func (p *Paginator) filter(ctx context.Context, req FilterRequest) (*client.Page, error) {
	resp, err := p.requester.Filter(ctx, req.ResourcePath, req.Payload)
	if err != nil {
		return nil, err
	}
	return decode(resp)
}

func decode(resp *client.Response) (*client.Page, error) {
	page, err := resp.Page()
	if err != nil {
		return nil, err
	}
	if !page.HasCount() {
		return nil, fmt.Errorf("%s: %w", resp.URL, client.ErrMissingCount)
	}
	return page, nil
}
