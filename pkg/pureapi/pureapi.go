// Package pureapi is the entry point for reading a Pure instance.
//
// A Client combines the request executor, the pagination engine, the change
// feed and the response normalizer behind one configuration:
//
//	c, err := pureapi.New(pureapi.DefaultConfig("experts.example.edu", key))
//	if err != nil {
//	    return err
//	}
//	for person, err := range c.GetAllTransformed(ctx, "persons", nil) {
//	    if err != nil {
//	        return err
//	    }
//	    name, _ := person.String("name", "lastName")
//	    fmt.Println(name)
//	}
//
// Every method returning a sequence is lazy. The *Transformed variants yield
// normalized records instead of pages.
package pureapi

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"

	"github.com/Sternrassler/pure-api-client/pkg/changes"
	"github.com/Sternrassler/pure-api-client/pkg/checkpoint"
	"github.com/Sternrassler/pure-api-client/pkg/client"
	"github.com/Sternrassler/pure-api-client/pkg/logging"
	"github.com/Sternrassler/pure-api-client/pkg/pagination"
	"github.com/Sternrassler/pure-api-client/pkg/response"
	"github.com/rs/zerolog"
)

var (
	// ErrMissingItems is returned by the transformed sequences for a page
	// that reports records but carries no items.
	ErrMissingItems = errors.New("page has a non-zero count but no items")

	// ErrNoCheckpointStore is returned by ResumeChanges without Config.Checkpoint.
	ErrNoCheckpointStore = errors.New("no checkpoint store configured")
)

// Config holds the full client configuration.
type Config struct {
	// Client configures the request executor.
	Client client.Config

	// Pagination configures window and group sizes.
	Pagination pagination.Config

	// Batch configures FetchAll. A zero WindowSize follows Pagination.
	Batch pagination.BatchConfig

	// Checkpoint stores change feed cursors. Optional.
	Checkpoint checkpoint.Store

	// CheckpointKey names the stored cursor (default "default").
	CheckpointKey checkpoint.Key
}

// DefaultConfig returns defaults for the given instance.
func DefaultConfig(domain, apiKey string) Config {
	batch := pagination.DefaultBatchConfig()
	batch.WindowSize = 0

	return Config{
		Client:     client.DefaultConfig(domain, apiKey),
		Pagination: pagination.DefaultConfig(),
		Batch:      batch,
	}
}

// Client reads one Pure instance at one schema version.
type Client struct {
	api        *client.Client
	paginator  *pagination.Paginator
	batch      *pagination.BatchFetcher
	feed       *changes.Feed
	normalizer *response.Normalizer
	config     Config
	logger     zerolog.Logger
}

// New validates cfg and creates a client. No request is made.
func New(cfg Config) (*Client, error) {
	api, err := client.New(cfg.Client)
	if err != nil {
		return nil, err
	}

	normalizer, err := response.New(api.Registry())
	if err != nil {
		return nil, fmt.Errorf("create normalizer: %w", err)
	}

	if cfg.Batch.WindowSize <= 0 {
		cfg.Batch.WindowSize = cfg.Pagination.WindowSize
	}

	var feedOpts []changes.Option
	if cfg.Checkpoint != nil {
		feedOpts = append(feedOpts, changes.WithCheckpoint(cfg.Checkpoint, cfg.CheckpointKey))
	}

	c := &Client{
		api:        api,
		paginator:  pagination.New(api, cfg.Pagination),
		batch:      pagination.NewBatchFetcher(api, cfg.Batch),
		feed:       changes.NewFeed(api, feedOpts...),
		normalizer: normalizer,
		config:     cfg,
		logger:     logging.NewLogger(logging.ComponentAPI).With().Str("version", api.Version()).Logger(),
	}

	c.logger.Debug().
		Str("base_url", api.BaseURL()).
		Bool("checkpoint", cfg.Checkpoint != nil).
		Msg("Pure API client ready")

	return c, nil
}

// Version returns the schema version requests are made against.
func (c *Client) Version() string {
	return c.api.Version()
}

// Collections lists the collections of the configured version.
func (c *Client) Collections() ([]string, error) {
	return c.api.Registry().Collections(c.api.Version())
}

// Executor returns the underlying request executor.
func (c *Client) Executor() *client.Client {
	return c.api
}

// Normalizer returns the normalizer used by the transformed sequences.
// Transforms registered on it apply to later calls.
func (c *Client) Normalizer() *response.Normalizer {
	return c.normalizer
}

// Get issues one GET request.
func (c *Client) Get(ctx context.Context, resourcePath string, params url.Values) (*client.Response, error) {
	return c.api.Get(ctx, resourcePath, params)
}

// Filter issues one POST filter request.
func (c *Client) Filter(ctx context.Context, resourcePath string, payload map[string]any) (*client.Response, error) {
	return c.api.Filter(ctx, resourcePath, payload)
}

// GetAll pages through a collection with GET requests.
func (c *Client) GetAll(ctx context.Context, resourcePath string, params url.Values) iter.Seq2[*client.Page, error] {
	return c.paginator.All(ctx, resourcePath, params)
}

// GetAllTransformed is GetAll yielding normalized records.
func (c *Client) GetAllTransformed(ctx context.Context, resourcePath string, params url.Values) iter.Seq2[response.Record, error] {
	return c.transformed(resourcePath, c.GetAll(ctx, resourcePath, params))
}

// FilterAll pages through a collection with POST filter requests.
func (c *Client) FilterAll(ctx context.Context, resourcePath string, payload map[string]any) iter.Seq2[*client.Page, error] {
	return c.paginator.FilterAll(ctx, resourcePath, payload)
}

// FilterAllTransformed is FilterAll yielding normalized records.
func (c *Client) FilterAllTransformed(ctx context.Context, resourcePath string, payload map[string]any) iter.Seq2[response.Record, error] {
	return c.transformed(resourcePath, c.FilterAll(ctx, resourcePath, payload))
}

// FilterAllByUUID requests the records with the given uuids, one filter
// request per group. perGroup <= 0 uses Config.Pagination.ItemsPerGroup.
func (c *Client) FilterAllByUUID(ctx context.Context, resourcePath string, payload map[string]any, uuids []string, perGroup int) iter.Seq2[*client.Page, error] {
	return c.paginator.FilterAllByUUID(ctx, resourcePath, payload, uuids, perGroup)
}

// FilterAllByUUIDTransformed is FilterAllByUUID yielding normalized records.
func (c *Client) FilterAllByUUIDTransformed(ctx context.Context, resourcePath string, payload map[string]any, uuids []string, perGroup int) iter.Seq2[response.Record, error] {
	return c.transformed(resourcePath, c.FilterAllByUUID(ctx, resourcePath, payload, uuids, perGroup))
}

// FilterAllByID requests the records with the given Pure ids.
func (c *Client) FilterAllByID(ctx context.Context, resourcePath string, payload map[string]any, ids []string, perGroup int) iter.Seq2[*client.Page, error] {
	return c.paginator.FilterAllByID(ctx, resourcePath, payload, ids, perGroup)
}

// FilterAllByIDTransformed is FilterAllByID yielding normalized records.
func (c *Client) FilterAllByIDTransformed(ctx context.Context, resourcePath string, payload map[string]any, ids []string, perGroup int) iter.Seq2[response.Record, error] {
	return c.transformed(resourcePath, c.FilterAllByID(ctx, resourcePath, payload, ids, perGroup))
}

// FetchAll fetches every window of a GET query concurrently and returns the
// pages in order. It is the only method that issues requests in parallel;
// it is eager, holds every page in memory and does not stop early. Use
// GetAll for the lazy one-request-at-a-time sequence.
func (c *Client) FetchAll(ctx context.Context, resourcePath string, params url.Values) ([]*client.Page, error) {
	return c.batch.FetchAll(ctx, resourcePath, params)
}

// Changes walks the change feed from cursor, an ISO-8601 date or a token
// from an earlier response. With Config.Checkpoint set, cursors are saved
// as the feed advances.
func (c *Client) Changes(ctx context.Context, cursor string, params url.Values) iter.Seq2[*client.Page, error] {
	return c.feed.Pages(ctx, cursor, params)
}

// ChangesTransformed is Changes yielding change records.
func (c *Client) ChangesTransformed(ctx context.Context, cursor string, params url.Values) iter.Seq2[response.Record, error] {
	return c.transformed(changes.Collection, c.Changes(ctx, cursor, params))
}

// ResumeChanges continues the change feed from the stored checkpoint, or
// from fallback when nothing is stored yet.
func (c *Client) ResumeChanges(ctx context.Context, fallback string, params url.Values) iter.Seq2[*client.Page, error] {
	if c.config.Checkpoint == nil {
		return func(yield func(*client.Page, error) bool) {
			yield(nil, ErrNoCheckpointStore)
		}
	}
	return c.feed.Resume(ctx, fallback, params)
}

// ResumeChangesTransformed is ResumeChanges yielding change records.
func (c *Client) ResumeChangesTransformed(ctx context.Context, fallback string, params url.Values) iter.Seq2[response.Record, error] {
	return c.transformed(changes.Collection, c.ResumeChanges(ctx, fallback, params))
}

// transformed flattens pages into normalized records. The transform is
// resolved before the first request, so an unknown collection fails without
// network traffic. Pages with count 0 and no items yield nothing.
func (c *Client) transformed(collection string, pages iter.Seq2[*client.Page, error]) iter.Seq2[response.Record, error] {
	return func(yield func(response.Record, error) bool) {
		transform, err := c.normalizer.TransformerFor(collection, c.Version())
		if err != nil {
			yield(nil, err)
			return
		}

		for page, err := range pages {
			if err != nil {
				yield(nil, err)
				return
			}
			if !page.HasItems() {
				if page.Count == 0 {
					continue
				}
				yield(nil, fmt.Errorf("%s (count %d): %w", collection, page.Count, ErrMissingItems))
				return
			}
			for _, item := range page.Items {
				if !yield(transform(response.NewRecord(item)), nil) {
					return
				}
			}
		}
	}
}
