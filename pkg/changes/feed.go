// Package changes walks the Pure change feed.
//
// The feed is addressed as changes/<cursor>, where the first cursor is an
// ISO-8601 date and every later cursor is the resumptionToken of the previous
// response. Cursors are opaque and are appended to the path unchanged.
//
// Unlike every other collection, count in a change response is the number of
// items in that response, not a total over the query. Pure may return pages
// with moreChanges=true and count=0 (or no items at all) while further
// changes remain, because records hidden from the API key are filtered out
// after paging. Such pages are skipped and their token followed.
package changes

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"

	"github.com/Sternrassler/pure-api-client/pkg/checkpoint"
	"github.com/Sternrassler/pure-api-client/pkg/client"
	"github.com/Sternrassler/pure-api-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Collection is the pseudo-collection the feed lives under.
const Collection = "changes"

var (
	// ErrEmptyCursor is returned when a feed is started without a cursor.
	ErrEmptyCursor = errors.New("change feed cursor is empty")

	// ErrMissingMoreChanges is returned for a change response without moreChanges.
	ErrMissingMoreChanges = errors.New("change response has no moreChanges")

	// ErrMissingResumptionToken is returned when moreChanges is true but the
	// response carries no token to continue from.
	ErrMissingResumptionToken = errors.New("change response has moreChanges but no resumptionToken")
)

var (
	pureChangePagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pure_change_pages_total",
		Help: "Total change pages yielded to consumers",
	})

	pureChangePagesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pure_change_pages_skipped_total",
		Help: "Total empty change pages skipped while moreChanges was true",
	})
)

// Getter is the part of *client.Client the feed uses.
type Getter interface {
	Get(ctx context.Context, resourcePath string, params url.Values) (*client.Response, error)
}

// Option configures a Feed.
type Option func(*Feed)

// WithCheckpoint stores the next cursor under key after every page the
// consumer has finished with.
func WithCheckpoint(store checkpoint.Store, key checkpoint.Key) Option {
	return func(f *Feed) {
		f.store = store
		f.key = key
	}
}

// Feed reads the change feed of one Pure instance.
type Feed struct {
	getter Getter
	store  checkpoint.Store
	key    checkpoint.Key
	logger zerolog.Logger
}

// NewFeed creates a feed reading through getter.
func NewFeed(getter Getter, opts ...Option) *Feed {
	f := &Feed{
		getter: getter,
		logger: logging.NewLogger(logging.ComponentChanges),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Pages returns the lazy sequence of change pages starting at cursor.
//
// Pages with moreChanges=true and content are yielded and their token
// followed. Pages with moreChanges=true and count=0 or no items are skipped.
// The page with moreChanges=false is yielded last and ends the sequence.
//
// With a checkpoint store, the following cursor is saved once the consumer
// asks for the next page, so a consumer that stops early sees its last page
// again on resume.
func (f *Feed) Pages(ctx context.Context, cursor string, params url.Values) iter.Seq2[*client.Page, error] {
	return func(yield func(*client.Page, error) bool) {
		if cursor == "" {
			yield(nil, ErrEmptyCursor)
			return
		}

		current := cursor
		for {
			page, err := f.fetch(ctx, current, params)
			if err != nil {
				yield(nil, err)
				return
			}

			if !page.MoreChanges {
				pureChangePagesTotal.Inc()
				if !yield(page, nil) {
					return
				}
				if page.ResumptionToken != "" {
					if err := f.save(ctx, page.ResumptionToken); err != nil {
						yield(nil, err)
					}
				}
				f.logger.Debug().Str("cursor", current).Msg("Change feed exhausted")
				return
			}

			next := page.ResumptionToken
			if page.Count == 0 || !page.HasItems() {
				pureChangePagesSkippedTotal.Inc()
				f.logger.Debug().
					Str("cursor", current).
					Int("count", page.Count).
					Bool("has_items", page.HasItems()).
					Msg("Skipping empty change page")
			} else {
				pureChangePagesTotal.Inc()
				if !yield(page, nil) {
					return
				}
			}

			if err := f.save(ctx, next); err != nil {
				yield(nil, err)
				return
			}
			current = next
		}
	}
}

// Resume continues from the stored checkpoint, or from fallback when there
// is none. Without a checkpoint store it is Pages(ctx, fallback, params).
func (f *Feed) Resume(ctx context.Context, fallback string, params url.Values) iter.Seq2[*client.Page, error] {
	return func(yield func(*client.Page, error) bool) {
		cursor := fallback
		if f.store != nil {
			entry, err := f.store.Load(ctx, f.key)
			switch {
			case err == nil:
				cursor = entry.Cursor
				f.logger.Info().
					Str("key", f.key.String()).
					Str("cursor", cursor).
					Time("saved_at", entry.SavedAt).
					Msg("Resuming change feed from checkpoint")
			case errors.Is(err, checkpoint.ErrNotFound):
				f.logger.Info().
					Str("key", f.key.String()).
					Str("cursor", fallback).
					Msg("No checkpoint - starting change feed from fallback")
			default:
				yield(nil, fmt.Errorf("load checkpoint: %w", err))
				return
			}
		}

		for page, err := range f.Pages(ctx, cursor, params) {
			if !yield(page, err) || err != nil {
				return
			}
		}
	}
}

func (f *Feed) fetch(ctx context.Context, cursor string, params url.Values) (*client.Page, error) {
	resp, err := f.getter.Get(ctx, Collection+"/"+cursor, params)
	if err != nil {
		return nil, err
	}

	page, err := resp.Page()
	if err != nil {
		return nil, err
	}

	if !page.HasMoreChanges() {
		return nil, fmt.Errorf("cursor %s: %w", cursor, ErrMissingMoreChanges)
	}
	if !page.HasCount() {
		return nil, fmt.Errorf("cursor %s: %w", cursor, client.ErrMissingCount)
	}
	if page.MoreChanges && page.ResumptionToken == "" {
		return nil, fmt.Errorf("cursor %s: %w", cursor, ErrMissingResumptionToken)
	}
	return page, nil
}

func (f *Feed) save(ctx context.Context, cursor string) error {
	if f.store == nil {
		return nil
	}
	if err := f.store.Save(ctx, f.key, cursor); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
