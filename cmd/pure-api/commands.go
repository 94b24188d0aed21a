package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/pure-api-client/pkg/changes"
	"github.com/Sternrassler/pure-api-client/pkg/client"
	"github.com/Sternrassler/pure-api-client/pkg/registry"
	"github.com/Sternrassler/pure-api-client/pkg/response"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func (a *app) collectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List the collections of the configured schema version",
		Args:  noArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			reg, err := registry.New(nil)
			if err != nil {
				return err
			}

			version := a.cfg.Pure.Version
			if version == "" {
				version = reg.LatestVersion()
			}
			names, err := reg.Collections(version)
			if err != nil {
				return err
			}

			for _, name := range names {
				fmt.Fprintln(a.stdout, name)
			}
			return nil
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	var (
		all       bool
		transform bool
		size      int
		params    []string
	)

	cmd := &cobra.Command{
		Use:   "get <resource-path>",
		Short: "GET a resource, or every record of a collection with --all",
		Example: `  pure-api get persons/6d9e1f1c-0000-0000-0000-000000000001
  pure-api get research-outputs --all --size 500 -p order=modified`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseParams(params)
			if err != nil {
				return &usageError{err}
			}
			if size > 0 {
				query.Set("size", strconv.Itoa(size))
			}

			ctx := cmd.Context()
			c, err := a.newClient(ctx, "")
			if err != nil {
				return err
			}

			out := newNDJSON(a.stdout)
			switch {
			case transform:
				return out.records(c.GetAllTransformed(ctx, args[0], query))
			case all:
				return out.pages(c.GetAll(ctx, args[0], query))
			default:
				resp, err := c.Get(ctx, args[0], query)
				if err != nil {
					return err
				}
				return out.raw(resp.Body)
			}
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "page through the collection, one record per line")
	cmd.Flags().BoolVar(&transform, "transform", false, "normalize records (implies --all)")
	cmd.Flags().IntVar(&size, "size", 0, "page size (default 100 with --all)")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter as key=value (repeatable)")
	return cmd
}

func (a *app) filterCmd() *cobra.Command {
	var (
		payloadJSON string
		all         bool
		transform   bool
		uuids       []string
		ids         []string
		perGroup    int
	)

	cmd := &cobra.Command{
		Use:   "filter <collection>",
		Short: "POST a filter query, optionally paging through every match",
		Example: `  pure-api filter research-outputs --payload '{"publicationStatuses": ["/dk/atira/pure/researchoutput/status/published"]}' --all
  pure-api filter persons --uuid 6d9e1f1c-0000-0000-0000-000000000001 --transform`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayload(payloadJSON)
			if err != nil {
				return &usageError{err}
			}
			if len(uuids) > 0 && len(ids) > 0 {
				return &usageError{fmt.Errorf("--uuid and --id cannot be combined")}
			}
			for _, id := range uuids {
				if _, err := uuid.Parse(id); err != nil {
					return &usageError{fmt.Errorf("invalid uuid %q: %w", id, err)}
				}
			}

			ctx := cmd.Context()
			c, err := a.newClient(ctx, "")
			if err != nil {
				return err
			}

			path := args[0]
			out := newNDJSON(a.stdout)
			switch {
			case len(uuids) > 0 && transform:
				return out.records(c.FilterAllByUUIDTransformed(ctx, path, payload, uuids, perGroup))
			case len(uuids) > 0:
				return out.pages(c.FilterAllByUUID(ctx, path, payload, uuids, perGroup))
			case len(ids) > 0 && transform:
				return out.records(c.FilterAllByIDTransformed(ctx, path, payload, ids, perGroup))
			case len(ids) > 0:
				return out.pages(c.FilterAllByID(ctx, path, payload, ids, perGroup))
			case transform:
				return out.records(c.FilterAllTransformed(ctx, path, payload))
			case all:
				return out.pages(c.FilterAll(ctx, path, payload))
			default:
				resp, err := c.Filter(ctx, path, payload)
				if err != nil {
					return err
				}
				return out.raw(resp.Body)
			}
		},
	}

	cmd.Flags().StringVar(&payloadJSON, "payload", "{}", "filter body as a JSON object")
	cmd.Flags().BoolVar(&all, "all", false, "page through every match, one record per line")
	cmd.Flags().BoolVar(&transform, "transform", false, "normalize records (implies --all)")
	cmd.Flags().StringSliceVar(&uuids, "uuid", nil, "fetch records by uuid (repeatable, comma separated)")
	cmd.Flags().StringSliceVar(&ids, "id", nil, "fetch records by Pure id (repeatable, comma separated)")
	cmd.Flags().IntVar(&perGroup, "per-group", 0, "uuids or ids per request (default 100)")
	return cmd
}

func (a *app) changesCmd() *cobra.Command {
	var (
		uuids     []string
		resume    string
		redisURL  string
		maxPages  int
		transform bool
	)

	cmd := &cobra.Command{
		Use:   "changes <date|token>",
		Short: "Read the change feed from an ISO-8601 date or a resumption token",
		Long: `Read the change feed from an ISO-8601 date or a resumption token.

With --resume NAME the next cursor is stored in Redis under NAME after every
page, and a later run with the same NAME continues from there; the argument
is then only used when nothing is stored yet. A run cut short by --max-pages
or an error re-reads its last page on resume.

With --uuid only changes to the given uuids are printed, and reading stops
after the page on which the last of them was seen. Uuids never seen are
reported on stderr as "<uuid> not found".`,
		Example: `  pure-api changes 2024-01-01
  pure-api changes 2024-01-01 --resume nightly --redis redis://localhost:6379/0
  pure-api changes 2024-01-01 --uuid 6d9e1f1c-0000-0000-0000-000000000001`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wanted := make(map[string]struct{}, len(uuids))
			for _, id := range uuids {
				if _, err := uuid.Parse(id); err != nil {
					return &usageError{fmt.Errorf("invalid uuid %q: %w", id, err)}
				}
				wanted[id] = struct{}{}
			}
			if redisURL != "" {
				a.cfg.Redis.URL = redisURL
			}

			ctx := cmd.Context()
			c, err := a.newClient(ctx, resume)
			if err != nil {
				return err
			}

			var transformFn response.TransformFunc = response.Default
			if transform {
				transformFn, err = c.Normalizer().TransformerFor(changes.Collection, c.Version())
				if err != nil {
					return err
				}
			}

			pages := c.Changes(ctx, args[0], nil)
			if resume != "" {
				pages = c.ResumeChanges(ctx, args[0], nil)
			}

			out := newNDJSON(a.stdout)
			found := make(map[string]struct{}, len(wanted))
			read, written := 0, 0
			for page, err := range pages {
				if err != nil {
					return err
				}
				for _, item := range page.Items {
					if len(wanted) > 0 {
						id, _ := item["uuid"].(string)
						if _, ok := wanted[id]; !ok {
							continue
						}
						found[id] = struct{}{}
					}
					if err := out.write(transformFn(response.NewRecord(item))); err != nil {
						return err
					}
					written++
				}
				read++
				if maxPages > 0 && read >= maxPages {
					break
				}
				// The page that completes the search is printed in full.
				if len(wanted) > 0 && len(found) == len(wanted) {
					break
				}
			}

			for id := range wanted {
				if _, ok := found[id]; !ok {
					fmt.Fprintf(a.stderr, "%s not found\n", id)
				}
			}

			a.logger.Info().
				Int("pages", read).
				Int("records", written).
				Str("checkpoint", resume).
				Msg("Change feed read")
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&uuids, "uuid", nil, "only print changes to these uuids and stop once all are found (repeatable)")
	cmd.Flags().StringVar(&resume, "resume", "", "checkpoint name to resume from and save to")
	cmd.Flags().StringVar(&redisURL, "redis", "", "Redis URL for checkpoints, overrides REDIS_URL")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "stop after this many pages (0 = until the feed ends)")
	cmd.Flags().BoolVar(&transform, "transform", false, "normalize change records")
	return cmd
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return &usageError{err}
	}
	return nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

// parseParams turns key=value pairs into query parameters.
func parseParams(pairs []string) (url.Values, error) {
	query := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", pair)
		}
		query.Add(key, value)
	}
	return query, nil
}

func parsePayload(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid --payload: %w", err)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

// ndjson writes one JSON document per line.
type ndjson struct {
	w   io.Writer
	enc *json.Encoder
}

func newNDJSON(w io.Writer) *ndjson {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &ndjson{w: w, enc: enc}
}

func (o *ndjson) write(v any) error {
	return o.enc.Encode(v)
}

// raw writes a response body compacted onto one line.
func (o *ndjson) raw(body []byte) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	buf.WriteByte('\n')
	_, err := o.w.Write(buf.Bytes())
	return err
}

func (o *ndjson) pages(seq iter.Seq2[*client.Page, error]) error {
	for page, err := range seq {
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			if err := o.write(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *ndjson) records(seq iter.Seq2[response.Record, error]) error {
	for rec, err := range seq {
		if err != nil {
			return err
		}
		if err := o.write(rec); err != nil {
			return err
		}
	}
	return nil
}
