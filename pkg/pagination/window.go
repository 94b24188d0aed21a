package pagination

import (
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Defaults for Config.
const (
	DefaultWindowSize    = 100
	DefaultItemsPerGroup = 100
)

// Window is one offset/size slice of a collection.
type Window struct {
	Index  int
	Offset int
	Size   int
}

// WindowSize returns size, or DefaultWindowSize when size <= 0.
func WindowSize(size int) int {
	if size <= 0 {
		return DefaultWindowSize
	}
	return size
}

// WindowCount returns ceil(count/size) for the normalized size.
func WindowCount(count, size int) int {
	if count <= 0 {
		return 0
	}
	size = WindowSize(size)
	return int(math.Ceil(float64(count) / float64(size)))
}

// Windows yields the windows covering [0, count).
func Windows(count, size int) iter.Seq[Window] {
	size = WindowSize(size)
	n := WindowCount(count, size)
	return func(yield func(Window) bool) {
		for i := 0; i < n; i++ {
			if !yield(Window{Index: i, Offset: i * size, Size: size}) {
				return
			}
		}
	}
}

// Request is the state of a GET query: a resource path and its parameters.
// It is a value object; WithWindow returns a copy.
type Request struct {
	ResourcePath string
	Params       url.Values
}

// Size returns the caller's size parameter, 0 when unset.
func (r Request) Size() (int, error) {
	v := r.Params.Get("size")
	if v == "" {
		return 0, nil
	}
	size, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", v, err)
	}
	return size, nil
}

// WithWindow returns a copy of r addressing offset and size.
func (r Request) WithWindow(offset, size int) Request {
	params := make(url.Values, len(r.Params)+2)
	for k, v := range r.Params {
		params[k] = append([]string(nil), v...)
	}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("size", strconv.Itoa(size))
	return Request{ResourcePath: r.ResourcePath, Params: params}
}

// FilterRequest is the state of a POST filter query.
type FilterRequest struct {
	ResourcePath string
	Payload      map[string]any
}

// Size returns the caller's size field, 0 when unset.
func (r FilterRequest) Size() (int, error) {
	v, ok := r.Payload["size"]
	if !ok || v == nil {
		return 0, nil
	}
	return toInt(v)
}

// WithWindow returns a copy of r addressing offset and size. Nested values
// are shared with r; they are only ever read.
func (r FilterRequest) WithWindow(offset, size int) FilterRequest {
	return r.With(map[string]any{"offset": offset, "size": size})
}

// With returns a copy of r with fields merged over the payload.
func (r FilterRequest) With(fields map[string]any) FilterRequest {
	payload := make(map[string]any, len(r.Payload)+len(fields))
	maps.Copy(payload, r.Payload)
	maps.Copy(payload, fields)
	return FilterRequest{ResourcePath: r.ResourcePath, Payload: payload}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("invalid size %v: not an integer", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("invalid size %q: %w", n, err)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("invalid size %q: %w", n, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("invalid size %v: unsupported type %T", v, v)
	}
}
