package pagination

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Sternrassler/pure-api-client/internal/testutil"
	"github.com/Sternrassler/pure-api-client/pkg/client"
	"github.com/Sternrassler/pure-api-client/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mock *testutil.MockPure) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig(mock.Domain(), "test-key")
	cfg.Protocol = "http"
	cfg.Version = "524"
	cfg.Retry = client.NoRetry()

	c, err := client.New(cfg)
	require.NoError(t, err)
	return c
}

func collect(t *testing.T, seq func(func(*client.Page, error) bool)) ([]*client.Page, error) {
	t.Helper()
	var pages []*client.Page
	for page, err := range seq {
		if err != nil {
			return pages, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func TestWindowCount(t *testing.T) {
	for count := 0; count <= 120; count++ {
		for size := 1; size <= 25; size++ {
			n := WindowCount(count, size)
			want := (count + size - 1) / size
			require.Equal(t, want, n, "count=%d size=%d", count, size)

			covered := 0
			next := 0
			var last Window
			for w := range Windows(count, size) {
				assert.Equal(t, next, w.Offset, "windows must be contiguous")
				next = w.Offset + w.Size
				covered++
				last = w
			}
			assert.Equal(t, n, covered)
			if n > 0 {
				assert.Equal(t, count-(n-1)*size, min(last.Size, count-last.Offset), "last window item count")
				assert.GreaterOrEqual(t, next, count)
				assert.Less(t, last.Offset, count)
			}
		}
	}
}

func TestWindowSizeDefaults(t *testing.T) {
	assert.Equal(t, 100, WindowSize(0))
	assert.Equal(t, 100, WindowSize(-5))
	assert.Equal(t, 7, WindowSize(7))
	assert.Equal(t, 0, WindowCount(0, 100))
	assert.Equal(t, 3, WindowCount(250, 0))
}

func TestGroupItems(t *testing.T) {
	ids := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	sizes := func(groups [][]int) []int {
		var out []int
		for _, g := range groups {
			out = append(out, len(g))
		}
		return out
	}

	assert.Equal(t, []int{3, 3, 3, 1}, sizes(GroupItems(ids, 3)))
	assert.Equal(t, []int{10}, sizes(GroupItems(ids, 11)))
	assert.Equal(t, []int{10}, sizes(GroupItems(ids, 0)))
	assert.Empty(t, GroupItems([]int{}, 3))
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}, {10}}, GroupItems(ids, 3))
}

func TestRequestWithWindow(t *testing.T) {
	req := Request{ResourcePath: "persons", Params: url.Values{"order": {"created"}, "size": {"50"}}}
	windowed := req.WithWindow(100, 50)

	assert.Equal(t, "100", windowed.Params.Get("offset"))
	assert.Equal(t, "50", windowed.Params.Get("size"))
	assert.Equal(t, "created", windowed.Params.Get("order"))
	assert.Empty(t, req.Params.Get("offset"), "original request must not change")
}

func TestFilterRequestSize(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    int
		wantErr bool
	}{
		{name: "unset", payload: map[string]any{}, want: 0},
		{name: "int", payload: map[string]any{"size": 25}, want: 25},
		{name: "float", payload: map[string]any{"size": float64(25)}, want: 25},
		{name: "string", payload: map[string]any{"size": "25"}, want: 25},
		{name: "fraction", payload: map[string]any{"size": 2.5}, wantErr: true},
		{name: "garbage", payload: map[string]any{"size": "many"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FilterRequest{Payload: tt.payload}.Size()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAll_ProbeThenWindows(t *testing.T) {
	mock := testutil.NewMockPure("524", "test-key")
	defer mock.Close()
	mock.SetCollection("research-outputs", testutil.Records(250))

	p := New(newTestClient(t, mock), DefaultConfig())

	pages, err := collect(t, p.All(context.Background(), "research-outputs", url.Values{"size": {"100"}, "order": {"created"}}))
	require.NoError(t, err)
	require.Len(t, pages, 3)

	var itemCounts []int
	for _, page := range pages {
		itemCounts = append(itemCounts, len(page.Items))
		assert.Equal(t, 250, page.Count)
	}
	assert.Equal(t, []int{100, 100, 50}, itemCounts)

	requests := mock.Requests()
	require.Len(t, requests, 4)

	probe := requests[0]
	assert.Equal(t, "0", probe.Query.Get("size"))
	assert.Equal(t, "0", probe.Query.Get("offset"))
	assert.Equal(t, "created", probe.Query.Get("order"), "probe is merged over caller params")

	for i, req := range requests[1:] {
		assert.Equal(t, "100", req.Query.Get("size"))
		assert.Equal(t, []string{"0", "100", "200"}[i], req.Query.Get("offset"))
		assert.Equal(t, "created", req.Query.Get("order"))
	}
}

func TestAll_DefaultWindowSize(t *testing.T) {
	mock := testutil.NewMockPure("524", "test-key")
	defer mock.Close()
	mock.SetCollection("persons", testutil.Records(150))

	p := New(newTestClient(t, mock), DefaultConfig())

	pages, err := collect(t, p.All(context.Background(), "persons", url.Values{"size": {"0"}}))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Len(t, pages[0].Items, 100)
	assert.Len(t, pages[1].Items, 50)
}

func TestAll_ZeroCount(t *testing.T) {
	mock := testutil.NewMockPure("524", "test-key")
	defer mock.Close()
	mock.SetCollection("persons", nil)

	p := New(newTestClient(t, mock), DefaultConfig())

	pages, err := collect(t, p.All(context.Background(), "persons", nil))
	require.NoError(t, err)
	assert.Empty(t, pages)
	assert.Equal(t, 1, mock.RequestCount(), "only the probe is sent")
}

func TestAll_IsLazyAndStopsOnBreak(t *testing.T) {
	mock := testutil.NewMockPure("524", "test-key")
	defer mock.Close()
	mock.SetCollection("persons", testutil.Records(1000))

	p := New(newTestClient(t, mock), DefaultConfig())
	seq := p.All(context.Background(), "persons", url.Values{"size": {"10"}})

	assert.Equal(t, 0, mock.RequestCount(), "no request before iteration")

	seen := 0
	for _, err := range seq {
		require.NoError(t, err)
		seen++
		if seen == 2 {
			break
		}
	}

	assert.Equal(t, 3, mock.RequestCount(), "probe plus two windows, nothing more")
}

func TestAll_InvalidSize(t *testing.T) {
	mock := testutil.NewMockPure("524", "test-key")
	defer mock.Close()

	p := New(newTestClient(t, mock), DefaultConfig())

	_, err := collect(t, p.All(context.Background(), "persons", url.Values{"size": {"lots"}}))
	assert.Error(t, err)
	assert.Equal(t, 0, mock.RequestCount())
}

func TestAll_InvalidCollection(t *testing.T) {
	mock := testutil.NewMockPure("524", "test-key")
	defer mock.Close()

	p := New(newTestClient(t, mock), DefaultConfig())

	_, err := collect(t, p.All(context.Background(), "bogus", nil))
	assert.ErrorIs(t, err, registry.ErrInvalidCollection)
	assert.Equal(t, 0, mock.RequestCount())
}

func TestAll_MissingCount(t *testing.T) {
	mock := testutil.NewMockPure("524", "test-key")
	defer mock.Close()
	mock.SetResponse("persons", testutil.NewJSONResponse(`{"items": []}`))

	p := New(newTestClient(t, mock), DefaultConfig())

	_, err := collect(t, p.All(context.Background(), "persons", nil))
	assert.ErrorIs(t, err, client.ErrMissingCount)
}

func TestAll_HTTPErrorStopsSequence(t *testing.T) {
	mock := testutil.NewMockPure("524", "test-key")
	defer mock.Close()
	mock.SetSequence("persons",
		testutil.NewJSONResponse(`{"count": 30}`),
		testutil.NewJSONResponse(`{"count": 30, "items": [{"uuid": "a"}]}`),
		testutil.NewNotFoundResponse(),
	)

	p := New(newTestClient(t, mock), DefaultConfig())

	pages, err := collect(t, p.All(context.Background(), "persons", url.Values{"size": {"10"}}))
	require.Len(t, pages, 1)

	var httpErr *client.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, 3, mock.RequestCount())
}

func TestFilterAll(t *testing.T) {
	mock := testutil.NewMockPure("524", "test-key")
	defer mock.Close()
	mock.SetCollection("research-outputs", testutil.Records(25))

	p := New(newTestClient(t, mock), DefaultConfig())

	payload := map[string]any{
		"size":                   10,
		"forOrganisationalUnits": map[string]any{"uuids": []string{"abc"}},
	}
	pages, err := collect(t, p.FilterAll(context.Background(), "research-outputs", payload))
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Len(t, pages[2].Items, 5)

	requests := mock.Requests()
	require.Len(t, requests, 4)
	for _, req := range requests {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Contains(t, req.JSONBody(), "forOrganisationalUnits")
	}
	assert.Equal(t, float64(0), requests[0].JSONBody()["size"])
	assert.Equal(t, float64(20), requests[3].JSONBody()["offset"])
	assert.Equal(t, 10, payload["size"], "caller payload must not change")
	assert.NotContains(t, payload, "offset")
}

func TestFilterAllByUUID(t *testing.T) {
	mock := testutil.NewMockPure("524", "test-key")
	defer mock.Close()
	records := testutil.Records(10)
	mock.SetCollection("persons", records)

	var uuids []string
	for _, r := range records {
		uuids = append(uuids, r["uuid"].(string))
	}

	p := New(newTestClient(t, mock), DefaultConfig())

	pages, err := collect(t, p.FilterAllByUUID(context.Background(), "persons", map[string]any{"locale": "en_US"}, uuids, 3))
	require.NoError(t, err)
	require.Len(t, pages, 4)

	var got []string
	for _, page := range pages {
		for _, item := range page.Items {
			got = append(got, item["uuid"].(string))
		}
	}
	assert.Equal(t, uuids, got, "one page per group, in input order")

	requests := mock.Requests()
	require.Len(t, requests, 4, "no probe for grouped filters")
	first := requests[0].JSONBody()
	assert.Equal(t, float64(3), first["size"])
	assert.Len(t, first["uuids"], 3)
	assert.Equal(t, "en_US", first["locale"])
	assert.Equal(t, float64(1), requests[3].JSONBody()["size"])
}

func TestFilterAllByUUID_InvalidUUID(t *testing.T) {
	mock := testutil.NewMockPure("524", "test-key")
	defer mock.Close()

	p := New(newTestClient(t, mock), DefaultConfig())

	uuids := []string{"00000000-0000-0000-0000-000000000001", "not-a-uuid"}
	_, err := collect(t, p.FilterAllByUUID(context.Background(), "persons", nil, uuids, 1))
	assert.ErrorContains(t, err, "not-a-uuid")
	assert.Equal(t, 0, mock.RequestCount())
}

func TestFilterAllByID(t *testing.T) {
	mock := testutil.NewMockPure("524", "test-key")
	defer mock.Close()
	mock.SetCollection("persons", testutil.Records(5))

	p := New(newTestClient(t, mock), Config{ItemsPerGroup: 2})

	pages, err := collect(t, p.FilterAllByID(context.Background(), "persons", nil, []string{"1", "2", "3", "4", "5"}, 0))
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Len(t, pages[0].Items, 2)
	assert.Len(t, pages[2].Items, 1)
	assert.Len(t, mock.Requests()[0].JSONBody()["ids"], 2)
}

func TestBatchFetcher_FetchAll(t *testing.T) {
	mock := testutil.NewMockPure("524", "test-key")
	defer mock.Close()
	mock.SetCollection("persons", testutil.Records(95))

	bf := NewBatchFetcher(newTestClient(t, mock), BatchConfig{MaxConcurrency: 3, Timeout: 10 * time.Second})

	pages, err := bf.FetchAll(context.Background(), "persons", url.Values{"size": {"10"}})
	require.NoError(t, err)
	require.Len(t, pages, 10)

	for i, page := range pages {
		require.NotNil(t, page, "window %d", i)
		first := page.Items[0]["pureId"]
		assert.EqualValues(t, i*10+1, toIntOrFail(t, first), "pages are in window order")
	}
	assert.Len(t, pages[9].Items, 5)
	assert.Equal(t, 11, mock.RequestCount())
}

func TestBatchFetcher_Error(t *testing.T) {
	mock := testutil.NewMockPure("524", "test-key")
	defer mock.Close()
	mock.SetSequence("persons",
		testutil.NewJSONResponse(`{"count": 40}`),
		testutil.NewServerErrorResponse(),
	)

	bf := NewBatchFetcher(newTestClient(t, mock), BatchConfig{MaxConcurrency: 2})

	pages, err := bf.FetchAll(context.Background(), "persons", url.Values{"size": {"10"}})
	assert.Nil(t, pages)

	var httpErr *client.HTTPError
	assert.ErrorAs(t, err, &httpErr)
}

func toIntOrFail(t *testing.T, v any) int {
	t.Helper()
	n, err := toInt(v)
	require.NoError(t, err)
	return n
}
