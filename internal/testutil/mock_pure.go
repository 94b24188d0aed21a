// Package testutil provides testing utilities for the Pure API client.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockPureResponse defines the behavior for a mock Pure endpoint response.
type MockPureResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request the mock server received.
type RecordedRequest struct {
	Method       string
	ResourcePath string
	Query        url.Values
	Header       http.Header
	Body         []byte
}

// JSONBody decodes the recorded body as a JSON object.
func (r RecordedRequest) JSONBody() map[string]any {
	var doc map[string]any
	_ = json.Unmarshal(r.Body, &doc)
	return doc
}

// MockPure is a configurable mock Pure API server for testing.
//
// It serves "/ws/api/<version>/<resource path>". Collections registered with
// SetCollection honour size and offset from the query string (GET) or the
// JSON body (POST) and can be filtered by uuids. Change pages registered with
// SetChangePage are served at "changes/<cursor>".
type MockPure struct {
	server   *httptest.Server
	version  string
	apiKey   string
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	collections map[string][]map[string]any
	changes     map[string]any
	requests    []RecordedRequest
}

// NewMockPure creates a mock server for version that accepts apiKey.
// An empty apiKey accepts every request.
func NewMockPure(version, apiKey string) *MockPure {
	mock := &MockPure{
		version:     version,
		apiKey:      apiKey,
		handlers:    make(map[string]func(w http.ResponseWriter, r *http.Request)),
		collections: make(map[string][]map[string]any),
		changes:     make(map[string]any),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the mock server URL.
func (m *MockPure) URL() string {
	return m.server.URL
}

// Domain returns host:port, for use with protocol "http".
func (m *MockPure) Domain() string {
	return strings.TrimPrefix(m.server.URL, "http://")
}

// Close shuts down the mock server.
func (m *MockPure) Close() {
	m.server.Close()
}

// Reset clears the recorded requests.
func (m *MockPure) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets a custom handler for an exact resource path such as
// "persons" or "changes/2020-03-12". It takes precedence over fixtures.
func (m *MockPure) SetHandler(resourcePath string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[resourcePath] = handler
}

// SetResponse configures a fixed response for a resource path.
func (m *MockPure) SetResponse(resourcePath string, resp MockPureResponse) {
	m.SetHandler(resourcePath, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	})
}

// SetSequence serves the responses in order, repeating the last one.
func (m *MockPure) SetSequence(resourcePath string, responses ...MockPureResponse) {
	var (
		mu   sync.Mutex
		next int
	)
	m.SetHandler(resourcePath, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[min(next, len(responses)-1)]
		next++
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	})
}

// SetCollection registers the records of a collection.
func (m *MockPure) SetCollection(name string, records []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[name] = records
}

// SetChangePage registers the page served for changes/<cursor>.
func (m *MockPure) SetChangePage(cursor string, page any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes[cursor] = page
}

// Requests returns a copy of the recorded requests.
func (m *MockPure) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of requests made to the server.
func (m *MockPure) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

func (m *MockPure) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	prefix := "/ws/api/" + m.version + "/"
	resourcePath, ok := strings.CutPrefix(r.URL.Path, prefix)

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method:       r.Method,
		ResourcePath: resourcePath,
		Query:        r.URL.Query(),
		Header:       r.Header.Clone(),
		Body:         body,
	})
	m.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"code": 404, "title": "Not found"})
		return
	}

	if m.apiKey != "" && r.Header.Get("api-key") != m.apiKey {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": 401, "title": "Unauthorized"})
		return
	}

	m.mu.RLock()
	handler, exists := m.handlers[resourcePath]
	m.mu.RUnlock()
	if exists {
		handler(w, r)
		return
	}

	if cursor, isChange := strings.CutPrefix(resourcePath, "changes/"); isChange {
		m.serveChanges(w, cursor)
		return
	}

	m.mu.RLock()
	records, isCollection := m.collections[resourcePath]
	m.mu.RUnlock()
	if isCollection {
		m.serveCollection(w, r, records, body)
		return
	}

	writeJSON(w, http.StatusNotFound, map[string]any{"code": 404, "title": "Not found"})
}

func (m *MockPure) serveChanges(w http.ResponseWriter, cursor string) {
	m.mu.RLock()
	page, ok := m.changes[cursor]
	m.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"code": 404, "title": "Unknown resumption token"})
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (m *MockPure) serveCollection(w http.ResponseWriter, r *http.Request, records []map[string]any, body []byte) {
	size, offset := 10, 0
	var filter map[string]any

	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		if v := q.Get("size"); v != "" {
			size, _ = strconv.Atoi(v)
		}
		if v := q.Get("offset"); v != "" {
			offset, _ = strconv.Atoi(v)
		}
	case http.MethodPost:
		if err := json.Unmarshal(body, &filter); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "title": err.Error()})
			return
		}
		if v, ok := filter["size"].(float64); ok {
			size = int(v)
		}
		if v, ok := filter["offset"].(float64); ok {
			offset = int(v)
		}
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"code": 405})
		return
	}

	matched := records
	if uuids, ok := filter["uuids"].([]any); ok {
		matched = filterBy(records, "uuid", uuids)
	} else if ids, ok := filter["ids"].([]any); ok {
		matched = filterBy(records, "pureId", ids)
	}

	doc := map[string]any{
		"count":           len(matched),
		"pageInformation": map[string]any{"offset": offset, "size": size},
	}
	if size > 0 && offset < len(matched) {
		end := min(offset+size, len(matched))
		doc["items"] = matched[offset:end]
	}
	writeJSON(w, http.StatusOK, doc)
}

func filterBy(records []map[string]any, field string, wanted []any) []map[string]any {
	set := make(map[string]struct{}, len(wanted))
	for _, v := range wanted {
		set[fmt.Sprint(v)] = struct{}{}
	}

	var out []map[string]any
	for _, record := range records {
		if _, ok := set[fmt.Sprint(record[field])]; ok {
			out = append(out, record)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewJSONResponse creates a 200 OK response with a JSON body.
func NewJSONResponse(body string) MockPureResponse {
	return MockPureResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockPureResponse {
	headers := map[string]string{"Content-Type": "application/json; charset=utf-8"}
	if retryAfter != "" {
		headers["Retry-After"] = retryAfter
	}
	return MockPureResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"code": 429, "title": "Too many requests"}`,
		Headers:    headers,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockPureResponse {
	return MockPureResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"code": 500, "title": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockPureResponse {
	return MockPureResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"code": 404, "title": "Not found"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// Records builds n person-like records with deterministic uuids.
func Records(n int) []map[string]any {
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{
			"pureId": i + 1,
			"uuid":   fmt.Sprintf("00000000-0000-0000-0000-%012d", i+1),
		}
	}
	return records
}
