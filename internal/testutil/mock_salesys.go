// Package testutil provides testing utilities for the SaleSys blacklist client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/Sternrassler/salesys-blacklist/pkg/blacklist"
)

// ListsPath is the path the mock serves the exclude-list API on.
const ListsPath = "/api/contacts/exclude-lists-v1"

// StringsRequest records one call to the strings endpoint.
type StringsRequest struct {
	ListIDs []string
	Offset  int
	Count   int
}

// MockSaleSys is a configurable mock of the exclude-lists API.
type MockSaleSys struct {
	server *httptest.Server
	mu     sync.RWMutex

	token   string
	lists   []blacklist.List
	strings map[string][]blacklist.Entry
	failAt  map[int]int
	headers map[string]string

	// Tracking
	RequestCount      int
	StringsRequests   []StringsRequest
	LastRequestHeader http.Header
}

// NewMockSaleSys creates a mock that accepts the given bearer token.
func NewMockSaleSys(token string) *MockSaleSys {
	mock := &MockSaleSys{
		token:   token,
		strings: make(map[string][]blacklist.Entry),
		failAt:  make(map[int]int),
		headers: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(ListsPath, mock.handleLists)
	mux.HandleFunc(ListsPath+"/strings", mock.handleStrings)

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		for k, v := range mock.headers {
			w.Header().Set(k, v)
		}
		mock.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+mock.token {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))

	return mock
}

// URL returns the mock server root URL.
func (m *MockSaleSys) URL() string {
	return m.server.URL
}

// BaseURL returns the exclude-lists API root on the mock.
func (m *MockSaleSys) BaseURL() string {
	return m.server.URL + ListsPath
}

// Client returns an HTTP client for the mock server.
func (m *MockSaleSys) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockSaleSys) Close() {
	m.server.Close()
}

// SetLists configures the catalog returned by the lists endpoint.
func (m *MockSaleSys) SetLists(lists ...blacklist.List) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists = lists
}

// SetStrings configures the entries of one list.
func (m *MockSaleSys) SetStrings(listID string, entries []blacklist.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[listID] = entries
}

// FailAtOffset makes the strings endpoint answer with status for the given offset.
func (m *MockSaleSys) FailAtOffset(offset, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAt[offset] = status
}

// SetHeader adds a header to every response.
func (m *MockSaleSys) SetHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// Offsets returns the offsets of all strings requests in arrival order.
func (m *MockSaleSys) Offsets() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, len(m.StringsRequests))
	for i, req := range m.StringsRequests {
		out[i] = req.Offset
	}
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSaleSys) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

func (m *MockSaleSys) handleLists(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	lists := m.lists
	m.mu.RUnlock()

	if lists == nil {
		lists = []blacklist.List{}
	}
	writeJSON(w, lists)
}

func (m *MockSaleSys) handleStrings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, err := strconv.Atoi(q.Get("offset"))
	if err != nil || offset < 0 {
		http.Error(w, `{"error":"invalid offset"}`, http.StatusBadRequest)
		return
	}
	count, err := strconv.Atoi(q.Get("count"))
	if err != nil || count <= 0 {
		http.Error(w, `{"error":"invalid count"}`, http.StatusBadRequest)
		return
	}
	var ids []string
	if raw := q.Get("listIds"); raw != "" {
		ids = strings.Split(raw, ",")
	}

	m.mu.Lock()
	m.StringsRequests = append(m.StringsRequests, StringsRequest{ListIDs: ids, Offset: offset, Count: count})
	status, fail := m.failAt[offset]
	var all []blacklist.Entry
	for _, id := range ids {
		all = append(all, m.strings[id]...)
	}
	m.mu.Unlock()

	if fail {
		http.Error(w, fmt.Sprintf(`{"error":"injected failure at offset %d"}`, offset), status)
		return
	}

	page := []blacklist.Entry{}
	if offset < len(all) {
		end := offset + count
		if end > len(all) {
			end = len(all)
		}
		page = all[offset:end]
	}
	writeJSON(w, page)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// Entries generates n entries for a list with predictable values.
func Entries(listID string, n int) []blacklist.Entry {
	out := make([]blacklist.Entry, n)
	for i := range out {
		out[i] = blacklist.Entry{
			ID:             fmt.Sprintf("%s-%d", listID, i),
			ListID:         listID,
			Value:          fmt.Sprintf("+46700%06d", i),
			OrganizationID: "org-1",
		}
	}
	return out
}
