package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/salesys-blacklist/pkg/blacklist"
)

var errUpstream = errors.New("API request failed: 500 Internal Server Error")

// fakeFetcher serves a fixed dataset and records every call.
type fakeFetcher struct {
	mu      sync.Mutex
	data    []blacklist.Entry
	failAt  map[int]error
	calls   []int
	started chan int
	release chan struct{}
}

func newFakeFetcher(n int) *fakeFetcher {
	return &fakeFetcher{
		data:   makeEntries("A", n),
		failAt: make(map[int]error),
	}
}

func makeEntries(listID string, n int) []blacklist.Entry {
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

func (f *fakeFetcher) FetchStrings(ctx context.Context, listIDs []string, offset, count int) ([]blacklist.Entry, error) {
	f.mu.Lock()
	f.calls = append(f.calls, offset)
	started, release := f.started, f.release
	err := f.failAt[offset]
	f.mu.Unlock()

	if started != nil {
		started <- offset
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if offset >= len(f.data) {
		return []blacklist.Entry{}, nil
	}
	end := offset + count
	if end > len(f.data) {
		end = len(f.data)
	}
	page := make([]blacklist.Entry, end-offset)
	copy(page, f.data[offset:end])
	return page, nil
}

func (f *fakeFetcher) offsets() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.calls))
	copy(out, f.calls)
	return out
}

// block makes every following fetch signal on started and wait for release.
func (f *fakeFetcher) block() (started chan int, release chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = make(chan int, 1)
	f.release = make(chan struct{})
	return f.started, f.release
}

func (f *fakeFetcher) unblock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = nil
	f.release = nil
}

func testConfig() Config {
	return Config{
		PageSize:   50,
		BatchSize:  50,
		BatchDelay: 100 * time.Millisecond,
	}
}
