package pagination

import (
	"context"
	"errors"

	"github.com/Sternrassler/salesys-blacklist/pkg/blacklist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrNoSelection is returned when an operation needs at least one selected list.
	ErrNoSelection = errors.New("no blacklist selected")

	// ErrLoadInProgress is returned when a page load is already running.
	ErrLoadInProgress = errors.New("page load already in progress")

	// ErrNoMorePages is returned by LoadMore after a short page.
	ErrNoMorePages = errors.New("no more pages")

	// ErrStaleSelection is returned when a load finished after the selection changed.
	// Its result has been discarded.
	ErrStaleSelection = errors.New("selection changed while loading")

	// ErrDrainInProgress is returned when a drain is already running.
	ErrDrainInProgress = errors.New("drain already in progress")
)

// Prometheus metrics for paging.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesys_pages_fetched_total",
		Help: "Pages fetched by traversal mode",
	}, []string{"mode"})

	drainsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesys_drains_total",
		Help: "Completed drains by result",
	}, []string{"result"})

	drainRecords = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "salesys_drain_records",
		Help:    "Number of strings accumulated by successful drains",
		Buckets: prometheus.ExponentialBuckets(50, 4, 8),
	})
)

const (
	modeInteractive = "interactive"
	modeDrain       = "drain"
)

// PageFetcher is the interface the API client implements for offset paging.
type PageFetcher interface {
	// FetchStrings returns at most count strings of listIDs starting at offset.
	FetchStrings(ctx context.Context, listIDs []string, offset, count int) ([]blacklist.Entry, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, listIDs []string, offset, count int) ([]blacklist.Entry, error)

// FetchStrings calls f.
func (f PageFetcherFunc) FetchStrings(ctx context.Context, listIDs []string, offset, count int) ([]blacklist.Entry, error) {
	return f(ctx, listIDs, offset, count)
}

// fetchPage fetches one page for a non-empty selection. Results longer than
// size are truncated so that len(page) == size keeps meaning "maybe more".
func fetchPage(ctx context.Context, f PageFetcher, cfg Config, sel blacklist.Selection, offset, size int) ([]blacklist.Entry, error) {
	if sel.IsEmpty() {
		return nil, ErrNoSelection
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	page, err := f.FetchStrings(ctx, sel.IDs(), offset, size)
	if err != nil {
		return nil, err
	}
	if len(page) > size {
		page = page[:size]
	}
	return page, nil
}
