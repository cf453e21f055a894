package pagination

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sternrassler/salesys-blacklist/pkg/blacklist"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is the Loader state.
type State int

const (
	// StateIdle means nothing is loaded or the last load failed.
	StateIdle State = iota

	// StateLoading means a page fetch is in flight.
	StateLoading

	// StateLoaded means at least one page is in the buffer.
	StateLoaded
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is a copy of the Loader state for rendering.
type Snapshot struct {
	State     State
	Selection blacklist.Selection
	Page      int
	HasMore   bool
	Entries   []blacklist.Entry
}

// Loader fetches one page at a time on demand and keeps the visible buffer.
type Loader struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger

	mu         sync.Mutex
	selection  blacklist.Selection
	generation uint64
	state      State
	page       int
	hasMore    bool
	entries    []blacklist.Entry
	cancel     context.CancelFunc
}

// NewLoader creates a new incremental loader.
func NewLoader(fetcher PageFetcher, config Config) *Loader {
	return &Loader{
		fetcher: fetcher,
		config:  config.withDefaults(),
		logger:  log.With().Str("component", "loader").Logger(),
	}
}

// SetSelection replaces the selection and resets the buffer, cursor and state.
// A load still in flight is cancelled and its result will be discarded.
func (l *Loader) SetSelection(sel blacklist.Selection) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}

	l.selection = sel
	l.generation++
	l.state = StateIdle
	l.page = 0
	l.hasMore = false
	l.entries = nil

	l.logger.Debug().
		Strs("list_ids", sel.IDs()).
		Uint64("generation", l.generation).
		Msg("Selection changed, buffer cleared")
}

// Load fetches page 0 and replaces the buffer.
func (l *Loader) Load(ctx context.Context) error {
	return l.load(ctx, false)
}

// LoadMore fetches the page after the current one and appends it.
// Returns ErrNoMorePages when the last page was short.
func (l *Loader) LoadMore(ctx context.Context) error {
	return l.load(ctx, true)
}

func (l *Loader) load(ctx context.Context, more bool) error {
	l.mu.Lock()
	if l.selection.IsEmpty() {
		l.mu.Unlock()
		return ErrNoSelection
	}
	if l.state == StateLoading {
		l.mu.Unlock()
		return ErrLoadInProgress
	}

	page := 0
	if more {
		if !l.hasMore {
			l.mu.Unlock()
			return ErrNoMorePages
		}
		page = l.page + 1
	}

	generation := l.generation
	sel := l.selection
	fetchCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.state = StateLoading
	l.mu.Unlock()

	offset := page * l.config.PageSize
	entries, err := fetchPage(fetchCtx, l.fetcher, l.config, sel, offset, l.config.PageSize)
	cancel()

	l.mu.Lock()
	defer l.mu.Unlock()

	if generation != l.generation {
		l.logger.Debug().
			Int("page", page).
			Uint64("generation", generation).
			Msg("Discarding page for stale selection")
		return ErrStaleSelection
	}
	l.cancel = nil

	if err != nil {
		// Buffer and cursor are untouched, so LoadMore retries the same page.
		l.state = StateIdle
		l.logger.Warn().
			Err(err).
			Strs("list_ids", sel.IDs()).
			Int("page", page).
			Msg("Page load failed")
		return fmt.Errorf("load page %d: %w", page, err)
	}

	pagesFetchedTotal.WithLabelValues(modeInteractive).Inc()

	if page == 0 {
		l.entries = entries
	} else {
		l.entries = append(l.entries, entries...)
	}
	l.page = page
	l.hasMore = len(entries) == l.config.PageSize
	l.state = StateLoaded

	l.logger.Debug().
		Int("page", page).
		Int("offset", offset).
		Int("returned", len(entries)).
		Int("buffered", len(l.entries)).
		Bool("has_more", l.hasMore).
		Msg("Page loaded")

	return nil
}

// Snapshot returns a copy of the current state.
func (l *Loader) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]blacklist.Entry, len(l.entries))
	copy(entries, l.entries)

	return Snapshot{
		State:     l.state,
		Selection: l.selection,
		Page:      l.page,
		HasMore:   l.hasMore,
		Entries:   entries,
	}
}

// State returns the current state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// HasMore reports whether LoadMore may return more strings.
func (l *Loader) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMore
}

// Len returns the number of buffered strings.
func (l *Loader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
