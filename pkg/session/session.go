// Package session holds the state of one authenticated tool session: the
// list catalog, the selection, the browsing buffer and exports. It has no UI
// dependencies; front ends render Snapshot values and subscribe to
// notifications.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sternrassler/salesys-blacklist/pkg/blacklist"
	"github.com/Sternrassler/salesys-blacklist/pkg/export"
	"github.com/Sternrassler/salesys-blacklist/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNotOpen is returned when the catalog has not been loaded yet.
var ErrNotOpen = errors.New("session not open")

// API is the upstream data source.
type API interface {
	pagination.PageFetcher
	ListBlacklists(ctx context.Context) ([]blacklist.List, error)
}

// Config holds session configuration.
type Config struct {
	Pagination pagination.Config
	Export     export.Config
}

// Session is safe for concurrent use.
type Session struct {
	api      API
	loader   *pagination.Loader
	drainer  *pagination.Drainer
	exporter *export.Exporter
	logger   zerolog.Logger

	mu        sync.RWMutex
	catalog   *blacklist.Catalog
	selection blacklist.Selection

	notifier *notifier
}

// New creates a session. Call Open before selecting lists.
func New(api API, serializer export.Serializer, cfg Config) *Session {
	drainer := pagination.NewDrainer(api, cfg.Pagination)
	return &Session{
		api:      api,
		loader:   pagination.NewLoader(api, cfg.Pagination),
		drainer:  drainer,
		exporter: export.NewExporter(drainer, serializer, cfg.Export),
		logger:   log.With().Str("component", "session").Logger(),
		notifier: newNotifier(),
	}
}

// Drainer exposes the drainer (for testing).
func (s *Session) Drainer() *pagination.Drainer {
	return s.drainer
}

// Exporter exposes the exporter (for testing).
func (s *Session) Exporter() *export.Exporter {
	return s.exporter
}

// Open fetches the list catalog once. A failure is reported as a
// notification and may be retried.
func (s *Session) Open(ctx context.Context) error {
	lists, err := s.api.ListBlacklists(ctx)
	if err != nil {
		s.notifier.publish(Notification{
			Title:       "Error",
			Description: "Failed to load blacklists. Please check your token.",
			Variant:     VariantDestructive,
		})
		return fmt.Errorf("load blacklists: %w", err)
	}

	s.mu.Lock()
	s.catalog = blacklist.NewCatalog(lists)
	s.mu.Unlock()

	s.logger.Info().Int("lists", len(lists)).Msg("Session opened")
	return nil
}

// Catalog returns the cached lists, or nil before Open.
func (s *Session) Catalog() *blacklist.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Selection returns the current selection.
func (s *Session) Selection() blacklist.Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// Toggle adds or removes one list from the selection. Any change clears the
// browsing buffer.
func (s *Session) Toggle(listID string, checked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.catalog == nil {
		return ErrNotOpen
	}
	if checked && !s.catalog.Contains(listID) {
		return fmt.Errorf("%w: %s", blacklist.ErrUnknownList, listID)
	}

	next := s.selection.Without(listID)
	if checked {
		next = s.selection.With(listID)
	}
	s.applySelection(next)
	return nil
}

// Select replaces the whole selection.
func (s *Session) Select(listIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.catalog == nil {
		return ErrNotOpen
	}
	next := blacklist.NewSelection(listIDs...)
	if err := next.Validate(s.catalog); err != nil {
		return err
	}
	s.applySelection(next)
	return nil
}

// applySelection must be called with s.mu held.
func (s *Session) applySelection(next blacklist.Selection) {
	if next.Equal(s.selection) {
		return
	}
	s.selection = next
	s.loader.SetSelection(next)
}

// LoadData loads the first page for the current selection.
func (s *Session) LoadData(ctx context.Context) error {
	return s.handleLoadError(s.loader.Load(ctx))
}

// LoadMore loads the next page. It is a no-op when there is nothing more to
// load or a load is already running.
func (s *Session) LoadMore(ctx context.Context) error {
	err := s.loader.LoadMore(ctx)
	if errors.Is(err, pagination.ErrNoMorePages) || errors.Is(err, pagination.ErrLoadInProgress) {
		return nil
	}
	return s.handleLoadError(err)
}

func (s *Session) handleLoadError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pagination.ErrStaleSelection), errors.Is(err, pagination.ErrLoadInProgress):
		return err
	case errors.Is(err, pagination.ErrNoSelection):
		return err
	}

	s.notifier.publish(Notification{
		Title:       "Error",
		Description: "Failed to load blacklist strings.",
		Variant:     VariantDestructive,
	})
	return err
}

// View returns the browsing state for rendering.
func (s *Session) View() pagination.Snapshot {
	return s.loader.Snapshot()
}

// Exporting reports whether an export drain is running.
func (s *Session) Exporting() bool {
	return s.drainer.Running()
}

// Export drains the current selection and writes the export file. Every
// outcome is also published as a notification. A second Export while one is
// running returns pagination.ErrDrainInProgress and publishes nothing.
func (s *Session) Export(ctx context.Context) (export.Result, error) {
	s.mu.RLock()
	sel := s.selection
	catalog := s.catalog
	s.mu.RUnlock()

	if sel.IsEmpty() {
		s.notifier.publish(Notification{
			Title:       "No Selection",
			Description: "Please select at least one blacklist.",
			Variant:     VariantDestructive,
		})
		return export.Result{}, pagination.ErrNoSelection
	}
	if s.drainer.Running() {
		return export.Result{}, pagination.ErrDrainInProgress
	}

	s.notifier.publish(Notification{
		Title:       "Export Started",
		Description: "Loading all data for export...",
	})

	res, err := s.exporter.Export(ctx, sel, catalog)
	switch {
	case errors.Is(err, pagination.ErrDrainInProgress):
		return res, err
	case err != nil:
		s.logger.Error().Err(err).Strs("list_ids", sel.IDs()).Msg("Export failed")
		s.notifier.publish(Notification{
			Title:       "Export Failed",
			Description: failureDescription(err),
			Variant:     VariantDestructive,
		})
		return res, err
	case res.Outcome == export.OutcomeNoData:
		s.notifier.publish(Notification{
			Title:       "No Data",
			Description: "No strings found in selected blacklists.",
			Variant:     VariantDestructive,
		})
		return res, nil
	}

	s.notifier.publish(Notification{
		Title:       "Export Complete",
		Description: fmt.Sprintf("Successfully exported %d records to %s", res.Records, res.Filename),
	})
	return res, nil
}

func failureDescription(err error) string {
	if err == nil || err.Error() == "" {
		return "Failed to export data to Excel."
	}
	return err.Error()
}

// Subscribe registers for notifications. Delivery never blocks the session;
// notifications are dropped when the buffer is full. Call the returned
// function to unsubscribe.
func (s *Session) Subscribe(buffer int) (<-chan Notification, func()) {
	return s.notifier.subscribe(buffer)
}
