// Package pagination provides offset-based paging over exclude-list strings.
//
// The upstream API has no total-count header: a page shorter than the
// requested size is the only signal that the selected lists are exhausted.
// A full page only means the next offset has to be queried to find out.
//
// Two independent traversals are built on the same PageFetcher:
//
//	loader := pagination.NewLoader(apiClient, pagination.DefaultConfig())
//	loader.SetSelection(blacklist.NewSelection("A", "B"))
//	err := loader.Load(ctx)     // page 0, replaces the buffer
//	err = loader.LoadMore(ctx)  // page N+1, appends
//
//	drainer := pagination.NewDrainer(apiClient, pagination.DefaultConfig())
//	entries, err := drainer.Drain(ctx, selection)
//
// The Loader is a small state machine (Idle, Loading, Loaded) that guards
// against overlapping fetches and discards responses issued for a selection
// that has since changed. The Drainer fetches every batch sequentially from
// offset 0 with a fixed delay between batches and aborts on the first error.
// Neither shares cursor state with the other.
package pagination
