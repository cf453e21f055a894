package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/salesys-blacklist/pkg/blacklist"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WaitFunc pauses between drain batches.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Drainer fetches every page of a selection for export.
// At most one drain runs at a time per Drainer.
type Drainer struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
	wait    WaitFunc

	mu      sync.Mutex
	running bool
}

// NewDrainer creates a new bulk drainer.
func NewDrainer(fetcher PageFetcher, config Config) *Drainer {
	return &Drainer{
		fetcher: fetcher,
		config:  config.withDefaults(),
		logger:  log.With().Str("component", "drainer").Logger(),
		wait:    sleepContext,
	}
}

// SetWaitFunc replaces the inter-batch pause (for testing).
func (d *Drainer) SetWaitFunc(fn WaitFunc) {
	d.wait = fn
}

// Running reports whether a drain is in progress.
func (d *Drainer) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Drain fetches batches from offset 0 until a batch is shorter than the batch
// size. Any failed batch aborts the drain and the accumulated strings are
// discarded. An empty selection returns ErrNoSelection without fetching.
func (d *Drainer) Drain(ctx context.Context, sel blacklist.Selection) ([]blacklist.Entry, error) {
	if sel.IsEmpty() {
		return nil, ErrNoSelection
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil, ErrDrainInProgress
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	start := time.Now()
	logger := d.logger.With().
		Str("drain_id", uuid.NewString()).
		Strs("list_ids", sel.IDs()).
		Logger()

	logger.Info().Int("batch_size", d.config.BatchSize).Msg("Starting drain")

	var all []blacklist.Entry
	offset := 0
	batches := 0

	for {
		batch, err := fetchPage(ctx, d.fetcher, d.config, sel, offset, d.config.BatchSize)
		if err != nil {
			drainsTotal.WithLabelValues("aborted").Inc()
			logger.Warn().
				Err(err).
				Int("offset", offset).
				Int("discarded", len(all)).
				Msg("Drain aborted")
			return nil, fmt.Errorf("fetch batch at offset %d: %w", offset, err)
		}

		pagesFetchedTotal.WithLabelValues(modeDrain).Inc()
		batches++
		all = append(all, batch...)

		if len(batch) < d.config.BatchSize {
			break
		}
		offset += d.config.BatchSize

		if err := d.wait(ctx, d.config.BatchDelay); err != nil {
			drainsTotal.WithLabelValues("aborted").Inc()
			logger.Warn().Err(err).Int("offset", offset).Msg("Drain cancelled")
			return nil, fmt.Errorf("wait before offset %d: %w", offset, err)
		}
	}

	drainsTotal.WithLabelValues("completed").Inc()
	drainRecords.Observe(float64(len(all)))

	logger.Info().
		Int("batches", batches).
		Int("records", len(all)).
		Dur("duration", time.Since(start)).
		Msg("Drain complete")

	return all, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
