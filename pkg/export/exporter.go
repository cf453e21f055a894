package export

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Sternrassler/salesys-blacklist/pkg/blacklist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "salesys_exports_total",
	Help: "Export attempts by outcome",
}, []string{"outcome"})

// DefaultPrefix is the filename prefix of every export.
const DefaultPrefix = "salesys-blacklist"

// Outcome describes how an export finished without error.
type Outcome string

const (
	// OutcomeExported means a file was written.
	OutcomeExported Outcome = "exported"

	// OutcomeNoData means the drain returned nothing and no file was written.
	OutcomeNoData Outcome = "no_data"
)

// Result is the summary reported to the user.
type Result struct {
	Outcome  Outcome
	Records  int
	Filename string
	Path     string
}

// SerializationError is returned when the serializer could not produce the file.
type SerializationError struct {
	Filename string
	Err      error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %s: %v", e.Filename, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Drainer is the subset of pagination.Drainer the exporter needs.
type Drainer interface {
	Drain(ctx context.Context, sel blacklist.Selection) ([]blacklist.Entry, error)
}

// Config holds exporter configuration.
type Config struct {
	// Dir is where export files are written.
	Dir string

	// Prefix of the generated filename.
	Prefix string
}

// Exporter drains a selection, denormalizes it and hands it to a Serializer.
type Exporter struct {
	drainer    Drainer
	serializer Serializer
	config     Config
	now        func() time.Time
	logger     zerolog.Logger
}

// NewExporter creates a new exporter.
func NewExporter(drainer Drainer, serializer Serializer, cfg Config) *Exporter {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Exporter{
		drainer:    drainer,
		serializer: serializer,
		config:     cfg,
		now:        time.Now,
		logger:     log.With().Str("component", "exporter").Logger(),
	}
}

// SetClock overrides the time source used for filenames (for testing).
func (e *Exporter) SetClock(now func() time.Time) {
	e.now = now
}

// Export drains sel and writes every string to a new file.
// Drain errors are returned unchanged; nothing is written in that case.
// A drain with zero strings returns OutcomeNoData and skips the serializer.
func (e *Exporter) Export(ctx context.Context, sel blacklist.Selection, catalog *blacklist.Catalog) (Result, error) {
	entries, err := e.drainer.Drain(ctx, sel)
	if err != nil {
		exportsTotal.WithLabelValues("drain_failed").Inc()
		return Result{}, err
	}

	if len(entries) == 0 {
		exportsTotal.WithLabelValues(string(OutcomeNoData)).Inc()
		e.logger.Info().Strs("list_ids", sel.IDs()).Msg("Nothing to export")
		return Result{Outcome: OutcomeNoData}, nil
	}

	rows := FormatRows(entries, catalog)
	filename := Filename(e.config.Prefix, e.serializer.Extension(), e.now())
	path := filepath.Join(e.config.Dir, filename)

	if err := e.serializer.Serialize(path, rows); err != nil {
		exportsTotal.WithLabelValues("serialize_failed").Inc()
		e.logger.Error().Err(err).Str("filename", filename).Msg("Export serialization failed")
		return Result{}, &SerializationError{Filename: filename, Err: err}
	}

	exportsTotal.WithLabelValues(string(OutcomeExported)).Inc()
	e.logger.Info().
		Int("records", len(rows)).
		Str("filename", filename).
		Msg("Export complete")

	return Result{
		Outcome:  OutcomeExported,
		Records:  len(rows),
		Filename: filename,
		Path:     path,
	}, nil
}

// IsSerializationError reports whether err came from the serializer.
func IsSerializationError(err error) bool {
	var serErr *SerializationError
	return errors.As(err, &serErr)
}
