package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the exported strings.
const SheetName = "Blacklist Strings"

// Format identifies a serializer.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Serializer writes rows to a file. Implementations must keep row order and
// exact cell strings, and must not leave a partial file behind on failure.
type Serializer interface {
	Extension() string
	Serialize(path string, rows []Row) error
}

// NewSerializer returns the serializer for format.
func NewSerializer(format Format) (Serializer, error) {
	switch format {
	case FormatXLSX, "":
		return XLSXSerializer{}, nil
	case FormatCSV:
		return CSVSerializer{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// XLSXSerializer writes a single-sheet workbook with a header row.
type XLSXSerializer struct{}

// Extension implements Serializer.
func (XLSXSerializer) Extension() string { return string(FormatXLSX) }

// Serialize implements Serializer.
func (XLSXSerializer) Serialize(path string, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("create stream writer: %w", err)
	}

	if err := sw.SetRow("A1", toCells(Columns)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		if err := sw.SetRow(cell, toCells(row.Values())); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	return writeAtomic(path, func(w io.Writer) error {
		_, err := f.WriteTo(w)
		return err
	})
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// CSVSerializer writes RFC 4180 CSV with a header row.
type CSVSerializer struct{}

// Extension implements Serializer.
func (CSVSerializer) Extension() string { return string(FormatCSV) }

// Serialize implements Serializer.
func (CSVSerializer) Serialize(path string, rows []Row) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(Columns); err != nil {
			return err
		}
		for _, row := range rows {
			if err := cw.Write(row.Values()); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// writeAtomic writes to a temp file next to path and renames it into place.
func writeAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".export-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
