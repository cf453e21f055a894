// Package export turns drained exclude-list strings into spreadsheet files.
package export

import (
	"strings"
	"time"

	"github.com/Sternrassler/salesys-blacklist/pkg/blacklist"
)

// Column names, in output order.
const (
	ColumnPhoneNumber    = "Phone Number"
	ColumnListID         = "List ID"
	ColumnListName       = "List Name"
	ColumnOrganizationID = "Organization ID"
)

// Columns is the header row of every export.
var Columns = []string{ColumnPhoneNumber, ColumnListID, ColumnListName, ColumnOrganizationID}

// Row maps column name to cell value.
type Row map[string]string

// Values returns the cells in Columns order.
func (r Row) Values() []string {
	out := make([]string, len(Columns))
	for i, col := range Columns {
		out[i] = r[col]
	}
	return out
}

// FormatRows denormalizes entries against the catalog. Entries whose list is
// missing from the catalog get blacklist.UnknownListName.
func FormatRows(entries []blacklist.Entry, catalog *blacklist.Catalog) []Row {
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = Row{
			ColumnPhoneNumber:    e.Value,
			ColumnListID:         e.ListID,
			ColumnListName:       catalog.NameOf(e.ListID),
			ColumnOrganizationID: e.OrganizationID,
		}
	}
	return rows
}

var timestampReplacer = strings.NewReplacer("T", "-", ":", "-")

// Filename returns "<prefix>-YYYY-MM-DD-HH-MM-SS.<ext>" for t in UTC.
// Two exports within the same second get the same name.
func Filename(prefix, ext string, t time.Time) string {
	stamp := timestampReplacer.Replace(t.UTC().Format("2006-01-02T15:04:05"))
	return prefix + "-" + stamp + "." + strings.TrimPrefix(ext, ".")
}
