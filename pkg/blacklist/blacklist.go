// Package blacklist defines the exclude-list data model shared by the
// client, pagination and export packages.
package blacklist

import (
	"errors"
	"fmt"
)

// ErrUnknownList is returned when a list identifier is not part of the catalog.
var ErrUnknownList = errors.New("unknown blacklist")

// UnknownListName is used when an entry references a list missing from the catalog.
const UnknownListName = "Unknown"

// List is an exclude list as returned by the upstream API.
type List struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	IsGlobal       bool   `json:"isGlobal"`
	OrganizationID string `json:"organizationId"`
}

// TypeLabel returns "Global" or "Local".
func (l List) TypeLabel() string {
	if l.IsGlobal {
		return "Global"
	}
	return "Local"
}

// Entry is a single string (usually a phone number) stored in an exclude list.
// ListID references the owning list; it does not own it.
type Entry struct {
	ID             string `json:"id"`
	ListID         string `json:"listId"`
	Value          string `json:"string"`
	OrganizationID string `json:"organizationId"`
}

// Catalog is the immutable set of lists fetched once per session.
type Catalog struct {
	lists []List
	byID  map[string]int
}

// NewCatalog builds a catalog preserving the upstream order.
// Later duplicates of an identifier are ignored.
func NewCatalog(lists []List) *Catalog {
	c := &Catalog{
		lists: make([]List, 0, len(lists)),
		byID:  make(map[string]int, len(lists)),
	}
	for _, l := range lists {
		if _, dup := c.byID[l.ID]; dup {
			continue
		}
		c.byID[l.ID] = len(c.lists)
		c.lists = append(c.lists, l)
	}
	return c
}

// Lists returns a copy of the lists in upstream order.
func (c *Catalog) Lists() []List {
	if c == nil {
		return nil
	}
	out := make([]List, len(c.lists))
	copy(out, c.lists)
	return out
}

// Len returns the number of lists.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.lists)
}

// Get looks up a list by identifier.
func (c *Catalog) Get(id string) (List, bool) {
	if c == nil {
		return List{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return List{}, false
	}
	return c.lists[i], true
}

// Contains reports whether id is a known list.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.Get(id)
	return ok
}

// NameOf resolves a list identifier to its display name, or UnknownListName.
func (c *Catalog) NameOf(id string) string {
	if l, ok := c.Get(id); ok {
		return l.Name
	}
	return UnknownListName
}

// Selection is the ordered set of list identifiers chosen by the user.
// The zero value is an empty selection.
type Selection struct {
	ids []string
}

// NewSelection returns a selection of the given ids, dropping duplicates.
func NewSelection(ids ...string) Selection {
	var s Selection
	for _, id := range ids {
		s = s.With(id)
	}
	return s
}

// With returns a selection that includes id. Insertion order is kept.
func (s Selection) With(id string) Selection {
	if s.Has(id) {
		return s
	}
	ids := make([]string, len(s.ids), len(s.ids)+1)
	copy(ids, s.ids)
	return Selection{ids: append(ids, id)}
}

// Without returns a selection that excludes id.
func (s Selection) Without(id string) Selection {
	ids := make([]string, 0, len(s.ids))
	for _, existing := range s.ids {
		if existing != id {
			ids = append(ids, existing)
		}
	}
	return Selection{ids: ids}
}

// Has reports whether id is selected.
func (s Selection) Has(id string) bool {
	for _, existing := range s.ids {
		if existing == id {
			return true
		}
	}
	return false
}

// IDs returns a copy of the selected identifiers.
func (s Selection) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Len returns the number of selected lists.
func (s Selection) Len() int { return len(s.ids) }

// IsEmpty reports whether nothing is selected.
func (s Selection) IsEmpty() bool { return len(s.ids) == 0 }

// Equal reports whether both selections hold the same ids in the same order.
func (s Selection) Equal(other Selection) bool {
	if len(s.ids) != len(other.ids) {
		return false
	}
	for i := range s.ids {
		if s.ids[i] != other.ids[i] {
			return false
		}
	}
	return true
}

// Validate checks that every selected id exists in the catalog.
func (s Selection) Validate(c *Catalog) error {
	for _, id := range s.ids {
		if !c.Contains(id) {
			return fmt.Errorf("%w: %s", ErrUnknownList, id)
		}
	}
	return nil
}

// Summary renders the "N of M blacklists selected" line.
func (s Selection) Summary(c *Catalog) string {
	return fmt.Sprintf("%d of %d blacklists selected", s.Len(), c.Len())
}
