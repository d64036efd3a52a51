// Package roster provides the persisted client roster model and the structural
// invariants every read and write of it must satisfy.
package roster

import (
	"errors"
	"strings"
)

const (
	// FieldIDs is the canonical field name of the ordered client id list
	FieldIDs = "ids"
	// FieldNames is the canonical field name of the display name list
	FieldNames = "names"
	// FieldFamilyIDs is the canonical field name of the family code list
	FieldFamilyIDs = "familyIds"
	// FieldActive is the canonical field name of the connected id set
	FieldActive = "active"
)

// ErrEmptyID is returned when a client id is blank after trimming
var ErrEmptyID = errors.New("client id is empty")

// Field is a named list of strings carried through the roster file without
// being interpreted.
type Field struct {
	Key    string
	Values []string
}

// Registry is the aggregate persisted roster.
//
// Names and FamilyIDs are positionally aligned to IDs: index i describes the
// client at IDs[i]. Active holds the ids currently connected and is always a
// subset of IDs once normalized.
type Registry struct {
	IDs       []string
	Names     []string
	FamilyIDs []string
	Active    []string

	// Extra holds fields this package does not interpret, in file order.
	Extra []Field
}

// Record is the flattened view of one known client.
type Record struct {
	ID          string
	DisplayName string
	FamilyID    string
	Active      bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		IDs:       []string{},
		Names:     []string{},
		FamilyIDs: []string{},
		Active:    []string{},
	}
}

// Clone returns a deep copy of the registry.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return New()
	}
	out := &Registry{
		IDs:       cloneStrings(r.IDs),
		Names:     cloneStrings(r.Names),
		FamilyIDs: cloneStrings(r.FamilyIDs),
		Active:    cloneStrings(r.Active),
	}
	for _, f := range r.Extra {
		out.Extra = append(out.Extra, Field{Key: f.Key, Values: cloneStrings(f.Values)})
	}
	return out
}

// IndexOf returns the position of id in IDs, or -1. Comparison is ordinal.
func (r *Registry) IndexOf(id string) int {
	for i, known := range r.IDs {
		if known == id {
			return i
		}
	}
	return -1
}

// Known reports whether id has ever been recorded.
func (r *Registry) Known(id string) bool {
	return r.IndexOf(id) >= 0
}

// IsActive reports whether id is in the active set.
func (r *Registry) IsActive(id string) bool {
	for _, a := range r.Active {
		if a == id {
			return true
		}
	}
	return false
}

// ActiveCount returns the size of the active set.
func (r *Registry) ActiveCount() int {
	if r == nil {
		return 0
	}
	return len(r.Active)
}

// ActiveSet returns the active ids as a set.
func (r *Registry) ActiveSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.Active))
	for _, a := range r.Active {
		set[a] = struct{}{}
	}
	return set
}

// Records returns one Record per known client in discovery order.
// A blank display name falls back to the id.
func (r *Registry) Records() []Record {
	if r == nil {
		return nil
	}
	active := r.ActiveSet()
	records := make([]Record, 0, len(r.IDs))
	for i, id := range r.IDs {
		name := valueAt(r.Names, i)
		if name == "" {
			name = id
		}
		_, isActive := active[id]
		records = append(records, Record{
			ID:          id,
			DisplayName: name,
			FamilyID:    valueAt(r.FamilyIDs, i),
			Active:      isActive,
		})
	}
	return records
}

// CleanID trims surrounding whitespace from id and rejects blank ids.
func CleanID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrEmptyID
	}
	return id, nil
}

func valueAt(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

func cloneStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}
