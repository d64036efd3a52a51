// Package projection derives the ordered rows a presentation layer renders from
// the persisted roster.
package projection

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/stacklok/toolhive-roster/internal/roster"
)

// Row is one client as shown to a presentation layer
type Row struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	FamilyID    string `json:"familyId"`
	Active      bool   `json:"active"`
}

// Project returns every known client in display order:
//
//  1. active clients before inactive ones
//  2. ascending numeric family code, a missing code ranking as the largest
//     possible value
//  3. ascending id, ordinal
//
// The order is a total function of the registry, so identical input always
// yields identical output. reg is not modified.
func Project(reg *roster.Registry) []Row {
	records := reg.Records()
	rows := make([]Row, 0, len(records))
	keys := make(map[string]familyKey, len(records))
	for _, rec := range records {
		rows = append(rows, Row(rec))
		keys[rec.ID] = newFamilyKey(rec.FamilyID)
	}

	slices.SortFunc(rows, func(a, b Row) int {
		if a.Active != b.Active {
			if a.Active {
				return -1
			}
			return 1
		}
		if c := keys[a.ID].compare(keys[b.ID]); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return rows
}

// ActiveCount returns the number of active rows
func ActiveCount(rows []Row) int {
	n := 0
	for _, r := range rows {
		if r.Active {
			n++
		}
	}
	return n
}

// FamilyKey interprets a family code as an integer. A code that does not parse
// directly is read from its digit characters alone ("A-12b3" is 123). The
// second result is false when no number can be derived.
func FamilyKey(code string) (int64, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(code, 10, 64); err == nil {
		return n, true
	}

	var digits strings.Builder
	for _, r := range code {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

type familyKey int64

// newFamilyKey maps a missing or unparseable code to math.MaxInt64
func newFamilyKey(code string) familyKey {
	v, ok := FamilyKey(code)
	if !ok {
		return math.MaxInt64
	}
	return familyKey(v)
}

func (k familyKey) compare(other familyKey) int {
	return cmp.Compare(k, other)
}
