package roster

import "strings"

// Normalize returns a copy of raw that satisfies the registry invariants:
//
//   - IDs has no blank and no repeated entries, first occurrence wins.
//   - Names and FamilyIDs have exactly len(IDs) entries, each kept at the index
//     of the id it described in raw, padded with "".
//   - Active contains only known ids, without blanks or repeats, in original order.
//   - Every extra field is de-duplicated in order.
//
// A nil raw yields an empty registry. raw itself is never modified.
func Normalize(raw *Registry) *Registry {
	out := New()
	if raw == nil {
		return out
	}

	seen := make(map[string]struct{}, len(raw.IDs))
	for i, id := range raw.IDs {
		if strings.TrimSpace(id) == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out.IDs = append(out.IDs, id)
		out.Names = append(out.Names, strings.TrimSpace(valueAt(raw.Names, i)))
		out.FamilyIDs = append(out.FamilyIDs, strings.TrimSpace(valueAt(raw.FamilyIDs, i)))
	}

	for _, id := range DistinctInOrder(raw.Active) {
		if _, known := seen[id]; known {
			out.Active = append(out.Active, id)
		}
	}

	extraKeys := make(map[string]struct{}, len(raw.Extra))
	for _, f := range raw.Extra {
		if _, dup := extraKeys[f.Key]; dup || f.Key == "" {
			continue
		}
		extraKeys[f.Key] = struct{}{}
		out.Extra = append(out.Extra, Field{Key: f.Key, Values: DistinctInOrder(f.Values)})
	}

	return out
}

// DistinctInOrder removes repeated values, keeping the first occurrence.
// The result is never nil.
func DistinctInOrder(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
