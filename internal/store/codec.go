package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
	"github.com/tidwall/gjson"
	"sigs.k8s.io/yaml"

	"github.com/stacklok/toolhive-roster/internal/roster"
)

// Encoding names a persisted representation of the registry
type Encoding string

const (
	// EncodingJSON stores the registry as JSON (comments and trailing commas are accepted on read)
	EncodingJSON Encoding = "json"
	// EncodingYAML stores the registry as YAML
	EncodingYAML Encoding = "yaml"
)

// EncodingForPath infers the encoding from the file extension.
// Anything other than .yaml or .yml is treated as JSON.
func EncodingForPath(path string) Encoding {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return EncodingYAML
	default:
		return EncodingJSON
	}
}

// ParseEncoding validates an encoding name. An empty name is returned as is so
// callers can fall back to EncodingForPath.
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(name))) {
	case "":
		return "", nil
	case EncodingJSON:
		return EncodingJSON, nil
	case EncodingYAML, "yml":
		return EncodingYAML, nil
	default:
		return "", fmt.Errorf("unsupported registry encoding %q", name)
	}
}

// KeyAliases lists the field names recognised for each interpreted field.
// Matching is ASCII case-insensitive.
type KeyAliases struct {
	IDs       []string
	Names     []string
	FamilyIDs []string
	Active    []string
}

// DefaultKeyAliases returns the canonical names plus the names used by older
// roster files.
func DefaultKeyAliases() KeyAliases {
	return KeyAliases{
		IDs:       []string{roster.FieldIDs, "UUIDs"},
		Names:     []string{roster.FieldNames},
		FamilyIDs: []string{roster.FieldFamilyIDs, "FamIds"},
		Active:    []string{roster.FieldActive},
	}
}

// Merge returns the union of both alias sets.
func (k KeyAliases) Merge(other KeyAliases) KeyAliases {
	return KeyAliases{
		IDs:       append(append([]string{}, k.IDs...), other.IDs...),
		Names:     append(append([]string{}, k.Names...), other.Names...),
		FamilyIDs: append(append([]string{}, k.FamilyIDs...), other.FamilyIDs...),
		Active:    append(append([]string{}, k.Active...), other.Active...),
	}
}

type fieldKind int

const (
	fieldExtra fieldKind = iota
	fieldIDs
	fieldNames
	fieldFamilyIDs
	fieldActive
)

func (k KeyAliases) classify(key string) fieldKind {
	match := func(aliases []string) bool {
		for _, a := range aliases {
			if strings.EqualFold(strings.TrimSpace(key), a) {
				return true
			}
		}
		return false
	}
	switch {
	case match(k.IDs):
		return fieldIDs
	case match(k.Names):
		return fieldNames
	case match(k.FamilyIDs):
		return fieldFamilyIDs
	case match(k.Active):
		return fieldActive
	default:
		return fieldExtra
	}
}

// entriesDocument is the canonical on-disk shape: an ordered list of named string lists.
type entriesDocument struct {
	Entries []entry `json:"entries"`
}

type entry struct {
	Key    string    `json:"key"`
	Values []*string `json:"values"`
}

type shape int

const (
	shapeEntries shape = iota
	shapeFlat
)

// decode turns raw file content into a normalized registry.
// The error wraps ErrInvalid when the content is not a recognisable roster.
func decode(data []byte, enc Encoding, aliases KeyAliases) (*roster.Registry, error) {
	std, err := toStandardJSON(data, enc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	sh, entriesRaw, err := detectShape(std)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var fields []roster.Field
	switch sh {
	case shapeEntries:
		if err := validate(entriesSchemaName, entriesRaw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		fields, err = decodeEntries(entriesRaw)
	case shapeFlat:
		if err := validate(flatSchemaName, std); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		fields = decodeFlat(std)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	return roster.Normalize(assemble(fields, aliases)), nil
}

func toStandardJSON(data []byte, enc Encoding) ([]byte, error) {
	if enc == EncodingYAML {
		out, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		return out, nil
	}
	out, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return out, nil
}

// detectShape reports which of the two accepted encodings std uses. For the
// entries form it also returns the raw entries array.
func detectShape(std []byte) (shape, []byte, error) {
	if !gjson.ValidBytes(std) {
		return 0, nil, fmt.Errorf("content is not valid JSON")
	}
	doc := gjson.ParseBytes(std)
	if !doc.IsObject() {
		return 0, nil, fmt.Errorf("top-level value must be an object, got %s", doc.Type)
	}
	for _, key := range []string{"entries", "Entries"} {
		if v := doc.Get(key); v.Exists() {
			return shapeEntries, []byte(v.Raw), nil
		}
	}
	return shapeFlat, nil, nil
}

func decodeEntries(raw []byte) ([]roster.Field, error) {
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode entries: %w", err)
	}
	fields := make([]roster.Field, 0, len(entries))
	for _, e := range entries {
		values := make([]string, 0, len(e.Values))
		for _, v := range e.Values {
			if v == nil {
				values = append(values, "")
				continue
			}
			values = append(values, *v)
		}
		fields = append(fields, roster.Field{Key: e.Key, Values: values})
	}
	return fields, nil
}

// decodeFlat reads a key -> list-of-strings object, keeping key order.
func decodeFlat(std []byte) []roster.Field {
	var fields []roster.Field
	gjson.ParseBytes(std).ForEach(func(key, value gjson.Result) bool {
		f := roster.Field{Key: key.String(), Values: []string{}}
		for _, item := range value.Array() {
			if item.Type == gjson.Null {
				f.Values = append(f.Values, "")
				continue
			}
			f.Values = append(f.Values, item.String())
		}
		fields = append(fields, f)
		return true
	})
	return fields
}

// assemble maps named fields onto the registry. When a field appears twice the
// first occurrence wins, mirroring a first-match key lookup.
func assemble(fields []roster.Field, aliases KeyAliases) *roster.Registry {
	reg := &roster.Registry{}
	taken := map[fieldKind]bool{}
	for _, f := range fields {
		kind := aliases.classify(f.Key)
		if kind != fieldExtra {
			if taken[kind] {
				continue
			}
			taken[kind] = true
		}
		switch kind {
		case fieldIDs:
			reg.IDs = f.Values
		case fieldNames:
			reg.Names = f.Values
		case fieldFamilyIDs:
			reg.FamilyIDs = f.Values
		case fieldActive:
			reg.Active = f.Values
		default:
			reg.Extra = append(reg.Extra, f)
		}
	}
	return reg
}

// encode writes reg in the canonical entries form. reg must already be normalized.
// Marshal renders reg in the canonical entries form written by Save
func Marshal(reg *roster.Registry, enc Encoding) ([]byte, error) {
	return encode(roster.Normalize(reg), enc)
}

func encode(reg *roster.Registry, enc Encoding) ([]byte, error) {
	doc := entriesDocument{Entries: []entry{
		newEntry(roster.FieldIDs, reg.IDs),
		newEntry(roster.FieldNames, reg.Names),
		newEntry(roster.FieldFamilyIDs, reg.FamilyIDs),
		newEntry(roster.FieldActive, reg.Active),
	}}
	for _, f := range reg.Extra {
		doc.Entries = append(doc.Entries, newEntry(f.Key, f.Values))
	}

	if enc == EncodingYAML {
		out, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal registry as YAML: %w", err)
		}
		return out, nil
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to marshal registry as JSON: %w", err)
	}
	return buf.Bytes(), nil
}

func newEntry(key string, values []string) entry {
	e := entry{Key: key, Values: make([]*string, len(values))}
	for i := range values {
		e.Values[i] = &values[i]
	}
	return e
}
