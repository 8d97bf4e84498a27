package ir

import (
	"fmt"
	"slices"
	"strconv"
)

// LabelKind distinguishes how a field label was written.
type LabelKind int

const (
	// LabelID is a numeric label such as `0` or `1_000`.
	LabelID LabelKind = iota
	// LabelNamed is a symbolic label whose id is its Candid hash.
	LabelNamed
	// LabelUnnamed is a positional label in a tuple-like record.
	LabelUnnamed
)

// Label identifies a record or variant field.
// Canonical field order is ascending ID.
type Label struct {
	Kind LabelKind
	Name string
	ID   uint32
}

// NamedLabel creates a symbolic label and computes its id.
func NamedLabel(name string) Label {
	return Label{Kind: LabelNamed, Name: name, ID: IDLHash(name)}
}

// IDLabel creates a numeric label.
func IDLabel(id uint32) Label {
	return Label{Kind: LabelID, ID: id}
}

// UnnamedLabel creates a positional label.
func UnnamedLabel(pos uint32) Label {
	return Label{Kind: LabelUnnamed, ID: pos}
}

// IDLHash computes the Candid field hash: h = h*223 + b (mod 2^32).
func IDLHash(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = h*223 + uint32(name[i])
	}
	return h
}

// String renders the label as it appears in Candid text.
func (l Label) String() string {
	if l.Kind == LabelNamed {
		if isIdentifier(l.Name) {
			return l.Name
		}
		return strconv.Quote(l.Name)
	}
	return strconv.FormatUint(uint64(l.ID), 10)
}

// Equal reports whether two labels refer to the same field id.
func (l Label) Equal(o Label) bool {
	return l.ID == o.ID
}

// isIdentifier reports whether s can be printed without quotes.
func isIdentifier(s string) bool {
	if s == "" || isKeyword(s) {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

var candidKeywords = map[string]bool{
	"blob": true, "bool": true, "composite_query": true, "empty": true, "float32": true,
	"float64": true, "func": true, "import": true, "int": true, "int8": true, "int16": true,
	"int32": true, "int64": true, "nat": true, "nat8": true, "nat16": true, "nat32": true,
	"nat64": true, "null": true, "oneway": true, "opt": true, "principal": true,
	"query": true, "record": true, "reserved": true, "service": true, "text": true,
	"type": true, "variant": true, "vec": true,
}

func isKeyword(s string) bool {
	return candidKeywords[s]
}

// CheckUnique verifies that labels, already sorted by id, contain no repeats.
func CheckUnique(labels []Label) error {
	for i := 1; i < len(labels); i++ {
		if labels[i-1].ID == labels[i].ID {
			if labels[i-1].Kind == LabelNamed && labels[i].Kind == LabelNamed && labels[i-1].Name != labels[i].Name {
				return fmt.Errorf("label '%s' hash collision with '%s'", labels[i-1], labels[i])
			}
			return fmt.Errorf("duplicate label '%s'", labels[i])
		}
	}
	return nil
}

// SortFields orders record fields by label id and validates uniqueness.
// The input slice is copied.
func SortFields(fields []Field) ([]Field, error) {
	out := slices.Clone(fields)
	slices.SortStableFunc(out, func(a, b Field) int {
		switch {
		case a.Label.ID < b.Label.ID:
			return -1
		case a.Label.ID > b.Label.ID:
			return 1
		}
		return 0
	})
	labels := make([]Label, len(out))
	for i, f := range out {
		labels[i] = f.Label
	}
	if err := CheckUnique(labels); err != nil {
		return nil, err
	}
	return out, nil
}
