package aggregate

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/nicktill/techboard/pkg/record"
)

// absent lists spellings that mean "no value" once trimmed, compared
// case-insensitively. They leak in from client-side serialization.
var absent = map[string]bool{
	"":          true,
	"null":      true,
	"undefined": true,
}

// Normalize trims v and reports whether it carries a value. The result keeps
// its case; it is only composed to NFC so visually equal keys compare equal.
func Normalize(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if absent[strings.ToLower(v)] {
		return "", false
	}
	return norm.NFC.String(v), true
}

// Value reads and normalizes one column of row.
func Value(row record.Row, column string) (string, bool) {
	raw, ok := row.Text(column)
	if !ok {
		return "", false
	}
	return Normalize(raw)
}

// Fold returns the caseless form used for category matching.
func Fold(v string) string {
	return cases.Fold().String(v)
}
