// Package textnorm holds the string transforms shared by the extractor, the
// team resolver and the reconciliation keys.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TitleCase lower-cases s, then upper-cases the first letter of every
// space-separated token. Case folds use the simple Unicode mappings.
func TitleCase(s string) string {
	tokens := strings.Split(strings.Map(unicode.ToLower, s), " ")
	for i, tok := range tokens {
		r, size := utf8.DecodeRuneInString(tok)
		if size == 0 {
			continue
		}
		tokens[i] = string(unicode.ToUpper(r)) + tok[size:]
	}
	return strings.Join(tokens, " ")
}

// NormalizeTeamName folds a team name into its comparison form: trimmed,
// upper-cased, stripped of diacritics, single-spaced.
// NormalizeTeamName(NormalizeTeamName(s)) == NormalizeTeamName(s).
func NormalizeTeamName(s string) string {
	s = strings.ToUpper(stripMarks(s))
	return strings.Join(strings.Fields(s), " ")
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Slug renders a name as a lower-case, dash-separated identifier fragment.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(NormalizeTeamName(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
