package textnorm

import (
	"strconv"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// Fold transliterates s to ASCII and lowercases it so that titles exported
// with different accents or casing ("Trailer", "TRAILER", "Träiler") compare
// equal. Whitespace and punctuation are kept because prefix rules depend on them.
func Fold(s string) string {
	return strings.ToLower(unidecode.Unidecode(s))
}

// ContainsAny reports whether the folded title contains any folded needle.
func ContainsAny(title string, needles []string) bool {
	folded := Fold(title)
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(folded, Fold(n)) {
			return true
		}
	}
	return false
}

// HasAnyPrefix reports whether the folded title starts with any folded prefix.
func HasAnyPrefix(title string, prefixes []string) bool {
	folded := Fold(title)
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if strings.HasPrefix(folded, Fold(p)) {
			return true
		}
	}
	return false
}

// NumericFirstWord reports whether the first space-delimited word of the
// title parses as an integer. Playout exports use such titles for
// commercial breaks and buffer loops ("0815 PUFFER").
func NumericFirstWord(title string) bool {
	first, _, _ := strings.Cut(title, " ")
	if first == "" {
		return false
	}
	_, err := strconv.ParseInt(first, 10, 64)
	return err == nil
}
