package store

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// wordRegex matches runs of Unicode letters, digits and underscore.
var wordRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Tokenize NFKC-normalizes and lowercases text, then splits it into
// word tokens. Full-width digits and ligatures fold to their plain forms,
// so "ＲＴＸ４０８０" and "rtx4080" tokenize identically.
func Tokenize(text string) []string {
	return wordRegex.FindAllString(Fold(text), -1)
}

// Fold applies the normalization Tokenize uses before splitting.
func Fold(text string) string {
	return strings.ToLower(norm.NFKC.String(text))
}
