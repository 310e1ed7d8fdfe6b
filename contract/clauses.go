package contract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	dottedClause   = regexp.MustCompile(`\b([1-9]\d?(?:\.\d{1,3}){1,3})\b`)
	prefixedClause = regexp.MustCompile(`(?i)\b(?:sub-?clause|clause|cl\.)\s*([1-9]\d?)\b`)
)

// ExtractClauseNumbers returns clause-shaped tokens ("14.1", "8.1.2",
// "Clause 20") found in text, normalized and de-duplicated in order of first
// appearance. Amounts, percentages and decimals below 1 are skipped.
func ExtractClauseNumbers(text string) []string {
	type hit struct {
		pos   int
		value string
	}
	var hits []hit

	for _, m := range dottedClause.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if start > 0 {
			if prev, _ := utf8.DecodeLastRuneInString(text[:start]); strings.ContainsRune(",.$€£", prev) {
				continue
			}
		}
		if end < len(text) && (text[end] == '%' || text[end] == ',') {
			continue
		}
		hits = append(hits, hit{pos: start, value: text[start:end]})
	}
	for _, m := range prefixedClause.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if end < len(text) && text[end] == '.' && end+1 < len(text) && text[end+1] >= '0' && text[end+1] <= '9' {
			continue
		}
		hits = append(hits, hit{pos: start, value: text[start:end]})
	}

	// Stable insertion sort by position; inputs are short.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		n := NormalizeClause(h.value)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
