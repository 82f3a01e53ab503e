package identity

import (
	"fmt"
	"sort"
	"strings"
)

// Normalize canonicalizes a field before hashing or comparison:
// trimmed, lowercased, with the tuple separator stripped.
func Normalize(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	return strings.ReplaceAll(s, fieldSep, "")
}

// Slugify converts an arbitrary display name into a stable slug, e.g.
// "Blue Cross / Blue Shield of TX" -> "blue-cross-blue-shield-of-tx".
func Slugify(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// NormalizeYearMonth validates and canonicalizes a reporting period to
// YYYY-MM. It accepts YYYY-MM, YYYY-MM-DD, slash-separated variants, and
// compact YYYYMM; a trailing day component is dropped.
func NormalizeYearMonth(s string) (string, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "/", "-")
	if len(s) == 6 && allDigits(s) {
		s = s[:4] + "-" + s[4:]
	}

	parts := strings.Split(s, "-")
	if len(parts) != 2 && len(parts) != 3 {
		return "", fmt.Errorf("invalid year_month %q", s)
	}
	if len(parts[0]) != 4 || !allDigits(parts[0]) {
		return "", fmt.Errorf("invalid year in year_month %q", s)
	}
	if len(parts[1]) < 1 || len(parts[1]) > 2 || !allDigits(parts[1]) {
		return "", fmt.Errorf("invalid month in year_month %q", s)
	}

	var year, month int
	fmt.Sscanf(parts[0], "%d", &year)
	fmt.Sscanf(parts[1], "%d", &month)
	if year < 2000 || year > 2100 || month < 1 || month > 12 {
		return "", fmt.Errorf("year_month %q out of range", s)
	}
	return fmt.Sprintf("%04d-%02d", year, month), nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// SplitYearMonth splits a normalized YYYY-MM period into its year and
// month components.
func SplitYearMonth(ym string) (year, month string) {
	if len(ym) >= 7 {
		return ym[:4], ym[5:7]
	}
	return "", ""
}

// NormalizeServiceCodes canonicalizes a place-of-service code list:
// trimmed, zero-padded to two digits where numeric, deduplicated, sorted.
func NormalizeServiceCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if len(c) == 1 && c[0] >= '0' && c[0] <= '9' {
			c = "0" + c
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
