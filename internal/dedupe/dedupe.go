// Package dedupe collapses the raw listings scraped for one location into a
// unique set, keyed by business identity.
package dedupe

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/leadgen/internal/model"
)

// stripDiacritics removes combining marks so "Café" and "Cafe" produce the
// same identity key.
var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Key returns the identity key for a record: normalized website if present,
// else normalized phone, else business name + "|" + raw address.
func Key(rec model.CanonicalRecord) string {
	if w := NormalizeWebsite(rec.Website); w != "" {
		return w
	}
	if p := NormalizePhone(rec.Phone); p != "" {
		return p
	}
	return foldText(rec.BusinessName) + "|" + foldText(rec.Address)
}

// Records returns one record per distinct identity key, preserving
// first-occurrence order. Later records with a colliding key are discarded.
func Records(records []model.CanonicalRecord) []model.CanonicalRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]model.CanonicalRecord, 0, len(records))
	for _, rec := range records {
		k := Key(rec)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// NormalizeWebsite lowercases the host, strips the scheme, a leading
// "www.", and any trailing slash. Returns "" for empty input.
func NormalizeWebsite(website string) string {
	w := strings.TrimSpace(strings.ToLower(website))
	if w == "" {
		return ""
	}
	w = strings.TrimPrefix(w, "https://")
	w = strings.TrimPrefix(w, "http://")
	w = strings.TrimPrefix(w, "www.")
	w = strings.TrimSuffix(w, "/")
	return w
}

// NormalizePhone keeps digits only and drops the leading 1 from 11-digit
// NANP numbers. Returns "" when no digits remain.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}

func foldText(s string) string {
	folded, _, err := transform.String(stripDiacritics, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
