// Package address derives structured components from the free-text
// "Street, City, State Zip" addresses returned by the search provider.
package address

import (
	"regexp"
	"strings"
)

// Components holds the parsed address fields. Any field that cannot be
// determined is left empty.
type Components struct {
	Street string
	Unit   string
	City   string
	State  string
	Zip    string
}

var unitRe = regexp.MustCompile(`(?i)(Apt|Suite|Unit|#)\s*([\w-]+)`)

// Parse decomposes a free-text address. It is best-effort and never fails:
// addresses with fewer than two comma-separated segments yield all-empty
// components.
func Parse(raw string) Components {
	parts := strings.Split(raw, ",")
	if len(parts) < 2 {
		return Components{}
	}

	var c Components
	c.Street = strings.TrimSpace(parts[0])
	c.Unit = extractUnit(c.Street)
	c.City = strings.TrimSpace(parts[len(parts)-2])

	stateZip := strings.Fields(strings.TrimSpace(parts[len(parts)-1]))
	if len(stateZip) >= 1 {
		c.State = stateZip[0]
	}
	if len(stateZip) >= 2 {
		c.Zip = stateZip[1]
	}
	return c
}

// extractUnit pulls an apartment/suite/unit marker out of the street
// segment, e.g. "123 Main St Apt 4B" → "Apt 4B".
func extractUnit(street string) string {
	m := unitRe.FindString(street)
	return m
}
