package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/pkg/millionverifier"
)

// patternEmailStrategy guesses common mailbox shapes from the owner's name
// and the lead's website domain, then verifies each guess. It costs no
// provider credits, so it runs first.
type patternEmailStrategy struct {
	verifier millionverifier.Client
}

// NewPatternEmailStrategy creates the pattern-guess email strategy.
func NewPatternEmailStrategy(verifier millionverifier.Client) Strategy {
	return &patternEmailStrategy{verifier: verifier}
}

func (s *patternEmailStrategy) Name() string { return "pattern_email" }

func (s *patternEmailStrategy) Attempt(ctx context.Context, lead *model.Lead) (Outcome, error) {
	if lead.OwnerName == "" || lead.Website == "" {
		return Outcome{}, nil
	}

	first, last := splitName(lead.OwnerName)
	domain := domainOf(lead.Website)
	if domain == "" {
		return Outcome{}, nil
	}

	for _, email := range GenerateEmailPatterns(first, last, domain) {
		verified, err := s.verifier.Verify(ctx, email)
		if err != nil {
			return Outcome{}, err
		}
		if verified {
			return Outcome{
				Email:         email,
				EmailVerified: true,
				Source:        s.Name(),
				Steps:         []string{fmt.Sprintf("verified pattern-guessed email %s", email)},
			}, nil
		}
	}
	return Outcome{}, nil
}

// GenerateEmailPatterns returns candidate mailboxes for a person at a
// domain, most common shape first. Patterns needing a missing name part
// are skipped.
func GenerateEmailPatterns(firstName, lastName, domain string) []string {
	f := normalizeName(firstName)
	l := normalizeName(lastName)

	var patterns []string
	add := func(local string) {
		patterns = append(patterns, local+"@"+domain)
	}

	switch {
	case f != "" && l != "":
		add(f + "." + l)
		add(f + l)
		add(f[:1] + l)
		add(f)
		add(l)
		add(l + f[:1])
		add(f[:1] + "." + l)
		add(f + l[:1])
	case f != "":
		add(f)
	case l != "":
		add(l)
	}
	return patterns
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	first = parts[0]
	last = strings.Join(parts[1:], " ")
	return first, last
}

func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// domainOf strips the scheme and any path from a website value.
func domainOf(website string) string {
	d := strings.TrimPrefix(website, "https://")
	d = strings.TrimPrefix(d, "http://")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return strings.ToLower(d)
}
