// Package enrich resolves a lead's owner and contact details by running an
// ordered waterfall of strategies, cheapest first, until one produces a
// high-confidence owner with a verified email.
package enrich

import (
	"context"

	"github.com/sells-group/leadgen/internal/model"
)

// Outcome is what one strategy contributes. Empty fields mean "found
// nothing for that field"; the orchestrator merges non-empty fields into
// the lead.
type Outcome struct {
	OwnerName     string
	Confidence    float64
	Reasoning     string
	Steps         []string
	Source        string
	Email         string
	EmailVerified bool
	LinkedInURL   string
	FacebookURL   string
	InstagramURL  string
}

// Empty reports whether the strategy contributed nothing.
func (o Outcome) Empty() bool {
	return o.OwnerName == "" && o.Email == "" && !o.EmailVerified &&
		o.LinkedInURL == "" && o.FacebookURL == "" && o.InstagramURL == "" &&
		len(o.Steps) == 0
}

// Strategy is one step of the enrichment waterfall. Attempt inspects the
// lead's current state and returns whatever it could find. Errors are
// caught by the orchestrator and treated as "found nothing"; they never
// abort the waterfall.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, lead *model.Lead) (Outcome, error)
}
