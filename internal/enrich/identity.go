package enrich

import (
	"context"
	"fmt"

	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/pkg/identity"
	"github.com/sells-group/leadgen/pkg/millionverifier"
)

// identityStrategy wraps one identity-resolution provider. Any email the
// provider returns is verified before it counts toward completion.
type identityStrategy struct {
	client   identity.Client
	verifier millionverifier.Client
}

// NewIdentityStrategy creates a waterfall step backed by an identity
// provider (kitt, prospeo, leadmagic, dropcontact).
func NewIdentityStrategy(client identity.Client, verifier millionverifier.Client) Strategy {
	return &identityStrategy{client: client, verifier: verifier}
}

func (s *identityStrategy) Name() string { return s.client.Name() }

func (s *identityStrategy) Attempt(ctx context.Context, lead *model.Lead) (Outcome, error) {
	person, err := s.client.Lookup(ctx, identity.LookupRequest{
		Domain:       domainOf(lead.Website),
		BusinessName: lead.BusinessName,
		Location:     lead.Address,
	})
	if err != nil {
		return Outcome{}, err
	}
	if person == nil {
		return Outcome{}, nil
	}

	out := Outcome{
		OwnerName:    person.FullName,
		Confidence:   person.Confidence,
		Source:       s.Name(),
		Email:        person.Email,
		LinkedInURL:  person.LinkedInURL,
		FacebookURL:  person.FacebookURL,
		InstagramURL: person.InstagramURL,
		Steps:        []string{fmt.Sprintf("%s lookup matched %q", s.Name(), person.FullName)},
	}

	if person.Email != "" && s.verifier != nil {
		verified, err := s.verifier.Verify(ctx, person.Email)
		if err != nil {
			return Outcome{}, err
		}
		out.EmailVerified = verified
	}
	return out, nil
}
