package enrich

import (
	"context"
	"fmt"

	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/pkg/millionverifier"
)

// bulkVerifyStrategy is the final sweep: if earlier strategies collected an
// email without managing to verify it, check it once more.
type bulkVerifyStrategy struct {
	verifier millionverifier.Client
}

// NewBulkVerifyStrategy creates the closing verification sweep.
func NewBulkVerifyStrategy(verifier millionverifier.Client) Strategy {
	return &bulkVerifyStrategy{verifier: verifier}
}

func (s *bulkVerifyStrategy) Name() string { return "bulk_verify" }

func (s *bulkVerifyStrategy) Attempt(ctx context.Context, lead *model.Lead) (Outcome, error) {
	if lead.Email == "" || lead.EmailVerified {
		return Outcome{}, nil
	}

	results, err := s.verifier.VerifyAll(ctx, []string{lead.Email})
	if err != nil {
		return Outcome{}, err
	}
	if !results[lead.Email] {
		return Outcome{}, nil
	}
	return Outcome{
		Email:         lead.Email,
		EmailVerified: true,
		Source:        s.Name(),
		Steps:         []string{fmt.Sprintf("bulk verification confirmed %s", lead.Email)},
	}, nil
}
