package enrich

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/pkg/anthropic"
	"github.com/sells-group/leadgen/pkg/identity"
	"github.com/sells-group/leadgen/pkg/millionverifier"
)

// LeadStore is the slice of the store the orchestrator needs.
type LeadStore interface {
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	SetLeadEnrichmentStatus(ctx context.Context, leadID string, status model.EnrichmentStatus) error
	UpdateLeadEnrichment(ctx context.Context, lead *model.Lead) error
}

// CreditLedger meters enrichment. Its decrement must be atomic at the
// store level so concurrent enrichments for one user cannot lose updates.
type CreditLedger interface {
	DeductCredits(ctx context.Context, userID string, amount int) error
}

// StrategyError wraps one strategy's internal failure. The orchestrator
// catches it, logs it, and moves on to the next strategy.
type StrategyError struct {
	Strategy string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("enrichment strategy %s: %v", e.Strategy, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

// Orchestrator drives one lead through the waterfall.
type Orchestrator struct {
	leads      LeadStore
	ledger     CreditLedger
	strategies []Strategy
	threshold  float64
	cost       int
}

// NewOrchestrator builds an orchestrator over an explicit strategy list.
func NewOrchestrator(leads LeadStore, ledger CreditLedger, strategies []Strategy, cfg *Config) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Orchestrator{
		leads:      leads,
		ledger:     ledger,
		strategies: strategies,
		threshold:  cfg.ConfidenceThreshold,
		cost:       cfg.CreditCost,
	}
}

// Deps bundles the provider clients the built-in strategies need.
type Deps struct {
	Verifier  millionverifier.Client
	Providers map[string]identity.Client
	LLM       anthropic.Client
	LLMModel  string
}

// BuildStrategies assembles the configured waterfall in order. Strategy
// names without a matching dependency are skipped.
func BuildStrategies(cfg *Config, deps Deps) []Strategy {
	var out []Strategy
	for _, sc := range cfg.Strategies {
		if !sc.Enabled {
			continue
		}
		switch sc.Name {
		case "pattern_email":
			if deps.Verifier != nil {
				out = append(out, NewPatternEmailStrategy(deps.Verifier))
			}
		case "ai_owner_lookup":
			if deps.LLM != nil {
				out = append(out, NewAIOwnerStrategy(deps.LLM, deps.LLMModel))
			}
		case "bulk_verify":
			if deps.Verifier != nil {
				out = append(out, NewBulkVerifyStrategy(deps.Verifier))
			}
		default:
			if client, ok := deps.Providers[sc.Name]; ok {
				out = append(out, NewIdentityStrategy(client, deps.Verifier))
			} else {
				zap.L().Warn("enrich: no provider for configured strategy",
					zap.String("strategy", sc.Name))
			}
		}
	}
	return out
}

// complete is the waterfall's stop condition: a named owner with a
// verified email at or above the confidence threshold.
func (o *Orchestrator) complete(lead *model.Lead) bool {
	return lead.OwnerName != "" && lead.EmailVerified && lead.OwnerConfidence >= o.threshold
}

// EnrichLead runs the waterfall for one lead and returns its final state.
//
// A lead that already satisfies the stop condition is returned untouched:
// no strategy runs and no credit is charged, so retries never double-bill.
// Per-strategy failures are swallowed and the waterfall continues; only a
// persistence failure or context cancellation marks the lead failed.
func (o *Orchestrator) EnrichLead(ctx context.Context, leadID string) (*model.Lead, error) {
	lead, err := o.leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("component", "enrich"),
		zap.String("lead_id", lead.ID),
		zap.String("business", lead.BusinessName),
	)

	if o.complete(lead) {
		log.Debug("lead already enriched, skipping")
		return lead, nil
	}

	if err := o.leads.SetLeadEnrichmentStatus(ctx, lead.ID, model.EnrichmentInProgress); err != nil {
		return nil, err
	}
	lead.EnrichmentStatus = model.EnrichmentInProgress

	for _, strategy := range o.strategies {
		if ctx.Err() != nil {
			return nil, o.fail(ctx, lead, log, eris.Wrap(ctx.Err(), "enrich: cancelled"))
		}

		outcome, err := strategy.Attempt(ctx, lead)
		if err != nil {
			serr := &StrategyError{Strategy: strategy.Name(), Err: err}
			log.Warn("strategy failed, continuing waterfall",
				zap.String("strategy", strategy.Name()),
				zap.Error(serr),
			)
			continue
		}
		if outcome.Empty() {
			continue
		}

		o.merge(lead, outcome)
		log.Debug("strategy contributed",
			zap.String("strategy", strategy.Name()),
			zap.Float64("confidence", lead.OwnerConfidence),
			zap.Bool("email_verified", lead.EmailVerified),
		)

		if o.complete(lead) {
			log.Info("enrichment complete",
				zap.String("source", lead.OwnerSource),
				zap.Float64("confidence", lead.OwnerConfidence),
			)
			break
		}
	}

	// Low confidence is still "enriched": failed is reserved for errors
	// that escape the whole sequence.
	lead.EnrichmentStatus = model.EnrichmentEnriched
	if err := o.leads.UpdateLeadEnrichment(ctx, lead); err != nil {
		return nil, o.fail(ctx, lead, log, err)
	}

	if err := o.ledger.DeductCredits(ctx, lead.UserID, o.cost); err != nil {
		log.Warn("credit deduction failed after enrichment",
			zap.String("user_id", lead.UserID),
			zap.Error(err),
		)
	}
	return lead, nil
}

func (o *Orchestrator) fail(ctx context.Context, lead *model.Lead, log *zap.Logger, cause error) error {
	lead.EnrichmentStatus = model.EnrichmentFailed
	if err := o.leads.SetLeadEnrichmentStatus(context.WithoutCancel(ctx), lead.ID, model.EnrichmentFailed); err != nil {
		log.Error("failed to record enrichment failure", zap.Error(err))
	}
	return cause
}

// merge folds one strategy's outcome into the lead. An owner claim only
// replaces an existing one when it is more confident; contact and social
// fields fill empty slots; steps accumulate for audit.
func (o *Orchestrator) merge(lead *model.Lead, out Outcome) {
	if out.OwnerName != "" && (lead.OwnerName == "" || out.Confidence > lead.OwnerConfidence) {
		lead.OwnerName = out.OwnerName
		lead.OwnerConfidence = out.Confidence
		lead.OwnerSource = out.Source
		if out.Reasoning != "" {
			lead.OwnerReasoning = out.Reasoning
		}
	} else if out.Reasoning != "" && lead.OwnerReasoning == "" {
		lead.OwnerReasoning = out.Reasoning
	}

	if out.Email != "" && (lead.Email == "" || (out.EmailVerified && !lead.EmailVerified)) {
		lead.Email = out.Email
		lead.EmailVerified = out.EmailVerified
	} else if out.EmailVerified && out.Email == lead.Email {
		lead.EmailVerified = true
	}

	if lead.LinkedInURL == "" {
		lead.LinkedInURL = out.LinkedInURL
	}
	if lead.FacebookURL == "" {
		lead.FacebookURL = out.FacebookURL
	}
	if lead.InstagramURL == "" {
		lead.InstagramURL = out.InstagramURL
	}
	lead.OwnerSteps = append(lead.OwnerSteps, out.Steps...)
}
