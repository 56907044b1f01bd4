package enrich

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config is the waterfall configuration: threshold, total credit cost,
// and the ordered strategy list.
type Config struct {
	ConfidenceThreshold float64          `yaml:"confidence_threshold"`
	CreditCost          int              `yaml:"credit_cost"`
	Strategies          []StrategyConfig `yaml:"strategies"`
}

// StrategyConfig enables or disables one named strategy. Cost is a
// per-strategy accounting placeholder; billing currently charges the flat
// CreditCost per enriched lead.
type StrategyConfig struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
	Cost    int    `yaml:"cost"`
}

// DefaultConfig returns the built-in waterfall: every strategy enabled in
// cheapest-first order, 0.90 threshold, one credit per lead.
func DefaultConfig() *Config {
	return &Config{
		ConfidenceThreshold: 0.90,
		CreditCost:          1,
		Strategies: []StrategyConfig{
			{Name: "pattern_email", Enabled: true, Cost: 0},
			{Name: "kitt", Enabled: true, Cost: 1},
			{Name: "prospeo", Enabled: true, Cost: 1},
			{Name: "leadmagic", Enabled: true, Cost: 1},
			{Name: "dropcontact", Enabled: true, Cost: 1},
			{Name: "ai_owner_lookup", Enabled: true, Cost: 2},
			{Name: "bulk_verify", Enabled: true, Cost: 0},
		},
	}
}

// LoadConfig reads a waterfall config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: read config %s", path)
	}

	// The YAML has a top-level "waterfall" key.
	var wrapper struct {
		Waterfall Config `yaml:"waterfall"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "enrich: parse config %s", path)
	}

	cfg := &wrapper.Waterfall
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = 0.90
	}
	if cfg.CreditCost == 0 {
		cfg.CreditCost = 1
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultConfig().Strategies
	}
	return cfg, nil
}
