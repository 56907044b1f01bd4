package enrich

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen/pkg/identity"
)

const testWaterfallYAML = `
waterfall:
  confidence_threshold: 0.85
  credit_cost: 2
  strategies:
    - name: pattern_email
      enabled: true
    - name: prospeo
      enabled: true
      cost: 1
    - name: ai_owner_lookup
      enabled: false
      cost: 2
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "waterfall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, testWaterfallYAML))
	require.NoError(t, err)

	assert.InDelta(t, 0.85, cfg.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 2, cfg.CreditCost)
	require.Len(t, cfg.Strategies, 3)
	assert.Equal(t, "pattern_email", cfg.Strategies[0].Name)
	assert.False(t, cfg.Strategies[2].Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "waterfall: {}\n"))
	require.NoError(t, err)

	assert.InDelta(t, 0.90, cfg.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 1, cfg.CreditCost)
	assert.Equal(t, DefaultConfig().Strategies, cfg.Strategies)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/waterfall.yaml")
	require.Error(t, err)
}

func TestBuildStrategiesRespectsOrderAndFlags(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, testWaterfallYAML))
	require.NoError(t, err)

	deps := Deps{
		Verifier: &fakeVerifier{},
		Providers: map[string]identity.Client{
			"prospeo": &fakeProvider{name: "prospeo"},
		},
		LLM:      &fakeLLM{},
		LLMModel: "m",
	}
	strategies := BuildStrategies(cfg, deps)

	require.Len(t, strategies, 2)
	assert.Equal(t, "pattern_email", strategies[0].Name())
	assert.Equal(t, "prospeo", strategies[1].Name())
}

func TestBuildStrategiesSkipsMissingProvider(t *testing.T) {
	cfg := DefaultConfig()
	strategies := BuildStrategies(cfg, Deps{Verifier: &fakeVerifier{}})

	// Only pattern_email and bulk_verify have their dependencies.
	require.Len(t, strategies, 2)
	assert.Equal(t, "pattern_email", strategies[0].Name())
	assert.Equal(t, "bulk_verify", strategies[1].Name())
}
