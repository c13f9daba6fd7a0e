package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herhealth/classify"
)

func TestModelDefinitionsFromConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	cfg.Models.Workers = 2
	cfg.Models.Fetal.NEstimators = 40

	risk := cfg.Models.RiskDefinition()
	assert.Equal(t, classify.RiskClassifier, risk.Name)
	assert.Equal(t, "/data/risk.csv", risk.Dataset)
	require.NotNil(t, risk.Grid)
	assert.Equal(t, []int{50}, risk.Grid.NEstimators)
	assert.Equal(t, []int{0, 10}, risk.Grid.MaxDepth)
	assert.Equal(t, int64(42), risk.Seed)
	assert.Equal(t, 2, risk.Workers)
	assert.True(t, risk.EncodeTarget)

	fetal := cfg.Models.FetalDefinition()
	assert.Equal(t, "data/fetal_health.csv", fetal.Dataset)
	assert.Equal(t, 40, fetal.Forest.NEstimators)
	assert.Equal(t, 0.2, fetal.TestRatio)
	assert.Nil(t, fetal.Grid)
}

func TestModelSeedOverride(t *testing.T) {
	cfg := Default()
	cfg.Models.Risk.Seed = 7
	cfg.Models.Fetal.Seed = 7

	assert.Equal(t, int64(7), cfg.Models.RiskDefinition().Seed)
	assert.Equal(t, int64(7), cfg.Models.FetalDefinition().Seed)

	cfg.Models.Risk.Seed = 0
	assert.Equal(t, int64(42), cfg.Models.RiskDefinition().Seed)
}
