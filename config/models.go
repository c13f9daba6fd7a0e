package config

import (
	"herhealth/classify"
)

// RiskDefinition applies the configured overrides to the built-in risk
// classifier. Zero values keep the built-in settings.
func (m ModelsConfig) RiskDefinition() classify.Definition {
	def := classify.RiskDefinition(m.Risk.Dataset)
	if m.Risk.Seed != 0 {
		def.Seed = m.Risk.Seed
	}
	if m.Risk.TestRatio > 0 {
		def.TestRatio = m.Risk.TestRatio
	}
	if m.Risk.Folds > 0 {
		def.Folds = m.Risk.Folds
	}
	if len(m.Risk.Grid.NEstimators)+len(m.Risk.Grid.MaxDepth)+len(m.Risk.Grid.MinSamplesSplit) > 0 {
		grid := m.Risk.Grid
		def.Grid = &grid
	}
	def.Workers = m.Workers
	return def
}

func (m ModelsConfig) FetalDefinition() classify.Definition {
	def := classify.FetalDefinition(m.Fetal.Dataset)
	if m.Fetal.Seed != 0 {
		def.Seed = m.Fetal.Seed
	}
	if m.Fetal.TestRatio > 0 {
		def.TestRatio = m.Fetal.TestRatio
	}
	if m.Fetal.NEstimators > 0 {
		def.Forest.NEstimators = m.Fetal.NEstimators
	}
	def.Workers = m.Workers
	return def
}
