package classify

import (
	"herhealth/ml"
)

const (
	RiskClassifier  = "risk"
	FetalClassifier = "fetal"

	RiskTarget  = "RiskLevel"
	FetalTarget = "fetal_health"
)

const (
	adviceHighRisk = "You are at high risk! Please meet your doctor immediately for a checkup."
	adviceMidRisk  = "You are at moderate risk. It's advised to consult your doctor soon."
	adviceLowRisk  = "You are at low risk. Maintain a healthy lifestyle and monitor regularly."
)

func RiskSchema() Schema {
	return Schema{
		Name: RiskClassifier,
		Features: []Feature{
			{Name: "age", Column: "Age", Min: 10, Max: 100},
			{Name: "systolic_bp", Column: "SystolicBP", Min: 70, Max: 200},
			{Name: "diastolic_bp", Column: "DiastolicBP", Min: 40, Max: 120},
			{Name: "bs", Column: "BS", Min: 3.0, Max: 20.0},
			{Name: "body_temp", Column: "BodyTemp", Min: 95.0, Max: 105.0},
			{Name: "heart_rate", Column: "HeartRate", Min: 40, Max: 180},
		},
	}
}

func FetalSchema() Schema {
	return Schema{
		Name: FetalClassifier,
		Features: []Feature{
			{Name: "baseline_value", Column: "baseline value", Min: 100, Max: 200},
			{Name: "accelerations", Column: "accelerations", Min: 0, Max: 1},
			{Name: "uterine_contractions", Column: "uterine_contractions", Min: 0, Max: 1},
			{Name: "prolongued_decelerations", Column: "prolongued_decelerations", Min: 0, Max: 1},
			Unbounded("mean_value_of_short_term_variability", "mean_value_of_short_term_variability"),
			Unbounded("histogram_mean", "histogram_mean"),
			Unbounded("histogram_variance", "histogram_variance"),
		},
	}
}

func FetalLabels() StaticLabels {
	return StaticLabels{1: "Normal", 2: "Suspect", 3: "Pathological"}
}

// RiskAdvice returns the recommendation shown with a risk level.
func RiskAdvice(label string) string {
	switch label {
	case "high risk":
		return adviceHighRisk
	case "mid risk":
		return adviceMidRisk
	default:
		return adviceLowRisk
	}
}

// RiskDefinition trains on string risk levels with min-max scaling and a
// cross-validated grid search.
func RiskDefinition(dataset string) Definition {
	grid := ml.DefaultParamGrid()
	return Definition{
		Name:         RiskClassifier,
		Dataset:      dataset,
		Schema:       RiskSchema(),
		Target:       RiskTarget,
		EncodeTarget: true,
		Scaler:       ml.ScalerMinMax,
		TestRatio:    0.2,
		Seed:         42,
		Stratify:     true,
		Forest:       ml.DefaultForestParams(),
		Grid:         &grid,
		Folds:        5,
		Advise:       RiskAdvice,
	}
}

// FetalDefinition trains a fixed 100-tree forest on standardized features.
func FetalDefinition(dataset string) Definition {
	return Definition{
		Name:      FetalClassifier,
		Dataset:   dataset,
		Schema:    FetalSchema(),
		Target:    FetalTarget,
		Labels:    FetalLabels(),
		Scaler:    ml.ScalerStandard,
		TestRatio: 0.2,
		Seed:      42,
		Forest:    ml.DefaultForestParams(),
	}
}
