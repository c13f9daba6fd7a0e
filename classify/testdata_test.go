package classify

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"herhealth/ml"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// riskDataset labels rows by systolic pressure and blood sugar so the
// classes are learnable.
func riskDataset(t *testing.T, rows int) string {
	t.Helper()
	rnd := rand.New(rand.NewSource(7))
	var b strings.Builder
	b.WriteString("Age,SystolicBP,DiastolicBP,BS,BodyTemp,HeartRate,RiskLevel\n")
	for i := 0; i < rows; i++ {
		systolic := 90 + rnd.Intn(90)
		bs := 6 + rnd.Float64()*9
		label := "low risk"
		switch {
		case systolic >= 150:
			label = "high risk"
		case bs >= 11:
			label = "mid risk"
		}
		fmt.Fprintf(&b, "%d,%d,%d,%.1f,%.1f,%d,%s\n",
			15+rnd.Intn(35), systolic, 60+rnd.Intn(50), bs, 97+rnd.Float64()*5, 60+rnd.Intn(40), label)
	}
	return writeCSV(t, "maternal_health_risk.csv", b.String())
}

func fetalDataset(t *testing.T, rows int) string {
	t.Helper()
	rnd := rand.New(rand.NewSource(11))
	var b strings.Builder
	b.WriteString("baseline value,accelerations,uterine_contractions,fetal_movement,prolongued_decelerations,")
	b.WriteString("mean_value_of_short_term_variability,histogram_mean,histogram_variance,fetal_health\n")
	for i := 0; i < rows; i++ {
		variability := 0.2 + rnd.Float64()*4
		variance := rnd.Float64() * 200
		class := 1
		switch {
		case variability < 1:
			class = 3
		case variance > 120:
			class = 2
		}
		fmt.Fprintf(&b, "%d,%.3f,%.3f,%.3f,%.3f,%.2f,%d,%.1f,%d.0\n",
			110+rnd.Intn(50), rnd.Float64()*0.02, rnd.Float64()*0.015, rnd.Float64()*0.4,
			rnd.Float64()*0.005, variability, 70+rnd.Intn(110), variance, class)
	}
	return writeCSV(t, "fetal_health.csv", b.String())
}

// quickRisk keeps the risk definition but shrinks the grid.
func quickRisk(dataset string) Definition {
	def := RiskDefinition(dataset)
	def.Grid = &ml.ParamGrid{
		NEstimators:     []int{10},
		MaxDepth:        []int{0, 5},
		MinSamplesSplit: []int{2},
	}
	def.Folds = 3
	return def
}

func quickFetal(dataset string) Definition {
	def := FetalDefinition(dataset)
	def.Forest.NEstimators = 20
	return def
}
