package http

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"herhealth/classify"
	"herhealth/db"
	"herhealth/geo"
	"herhealth/llm"
	"herhealth/messaging"
	"herhealth/ml"
	"herhealth/monitoring"
	"herhealth/weather"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func riskService(t *testing.T) *classify.Service {
	t.Helper()
	rnd := rand.New(rand.NewSource(3))
	var b strings.Builder
	b.WriteString("Age,SystolicBP,DiastolicBP,BS,BodyTemp,HeartRate,RiskLevel\n")
	for i := 0; i < 150; i++ {
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
	def := classify.RiskDefinition(writeCSV(t, "risk.csv", b.String()))
	def.Grid = &ml.ParamGrid{NEstimators: []int{10}, MaxDepth: []int{0}, MinSamplesSplit: []int{2}}
	def.Folds = 3
	return classify.NewService(def)
}

func fetalService(t *testing.T) *classify.Service {
	t.Helper()
	rnd := rand.New(rand.NewSource(5))
	var b strings.Builder
	b.WriteString("baseline value,accelerations,uterine_contractions,prolongued_decelerations,")
	b.WriteString("mean_value_of_short_term_variability,histogram_mean,histogram_variance,fetal_health\n")
	for i := 0; i < 150; i++ {
		variability := 0.2 + rnd.Float64()*4
		variance := rnd.Float64() * 200
		class := 1
		switch {
		case variability < 1:
			class = 3
		case variance > 120:
			class = 2
		}
		fmt.Fprintf(&b, "%d,%.3f,%.3f,%.3f,%.2f,%d,%.1f,%d.0\n",
			110+rnd.Intn(50), rnd.Float64()*0.02, rnd.Float64()*0.015,
			rnd.Float64()*0.005, variability, 70+rnd.Intn(110), variance, class)
	}
	def := classify.FetalDefinition(writeCSV(t, "fetal.csv", b.String()))
	def.Forest.NEstimators = 10
	return classify.NewService(def)
}

func readyService(t *testing.T, svc *classify.Service) *classify.Service {
	t.Helper()
	require.NoError(t, svc.Initialize(context.Background()))
	return svc
}

func openStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// newTestAPI wires both classifiers as ready, a sqlite store, a simulated
// dispatcher and in-memory collaborators.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	api := NewAPI(readyService(t, riskService(t)), readyService(t, fetalService(t)))
	api.Store = openStore(t)
	api.SOS = messaging.NewDispatcher(nil, messaging.Options{})
	api.Chat = &fakeChat{}
	api.Weather = fakeWeather{}
	api.Geo = fakeGeo{}
	api.Metrics = monitoring.NewMetricsCollector()
	return api
}

type fakeChat struct {
	questions []string
	err       error
}

func (f *fakeChat) Ask(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", llm.ErrEmptyQuestion
	}
	if f.err != nil {
		return "", f.err
	}
	f.questions = append(f.questions, question)
	return "Drink plenty of water.", nil
}

type fakeWeather struct{}

func (fakeWeather) Current(ctx context.Context, city string) (weather.Report, error) {
	switch strings.ToLower(city) {
	case "mumbai":
		return weather.Report{City: "Mumbai", Condition: "Light Rain", Temperature: 28.5}, nil
	case "atlantis":
		return weather.Report{}, errors.Wrap(weather.ErrCityNotFound, city)
	default:
		return weather.Report{}, errors.New("upstream exploded")
	}
}

type fakeGeo struct{}

func (fakeGeo) Geocode(ctx context.Context, address string) (geo.Location, error) {
	if strings.Contains(strings.ToLower(address), "bengaluru") {
		return geo.Location{Latitude: 12.9716, Longitude: 77.5946, DisplayName: "Bengaluru, Karnataka, India"}, nil
	}
	return geo.Location{}, geo.ErrNotFound
}
