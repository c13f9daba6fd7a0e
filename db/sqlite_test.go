package db

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "herhealth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPredictionAudit(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.SavePrediction(ctx, Prediction{
		Classifier: "risk", Label: "low risk", Class: 1, Confidence: 0.8,
		Features: map[string]float64{"age": 30}, CreatedAt: base,
	}))
	require.NoError(t, store.SavePrediction(ctx, Prediction{
		Classifier: "risk", Label: "high risk", Class: 0, Confidence: 0.6,
		Features: map[string]float64{"age": 41}, RequestID: "req-2", CreatedAt: base.Add(time.Minute),
	}))
	require.NoError(t, store.SavePrediction(ctx, Prediction{
		Classifier: "fetal", Label: "Normal", Class: 1, Features: map[string]float64{}, CreatedAt: base,
	}))

	got, err := store.RecentPredictions(ctx, "risk", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "high risk", got[0].Label)
	assert.Equal(t, "req-2", got[0].RequestID)
	assert.Equal(t, 41.0, got[0].Features["age"])
	assert.True(t, got[1].CreatedAt.Equal(base))
}

func TestTrainingLog(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveTrainingLog(ctx, TrainingLog{
		ModelName: "fetal", Accuracy: 0.9, Precision: 0.85, Recall: 0.8, TrainedAt: first, DataPoints: 2113,
	}))
	require.NoError(t, store.SaveTrainingLog(ctx, TrainingLog{
		ModelName: "risk", Accuracy: 0.86, TrainedAt: first.Add(time.Second), DataPoints: 452,
		Params: json.RawMessage(`{"n_estimators":200}`),
	}))

	logs, err := store.LoadTrainingLog(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "risk", logs[0].ModelName)
	assert.JSONEq(t, `{"n_estimators":200}`, string(logs[0].Params))
	assert.Equal(t, 2113, logs[1].DataPoints)
	assert.Nil(t, logs[1].Params)
}

func TestAlerts(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	assert.Error(t, store.SaveAlert(ctx, Alert{}))

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, store.SaveAlert(ctx, Alert{
			AlertID: id, Latitude: 12.97, Longitude: 77.59, Recipients: 2,
			Simulated: i == 0, AllDelivered: i == 2,
			Results:   json.RawMessage(`[{"contact":"+911234567890","status":"delivered"}]`),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	assert.Error(t, store.SaveAlert(ctx, Alert{AlertID: "a1"}), "alert ids are unique")

	alerts, err := store.RecentAlerts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "a3", alerts[0].AlertID)
	assert.True(t, alerts[0].AllDelivered)
	assert.False(t, alerts[0].Simulated)
	assert.Equal(t, 77.59, alerts[1].Longitude)
	assert.Contains(t, string(alerts[0].Results), "delivered")
}
