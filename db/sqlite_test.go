package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTrainingLogRoundTrip(t *testing.T) {
	store := openTestStore(t)
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	require.NoError(t, store.SaveTrainingRun([]TrainingLog{
		{RunID: "a", ModelName: "SVM", Accuracy: 0.8, F1: 0.7, TrainedAt: older, DataPoints: 10},
	}))
	require.NoError(t, store.SaveTrainingRun([]TrainingLog{
		{RunID: "b", ModelName: "MLP", Accuracy: 0.9, F1: 0.85, Best: true, TrainedAt: newer, DataPoints: 10},
		{RunID: "b", ModelName: "Naive Bayes", Accuracy: 0.7, F1: 0.6, TrainedAt: newer, DataPoints: 10},
	}))

	logs, err := store.LoadTrainingLog(0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "MLP", logs[0].ModelName)
	assert.True(t, logs[0].Best)
	assert.False(t, logs[1].Best)
	assert.Equal(t, "SVM", logs[2].ModelName)
	assert.True(t, logs[2].TrainedAt.Equal(older))

	limited, err := store.LoadTrainingLog(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSaveTrainingRunRequiresIDs(t *testing.T) {
	store := openTestStore(t)
	err := store.SaveTrainingRun([]TrainingLog{{ModelName: "SVM"}})
	require.Error(t, err)

	logs, err := store.LoadTrainingLog(0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestPredictionsRoundTrip(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SavePredictions(nil))
	require.NoError(t, store.SavePredictions([]PredictionLog{
		{ModelName: "SVM", Label: 1, Confidence: 82, Input: `{"age":63}`},
		{ModelName: "Decision Tree", Label: 0, Confidence: 100},
	}))

	predictions, err := store.LoadPredictions(10)
	require.NoError(t, err)
	require.Len(t, predictions, 2)
	assert.Equal(t, "SVM", predictions[0].ModelName)
	assert.Equal(t, 82, predictions[0].Confidence)
	assert.Equal(t, `{"age":63}`, predictions[0].Input)
	assert.False(t, predictions[1].CreatedAt.IsZero())
}
