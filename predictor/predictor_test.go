package predictor

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardioml/config"
	"cardioml/dataset"
	"cardioml/db"
	"cardioml/ml"
	"cardioml/trainer"
)

func syntheticHeart(n int, seed int64) *dataset.Dataset {
	rnd := rand.New(rand.NewSource(seed))
	names := ml.FeatureNames()
	data := &dataset.Dataset{FeatureNames: names}
	for i := 0; i < n; i++ {
		label := i % 2
		row := make([]float64, len(names))
		for j := range row {
			row[j] = float64(10*j) + 1.5*float64(label) + rnd.NormFloat64()
		}
		data.Features = append(data.Features, row)
		data.Labels = append(data.Labels, label)
	}
	return data
}

func setup(t *testing.T) (*config.Config, *trainer.Trainer) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Dataset.Path = filepath.Join(dir, "heart.csv")
	cfg.Artifacts.Dir = filepath.Join(dir, "models")
	cfg.Models.RandomForest.NumTrees = 10
	cfg.Models.MLP.MaxIter = 200
	require.NoError(t, dataset.Write(cfg.Dataset.Path, syntheticHeart(80, 1)))
	return &cfg, trainer.New(&cfg, nil)
}

func positiveRecord() map[string]float64 {
	record := make(map[string]float64)
	for j, name := range ml.FeatureNames() {
		record[name] = float64(10*j) + 1.5
	}
	return record
}

func TestPredictTrainsWhenMissing(t *testing.T) {
	cfg, tr := setup(t)
	predictor, err := New(cfg, tr, nil)
	require.NoError(t, err)
	require.False(t, tr.Trained())

	predictions, err := predictor.Predict(context.Background(), positiveRecord())
	require.NoError(t, err)
	assert.True(t, tr.Trained())

	require.Len(t, predictions, len(ml.Variants()))
	for _, variant := range ml.Variants() {
		prediction, ok := predictions[variant.String()]
		require.True(t, ok, variant.String())
		assert.GreaterOrEqual(t, prediction.Confidence, 0)
		assert.LessOrEqual(t, prediction.Confidence, 100)
	}
}

func TestPredictIsStableAcrossCalls(t *testing.T) {
	cfg, tr := setup(t)
	predictor, err := New(cfg, tr, nil)
	require.NoError(t, err)

	first, err := predictor.Predict(context.Background(), positiveRecord())
	require.NoError(t, err)
	second, err := predictor.Predict(context.Background(), positiveRecord())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// a fresh predictor reads the same artifacts from disk
	fresh, err := New(cfg, tr, nil)
	require.NoError(t, err)
	third, err := fresh.Predict(context.Background(), positiveRecord())
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestPredictMissingField(t *testing.T) {
	cfg, tr := setup(t)
	predictor, err := New(cfg, tr, nil)
	require.NoError(t, err)

	record := positiveRecord()
	delete(record, "thal")
	_, err = predictor.Predict(context.Background(), record)
	require.ErrorIs(t, err, ml.ErrMissingFeature)
	assert.Contains(t, err.Error(), "thal")
}

func TestPredictDefaultConfidenceWithoutProbabilities(t *testing.T) {
	cfg, tr := setup(t)
	cfg.Models.SVM.Probability = false
	cfg.Predictor.DefaultConfidence = 75
	predictor, err := New(cfg, tr, nil)
	require.NoError(t, err)

	predictions, err := predictor.Predict(context.Background(), positiveRecord())
	require.NoError(t, err)
	assert.Equal(t, 75, predictions["SVM"].Confidence)
}

func TestPredictOnlyListedModels(t *testing.T) {
	cfg, tr := setup(t)
	comparison, err := tr.Train(context.Background())
	require.NoError(t, err)

	delete(comparison.Results, "MLP")
	require.NoError(t, comparison.Save(tr.ComparisonPath()))

	predictor, err := New(cfg, tr, nil)
	require.NoError(t, err)
	predictions, err := predictor.Predict(context.Background(), positiveRecord())
	require.NoError(t, err)
	assert.Len(t, predictions, len(ml.Variants())-1)
	assert.NotContains(t, predictions, "MLP")
}

func TestPredictCorruptArtifact(t *testing.T) {
	cfg, tr := setup(t)
	_, err := tr.Train(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(trainer.ModelPath(cfg.Artifacts.Dir, ml.VariantSVM), []byte("{"), 0o600))

	predictor, err := New(cfg, tr, nil)
	require.NoError(t, err)
	_, err = predictor.Predict(context.Background(), positiveRecord())
	assert.Error(t, err)
}

func TestPredictDatasetLoadFailure(t *testing.T) {
	cfg, tr := setup(t)
	require.NoError(t, os.Remove(cfg.Dataset.Path))

	predictor, err := New(cfg, tr, nil)
	require.NoError(t, err)
	_, err = predictor.Predict(context.Background(), positiveRecord())
	require.Error(t, err)
	assert.True(t, errors.Is(err, dataset.ErrLoad))
}

func TestPredictRecordsHistory(t *testing.T) {
	cfg, tr := setup(t)
	store, err := db.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	predictor, err := New(cfg, tr, nil, WithStore(store))
	require.NoError(t, err)
	predictions, err := predictor.Predict(context.Background(), positiveRecord())
	require.NoError(t, err)

	logs, err := store.LoadPredictions(0)
	require.NoError(t, err)
	require.Len(t, logs, len(predictions))
	for _, log := range logs {
		prediction := predictions[log.ModelName]
		assert.Equal(t, prediction.Confidence, log.Confidence)
		assert.Equal(t, prediction.Prediction, log.Label == 1)
		assert.Contains(t, log.Input, `"age"`)
	}
}

func TestReadInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"age": 63, "sex": 1}`), 0o600))
	record, err := ReadInput(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"age": 63, "sex": 1}, record)

	require.NoError(t, os.WriteFile(path, []byte(`{"age": 63, "note": "fasting", "smoker": true, "tags": [1]}`), 0o600))
	record, err = ReadInput(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"age": 63}, record)

	require.NoError(t, os.WriteFile(path, []byte(`{"age": "old"}`), 0o600))
	_, err = ReadInput(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"age"`)

	require.NoError(t, os.WriteFile(path, []byte(`{"age": null}`), 0o600))
	_, err = ReadInput(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`null`), 0o600))
	_, err = ReadInput(path)
	assert.Error(t, err)

	_, err = ReadInput(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
