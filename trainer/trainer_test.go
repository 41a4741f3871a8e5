package trainer

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardioml/config"
	"cardioml/dataset"
	"cardioml/db"
	"cardioml/ml"
)

// syntheticHeart draws rows whose features shift with the label.
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

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Dataset.Path = filepath.Join(dir, "heart.csv")
	cfg.Artifacts.Dir = filepath.Join(dir, "models")
	cfg.Models.RandomForest.NumTrees = 10
	cfg.Models.MLP.MaxIter = 200
	return &cfg
}

func writeDataset(t *testing.T, cfg *config.Config, data *dataset.Dataset) {
	t.Helper()
	require.NoError(t, dataset.Write(cfg.Dataset.Path, data))
}

func TestTrainWritesArtifacts(t *testing.T) {
	cfg := testConfig(t)
	writeDataset(t, cfg, syntheticHeart(100, 1))

	comparison, err := New(cfg, nil).Train(context.Background())
	require.NoError(t, err)

	require.Len(t, comparison.Results, len(ml.Variants()))
	assert.Equal(t, ml.FeatureNames(), comparison.FeatureNames)
	assert.FileExists(t, filepath.Join(cfg.Artifacts.Dir, ScalerFile))
	assert.FileExists(t, filepath.Join(cfg.Artifacts.Dir, ComparisonFile))

	best := comparison.Results[comparison.BestModel]
	for _, variant := range ml.Variants() {
		assert.FileExists(t, ModelPath(cfg.Artifacts.Dir, variant))

		result, ok := comparison.Results[variant.String()]
		require.True(t, ok, variant.String())
		for _, value := range []float64{result.Accuracy, result.Precision, result.Recall, result.F1, result.CVMean} {
			assert.GreaterOrEqual(t, value, 0.0)
			assert.LessOrEqual(t, value, 1.0)
		}
		require.Len(t, result.CVScores, cfg.Training.CVFolds)
		assert.InDelta(t, ml.MeanScore(result.CVScores), result.CVMean, 1e-12)
		assert.GreaterOrEqual(t, best.F1, result.F1)
	}

	stored, err := LoadComparison(filepath.Join(cfg.Artifacts.Dir, ComparisonFile))
	require.NoError(t, err)
	assert.Equal(t, comparison, stored)
}

func TestTrainIsDeterministic(t *testing.T) {
	data := syntheticHeart(80, 3)

	first, err := New(testConfig(t), nil).TrainOn(context.Background(), data)
	require.NoError(t, err)
	second, err := New(testConfig(t), nil).TrainOn(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestTrainIfNeeded(t *testing.T) {
	cfg := testConfig(t)
	writeDataset(t, cfg, syntheticHeart(60, 2))
	trainer := New(cfg, nil)
	assert.False(t, trainer.Trained())

	first, trained, err := trainer.TrainIfNeeded(context.Background())
	require.NoError(t, err)
	assert.True(t, trained)
	assert.True(t, trainer.Trained())

	// a missing dataset proves the second call does not retrain
	require.NoError(t, os.Remove(cfg.Dataset.Path))
	second, trained, err := trainer.TrainIfNeeded(context.Background())
	require.NoError(t, err)
	assert.False(t, trained)
	assert.Equal(t, first, second)
}

func TestTrainMissingDataset(t *testing.T) {
	cfg := testConfig(t)
	_, err := New(cfg, nil).Train(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, dataset.ErrLoad))
	assert.NoFileExists(t, filepath.Join(cfg.Artifacts.Dir, ComparisonFile))
}

func TestTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(testConfig(t), nil).TrainOn(ctx, syntheticHeart(60, 4))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainRecordsHistory(t *testing.T) {
	cfg := testConfig(t)
	store, err := db.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	comparison, err := New(cfg, nil, WithStore(store)).TrainOn(context.Background(), syntheticHeart(60, 5))
	require.NoError(t, err)

	logs, err := store.LoadTrainingLog(0)
	require.NoError(t, err)
	require.Len(t, logs, len(ml.Variants()))
	bestCount := 0
	for _, log := range logs {
		assert.Equal(t, logs[0].RunID, log.RunID)
		assert.Equal(t, 60, log.DataPoints)
		if log.Best {
			bestCount++
			assert.Equal(t, comparison.BestModel, log.ModelName)
		}
	}
	assert.Equal(t, 1, bestCount)
}

func TestBestModelKeepsFirstOnTie(t *testing.T) {
	results := map[string]ModelResult{
		"MLP":           {F1: 0.8},
		"Random Forest": {F1: 0.8},
		"SVM":           {F1: 0.9},
		"Decision Tree": {F1: 0.9},
		"Naive Bayes":   {F1: 0.1},
	}
	assert.Equal(t, "SVM", bestModel(ml.Variants(), results))
	assert.Equal(t, "MLP", bestModel(ml.Variants()[:2], results))
	assert.Equal(t, "", bestModel(nil, results))
}

func TestBestModelAllZeroF1(t *testing.T) {
	results := make(map[string]ModelResult)
	for _, variant := range ml.Variants() {
		results[variant.String()] = ModelResult{Accuracy: 0.5}
	}
	assert.Equal(t, "MLP", bestModel(ml.Variants(), results))
}

func TestComparisonVariants(t *testing.T) {
	comparison := &Comparison{Results: map[string]ModelResult{"Naive Bayes": {}, "MLP": {}}}
	variants, err := comparison.Variants()
	require.NoError(t, err)
	assert.Equal(t, []ml.Variant{ml.VariantMLP, ml.VariantNaiveBayes}, variants)

	comparison.Results["KNN"] = ModelResult{}
	_, err = comparison.Variants()
	assert.Error(t, err)
}

func TestWatchRetrainsOnChange(t *testing.T) {
	cfg := testConfig(t)
	writeDataset(t, cfg, syntheticHeart(60, 6))
	trainer := New(cfg, nil, WithDebounce(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trained := make(chan *Comparison, 1)
	done := make(chan error, 1)
	go func() {
		done <- trainer.Watch(ctx, func(c *Comparison) {
			select {
			case trained <- c:
			default:
			}
		})
	}()

	// let the watcher register before touching the file
	time.Sleep(200 * time.Millisecond)
	writeDataset(t, cfg, syntheticHeart(60, 7))

	select {
	case comparison := <-trained:
		assert.Len(t, comparison.Results, len(ml.Variants()))
	case <-time.After(30 * time.Second):
		t.Fatal("watch did not retrain")
	}

	cancel()
	require.NoError(t, <-done)
}
