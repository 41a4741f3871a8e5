// Package trainer 训练五个分类器并保存对比结果
package trainer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cardioml/config"
	"cardioml/dataset"
	"cardioml/db"
	"cardioml/logging"
	"cardioml/ml"
)

// Trainer 模型训练器
type Trainer struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *db.Store
	debounce time.Duration

	mu sync.Mutex
}

type Option func(*Trainer)

// WithStore records every run in the training history.
func WithStore(store *db.Store) Option {
	return func(t *Trainer) {
		t.store = store
	}
}

// WithDebounce sets how long Watch waits after the last dataset change.
func WithDebounce(period time.Duration) Option {
	return func(t *Trainer) {
		t.debounce = period
	}
}

// New 创建训练器
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Trainer{
		cfg:      cfg,
		logger:   logger,
		debounce: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trainer) ArtifactsDir() string {
	return t.cfg.Artifacts.Dir
}

func (t *Trainer) ComparisonPath() string {
	return filepath.Join(t.cfg.Artifacts.Dir, ComparisonFile)
}

func (t *Trainer) ScalerPath() string {
	return filepath.Join(t.cfg.Artifacts.Dir, ScalerFile)
}

// Trained reports whether the comparison file exists.
func (t *Trainer) Trained() bool {
	_, err := os.Stat(t.ComparisonPath())
	return err == nil
}

// TrainIfNeeded returns the stored comparison, training first when it is
// missing. The flag reports whether a training run happened.
func (t *Trainer) TrainIfNeeded(ctx context.Context) (*Comparison, bool, error) {
	if t.Trained() {
		comparison, err := LoadComparison(t.ComparisonPath())
		return comparison, false, err
	}
	t.logger.Info("no trained models found, training", zap.String(logging.FieldPath, t.ComparisonPath()))
	comparison, err := t.Train(ctx)
	return comparison, err == nil, err
}

// Train loads the configured dataset and trains every model on it.
func (t *Trainer) Train(ctx context.Context) (*Comparison, error) {
	data, err := dataset.Load(t.cfg.Dataset.Path, t.cfg.Dataset.Encoding)
	if err != nil {
		return nil, err
	}
	t.logger.Info("dataset loaded",
		zap.String(logging.FieldPath, t.cfg.Dataset.Path),
		zap.Int(logging.FieldRows, data.Len()),
		zap.Int(logging.FieldCount, data.Positives()))
	return t.TrainOn(ctx, data)
}

// TrainOn 训练全部模型并保存标准化器、模型文件和对比结果
func (t *Trainer) TrainOn(ctx context.Context, data *dataset.Dataset) (*Comparison, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	runID := uuid.NewString()
	logger := t.logger.With(zap.String(logging.FieldRunID, runID))
	started := time.Now()

	if !data.SameColumns(ml.FeatureNames()) {
		logger.Warn("dataset columns differ from the prediction feature order",
			zap.Strings("columns", data.FeatureNames),
			zap.Strings("expected", ml.FeatureNames()))
	}

	split, err := ml.TrainTestSplit(data.Features, data.Labels, t.cfg.Training.TestRatio, t.cfg.Training.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "split dataset")
	}

	dir := t.cfg.Artifacts.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create artifacts dir %s", dir)
	}

	scaler := &ml.StandardScaler{}
	trainX, err := scaler.FitTransform(split.TrainX)
	if err != nil {
		return nil, errors.Wrap(err, "fit scaler")
	}
	testX, err := scaler.TransformAll(split.TestX)
	if err != nil {
		return nil, errors.Wrap(err, "scale test split")
	}
	if err := scaler.Save(t.ScalerPath()); err != nil {
		return nil, errors.Wrap(err, "save scaler")
	}

	params := t.cfg.ModelParams()
	variants := ml.Variants()
	results := make(map[string]ModelResult, len(variants))
	for _, variant := range variants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := t.trainVariant(ctx, variant, params, data, split, trainX, testX)
		if err != nil {
			return nil, errors.Wrapf(err, "train %s", variant)
		}
		results[variant.String()] = result
		logger.Info("model trained",
			zap.String(logging.FieldModel, variant.String()),
			zap.Float64(logging.FieldAccuracy, result.Accuracy),
			zap.Float64(logging.FieldPrecision, result.Precision),
			zap.Float64(logging.FieldRecall, result.Recall),
			zap.Float64(logging.FieldF1, result.F1),
			zap.Float64(logging.FieldCVMean, result.CVMean))
	}

	comparison := &Comparison{
		Results:      results,
		BestModel:    bestModel(variants, results),
		FeatureNames: append([]string(nil), data.FeatureNames...),
	}
	if err := comparison.Save(t.ComparisonPath()); err != nil {
		return nil, err
	}

	if t.store != nil {
		if err := t.record(runID, comparison, data.Len()); err != nil {
			logger.Warn("failed to record training run", zap.Error(err))
		}
	}

	logger.Info("training complete",
		zap.String(logging.FieldBestModel, comparison.BestModel),
		zap.Int64(logging.FieldDurationMS, time.Since(started).Milliseconds()))
	return comparison, nil
}

func (t *Trainer) trainVariant(ctx context.Context, variant ml.Variant, params ml.Params, data *dataset.Dataset, split ml.Split, trainX, testX [][]float64) (ModelResult, error) {
	model, err := ml.NewModel(variant, params)
	if err != nil {
		return ModelResult{}, err
	}
	if err := ml.Fit(ctx, model, trainX, split.TrainY); err != nil {
		return ModelResult{}, err
	}
	if err := model.Save(ModelPath(t.cfg.Artifacts.Dir, variant)); err != nil {
		return ModelResult{}, errors.Wrap(err, "save model")
	}

	metrics, err := ml.Evaluate(model, testX, split.TestY)
	if err != nil {
		return ModelResult{}, err
	}

	// cross-validation runs on the full unscaled dataset
	scores, err := ml.CrossValScore(ctx, func() (ml.MLModel, error) {
		return ml.NewModel(variant, params)
	}, data.Features, data.Labels, t.cfg.Training.CVFolds)
	if err != nil {
		return ModelResult{}, errors.Wrap(err, "cross validation")
	}

	return ModelResult{
		Accuracy:  metrics.Accuracy,
		Precision: metrics.Precision,
		Recall:    metrics.Recall,
		F1:        metrics.F1,
		CVScores:  scores,
		CVMean:    ml.MeanScore(scores),
	}, nil
}

func (t *Trainer) record(runID string, comparison *Comparison, rows int) error {
	variants, err := comparison.Variants()
	if err != nil {
		return err
	}
	now := time.Now()
	logs := make([]db.TrainingLog, 0, len(variants))
	for _, variant := range variants {
		name := variant.String()
		result := comparison.Results[name]
		logs = append(logs, db.TrainingLog{
			RunID:      runID,
			ModelName:  name,
			Accuracy:   result.Accuracy,
			Precision:  result.Precision,
			Recall:     result.Recall,
			F1:         result.F1,
			CVMean:     result.CVMean,
			Best:       name == comparison.BestModel,
			DataPoints: rows,
			TrainedAt:  now,
		})
	}
	return t.store.SaveTrainingRun(logs)
}
