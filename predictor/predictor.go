// Package predictor 使用已训练模型进行单条预测
package predictor

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"cardioml/config"
	"cardioml/db"
	"cardioml/logging"
	"cardioml/ml"
	"cardioml/trainer"
)

// Prediction is one model's verdict. Confidence is a percentage in [0, 100].
type Prediction struct {
	Prediction bool `json:"prediction"`
	Confidence int  `json:"confidence"`
}

// Predictions is keyed by model display name.
type Predictions map[string]Prediction

// Predictor 预测器
type Predictor struct {
	cfg     *config.Config
	trainer *trainer.Trainer
	logger  *zap.Logger
	store   *db.Store
	cache   *lru.Cache[string, any]
}

type Option func(*Predictor)

// WithStore records every prediction in the history database.
func WithStore(store *db.Store) Option {
	return func(p *Predictor) {
		p.store = store
	}
}

// New 创建预测器
func New(cfg *config.Config, tr *trainer.Trainer, logger *zap.Logger, opts ...Option) (*Predictor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.Predictor.CacheSize
	if size < 1 {
		size = 1
	}
	cache, err := lru.New[string, any](size)
	if err != nil {
		return nil, errors.Wrap(err, "create model cache")
	}
	p := &Predictor{
		cfg:     cfg,
		trainer: tr,
		logger:  logger,
		cache:   cache,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Predict trains first when no comparison exists, then runs every model
// listed in it. Any failing model fails the whole call.
func (p *Predictor) Predict(ctx context.Context, record map[string]float64) (Predictions, error) {
	comparison, trained, err := p.trainer.TrainIfNeeded(ctx)
	if err != nil {
		return nil, err
	}
	if trained {
		p.cache.Purge()
	}

	vector, err := ml.RecordVector(record)
	if err != nil {
		return nil, err
	}
	scaler, err := p.scaler()
	if err != nil {
		return nil, err
	}
	scaled, err := scaler.Transform(vector)
	if err != nil {
		return nil, errors.Wrap(err, "scale input")
	}

	variants, err := comparison.Variants()
	if err != nil {
		return nil, err
	}

	predictions := make(Predictions, len(variants))
	for _, variant := range variants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		model, err := p.model(variant)
		if err != nil {
			return nil, err
		}
		label, err := model.Predict(scaled)
		if err != nil {
			return nil, errors.Wrapf(err, "predict with %s", variant)
		}
		confidence, err := p.confidence(model, scaled, label)
		if err != nil {
			return nil, errors.Wrapf(err, "confidence of %s", variant)
		}
		predictions[variant.String()] = Prediction{Prediction: label == 1, Confidence: confidence}
		p.logger.Debug("model prediction",
			zap.String(logging.FieldModel, variant.String()),
			zap.Int(logging.FieldPrediction, label),
			zap.Int(logging.FieldConfidence, confidence))
	}

	if p.store != nil {
		if err := p.record(record, predictions); err != nil {
			p.logger.Warn("failed to record predictions", zap.Error(err))
		}
	}
	return predictions, nil
}

// confidence is int(100 * P(label)), or the configured default when the
// model has no probabilities.
func (p *Predictor) confidence(model ml.MLModel, features []float64, label int) (int, error) {
	probabilistic, ok := model.(ml.ProbabilityModel)
	if !ok {
		return p.cfg.Predictor.DefaultConfidence, nil
	}
	proba, err := probabilistic.PredictProba(features)
	if errors.Is(err, ml.ErrNoProbability) {
		return p.cfg.Predictor.DefaultConfidence, nil
	}
	if err != nil {
		return 0, err
	}
	if label < 0 || label >= len(proba) {
		return 0, errors.Newf("label %d outside %d probabilities", label, len(proba))
	}
	return int(proba[label] * 100), nil
}

func (p *Predictor) scaler() (*ml.StandardScaler, error) {
	path := p.trainer.ScalerPath()
	if cached, ok := p.cache.Get(path); ok {
		if scaler, ok := cached.(*ml.StandardScaler); ok {
			return scaler, nil
		}
	}
	scaler, err := ml.LoadScaler(path)
	if err != nil {
		return nil, err
	}
	p.cache.Add(path, scaler)
	return scaler, nil
}

func (p *Predictor) model(variant ml.Variant) (ml.MLModel, error) {
	path := trainer.ModelPath(p.trainer.ArtifactsDir(), variant)
	if cached, ok := p.cache.Get(path); ok {
		if model, ok := cached.(ml.MLModel); ok {
			p.logger.Debug("model cache hit", zap.String(logging.FieldModel, variant.String()), zap.Bool(logging.FieldCached, true))
			return model, nil
		}
	}
	model, err := ml.LoadModel(variant, path)
	if err != nil {
		return nil, err
	}
	p.cache.Add(path, model)
	return model, nil
}

// Purge drops cached artifacts, for callers that retrain out of band.
func (p *Predictor) Purge() {
	p.cache.Purge()
}

func (p *Predictor) record(record map[string]float64, predictions Predictions) error {
	input, err := json.Marshal(record)
	if err != nil {
		return err
	}
	variants := make([]ml.Variant, 0, len(predictions))
	for _, variant := range ml.Variants() {
		if _, ok := predictions[variant.String()]; ok {
			variants = append(variants, variant)
		}
	}
	logs := make([]db.PredictionLog, 0, len(variants))
	for _, variant := range variants {
		prediction := predictions[variant.String()]
		label := 0
		if prediction.Prediction {
			label = 1
		}
		logs = append(logs, db.PredictionLog{
			ModelName:  variant.String(),
			Label:      label,
			Confidence: prediction.Confidence,
			Input:      string(input),
		})
	}
	return p.store.SavePredictions(logs)
}
