package ml

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	ErrNotTrained         = errors.New("model not trained")
	ErrNoProbability      = errors.New("model does not expose class probabilities")
	ErrInvalidTrainingSet = errors.New("invalid training set")
)

type MLModel interface {
	Train(features [][]float64, labels []int) error
	Predict(features []float64) (int, error)
	Save(path string) error
	Load(path string) error
}

// ProbabilityModel returns [P(label=0), P(label=1)].
type ProbabilityModel interface {
	MLModel
	PredictProba(features []float64) ([]float64, error)
}

// ContextTrainer is implemented by models whose fit can be interrupted.
type ContextTrainer interface {
	TrainContext(ctx context.Context, features [][]float64, labels []int) error
}

// Fit trains model, handing ctx to models that accept one.
func Fit(ctx context.Context, model MLModel, features [][]float64, labels []int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if trainer, ok := model.(ContextTrainer); ok {
		return trainer.TrainContext(ctx, features, labels)
	}
	return model.Train(features, labels)
}

func validateTrainingSet(features [][]float64, labels []int) (int, error) {
	if len(features) == 0 || len(labels) == 0 {
		return 0, errors.Wrap(ErrInvalidTrainingSet, "features or labels empty")
	}
	if len(features) != len(labels) {
		return 0, errors.Wrapf(ErrInvalidTrainingSet, "features and labels size mismatch: %d != %d", len(features), len(labels))
	}
	width := len(features[0])
	if width == 0 {
		return 0, errors.Wrap(ErrInvalidTrainingSet, "feature vectors are empty")
	}
	for i, row := range features {
		if len(row) != width {
			return 0, errors.Wrapf(ErrInvalidTrainingSet, "row %d has %d features, expected %d", i, len(row), width)
		}
	}
	for i, label := range labels {
		if label != 0 && label != 1 {
			return 0, errors.Wrapf(ErrInvalidTrainingSet, "label %d at row %d is not binary", label, i)
		}
	}
	return width, nil
}

func checkWidth(features []float64, want int) error {
	if len(features) != want {
		return errors.Newf("expected %d features, got %d", want, len(features))
	}
	return nil
}

// argmaxProba breaks ties toward label 0.
func argmaxProba(proba []float64) int {
	if len(proba) > 1 && proba[1] > proba[0] {
		return 1
	}
	return 0
}
