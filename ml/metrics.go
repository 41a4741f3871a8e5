package ml

import (
	"context"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/stat"
)

type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
}

// Score computes binary metrics with 1 as the positive label. Any ratio
// whose denominator is zero is reported as 0.
func Score(actual, predicted []int) (Metrics, error) {
	if len(actual) != len(predicted) {
		return Metrics{}, errors.Newf("actual and predicted size mismatch: %d != %d", len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return Metrics{}, nil
	}

	var correct, truePositive, predictedPositive, actualPositive int
	for i, label := range actual {
		if predicted[i] == label {
			correct++
		}
		if predicted[i] == 1 {
			predictedPositive++
		}
		if label == 1 {
			actualPositive++
			if predicted[i] == 1 {
				truePositive++
			}
		}
	}

	var metrics Metrics
	metrics.Accuracy = float64(correct) / float64(len(actual))
	if predictedPositive > 0 {
		metrics.Precision = float64(truePositive) / float64(predictedPositive)
	}
	if actualPositive > 0 {
		metrics.Recall = float64(truePositive) / float64(actualPositive)
	}
	if denominator := 2*truePositive + (predictedPositive - truePositive) + (actualPositive - truePositive); denominator > 0 {
		metrics.F1 = float64(2*truePositive) / float64(denominator)
	}
	return metrics, nil
}

func PredictAll(model MLModel, features [][]float64) ([]int, error) {
	predictions := make([]int, len(features))
	for i, row := range features {
		label, err := model.Predict(row)
		if err != nil {
			return nil, errors.Wrapf(err, "predict row %d", i)
		}
		predictions[i] = label
	}
	return predictions, nil
}

func Evaluate(model MLModel, features [][]float64, labels []int) (Metrics, error) {
	predictions, err := PredictAll(model, features)
	if err != nil {
		return Metrics{}, err
	}
	return Score(labels, predictions)
}

// CrossValScore trains a fresh model per stratified fold and returns the
// accuracy on each held-out fold.
func CrossValScore(ctx context.Context, newModel func() (MLModel, error), features [][]float64, labels []int, k int) ([]float64, error) {
	folds, err := StratifiedFolds(labels, k)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, 0, k)
	for f, testIdx := range folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		inTest := make(map[int]bool, len(testIdx))
		for _, idx := range testIdx {
			inTest[idx] = true
		}
		var trainX, testX [][]float64
		var trainY, testY []int
		for i := range features {
			if inTest[i] {
				testX = append(testX, features[i])
				testY = append(testY, labels[i])
			} else {
				trainX = append(trainX, features[i])
				trainY = append(trainY, labels[i])
			}
		}

		model, err := newModel()
		if err != nil {
			return nil, err
		}
		if err := Fit(ctx, model, trainX, trainY); err != nil {
			return nil, errors.Wrapf(err, "train fold %d", f)
		}
		metrics, err := Evaluate(model, testX, testY)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluate fold %d", f)
		}
		scores = append(scores, metrics.Accuracy)
	}
	return scores, nil
}

func MeanScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	return stat.Mean(scores, nil)
}
