package ml

import (
	"github.com/cockroachdb/errors"
)

var ErrMissingFeature = errors.New("missing required field")

// FeatureNames is the column order shared by training and prediction.
func FeatureNames() []string {
	return []string{
		"age",
		"sex",
		"cp",
		"trestbps",
		"chol",
		"fbs",
		"restecg",
		"thalach",
		"exang",
		"oldpeak",
		"slope",
		"ca",
		"thal",
	}
}

// RecordVector assembles a named record in FeatureNames order.
func RecordVector(record map[string]float64) ([]float64, error) {
	names := FeatureNames()
	vector := make([]float64, len(names))
	for i, name := range names {
		value, ok := record[name]
		if !ok {
			return nil, errors.Wrapf(ErrMissingFeature, "feature %q", name)
		}
		vector[i] = value
	}
	return vector, nil
}
