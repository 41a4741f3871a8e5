package ml

import (
	"math"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each feature on its training mean and divides by
// the population standard deviation. Features with zero variance keep a
// scale of 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

type scalerSnapshot struct {
	Kind  string    `json:"kind"`
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

const scalerKind = "standard_scaler"

func (s *StandardScaler) Fit(features [][]float64) error {
	if len(features) == 0 {
		return errors.Wrap(ErrInvalidTrainingSet, "features is empty")
	}
	width := len(features[0])
	column := make([]float64, len(features))
	mean := make([]float64, width)
	scale := make([]float64, width)
	for j := 0; j < width; j++ {
		for i, row := range features {
			if len(row) != width {
				return errors.Wrapf(ErrInvalidTrainingSet, "row %d has %d features, expected %d", i, len(row), width)
			}
			column[i] = row[j]
		}
		m, variance := stat.PopMeanVariance(column, nil)
		mean[j] = m
		scale[j] = math.Sqrt(variance)
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	s.Mean = mean
	s.Scale = scale
	return nil
}

func (s *StandardScaler) Transform(features []float64) ([]float64, error) {
	if err := s.check(features); err != nil {
		return nil, err
	}
	result := make([]float64, len(features))
	floats.SubTo(result, features, s.Mean)
	floats.Div(result, s.Scale)
	return result, nil
}

func (s *StandardScaler) InverseTransform(features []float64) ([]float64, error) {
	if err := s.check(features); err != nil {
		return nil, err
	}
	result := make([]float64, len(features))
	floats.MulTo(result, features, s.Scale)
	floats.Add(result, s.Mean)
	return result, nil
}

func (s *StandardScaler) TransformAll(features [][]float64) ([][]float64, error) {
	result := make([][]float64, len(features))
	for i, row := range features {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		result[i] = scaled
	}
	return result, nil
}

func (s *StandardScaler) FitTransform(features [][]float64) ([][]float64, error) {
	if err := s.Fit(features); err != nil {
		return nil, err
	}
	return s.TransformAll(features)
}

func (s *StandardScaler) Save(path string) error {
	if len(s.Mean) == 0 {
		return ErrNotTrained
	}
	return saveJSON(path, scalerSnapshot{Kind: scalerKind, Mean: s.Mean, Scale: s.Scale})
}

func (s *StandardScaler) Load(path string) error {
	var snapshot scalerSnapshot
	if err := loadJSON(path, &snapshot); err != nil {
		return err
	}
	if err := checkKind(snapshot.Kind, scalerKind); err != nil {
		return err
	}
	if len(snapshot.Mean) == 0 || len(snapshot.Mean) != len(snapshot.Scale) {
		return errors.New("scaler artifact is inconsistent")
	}
	for _, scale := range snapshot.Scale {
		if scale == 0 {
			return errors.New("scaler artifact has zero scale")
		}
	}
	s.Mean = snapshot.Mean
	s.Scale = snapshot.Scale
	return nil
}

func LoadScaler(path string) (*StandardScaler, error) {
	scaler := &StandardScaler{}
	if err := scaler.Load(path); err != nil {
		return nil, errors.Wrapf(err, "load scaler from %s", path)
	}
	return scaler, nil
}

func (s *StandardScaler) check(features []float64) error {
	if len(s.Mean) == 0 {
		return ErrNotTrained
	}
	return checkWidth(features, len(s.Mean))
}
