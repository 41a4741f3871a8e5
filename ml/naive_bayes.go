package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type GaussianNB struct {
	params    NaiveBayesParams
	nFeatures int
	priors    [2]float64
	means     [2][]float64
	variances [2][]float64
}

type naiveBayesSnapshot struct {
	Kind      string       `json:"kind"`
	NFeatures int          `json:"n_features"`
	Priors    [2]float64   `json:"priors"`
	Means     [2][]float64 `json:"means"`
	Variances [2][]float64 `json:"variances"`
}

func NewGaussianNB(params NaiveBayesParams) *GaussianNB {
	return &GaussianNB{params: params}
}

// Train estimates per-class means and population variances. Every variance
// is padded by var_smoothing times the largest feature variance.
func (nb *GaussianNB) Train(features [][]float64, labels []int) error {
	width, err := validateTrainingSet(features, labels)
	if err != nil {
		return err
	}

	column := make([]float64, 0, len(features))
	maxVariance := 0.0
	for j := 0; j < width; j++ {
		column = column[:0]
		for _, row := range features {
			column = append(column, row[j])
		}
		_, variance := stat.PopMeanVariance(column, nil)
		maxVariance = math.Max(maxVariance, variance)
	}
	epsilon := nb.params.VarSmoothing * maxVariance

	var counts [2]int
	for _, label := range labels {
		counts[label]++
	}
	for class := 0; class < 2; class++ {
		nb.means[class] = make([]float64, width)
		nb.variances[class] = make([]float64, width)
		nb.priors[class] = float64(counts[class]) / float64(len(labels))
		if counts[class] == 0 {
			continue
		}
		for j := 0; j < width; j++ {
			column = column[:0]
			for i, row := range features {
				if labels[i] == class {
					column = append(column, row[j])
				}
			}
			mean, variance := stat.PopMeanVariance(column, nil)
			nb.means[class][j] = mean
			nb.variances[class][j] = variance + epsilon
		}
	}
	nb.nFeatures = width
	return nil
}

func (nb *GaussianNB) Predict(features []float64) (int, error) {
	proba, err := nb.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return argmaxProba(proba), nil
}

func (nb *GaussianNB) PredictProba(features []float64) ([]float64, error) {
	if nb.nFeatures == 0 {
		return nil, ErrNotTrained
	}
	if err := checkWidth(features, nb.nFeatures); err != nil {
		return nil, err
	}
	joint := make([]float64, 2)
	for class := 0; class < 2; class++ {
		if nb.priors[class] == 0 {
			joint[class] = math.Inf(-1)
			continue
		}
		logLikelihood := math.Log(nb.priors[class])
		for j, x := range features {
			variance := nb.variances[class][j]
			if variance <= 0 {
				variance = math.SmallestNonzeroFloat64
			}
			diff := x - nb.means[class][j]
			logLikelihood -= 0.5*math.Log(2*math.Pi*variance) + diff*diff/(2*variance)
		}
		joint[class] = logLikelihood
	}
	norm := floats.LogSumExp(joint)
	for class := range joint {
		joint[class] = math.Exp(joint[class] - norm)
	}
	return joint, nil
}

func (nb *GaussianNB) Save(path string) error {
	if nb.nFeatures == 0 {
		return ErrNotTrained
	}
	return saveJSON(path, naiveBayesSnapshot{
		Kind:      VariantNaiveBayes.Slot(),
		NFeatures: nb.nFeatures,
		Priors:    nb.priors,
		Means:     nb.means,
		Variances: nb.variances,
	})
}

func (nb *GaussianNB) Load(path string) error {
	var snapshot naiveBayesSnapshot
	if err := loadJSON(path, &snapshot); err != nil {
		return err
	}
	if err := checkKind(snapshot.Kind, VariantNaiveBayes.Slot()); err != nil {
		return err
	}
	if snapshot.NFeatures == 0 {
		return ErrNotTrained
	}
	for class := 0; class < 2; class++ {
		if len(snapshot.Means[class]) != snapshot.NFeatures || len(snapshot.Variances[class]) != snapshot.NFeatures {
			return errInvalidSnapshot(VariantNaiveBayes)
		}
	}
	nb.nFeatures = snapshot.NFeatures
	nb.priors = snapshot.Priors
	nb.means = snapshot.Means
	nb.variances = snapshot.Variances
	return nil
}
