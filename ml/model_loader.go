package ml

import (
	"github.com/cockroachdb/errors"
)

// NewModel builds an untrained model of the given variant.
func NewModel(variant Variant, params Params) (MLModel, error) {
	switch variant {
	case VariantMLP:
		return NewMLPClassifier(params.MLP, params.Seed), nil
	case VariantRandomForest:
		return NewRandomForest(params.RandomForest, params.Seed), nil
	case VariantSVM:
		return NewSVC(params.SVM), nil
	case VariantDecisionTree:
		return NewDecisionTree(params.DecisionTree, params.Seed), nil
	case VariantNaiveBayes:
		return NewGaussianNB(params.NaiveBayes), nil
	default:
		return nil, errors.Newf("unsupported model variant %d", int(variant))
	}
}

func LoadModel(variant Variant, path string) (MLModel, error) {
	model, err := NewModel(variant, DefaultParams())
	if err != nil {
		return nil, err
	}
	if err := model.Load(path); err != nil {
		return nil, errors.Wrapf(err, "load %s model from %s", variant, path)
	}
	return model, nil
}
