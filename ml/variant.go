package ml

import (
	"strings"

	"github.com/cockroachdb/errors"
)

type Variant int

const (
	VariantMLP Variant = iota
	VariantRandomForest
	VariantSVM
	VariantDecisionTree
	VariantNaiveBayes
)

// Variants lists every variant in training order.
func Variants() []Variant {
	return []Variant{VariantMLP, VariantRandomForest, VariantSVM, VariantDecisionTree, VariantNaiveBayes}
}

func (v Variant) String() string {
	switch v {
	case VariantMLP:
		return "MLP"
	case VariantRandomForest:
		return "Random Forest"
	case VariantSVM:
		return "SVM"
	case VariantDecisionTree:
		return "Decision Tree"
	case VariantNaiveBayes:
		return "Naive Bayes"
	default:
		return "unknown"
	}
}

// Slot is the artifact file stem: lowercase name, spaces to underscores.
func (v Variant) Slot() string {
	return strings.ToLower(strings.ReplaceAll(v.String(), " ", "_"))
}

func ParseVariant(name string) (Variant, error) {
	for _, v := range Variants() {
		if v.String() == name || v.Slot() == name {
			return v, nil
		}
	}
	return 0, errors.Newf("unknown model %q", name)
}
