package ml

import (
	"github.com/cockroachdb/errors"
)

type Params struct {
	Seed         int64              `yaml:"-"`
	MLP          MLPParams          `yaml:"mlp"`
	RandomForest RandomForestParams `yaml:"random_forest"`
	SVM          SVMParams          `yaml:"svm"`
	DecisionTree DecisionTreeParams `yaml:"decision_tree"`
	NaiveBayes   NaiveBayesParams   `yaml:"naive_bayes"`
}

type MLPParams struct {
	HiddenLayers  []int   `yaml:"hidden_layers"`
	MaxIter       int     `yaml:"max_iter"`
	LearningRate  float64 `yaml:"learning_rate"`
	Alpha         float64 `yaml:"alpha"`
	BatchSize     int     `yaml:"batch_size"`
	Tol           float64 `yaml:"tol"`
	NIterNoChange int     `yaml:"n_iter_no_change"`
}

type RandomForestParams struct {
	NumTrees    int `yaml:"num_trees"`
	MaxDepth    int `yaml:"max_depth"`
	MaxFeatures int `yaml:"max_features"` // 0 means sqrt(n_features)
	Workers     int `yaml:"-"`
}

type SVMParams struct {
	C           float64 `yaml:"c"`
	Gamma       float64 `yaml:"gamma"` // 0 means 1 / (n_features * var(X))
	Tol         float64 `yaml:"tol"`
	MaxIter     int     `yaml:"max_iter"`
	Probability bool    `yaml:"probability"`
}

type DecisionTreeParams struct {
	MaxDepth        int `yaml:"max_depth"` // 0 means unlimited
	MinSamplesSplit int `yaml:"min_samples_split"`
}

type NaiveBayesParams struct {
	VarSmoothing float64 `yaml:"var_smoothing"`
}

func DefaultParams() Params {
	return Params{
		Seed: 42,
		MLP: MLPParams{
			HiddenLayers:  []int{10, 5},
			MaxIter:       1000,
			LearningRate:  0.001,
			Alpha:         0.0001,
			BatchSize:     200,
			Tol:           1e-4,
			NIterNoChange: 10,
		},
		RandomForest: RandomForestParams{
			NumTrees: 100,
			Workers:  1,
		},
		SVM: SVMParams{
			C:           1.0,
			Tol:         1e-3,
			MaxIter:     100000,
			Probability: true,
		},
		DecisionTree: DecisionTreeParams{
			MinSamplesSplit: 2,
		},
		NaiveBayes: NaiveBayesParams{
			VarSmoothing: 1e-9,
		},
	}
}

func (p Params) Validate() error {
	if len(p.MLP.HiddenLayers) == 0 {
		return errors.New("models.mlp.hidden_layers must not be empty")
	}
	for _, size := range p.MLP.HiddenLayers {
		if size <= 0 {
			return errors.Newf("models.mlp.hidden_layers must be positive, got %d", size)
		}
	}
	if p.MLP.MaxIter <= 0 || p.MLP.LearningRate <= 0 {
		return errors.New("models.mlp.max_iter and learning_rate must be positive")
	}
	if p.RandomForest.NumTrees <= 0 {
		return errors.New("models.random_forest.num_trees must be positive")
	}
	if p.SVM.C <= 0 {
		return errors.New("models.svm.c must be positive")
	}
	if p.NaiveBayes.VarSmoothing < 0 {
		return errors.New("models.naive_bayes.var_smoothing must not be negative")
	}
	return nil
}
