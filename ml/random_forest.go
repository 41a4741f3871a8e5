package ml

import (
	"context"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

type RandomForest struct {
	params    RandomForestParams
	seed      int64
	nFeatures int
	trees     []*DecisionTree
}

type forestSnapshot struct {
	Kind      string       `json:"kind"`
	NFeatures int          `json:"n_features"`
	Trees     [][]TreeNode `json:"trees"`
}

func NewRandomForest(params RandomForestParams, seed int64) *RandomForest {
	return &RandomForest{params: params, seed: seed}
}

// Train fits every tree on its own bootstrap sample. Tree seeds are drawn
// up front from the forest seed, so the result does not depend on how many
// workers run.
func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	return rf.TrainContext(context.Background(), features, labels)
}

// TrainContext stops scheduling trees once ctx is done.
func (rf *RandomForest) TrainContext(ctx context.Context, features [][]float64, labels []int) error {
	width, err := validateTrainingSet(features, labels)
	if err != nil {
		return err
	}
	numTrees := rf.params.NumTrees
	if numTrees <= 0 {
		numTrees = 100
	}
	maxFeatures := rf.params.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(width)))))
	}

	rng := rand.New(rand.NewSource(rf.seed))
	seeds := make([]int64, numTrees)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	trees := make([]*DecisionTree, numTrees)
	group, groupCtx := errgroup.WithContext(ctx)
	workers := rf.params.Workers
	if workers <= 0 {
		workers = 1
	}
	group.SetLimit(workers)
	n := len(features)
	for i := range trees {
		i := i
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			treeRng := rand.New(rand.NewSource(seeds[i]))
			sample := make([]int, n)
			for j := range sample {
				sample[j] = treeRng.Intn(n)
			}
			tree := NewDecisionTree(DecisionTreeParams{MaxDepth: rf.params.MaxDepth}, seeds[i])
			tree.maxFeatures = maxFeatures
			tree.fit(features, labels, sample, width, treeRng)
			trees[i] = tree
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	rf.nFeatures = width
	rf.trees = trees
	return nil
}

func (rf *RandomForest) Predict(features []float64) (int, error) {
	proba, err := rf.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return argmaxProba(proba), nil
}

// PredictProba averages the leaf class frequencies of every tree.
func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.trees) == 0 {
		return nil, ErrNotTrained
	}
	proba := make([]float64, 2)
	for _, tree := range rf.trees {
		treeProba, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		proba[0] += treeProba[0]
		proba[1] += treeProba[1]
	}
	count := float64(len(rf.trees))
	proba[0] /= count
	proba[1] /= count
	return proba, nil
}

func (rf *RandomForest) Save(path string) error {
	if len(rf.trees) == 0 {
		return ErrNotTrained
	}
	snapshot := forestSnapshot{
		Kind:      VariantRandomForest.Slot(),
		NFeatures: rf.nFeatures,
		Trees:     make([][]TreeNode, len(rf.trees)),
	}
	for i, tree := range rf.trees {
		snapshot.Trees[i] = tree.nodes
	}
	return saveJSON(path, snapshot)
}

func (rf *RandomForest) Load(path string) error {
	var snapshot forestSnapshot
	if err := loadJSON(path, &snapshot); err != nil {
		return err
	}
	if err := checkKind(snapshot.Kind, VariantRandomForest.Slot()); err != nil {
		return err
	}
	if len(snapshot.Trees) == 0 {
		return ErrNotTrained
	}
	trees := make([]*DecisionTree, len(snapshot.Trees))
	for i, nodes := range snapshot.Trees {
		if err := validateNodes(nodes, snapshot.NFeatures); err != nil {
			return err
		}
		trees[i] = &DecisionTree{nFeatures: snapshot.NFeatures, nodes: nodes}
	}
	rf.nFeatures = snapshot.NFeatures
	rf.trees = trees
	return nil
}

func (rf *RandomForest) NumTrees() int {
	return len(rf.trees)
}
