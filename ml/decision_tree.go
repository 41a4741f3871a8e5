package ml

import (
	"math"
	"math/rand"
	"sort"

	"github.com/cockroachdb/errors"
)

type DecisionTree struct {
	params      DecisionTreeParams
	maxFeatures int
	seed        int64
	nFeatures   int
	nodes       []TreeNode
}

type TreeNode struct {
	FeatureIdx  int        `json:"feature_idx"`
	Threshold   float64    `json:"threshold"`
	LeftChild   int        `json:"left_child"`
	RightChild  int        `json:"right_child"`
	ClassLabel  int        `json:"class_label"`
	Probability [2]float64 `json:"probability"`
	IsLeaf      bool       `json:"is_leaf"`
}

type treeSnapshot struct {
	Kind      string     `json:"kind"`
	NFeatures int        `json:"n_features"`
	Nodes     []TreeNode `json:"nodes"`
}

func NewDecisionTree(params DecisionTreeParams, seed int64) *DecisionTree {
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	return &DecisionTree{params: params, seed: seed}
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	width, err := validateTrainingSet(features, labels)
	if err != nil {
		return err
	}
	idx := make([]int, len(features))
	for i := range idx {
		idx[i] = i
	}
	dt.fit(features, labels, idx, width, rand.New(rand.NewSource(dt.seed)))
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, error) {
	node, err := dt.leaf(features)
	if err != nil {
		return 0, err
	}
	return node.ClassLabel, nil
}

func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	node, err := dt.leaf(features)
	if err != nil {
		return nil, err
	}
	return []float64{node.Probability[0], node.Probability[1]}, nil
}

func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return ErrNotTrained
	}
	return saveJSON(path, treeSnapshot{Kind: VariantDecisionTree.Slot(), NFeatures: dt.nFeatures, Nodes: dt.nodes})
}

func (dt *DecisionTree) Load(path string) error {
	var snapshot treeSnapshot
	if err := loadJSON(path, &snapshot); err != nil {
		return err
	}
	if err := checkKind(snapshot.Kind, VariantDecisionTree.Slot()); err != nil {
		return err
	}
	if err := validateNodes(snapshot.Nodes, snapshot.NFeatures); err != nil {
		return err
	}
	dt.nFeatures = snapshot.NFeatures
	dt.nodes = snapshot.Nodes
	return nil
}

// Depth is the number of edges on the longest root-to-leaf path.
func (dt *DecisionTree) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return 0
		}
		left := walk(node.LeftChild)
		right := walk(node.RightChild)
		if left > right {
			return left + 1
		}
		return right + 1
	}
	return walk(0)
}

func (dt *DecisionTree) fit(features [][]float64, labels []int, idx []int, width int, rng *rand.Rand) {
	dt.nFeatures = width
	dt.nodes = nil
	dt.grow(features, labels, idx, 0, rng)
}

func (dt *DecisionTree) leaf(features []float64) (TreeNode, error) {
	if len(dt.nodes) == 0 {
		return TreeNode{}, ErrNotTrained
	}
	if err := checkWidth(features, dt.nFeatures); err != nil {
		return TreeNode{}, err
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}

func (dt *DecisionTree) grow(features [][]float64, labels []int, idx []int, depth int, rng *rand.Rand) int {
	counts := classCounts(labels, idx)
	total := float64(len(idx))
	pos := len(dt.nodes)
	dt.nodes = append(dt.nodes, TreeNode{
		FeatureIdx:  -1,
		LeftChild:   -1,
		RightChild:  -1,
		ClassLabel:  majorityLabel(counts),
		Probability: [2]float64{float64(counts[0]) / total, float64(counts[1]) / total},
		IsLeaf:      true,
	})

	if dt.params.MaxDepth > 0 && depth >= dt.params.MaxDepth {
		return pos
	}
	if len(idx) < dt.params.MinSamplesSplit || counts[0] == 0 || counts[1] == 0 {
		return pos
	}

	feature, threshold, ok := dt.bestSplit(features, labels, idx, counts, rng)
	if !ok {
		return pos
	}
	left, right := partition(features, idx, feature, threshold)
	if len(left) == 0 || len(right) == 0 {
		return pos
	}

	leftChild := dt.grow(features, labels, left, depth+1, rng)
	rightChild := dt.grow(features, labels, right, depth+1, rng)

	node := &dt.nodes[pos]
	node.FeatureIdx = feature
	node.Threshold = threshold
	node.LeftChild = leftChild
	node.RightChild = rightChild
	node.IsLeaf = false
	return pos
}

// bestSplit scans every midpoint between distinct sorted values. With
// maxFeatures set, candidate features are drawn at random and constant
// features do not count toward the quota.
func (dt *DecisionTree) bestSplit(features [][]float64, labels []int, idx []int, counts [2]int, rng *rand.Rand) (int, float64, bool) {
	candidates := make([]int, dt.nFeatures)
	for i := range candidates {
		candidates[i] = i
	}
	quota := dt.nFeatures
	if dt.maxFeatures > 0 && dt.maxFeatures < dt.nFeatures {
		candidates = rng.Perm(dt.nFeatures)
		quota = dt.maxFeatures
	}

	n := len(idx)
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.Inf(1)
	sorted := make([]int, n)
	visited := 0

	for _, featureIdx := range candidates {
		if visited >= quota {
			break
		}
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool {
			return features[sorted[a]][featureIdx] < features[sorted[b]][featureIdx]
		})
		if features[sorted[0]][featureIdx] == features[sorted[n-1]][featureIdx] {
			continue
		}
		visited++

		var left [2]int
		for i := 0; i < n-1; i++ {
			left[labels[sorted[i]]]++
			current := features[sorted[i]][featureIdx]
			next := features[sorted[i+1]][featureIdx]
			if next <= current {
				continue
			}
			right := [2]int{counts[0] - left[0], counts[1] - left[1]}
			leftWeight := float64(i + 1)
			rightWeight := float64(n - i - 1)
			impurity := (leftWeight*giniCounts(left) + rightWeight*giniCounts(right)) / float64(n)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = current + (next-current)/2
				if bestThreshold >= next {
					bestThreshold = current
				}
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func partition(features [][]float64, idx []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if features[i][featureIdx] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func classCounts(labels []int, idx []int) [2]int {
	var counts [2]int
	for _, i := range idx {
		counts[labels[i]]++
	}
	return counts
}

func giniCounts(counts [2]int) float64 {
	total := float64(counts[0] + counts[1])
	if total == 0 {
		return 0
	}
	p0 := float64(counts[0]) / total
	p1 := float64(counts[1]) / total
	return 1 - p0*p0 - p1*p1
}

func majorityLabel(counts [2]int) int {
	if counts[1] > counts[0] {
		return 1
	}
	return 0
}

func validateNodes(nodes []TreeNode, nFeatures int) error {
	if len(nodes) == 0 {
		return ErrNotTrained
	}
	for i, node := range nodes {
		if node.IsLeaf {
			continue
		}
		if node.LeftChild <= i || node.LeftChild >= len(nodes) || node.RightChild <= i || node.RightChild >= len(nodes) {
			return errInvalidTree(i)
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= nFeatures {
			return errInvalidTree(i)
		}
	}
	return nil
}

func errInvalidTree(node int) error {
	return errors.Newf("invalid tree state at node %d", node)
}
