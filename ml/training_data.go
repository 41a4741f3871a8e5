package ml

import (
	"math"
	"math/rand"

	"github.com/cockroachdb/errors"
)

type Split struct {
	TrainX [][]float64
	TrainY []int
	TestX  [][]float64
	TestY  []int
}

// TrainTestSplit shuffles row indices with the given seed and holds out
// ceil(testRatio*n) rows for testing.
func TrainTestSplit(features [][]float64, labels []int, testRatio float64, seed int64) (Split, error) {
	if len(features) != len(labels) {
		return Split{}, errors.Newf("features and labels size mismatch: %d != %d", len(features), len(labels))
	}
	if testRatio <= 0 || testRatio >= 1 {
		return Split{}, errors.Newf("test ratio must be in (0, 1), got %v", testRatio)
	}
	n := len(features)
	testCount := int(math.Ceil(testRatio * float64(n)))
	if testCount < 1 || testCount >= n {
		return Split{}, errors.Newf("cannot hold out %d of %d rows", testCount, n)
	}

	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(n)

	var split Split
	for i, idx := range indices {
		if i < testCount {
			split.TestX = append(split.TestX, features[idx])
			split.TestY = append(split.TestY, labels[idx])
		} else {
			split.TrainX = append(split.TrainX, features[idx])
			split.TrainY = append(split.TrainY, labels[idx])
		}
	}
	return split, nil
}

// StratifiedFolds assigns every row to one of k test folds without
// shuffling: rows of each class are dealt to folds in order, with per-fold
// class counts balanced the way an unshuffled stratified k-fold does.
func StratifiedFolds(labels []int, k int) ([][]int, error) {
	if k < 2 {
		return nil, errors.Newf("need at least 2 folds, got %d", k)
	}
	if len(labels) < k {
		return nil, errors.Newf("cannot split %d rows into %d folds", len(labels), k)
	}

	// classes in order of first appearance
	classOf := make(map[int]int)
	var classes []int
	for _, label := range labels {
		if _, ok := classOf[label]; !ok {
			classOf[label] = len(classes)
			classes = append(classes, label)
		}
	}
	encoded := make([]int, len(labels))
	classCount := make([]int, len(classes))
	for i, label := range labels {
		encoded[i] = classOf[label]
		classCount[encoded[i]]++
	}
	// small classes leave some folds without rows of that class; only
	// fail when no class can fill every fold
	largest := 0
	for _, count := range classCount {
		largest = max(largest, count)
	}
	if largest < k {
		return nil, errors.Newf("every class has fewer rows than %d folds", k)
	}

	// allocation[f][c]: rows of class c in fold f, dealt round-robin over the
	// class-sorted label list
	sortedEncoded := make([]int, 0, len(labels))
	for c := range classes {
		for i := 0; i < classCount[c]; i++ {
			sortedEncoded = append(sortedEncoded, c)
		}
	}
	allocation := make([][]int, k)
	for f := 0; f < k; f++ {
		allocation[f] = make([]int, len(classes))
		for i := f; i < len(sortedEncoded); i += k {
			allocation[f][sortedEncoded[i]]++
		}
	}

	folds := make([][]int, k)
	next := make([]int, len(classes))
	remaining := make([]int, len(classes))
	for c := range classes {
		remaining[c] = allocation[0][c]
	}
	for i, c := range encoded {
		for remaining[c] == 0 {
			next[c]++
			remaining[c] = allocation[next[c]][c]
		}
		folds[next[c]] = append(folds[next[c]], i)
		remaining[c]--
	}
	return folds, nil
}
