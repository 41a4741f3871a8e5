package ml

import "math/rand"

// blobs draws two Gaussian clusters centred at -1 and +1 on every axis.
func blobs(n, width int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	features := make([][]float64, n)
	labels := make([]int, n)
	for i := range features {
		label := i % 2
		center := -1.0
		if label == 1 {
			center = 1.0
		}
		row := make([]float64, width)
		for j := range row {
			row[j] = center + rng.NormFloat64()*0.7
		}
		features[i] = row
		labels[i] = label
	}
	return features, labels
}
