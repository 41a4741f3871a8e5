package ml

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestStandardScalerFitTransform(t *testing.T) {
	features := [][]float64{
		{63, 1, 145},
		{37, 1, 130},
		{41, 0, 130},
		{56, 1, 120},
	}
	scaler := &StandardScaler{}
	scaled, err := scaler.FitTransform(features)
	require.NoError(t, err)

	for j := range features[0] {
		column := make([]float64, len(scaled))
		for i := range scaled {
			column[i] = scaled[i][j]
		}
		mean, variance := stat.PopMeanVariance(column, nil)
		assert.InDelta(t, 0, mean, 1e-9)
		assert.InDelta(t, 1, variance, 1e-9)
	}
}

func TestStandardScalerConstantFeature(t *testing.T) {
	scaler := &StandardScaler{}
	require.NoError(t, scaler.Fit([][]float64{{1, 5}, {3, 5}}))
	assert.Equal(t, 1.0, scaler.Scale[1])

	scaled, err := scaler.Transform([]float64{2, 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, scaled)
}

func TestStandardScalerInverseRoundTrip(t *testing.T) {
	features, _ := blobs(50, 5, 3)
	scaler := &StandardScaler{}
	require.NoError(t, scaler.Fit(features))

	for _, row := range features {
		scaled, err := scaler.Transform(row)
		require.NoError(t, err)
		restored, err := scaler.InverseTransform(scaled)
		require.NoError(t, err)
		assert.InDeltaSlice(t, row, restored, 1e-9)
	}
}

func TestStandardScalerPersistence(t *testing.T) {
	scaler := &StandardScaler{}
	require.NoError(t, scaler.Fit([][]float64{{1, 2}, {3, 6}}))
	path := filepath.Join(t.TempDir(), "scaler.model")
	require.NoError(t, scaler.Save(path))

	restored, err := LoadScaler(path)
	require.NoError(t, err)
	assert.Equal(t, scaler.Mean, restored.Mean)
	assert.Equal(t, scaler.Scale, restored.Scale)
}

func TestStandardScalerUnfitted(t *testing.T) {
	scaler := &StandardScaler{}
	_, err := scaler.Transform([]float64{1})
	require.ErrorIs(t, err, ErrNotTrained)

	require.NoError(t, scaler.Fit([][]float64{{1, 2}}))
	_, err = scaler.Transform([]float64{1})
	require.Error(t, err)
}
