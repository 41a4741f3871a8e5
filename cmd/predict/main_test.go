package main

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardioml/dataset"
	"cardioml/ml"
)

// writeFixture creates a dataset and a config that points at it.
func writeFixture(t *testing.T, withDataset bool) (configPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	datasetPath := filepath.Join(dir, "heart.csv")
	if withDataset {
		rnd := rand.New(rand.NewSource(1))
		data := &dataset.Dataset{FeatureNames: ml.FeatureNames()}
		for i := 0; i < 60; i++ {
			row := make([]float64, len(data.FeatureNames))
			for j := range row {
				row[j] = float64(10*j) + 1.5*float64(i%2) + rnd.NormFloat64()
			}
			data.Features = append(data.Features, row)
			data.Labels = append(data.Labels, i%2)
		}
		require.NoError(t, dataset.Write(datasetPath, data))
	}

	config := strings.Join([]string{
		"dataset:",
		"  path: " + datasetPath,
		"artifacts:",
		"  dir: " + filepath.Join(dir, "models"),
		"models:",
		"  random_forest:",
		"    num_trees: 8",
		"  mlp:",
		"    max_iter: 100",
		"log:",
		"  level: error",
		"",
	}, "\n")
	configPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))
	return configPath, dir
}

func writeInput(t *testing.T, dir string, record map[string]float64) string {
	t.Helper()
	data, err := json.Marshal(record)
	require.NoError(t, err)
	path := filepath.Join(dir, "input.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func fullRecord() map[string]float64 {
	record := make(map[string]float64)
	for j, name := range ml.FeatureNames() {
		record[name] = float64(10 * j)
	}
	return record
}

func TestPredictPrintsEveryModel(t *testing.T) {
	configPath, dir := writeFixture(t, true)
	input := writeInput(t, dir, fullRecord())

	var stdout, stderr bytes.Buffer
	code := run([]string{input, "--config", configPath}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var output map[string]struct {
		Prediction bool `json:"prediction"`
		Confidence int  `json:"confidence"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &output))
	assert.Len(t, output, len(ml.Variants()))
	for _, variant := range ml.Variants() {
		assert.Contains(t, output, variant.String())
	}
}

func TestPredictUnreadableInput(t *testing.T) {
	configPath, dir := writeFixture(t, true)

	var stdout, stderr bytes.Buffer
	code := run([]string{filepath.Join(dir, "nope.json"), "--config", configPath}, &stdout, &stderr)
	assert.Equal(t, 1, code)

	var output map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &output))
	assert.True(t, strings.HasPrefix(output["error"], "Failed to read input data: "), output["error"])
}

func TestPredictMissingFieldReportsFailure(t *testing.T) {
	configPath, dir := writeFixture(t, true)
	record := fullRecord()
	delete(record, "chol")
	input := writeInput(t, dir, record)

	var stdout, stderr bytes.Buffer
	code := run([]string{input, "--config", configPath}, &stdout, &stderr)
	assert.Equal(t, 1, code)

	var output map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &output))
	assert.True(t, strings.HasPrefix(output["error"], "Prediction failed: "), output["error"])
	assert.Contains(t, output["error"], "chol")
}

func TestPredictMissingDatasetIsFatal(t *testing.T) {
	configPath, dir := writeFixture(t, false)
	input := writeInput(t, dir, fullRecord())

	var stdout, stderr bytes.Buffer
	code := run([]string{input, "--config", configPath}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "dataset load failed")
}

func TestPredictIgnoresNonNumericExtraFields(t *testing.T) {
	configPath, dir := writeFixture(t, true)
	record := make(map[string]interface{})
	for name, value := range fullRecord() {
		record[name] = value
	}
	record["note"] = "fasting"
	record["smoker"] = true
	data, err := json.Marshal(record)
	require.NoError(t, err)
	input := filepath.Join(dir, "input.json")
	require.NoError(t, os.WriteFile(input, data, 0o600))

	var stdout, stderr bytes.Buffer
	code := run([]string{input, "--config", configPath}, &stdout, &stderr)
	require.Equal(t, 0, code, stdout.String()+stderr.String())

	var output map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &output))
	assert.Len(t, output, len(ml.Variants()))
}

func TestPredictBadConfigReportsJSON(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("training:\n  test_ratio: 2\n"), 0o600))
	input := writeInput(t, dir, fullRecord())

	var stdout, stderr bytes.Buffer
	code := run([]string{input, "--config", configPath}, &stdout, &stderr)
	assert.Equal(t, 1, code)

	var output map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &output))
	assert.True(t, strings.HasPrefix(output["error"], "Prediction failed: "), output["error"])
	assert.Contains(t, output["error"], "test_ratio")
}
