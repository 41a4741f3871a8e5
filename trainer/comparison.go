package trainer

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"cardioml/ml"
)

const (
	ComparisonFile = "comparison_results.json"
	ScalerFile     = "scaler.model"
)

// ModelResult holds held-out metrics on the test split plus the
// cross-validation accuracies, which are computed on the full dataset.
type ModelResult struct {
	Accuracy  float64   `json:"accuracy"`
	Precision float64   `json:"precision"`
	Recall    float64   `json:"recall"`
	F1        float64   `json:"f1_score"`
	CVScores  []float64 `json:"cv_scores"`
	CVMean    float64   `json:"cv_mean"`
}

// Comparison 模型对比结果，其文件存在即表示模型已训练
type Comparison struct {
	Results      map[string]ModelResult `json:"results"`
	BestModel    string                 `json:"best_model"`
	FeatureNames []string               `json:"feature_names"`
}

// ModelPath is <dir>/<slot>.model.
func ModelPath(dir string, variant ml.Variant) string {
	return filepath.Join(dir, variant.Slot()+".model")
}

// Variants returns the models present in the results, in training order.
// Names that match no variant are an error.
func (c *Comparison) Variants() ([]ml.Variant, error) {
	present := make(map[ml.Variant]bool, len(c.Results))
	for name := range c.Results {
		variant, err := ml.ParseVariant(name)
		if err != nil {
			return nil, errors.Wrap(err, "comparison results")
		}
		present[variant] = true
	}
	variants := make([]ml.Variant, 0, len(present))
	for _, variant := range ml.Variants() {
		if present[variant] {
			variants = append(variants, variant)
		}
	}
	return variants, nil
}

func (c *Comparison) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode comparison")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func LoadComparison(path string) (*Comparison, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var comparison Comparison
	if err := json.Unmarshal(data, &comparison); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return &comparison, nil
}

// bestModel keeps the first variant unless a later one has a strictly
// higher F1.
func bestModel(variants []ml.Variant, results map[string]ModelResult) string {
	if len(variants) == 0 {
		return ""
	}
	best := variants[0].String()
	for _, variant := range variants[1:] {
		if results[variant.String()].F1 > results[best].F1 {
			best = variant.String()
		}
	}
	return best
}
