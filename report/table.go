// Package report 渲染模型对比表
package report

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"cardioml/trainer"
)

// ComparisonTable renders one row per model in training order, marking
// the best model.
func ComparisonTable(comparison *trainer.Comparison) (string, error) {
	variants, err := comparison.Variants()
	if err != nil {
		return "", err
	}

	data := pterm.TableData{
		{"Model", "Accuracy", "Precision", "Recall", "F1", "CV mean", "CV scores"},
	}
	for _, variant := range variants {
		name := variant.String()
		result := comparison.Results[name]
		label := name
		if name == comparison.BestModel {
			label = pterm.Green(name + " *")
		}
		data = append(data, []string{
			label,
			format(result.Accuracy),
			format(result.Precision),
			format(result.Recall),
			format(result.F1),
			format(result.CVMean),
			scores(result.CVScores),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

func format(value float64) string {
	return fmt.Sprintf("%.4f", value)
}

func scores(values []float64) string {
	parts := make([]string, len(values))
	for i, value := range values {
		parts[i] = fmt.Sprintf("%.2f", value)
	}
	return strings.Join(parts, " ")
}
