package predictor

import (
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"

	"cardioml/ml"
)

// ReadInput decodes one JSON object and keeps only the model features.
// Other fields may hold any JSON value. A feature that is present but not
// a number is an error; absent features are left for Predict to report.
func ReadInput(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	if raw == nil {
		return nil, errors.Newf("%s holds no record", path)
	}

	record := make(map[string]float64, len(ml.FeatureNames()))
	for _, name := range ml.FeatureNames() {
		value, ok := raw[name]
		if !ok {
			continue
		}
		if string(value) == "null" {
			return nil, errors.Newf("field %q is null", name)
		}
		var number float64
		if err := json.Unmarshal(value, &number); err != nil {
			return nil, errors.Wrapf(err, "field %q", name)
		}
		record[name] = number
	}
	return record, nil
}
