package dataset

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Write saves the dataset as UTF-8 CSV with a trailing "target" column.
func Write(path string, data *Dataset) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := append(append([]string(nil), data.FeatureNames...), "target")
	if err := writer.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for i, row := range data.Features {
		if len(row) != len(data.FeatureNames) {
			return errors.Newf("row %d has %d features, expected %d", i, len(row), len(data.FeatureNames))
		}
		for j, value := range row {
			record[j] = strconv.FormatFloat(value, 'g', -1, 64)
		}
		record[len(row)] = strconv.Itoa(data.Labels[i])
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}
