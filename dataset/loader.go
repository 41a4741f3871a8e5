// Package dataset 读取训练数据集
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrLoad marks every failure to read or parse the dataset file.
var ErrLoad = errors.New("dataset load failed")

// Dataset 特征矩阵与标签
type Dataset struct {
	Features     [][]float64
	Labels       []int
	FeatureNames []string
}

func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Positives counts rows labelled 1.
func (d *Dataset) Positives() int {
	count := 0
	for _, label := range d.Labels {
		count += label
	}
	return count
}

// SameColumns reports whether the header matches names, ignoring case and
// surrounding spaces.
func (d *Dataset) SameColumns(names []string) bool {
	if len(d.FeatureNames) != len(names) {
		return false
	}
	for i, name := range names {
		if !strings.EqualFold(strings.TrimSpace(d.FeatureNames[i]), name) {
			return false
		}
	}
	return true
}

// Load reads a CSV with a header row, feature columns and a binary target
// in the last column.
func Load(path, encoding string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open dataset %s", path), ErrLoad)
	}
	defer file.Close()

	data, err := Parse(file, encoding)
	if err != nil {
		return nil, errors.Wrapf(err, "parse dataset %s", path)
	}
	return data, nil
}

// Parse decodes a CSV stream in the given text encoding.
func Parse(r io.Reader, encoding string) (*Dataset, error) {
	decoder, err := newDecoder(encoding)
	if err != nil {
		return nil, errors.Mark(err, ErrLoad)
	}

	reader := csv.NewReader(transform.NewReader(r, decoder))
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "read csv"), ErrLoad)
	}
	if len(records) < 2 {
		return nil, errors.Mark(errors.New("dataset has no data rows"), ErrLoad)
	}
	header := records[0]
	if len(header) < 2 {
		return nil, errors.Mark(errors.Newf("dataset needs at least one feature and a target, got %d columns", len(header)), ErrLoad)
	}

	width := len(header) - 1
	names := make([]string, width)
	for i, name := range header[:width] {
		names[i] = strings.TrimSpace(name)
	}

	rows := records[1:]
	features := make([][]float64, len(rows))
	labels := make([]int, len(rows))
	for i, record := range rows {
		line := i + 2
		row := make([]float64, width)
		for j := 0; j < width; j++ {
			value, err := strconv.ParseFloat(strings.TrimSpace(record[j]), 64)
			if err != nil {
				return nil, errors.Mark(errors.Wrapf(err, "line %d column %q", line, names[j]), ErrLoad)
			}
			row[j] = value
		}
		target, err := strconv.ParseFloat(strings.TrimSpace(record[width]), 64)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "line %d target", line), ErrLoad)
		}
		if target != 0 && target != 1 {
			return nil, errors.Mark(errors.Newf("line %d target %v is not binary", line, target), ErrLoad)
		}
		features[i] = row
		labels[i] = int(target)
	}

	return &Dataset{Features: features, Labels: labels, FeatureNames: names}, nil
}

func newDecoder(encoding string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "gbk":
		return simplifiedchinese.GBK.NewDecoder(), nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	default:
		return nil, errors.Newf("unsupported dataset encoding %q", encoding)
	}
}
