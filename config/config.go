// Package config 训练与预测配置
package config

import (
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v2"

	"cardioml/ml"
)

// Config 全局配置
type Config struct {
	Dataset   DatasetConfig   `yaml:"dataset"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Training  TrainingConfig  `yaml:"training"`
	Models    ml.Params       `yaml:"models"`
	Predictor PredictorConfig `yaml:"predictor"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
}

// DatasetConfig 数据集配置
type DatasetConfig struct {
	Path     string `yaml:"path"`
	Encoding string `yaml:"encoding"` // utf-8, gbk, latin1
}

// ArtifactsConfig 模型文件目录
type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
}

// TrainingConfig 训练参数
type TrainingConfig struct {
	TestRatio float64 `yaml:"test_ratio"`
	Seed      int64   `yaml:"seed"`
	CVFolds   int     `yaml:"cv_folds"`
	Workers   int     `yaml:"workers"`
}

// PredictorConfig 预测参数
type PredictorConfig struct {
	// DefaultConfidence is reported for models that cannot produce class
	// probabilities. The value is a placeholder, not a calibrated score.
	DefaultConfidence int    `yaml:"default_confidence"`
	CacheSize         int    `yaml:"cache_size"`
	InputPath         string `yaml:"input_path"`
}

// DatabaseConfig 运行历史数据库，路径为空时不启用
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default 默认配置
func Default() Config {
	return Config{
		Dataset: DatasetConfig{
			Path:     filepath.Join("attached_assets", "Heart Disease Dataset.csv"),
			Encoding: "utf-8",
		},
		Artifacts: ArtifactsConfig{
			Dir: filepath.Join("server", "ml", "models"),
		},
		Training: TrainingConfig{
			TestRatio: 0.2,
			Seed:      42,
			CVFolds:   5,
			Workers:   4,
		},
		Models: ml.DefaultParams(),
		Predictor: PredictorConfig{
			DefaultConfidence: 75,
			CacheSize:         16,
			InputPath:         filepath.Join("server", "ml", "temp_input.json"),
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads a YAML file over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return &config, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &config, nil
		}
		return nil, errors.Wrapf(err, "open config %s", path)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Dataset.Path == "" {
		return errors.New("dataset.path is required")
	}
	if c.Artifacts.Dir == "" {
		return errors.New("artifacts.dir is required")
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		return errors.Newf("training.test_ratio must be in (0, 1), got %v", c.Training.TestRatio)
	}
	if c.Training.CVFolds < 2 {
		return errors.Newf("training.cv_folds must be at least 2, got %d", c.Training.CVFolds)
	}
	if c.Predictor.DefaultConfidence < 0 || c.Predictor.DefaultConfidence > 100 {
		return errors.Newf("predictor.default_confidence must be in [0, 100], got %d", c.Predictor.DefaultConfidence)
	}
	return c.Models.Validate()
}

// ModelParams returns the model hyperparameters seeded with the training seed.
func (c *Config) ModelParams() ml.Params {
	params := c.Models
	params.Seed = c.Training.Seed
	params.RandomForest.Workers = c.Training.Workers
	return params
}
