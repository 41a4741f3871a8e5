// Package app wires configuration, logging, history and the trainer for
// the command line tools.
package app

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"cardioml/config"
	"cardioml/db"
	"cardioml/logging"
	"cardioml/trainer"
)

const DefaultConfigPath = "config.yaml"

type Env struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   *db.Store
	Trainer *trainer.Trainer
}

// Setup loads configPath (a missing file means defaults) and builds the
// shared components. The history store is nil when database.path is empty.
func Setup(configPath string) (*Env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	env := &Env{Config: cfg, Logger: logger}
	var opts []trainer.Option
	if cfg.Database.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create database dir")
		}
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		env.Store = store
		opts = append(opts, trainer.WithStore(store))
	}
	env.Trainer = trainer.New(cfg, logger, opts...)
	return env, nil
}

func (e *Env) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			e.Logger.Warn("close history database", zap.Error(err))
		}
	}
	_ = e.Logger.Sync()
}
