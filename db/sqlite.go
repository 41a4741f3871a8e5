package db

import (
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL,
        model_name VARCHAR(50) NOT NULL,
        accuracy REAL,
        precision REAL,
        recall REAL,
        f1_score REAL,
        cv_mean REAL,
        best INTEGER DEFAULT 0,
        data_points INTEGER,
        trained_at DATETIME NOT NULL,
        UNIQUE(run_id, model_name)
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50) NOT NULL,
        predicted_label INTEGER NOT NULL,
        confidence INTEGER NOT NULL,
        input TEXT,
        created_at DATETIME NOT NULL
    );
    `

// Store 训练与预测历史
type Store struct {
	database *sql.DB
}

// Open initializes the SQLite database at path and creates missing tables.
func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "create schema in %s", path)
	}
	return &Store{database: database}, nil
}

func (s *Store) Close() error {
	return s.database.Close()
}

type TrainingLog struct {
	RunID      string    `json:"run_id"`
	ModelName  string    `json:"model_name"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	F1         float64   `json:"f1_score"`
	CVMean     float64   `json:"cv_mean"`
	Best       bool      `json:"best"`
	DataPoints int       `json:"data_points"`
	TrainedAt  time.Time `json:"trained_at"`
}

// SaveTrainingRun stores every model row of one run in a single transaction.
func (s *Store) SaveTrainingRun(logs []TrainingLog) error {
	if len(logs) == 0 {
		return nil
	}
	tx, err := s.database.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
        INSERT OR REPLACE INTO training_log (
            run_id, model_name, accuracy, precision, recall, f1_score, cv_mean, best, data_points, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, log := range logs {
		if log.RunID == "" || log.ModelName == "" {
			tx.Rollback()
			return errors.New("run id and model name required")
		}
		trainedAt := log.TrainedAt
		if trainedAt.IsZero() {
			trainedAt = time.Now()
		}
		_, err := stmt.Exec(log.RunID, log.ModelName, log.Accuracy, log.Precision, log.Recall,
			log.F1, log.CVMean, log.Best, log.DataPoints, trainedAt.UTC())
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "insert training log for %s", log.ModelName)
		}
	}
	return tx.Commit()
}

// LoadTrainingLog returns the newest rows first; limit <= 0 returns all.
func (s *Store) LoadTrainingLog(limit int) ([]TrainingLog, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.database.Query(`
        SELECT run_id, model_name, accuracy, precision, recall, f1_score, cv_mean, best, data_points, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id ASC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.RunID, &log.ModelName, &log.Accuracy, &log.Precision, &log.Recall,
			&log.F1, &log.CVMean, &log.Best, &log.DataPoints, &log.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

type PredictionLog struct {
	ModelName  string    `json:"model_name"`
	Label      int       `json:"predicted_label"`
	Confidence int       `json:"confidence"`
	Input      string    `json:"input"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Store) SavePredictions(predictions []PredictionLog) error {
	if len(predictions) == 0 {
		return nil
	}

	stmt, err := s.database.Prepare(`
        INSERT INTO predictions (model_name, predicted_label, confidence, input, created_at)
        VALUES (?, ?, ?, ?, ?)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range predictions {
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.Exec(p.ModelName, p.Label, p.Confidence, p.Input, createdAt.UTC()); err != nil {
			return errors.Wrapf(err, "insert prediction for %s", p.ModelName)
		}
	}
	return nil
}

func (s *Store) LoadPredictions(limit int) ([]PredictionLog, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.database.Query(`
        SELECT model_name, predicted_label, confidence, input, created_at
        FROM predictions
        ORDER BY created_at DESC, id ASC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	predictions := make([]PredictionLog, 0)
	for rows.Next() {
		var p PredictionLog
		var input sql.NullString
		if err := rows.Scan(&p.ModelName, &p.Label, &p.Confidence, &input, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Input = input.String
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}
