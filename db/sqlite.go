package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        classifier VARCHAR(20) NOT NULL,
        label VARCHAR(50) NOT NULL,
        class INTEGER NOT NULL,
        confidence REAL,
        features TEXT,
        request_id TEXT,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_classifier ON predictions(classifier, created_at);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50) NOT NULL,
        accuracy REAL,
        precision REAL,
        recall REAL,
        params TEXT,
        trained_at DATETIME NOT NULL,
        data_points INTEGER
    );
    CREATE TABLE IF NOT EXISTS sos_alerts (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        alert_id TEXT NOT NULL UNIQUE,
        latitude REAL,
        longitude REAL,
        address TEXT,
        recipients INTEGER DEFAULT 0,
        simulated BOOLEAN DEFAULT 0,
        all_delivered BOOLEAN DEFAULT 0,
        results TEXT,
        created_at DATETIME NOT NULL
    );
    `

// Store persists the prediction audit, training runs and SOS alerts.
type Store struct {
	db *sql.DB
}

// Open creates the database file and tables if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create tables")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type Prediction struct {
	Classifier string             `json:"classifier"`
	Label      string             `json:"label"`
	Class      int                `json:"class"`
	Confidence float64            `json:"confidence"`
	Features   map[string]float64 `json:"features"`
	RequestID  string             `json:"request_id,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

func (s *Store) SavePrediction(ctx context.Context, p Prediction) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO predictions (classifier, label, class, confidence, features, request_id, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Classifier, p.Label, p.Class, p.Confidence, string(features), p.RequestID, p.CreatedAt.UTC())
	return err
}

// RecentPredictions returns the newest predictions of one classifier.
func (s *Store) RecentPredictions(ctx context.Context, classifier string, limit int) ([]Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT classifier, label, class, confidence, features, request_id, created_at
        FROM predictions
        WHERE classifier = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, classifier, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Prediction, 0)
	for rows.Next() {
		var p Prediction
		var features string
		var requestID sql.NullString
		if err := rows.Scan(&p.Classifier, &p.Label, &p.Class, &p.Confidence, &features, &requestID, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.RequestID = requestID.String
		if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
			return nil, errors.Wrap(err, "decode features")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type TrainingLog struct {
	ModelName  string          `json:"model_name"`
	Accuracy   float64         `json:"accuracy"`
	Precision  float64         `json:"precision"`
	Recall     float64         `json:"recall"`
	Params     json.RawMessage `json:"params,omitempty"`
	TrainedAt  time.Time       `json:"trained_at"`
	DataPoints int             `json:"data_points"`
}

func (s *Store) SaveTrainingLog(ctx context.Context, entry TrainingLog) error {
	var params sql.NullString
	if len(entry.Params) > 0 {
		params = sql.NullString{String: string(entry.Params), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (model_name, accuracy, precision, recall, params, trained_at, data_points)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ModelName, entry.Accuracy, entry.Precision, entry.Recall, params, entry.TrainedAt.UTC(), entry.DataPoints)
	return err
}

func (s *Store) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT model_name, accuracy, precision, recall, params, trained_at, data_points
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		var params sql.NullString
		if err := rows.Scan(&log.ModelName, &log.Accuracy, &log.Precision, &log.Recall, &params, &log.TrainedAt, &log.DataPoints); err != nil {
			return nil, err
		}
		if params.Valid {
			log.Params = json.RawMessage(params.String)
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// Alert is one SOS request and its delivery outcome. Results holds the
// per-recipient report as sent to the caller.
type Alert struct {
	AlertID      string          `json:"alert_id"`
	Latitude     float64         `json:"latitude"`
	Longitude    float64         `json:"longitude"`
	Address      string          `json:"address,omitempty"`
	Recipients   int             `json:"recipients"`
	Simulated    bool            `json:"simulated"`
	AllDelivered bool            `json:"all_delivered"`
	Results      json.RawMessage `json:"results,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (s *Store) SaveAlert(ctx context.Context, a Alert) error {
	if a.AlertID == "" {
		return errors.New("alert id required")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	results := "[]"
	if len(a.Results) > 0 {
		results = string(a.Results)
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO sos_alerts (alert_id, latitude, longitude, address, recipients, simulated, all_delivered, results, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AlertID, a.Latitude, a.Longitude, a.Address, a.Recipients, a.Simulated, a.AllDelivered, results, a.CreatedAt.UTC())
	return err
}

func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT alert_id, latitude, longitude, address, recipients, simulated, all_delivered, results, created_at
        FROM sos_alerts
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Alert, 0)
	for rows.Next() {
		var a Alert
		var address sql.NullString
		var results string
		if err := rows.Scan(&a.AlertID, &a.Latitude, &a.Longitude, &address, &a.Recipients, &a.Simulated, &a.AllDelivered, &results, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Address = address.String
		a.Results = json.RawMessage(results)
		out = append(out, a)
	}
	return out, rows.Err()
}
