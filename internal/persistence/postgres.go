// internal/persistence/postgres.go
package persistence

import (
	"database/sql"
	"time"

	// registers the postgres driver
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/reqtune/reqtune/internal/predictor"
)

// DecisionEvent is one optimization decision persisted for offline review
type DecisionEvent struct {
	RequestType string
	Operation   string
	Strategy    string
	Confidence  float64
	Accepted    bool
	Duration    time.Duration
	Timestamp   time.Time
}

// DecisionLog buffers decision events and flushes them to Postgres in
// batches. Database failures are logged and dropped; persistence never
// blocks or fails the decision path.
type DecisionLog struct {
	db     *sql.DB
	logger *zap.Logger
	buffer chan DecisionEvent
	done   chan struct{}
	closed chan struct{}
}

const (
	bufferSize    = 10000
	batchSize     = 1000
	flushInterval = 5 * time.Second
)

// NewDecisionLog creates the log and starts its flush loop
func NewDecisionLog(db *sql.DB, logger *zap.Logger) *DecisionLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	dl := &DecisionLog{
		db:     db,
		logger: logger,
		buffer: make(chan DecisionEvent, bufferSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}

	go dl.processEvents()
	return dl
}

// Record buffers one decision; dropped with a warning when the buffer is full
func (dl *DecisionLog) Record(event DecisionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case dl.buffer <- event:
	default:
		dl.logger.Warn("decision buffer full, dropping event",
			zap.String("request_type", event.RequestType))
	}
}

func (dl *DecisionLog) processEvents() {
	defer close(dl.closed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	batch := make([]DecisionEvent, 0, batchSize)

	for {
		select {
		case event := <-dl.buffer:
			batch = append(batch, event)
			if len(batch) >= batchSize {
				dl.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				dl.flushBatch(batch)
				batch = batch[:0]
			}

		case <-dl.done:
			// drain whatever is still buffered before exiting
			for {
				select {
				case event := <-dl.buffer:
					batch = append(batch, event)
				default:
					if len(batch) > 0 {
						dl.flushBatch(batch)
					}
					return
				}
			}
		}
	}
}

func (dl *DecisionLog) flushBatch(events []DecisionEvent) {
	tx, err := dl.db.Begin()
	if err != nil {
		dl.logger.Error("failed to begin transaction", zap.Error(err))
		return
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO optimization_decisions (
			request_type, operation, strategy, confidence,
			accepted, duration_ms, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, e := range events {
		_, err := tx.Exec(query,
			e.RequestType, e.Operation, e.Strategy, e.Confidence,
			e.Accepted, e.Duration.Milliseconds(), e.Timestamp,
		)
		if err != nil {
			dl.logger.Error("failed to persist decision", zap.Error(err))
		}
	}

	if err := tx.Commit(); err != nil {
		dl.logger.Error("failed to commit decision batch", zap.Error(err))
	}
}

// SaveModelStatistics records one training cycle's model quality snapshot
func (dl *DecisionLog) SaveModelStatistics(stats predictor.Statistics) error {
	query := `
		INSERT INTO model_statistics (
			model_version, accuracy, precision_score, recall, f1_score,
			confidence, training_data_points, trained_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := dl.db.Exec(query,
		stats.ModelVersion, stats.Accuracy, stats.Precision, stats.Recall,
		stats.F1Score, stats.Confidence, stats.TrainingDataPoints, stats.LastTrainedAt,
	)
	if err != nil {
		dl.logger.Error("failed to persist model statistics", zap.Error(err))
	}
	return err
}

// Close flushes buffered events and stops the flush loop
func (dl *DecisionLog) Close() error {
	close(dl.done)
	select {
	case <-dl.closed:
	case <-time.After(10 * time.Second):
		dl.logger.Warn("decision log close timed out")
	}
	return nil
}
