// internal/persistence/postgres_test.go
package persistence

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reqtune/reqtune/internal/predictor"
)

func TestDecisionLogFlushesOnClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO optimization_decisions").
		WithArgs("orders", "caching", "enable_caching", 0.9, true, int64(12), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO optimization_decisions").
		WithArgs("search", "batching", "none", 0.0, false, int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	dl := NewDecisionLog(db, zap.NewNop())
	dl.Record(DecisionEvent{
		RequestType: "orders",
		Operation:   "caching",
		Strategy:    "enable_caching",
		Confidence:  0.9,
		Accepted:    true,
		Duration:    12 * time.Millisecond,
	})
	dl.Record(DecisionEvent{
		RequestType: "search",
		Operation:   "batching",
		Strategy:    "none",
		Duration:    3 * time.Millisecond,
	})

	require.NoError(t, dl.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecisionLogSurvivesDatabaseFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	dl := NewDecisionLog(db, zap.NewNop())
	dl.Record(DecisionEvent{RequestType: "orders", Operation: "caching"})

	// a broken database drops the batch, it never propagates
	require.NoError(t, dl.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecisionLogStampsMissingTimestamps(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO optimization_decisions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	dl := NewDecisionLog(db, zap.NewNop())
	dl.Record(DecisionEvent{RequestType: "orders", Operation: "caching"})
	require.NoError(t, dl.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveModelStatistics(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	trained := time.Now()
	mock.ExpectExec("INSERT INTO model_statistics").
		WithArgs(3, 0.91, 0.88, 0.93, 0.9, 0.85, 4200, trained).
		WillReturnResult(sqlmock.NewResult(1, 1))

	dl := NewDecisionLog(db, zap.NewNop())
	defer func() { _ = dl.Close() }()

	err = dl.SaveModelStatistics(predictor.Statistics{
		ModelVersion:       3,
		Accuracy:           0.91,
		Precision:          0.88,
		Recall:             0.93,
		F1Score:            0.9,
		Confidence:         0.85,
		TrainingDataPoints: 4200,
		LastTrainedAt:      trained,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveModelStatisticsPropagatesError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO model_statistics").
		WillReturnError(errors.New("table missing"))

	dl := NewDecisionLog(db, zap.NewNop())
	defer func() { _ = dl.Close() }()

	assert.Error(t, dl.SaveModelStatistics(predictor.Statistics{ModelVersion: 1}))
}
