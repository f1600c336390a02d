package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FelixMarschall/SmartHomeBioSignal/internal/models"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SensorHistoryRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewSensorHistoryRepository(db, logger)

	return db, mock, repo
}

func TestDayTableName(t *testing.T) {
	day := time.Date(2024, 3, 7, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "fused_records_20240307", DayTableName(day))
}

func TestAppendRecords_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	ts := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)
	pred := 1
	records := []models.FusedRecord{
		{
			Timestamp:            ts,
			WristTempC:           33.5,
			RoomTempC:            22.1,
			RoomHumidityPct:      45.0,
			HeartRateBPM:         72.0,
			IBIMs:                833.3,
			SDNNMs:               41.2,
			ClassifierPrediction: &pred,
		},
	}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS fused_records_20240307`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO fused_records_20240307`).
		WithArgs("room-1", ts, 33.5, 22.1, 45.0, 72.0, 833.3, 41.2,
			1, nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.AppendRecords(context.Background(), "room-1", records)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordsForDay_ScansNullableColumns(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	day := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)
	ts := day.Add(9 * time.Hour)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS fused_records_20240307`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	columns := []string{
		"room_id", "timestamp", "wrist_temp_c", "room_temp_c",
		"room_humidity_pct", "heart_rate_bpm", "ibi_ms", "sdnn_ms",
		"classifier_prediction", "heat", "cool", "humidify", "dry", "user_feedback",
	}
	rows := sqlmock.NewRows(columns).
		AddRow("room-1", ts, 33.5, 22.1, 45.0, 72.0, 833.3, 41.2, 1, nil, nil, nil, nil, nil).
		AddRow("room-1", ts.Add(5*time.Second), 33.6, 22.2, 45.1, 73.0, 821.9, 40.8, -1, 1, 0, 0, 0, -1)

	mock.ExpectQuery(`SELECT .* FROM fused_records_20240307`).
		WithArgs("room-1").
		WillReturnRows(rows)

	records, err := repo.RecordsForDay(context.Background(), "room-1", day)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Nil(t, records[0].Heat)
	assert.Nil(t, records[0].UserFeedback)
	require.NotNil(t, records[0].ClassifierPrediction)
	assert.Equal(t, 1, *records[0].ClassifierPrediction)

	require.NotNil(t, records[1].Heat)
	assert.Equal(t, 1, *records[1].Heat)
	require.NotNil(t, records[1].UserFeedback)
	assert.Equal(t, -1, *records[1].UserFeedback)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRecord_EmptyDay(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	day := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS fused_records_20240307`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM fused_records_20240307`).
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"room_id"}))

	rec, err := repo.LatestRecord(context.Background(), "room-1", day)
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDecision_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	ts := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)
	intent := models.ActionIntent{Cool: 1}

	mock.ExpectExec(`UPDATE fused_records_20240307`).
		WithArgs(0, 1, 0, 0, "room-1", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateDecision(context.Background(), "room-1", ts, intent)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDecision_MissingRecord(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	ts := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE fused_records_20240307`).
		WithArgs(0, 0, 0, 0, "room-1", ts).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateDecision(context.Background(), "room-1", ts, models.ActionIntent{})
	require.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUserFeedback_TargetsNewestRecord(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	day := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS fused_records_20240307`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE fused_records_20240307`).
		WithArgs(2, "room-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetUserFeedback(context.Background(), "room-1", day, 2)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUserFeedback_FallsBackToPreviousDay(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	// 刚过午夜：今天的分表还是空的，最新记录在昨天的分表里
	day := time.Date(2024, 3, 8, 0, 2, 0, 0, time.UTC)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS fused_records_20240308`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE fused_records_20240308`).
		WithArgs(-2, "room-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS fused_records_20240307`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE fused_records_20240307`).
		WithArgs(-2, "room-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetUserFeedback(context.Background(), "room-1", day, -2)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUserFeedback_NoRecordsEitherDay(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	day := time.Date(2024, 3, 8, 0, 2, 0, 0, time.UTC)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS fused_records_20240308`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE fused_records_20240308`).
		WithArgs(1, "room-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS fused_records_20240307`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE fused_records_20240307`).
		WithArgs(1, "room-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetUserFeedback(context.Background(), "room-1", day, 1)
	require.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
