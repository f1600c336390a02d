package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FelixMarschall/SmartHomeBioSignal/internal/models"

	"go.uber.org/zap"
)

// SensorHistoryRepository stores fused sensor records in one append-only
// table per calendar day (fused_records_YYYYMMDD). The engine reads today's
// table and, across the midnight boundary, yesterday's.
type SensorHistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSensorHistoryRepository creates a new sensor history repository
func NewSensorHistoryRepository(db *sql.DB, logger *zap.Logger) *SensorHistoryRepository {
	return &SensorHistoryRepository{
		db:     db,
		logger: logger,
	}
}

// DayTableName 返回某天的分表名（fused_records_YYYYMMDD）
func DayTableName(day time.Time) string {
	return "fused_records_" + day.Format("20060102")
}

const recordColumns = `
	room_id,
	timestamp,
	wrist_temp_c,
	room_temp_c,
	room_humidity_pct,
	heart_rate_bpm,
	ibi_ms,
	sdnn_ms,
	classifier_prediction,
	heat,
	cool,
	humidify,
	dry,
	user_feedback
`

// EnsureDayTable creates the per-day table if it does not exist yet.
// The (room_id, timestamp) primary key keeps timestamps unique and the
// history strictly increasing per room.
func (r *SensorHistoryRepository) EnsureDayTable(ctx context.Context, day time.Time) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			room_id               TEXT NOT NULL,
			timestamp             TIMESTAMPTZ NOT NULL,
			wrist_temp_c          DOUBLE PRECISION NOT NULL,
			room_temp_c           DOUBLE PRECISION NOT NULL,
			room_humidity_pct     DOUBLE PRECISION NOT NULL,
			heart_rate_bpm        DOUBLE PRECISION NOT NULL,
			ibi_ms                DOUBLE PRECISION NOT NULL,
			sdnn_ms               DOUBLE PRECISION NOT NULL,
			classifier_prediction SMALLINT,
			heat                  SMALLINT,
			cool                  SMALLINT,
			humidify              SMALLINT,
			dry                   SMALLINT,
			user_feedback         SMALLINT,
			PRIMARY KEY (room_id, timestamp)
		)
	`, DayTableName(day))

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure day table: %w", err)
	}
	return nil
}

// AppendRecords appends fused records to the day tables derived from each
// record's timestamp. Records arrive from the upstream preprocessing
// collaborator with classifier_prediction already resolved.
func (r *SensorHistoryRepository) AppendRecords(ctx context.Context, roomID string, records []models.FusedRecord) error {
	if len(records) == 0 {
		return nil
	}

	// 按天确保分表存在（一批数据可能跨越午夜）
	ensured := map[string]bool{}
	for _, rec := range records {
		name := DayTableName(rec.Timestamp)
		if !ensured[name] {
			if err := r.EnsureDayTable(ctx, rec.Timestamp); err != nil {
				return err
			}
			ensured[name] = true
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		query := fmt.Sprintf(`
			INSERT INTO %s (%s)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, DayTableName(rec.Timestamp), recordColumns)

		_, err := tx.ExecContext(ctx, query,
			roomID,
			rec.Timestamp,
			rec.WristTempC,
			rec.RoomTempC,
			rec.RoomHumidityPct,
			rec.HeartRateBPM,
			rec.IBIMs,
			rec.SDNNMs,
			nullableInt(rec.ClassifierPrediction),
			nullableInt(rec.Heat),
			nullableInt(rec.Cool),
			nullableInt(rec.Humidify),
			nullableInt(rec.Dry),
			nullableInt(rec.UserFeedback),
		)
		if err != nil {
			return fmt.Errorf("failed to insert record at %s: %w", rec.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

// RecordsForDay returns all records of one room for the given day,
// ascending by timestamp. A day with no table yet yields an empty slice.
func (r *SensorHistoryRepository) RecordsForDay(ctx context.Context, roomID string, day time.Time) ([]models.FusedRecord, error) {
	if err := r.EnsureDayTable(ctx, day); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE room_id = $1
		ORDER BY timestamp ASC
	`, recordColumns, DayTableName(day))

	rows, err := r.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []models.FusedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return records, nil
}

// LatestRecord returns the newest record of one room for the given day,
// or nil when the day is empty.
func (r *SensorHistoryRepository) LatestRecord(ctx context.Context, roomID string, day time.Time) (*models.FusedRecord, error) {
	if err := r.EnsureDayTable(ctx, day); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE room_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`, recordColumns, DayTableName(day))

	rows, err := r.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRecord(rows)
}

// UpdateDecision writes the four action columns back onto the record that
// triggered the decision cycle.
func (r *SensorHistoryRepository) UpdateDecision(ctx context.Context, roomID string, ts time.Time, intent models.ActionIntent) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET heat = $1, cool = $2, humidify = $3, dry = $4
		WHERE room_id = $5 AND timestamp = $6
	`, DayTableName(ts))

	res, err := r.db.ExecContext(ctx, query,
		intent.Heat, intent.Cool, intent.Humidify, intent.Dry, roomID, ts)
	if err != nil {
		return fmt.Errorf("failed to update decision: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no record at %s for room %s", ts, roomID)
	}
	return nil
}

// SetUserFeedback sets the feedback value on the most recently appended
// record of the given day. Feedback is only ever attached to the newest
// record. 跨午夜时最新记录可能还在昨天的分表里，当天没有记录则回退到昨天。
func (r *SensorHistoryRepository) SetUserFeedback(ctx context.Context, roomID string, day time.Time, feedback int) error {
	affected, err := r.setFeedbackForDay(ctx, roomID, day, feedback)
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	yesterday := day.AddDate(0, 0, -1)
	affected, err = r.setFeedbackForDay(ctx, roomID, yesterday, feedback)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no records for room %s on %s or the day before", roomID, day.Format("2006-01-02"))
	}
	return nil
}

func (r *SensorHistoryRepository) setFeedbackForDay(ctx context.Context, roomID string, day time.Time, feedback int) (int64, error) {
	if err := r.EnsureDayTable(ctx, day); err != nil {
		return 0, err
	}

	table := DayTableName(day)
	query := fmt.Sprintf(`
		UPDATE %s
		SET user_feedback = $1
		WHERE room_id = $2
		  AND timestamp = (SELECT MAX(timestamp) FROM %s WHERE room_id = $2)
	`, table, table)

	res, err := r.db.ExecContext(ctx, query, feedback, roomID)
	if err != nil {
		return 0, fmt.Errorf("failed to set user feedback: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

// scanRecord 扫描单条记录
func scanRecord(rows *sql.Rows) (*models.FusedRecord, error) {
	var rec models.FusedRecord
	var roomID string
	var prediction, heat, cool, humidify, dry, feedback sql.NullInt64

	if err := rows.Scan(
		&roomID,
		&rec.Timestamp,
		&rec.WristTempC,
		&rec.RoomTempC,
		&rec.RoomHumidityPct,
		&rec.HeartRateBPM,
		&rec.IBIMs,
		&rec.SDNNMs,
		&prediction,
		&heat,
		&cool,
		&humidify,
		&dry,
		&feedback,
	); err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.ClassifierPrediction = intPtr(prediction)
	rec.Heat = intPtr(heat)
	rec.Cool = intPtr(cool)
	rec.Humidify = intPtr(humidify)
	rec.Dry = intPtr(dry)
	rec.UserFeedback = intPtr(feedback)

	return &rec, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
