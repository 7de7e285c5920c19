package postgres

import (
	"context"
	"fmt"

	"hydrocore/internal/domain/model"
)

const (
	insertReading = `INSERT INTO sensor_readings
		(id, device_id, device_name, recorded_at, temperature, humidity, moisture, light)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	selectRecentReadings = `SELECT id, device_id, device_name, recorded_at, temperature, humidity, moisture, light
		FROM sensor_readings
		WHERE device_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2`
)

type ReadingRepository struct {
	db Executor
}

func NewReadingRepository(db Executor) *ReadingRepository {
	return &ReadingRepository{db: db}
}

func (r *ReadingRepository) Append(ctx context.Context, reading *model.Reading) error {
	_, err := r.db.Exec(ctx, insertReading,
		reading.ID,
		reading.DeviceID,
		reading.DeviceName,
		reading.Timestamp,
		reading.Temperature,
		reading.Humidity,
		reading.Moisture,
		reading.Light,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert reading: %w", err)
	}
	return nil
}

// Recent returns up to limit readings for deviceID, newest first.
func (r *ReadingRepository) Recent(ctx context.Context, deviceID string, limit int) ([]*model.Reading, error) {
	if limit <= 0 {
		return []*model.Reading{}, nil
	}

	rows, err := r.db.Query(ctx, selectRecentReadings, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent readings: %w", err)
	}
	defer rows.Close()

	readings := make([]*model.Reading, 0, limit)
	for rows.Next() {
		var rd model.Reading
		if err := rows.Scan(
			&rd.ID,
			&rd.DeviceID,
			&rd.DeviceName,
			&rd.Timestamp,
			&rd.Temperature,
			&rd.Humidity,
			&rd.Moisture,
			&rd.Light,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan reading: %w", err)
		}
		readings = append(readings, &rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: recent readings: %w", err)
	}
	return readings, nil
}
