package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"hydrocore/internal/domain/model"
)

const uniqueViolation = "23505"

const deviceColumns = `id, mac_address, device_name, auto_mode, moisture_threshold, light_threshold,
	pump_state, led_state, current_command, calibration`

const (
	selectDeviceByMAC  = `SELECT ` + deviceColumns + ` FROM devices WHERE lower(mac_address) = lower($1)`
	selectDeviceByName = `SELECT ` + deviceColumns + ` FROM devices WHERE device_name = $1`
	selectDevices      = `SELECT ` + deviceColumns + ` FROM devices ORDER BY device_name`

	insertDevice = `INSERT INTO devices (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	updateSettings = `UPDATE devices SET
		auto_mode          = COALESCE($2, auto_mode),
		moisture_threshold = COALESCE($3, moisture_threshold),
		light_threshold    = COALESCE($4, light_threshold)
		WHERE device_name = $1`

	updatePendingCommand = `UPDATE devices SET current_command = $2 WHERE device_name = $1`

	updateActuatorState = `UPDATE devices SET
		pump_state = COALESCE($2, pump_state),
		led_state  = COALESCE($3, led_state)
		WHERE id = $1`

	// storedCommand reads current_command the way model.ParseStoredCommand does
	storedCommand = `CASE lower(btrim(current_command, E' \t\r\n'))
		WHEN 'true' THEN 'PUMP_ON'
		WHEN 'false' THEN 'PUMP_OFF'
		ELSE upper(btrim(current_command, E' \t\r\n')) END`

	clearPendingCommand = `UPDATE devices SET current_command = NULL
		WHERE id = $1 AND ` + storedCommand + ` = $2`

	deviceExists = `SELECT EXISTS (SELECT 1 FROM devices WHERE id = $1)`
)

// DeviceRepository is the Postgres device registry. The manual slot is
// cleared with a single conditional UPDATE so concurrent polls race on the
// row lock and only one of them sees a row affected.
type DeviceRepository struct {
	db Executor
}

func NewDeviceRepository(db Executor) *DeviceRepository {
	return &DeviceRepository{db: db}
}

func (r *DeviceRepository) FindByMAC(ctx context.Context, mac string) (*model.Device, error) {
	return r.findOne(ctx, selectDeviceByMAC, mac)
}

func (r *DeviceRepository) FindByName(ctx context.Context, name string) (*model.Device, error) {
	return r.findOne(ctx, selectDeviceByName, name)
}

func (r *DeviceRepository) findOne(ctx context.Context, query, key string) (*model.Device, error) {
	d, err := scanDevice(r.db.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find device: %w", err)
	}
	return d, nil
}

func (r *DeviceRepository) List(ctx context.Context) ([]*model.Device, error) {
	rows, err := r.db.Query(ctx, selectDevices)
	if err != nil {
		return nil, fmt.Errorf("postgres: list devices: %w", err)
	}
	defer rows.Close()

	devices := []*model.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list devices: %w", err)
	}
	return devices, nil
}

func (r *DeviceRepository) Create(ctx context.Context, device *model.Device) error {
	if device.Name == "" {
		return model.ErrMissingIdentity
	}
	if device.ID == "" {
		device.ID = uuid.NewString()
	}

	var calibration []byte
	if !device.Calibration.IsEmpty() {
		var err error
		if calibration, err = json.Marshal(device.Calibration); err != nil {
			return err
		}
	}

	_, err := r.db.Exec(ctx, insertDevice,
		device.ID,
		nullable(device.MACAddress),
		device.Name,
		device.AutoMode,
		device.MoistureThreshold,
		device.LightThreshold,
		device.PumpOn,
		device.LEDOn,
		commandArg(device.PendingCommand),
		calibration,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", model.ErrDeviceExists, pgErr.ConstraintName)
	}
	if err != nil {
		return fmt.Errorf("postgres: insert device: %w", err)
	}
	return nil
}

func (r *DeviceRepository) UpdateSettings(ctx context.Context, name string, update model.SettingsUpdate) error {
	tag, err := r.db.Exec(ctx, updateSettings, name, update.AutoMode, update.MoistureThreshold, update.LightThreshold)
	if err != nil {
		return fmt.Errorf("postgres: update settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrDeviceNotFound
	}
	return nil
}

func (r *DeviceRepository) SetPendingCommand(ctx context.Context, name string, cmd model.Command) error {
	tag, err := r.db.Exec(ctx, updatePendingCommand, name, string(cmd))
	if err != nil {
		return fmt.Errorf("postgres: set pending command: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrDeviceNotFound
	}
	return nil
}

func (r *DeviceRepository) UpdateActuatorState(ctx context.Context, id string, state model.ActuatorState) error {
	tag, err := r.db.Exec(ctx, updateActuatorState, id, state.PumpOn, state.LEDOn)
	if err != nil {
		return fmt.Errorf("postgres: update actuator state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrDeviceNotFound
	}
	return nil
}

func (r *DeviceRepository) ClearPendingCommand(ctx context.Context, id string, expected model.Command) (bool, error) {
	tag, err := r.db.Exec(ctx, clearPendingCommand, id, string(expected))
	if err != nil {
		return false, fmt.Errorf("postgres: clear pending command: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, deviceExists, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: clear pending command: %w", err)
	}
	if !exists {
		return false, model.ErrDeviceNotFound
	}
	return false, nil
}

func scanDevice(row pgx.Row) (*model.Device, error) {
	var (
		d           model.Device
		mac         *string
		command     *string
		calibration []byte
	)
	err := row.Scan(
		&d.ID,
		&mac,
		&d.Name,
		&d.AutoMode,
		&d.MoistureThreshold,
		&d.LightThreshold,
		&d.PumpOn,
		&d.LEDOn,
		&command,
		&calibration,
	)
	if err != nil {
		return nil, err
	}
	if mac != nil {
		d.MACAddress = *mac
	}
	if command != nil {
		// rows written by hand or by old firmware may hold anything
		if cmd, ok := model.ParseStoredCommand(*command); ok {
			d.PendingCommand = &cmd
		}
	}
	if len(calibration) > 0 {
		var c model.Calibration
		if err := json.Unmarshal(calibration, &c); err != nil {
			return nil, fmt.Errorf("decode calibration for %s: %w", d.Name, err)
		}
		d.Calibration = &c
	}
	return &d, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func commandArg(c *model.Command) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}
