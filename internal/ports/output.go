package ports

import (
	"context"

	"hydrocore/internal/domain/model"
)

// DeviceRegistry owns mutable device state. Lookups return model.ErrDeviceNotFound
// when no device matches.
type DeviceRegistry interface {
	FindByMAC(ctx context.Context, mac string) (*model.Device, error)
	FindByName(ctx context.Context, name string) (*model.Device, error)
	List(ctx context.Context) ([]*model.Device, error)
	Create(ctx context.Context, device *model.Device) error

	UpdateSettings(ctx context.Context, name string, update model.SettingsUpdate) error
	SetPendingCommand(ctx context.Context, name string, cmd model.Command) error
	UpdateActuatorState(ctx context.Context, id string, state model.ActuatorState) error

	// ClearPendingCommand empties the manual slot only if it still holds expected.
	// It reports false when another writer got there first.
	ClearPendingCommand(ctx context.Context, id string, expected model.Command) (bool, error)
}

// ReadingStore is the append-only telemetry log.
type ReadingStore interface {
	Append(ctx context.Context, reading *model.Reading) error
	Recent(ctx context.Context, deviceID string, limit int) ([]*model.Reading, error)
}
