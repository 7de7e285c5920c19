package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"hydrocore/internal/domain/model"
	"hydrocore/internal/ports"
)

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) device(args mock.Arguments) (*model.Device, error) {
	d, _ := args.Get(0).(*model.Device)
	return d, args.Error(1)
}

func (m *MockRegistry) FindByMAC(ctx context.Context, mac string) (*model.Device, error) {
	return m.device(m.Called(ctx, mac))
}

func (m *MockRegistry) FindByName(ctx context.Context, name string) (*model.Device, error) {
	return m.device(m.Called(ctx, name))
}

func (m *MockRegistry) List(ctx context.Context) ([]*model.Device, error) {
	args := m.Called(ctx)
	devices, _ := args.Get(0).([]*model.Device)
	return devices, args.Error(1)
}

func (m *MockRegistry) Create(ctx context.Context, device *model.Device) error {
	return m.Called(ctx, device).Error(0)
}

func (m *MockRegistry) UpdateSettings(ctx context.Context, name string, update model.SettingsUpdate) error {
	return m.Called(ctx, name, update).Error(0)
}

func (m *MockRegistry) SetPendingCommand(ctx context.Context, name string, cmd model.Command) error {
	return m.Called(ctx, name, cmd).Error(0)
}

func (m *MockRegistry) UpdateActuatorState(ctx context.Context, id string, state model.ActuatorState) error {
	return m.Called(ctx, id, state).Error(0)
}

func (m *MockRegistry) ClearPendingCommand(ctx context.Context, id string, expected model.Command) (bool, error) {
	args := m.Called(ctx, id, expected)
	return args.Bool(0), args.Error(1)
}

type MockReadings struct {
	mock.Mock
}

func (m *MockReadings) Append(ctx context.Context, reading *model.Reading) error {
	return m.Called(ctx, reading).Error(0)
}

func (m *MockReadings) Recent(ctx context.Context, deviceID string, limit int) ([]*model.Reading, error) {
	args := m.Called(ctx, deviceID, limit)
	readings, _ := args.Get(0).([]*model.Reading)
	return readings, args.Error(1)
}

type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) Name() string { return "mock" }

func (m *MockMirror) Mirror(ctx context.Context, device *model.Device, cmd model.Command) error {
	return m.Called(ctx, device, cmd).Error(0)
}

type MockEvents struct {
	mock.Mock
}

func (m *MockEvents) PublishReading(ctx context.Context, reading *model.Reading) error {
	return m.Called(ctx, reading).Error(0)
}

func (m *MockEvents) PublishCommand(ctx context.Context, device *model.Device, result ports.IngestResult) error {
	return m.Called(ctx, device, result).Error(0)
}

type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) ReadingStored(ok bool) { m.Called(ok) }

func (m *MockMetrics) CommandDispatched(cmd model.Command, source model.CommandSource) {
	m.Called(cmd, source)
}

func (m *MockMetrics) IngestRejected(reason string) { m.Called(reason) }

func (m *MockMetrics) ManualSlotContended() { m.Called() }
