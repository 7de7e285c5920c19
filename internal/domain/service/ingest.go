package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hydrocore/internal/domain/calibration"
	"hydrocore/internal/domain/controller"
	"hydrocore/internal/domain/model"
	"hydrocore/internal/ports"
)

const defaultMirrorTimeout = 10 * time.Second

type IngestService struct {
	registry   ports.DeviceRegistry
	readings   ports.ReadingStore
	arbitrator *Arbitrator
	mirrors    []ports.ActuatorMirror
	events     ports.EventPublisher
	metrics    ports.Metrics
	log        zerolog.Logger

	now           func() time.Time
	location      *time.Location
	newID         func() string
	mirrorTimeout time.Duration

	pending sync.WaitGroup
}

type IngestOption func(*IngestService)

func WithControllerConfig(cfg controller.Config) IngestOption {
	return func(s *IngestService) { s.arbitrator = NewArbitrator(controller.New(cfg)) }
}

func WithClock(now func() time.Time) IngestOption {
	return func(s *IngestService) { s.now = now }
}

// WithLocation sets the timezone used for the grow-light day window.
func WithLocation(loc *time.Location) IngestOption {
	return func(s *IngestService) { s.location = loc }
}

func WithMirrors(mirrors ...ports.ActuatorMirror) IngestOption {
	return func(s *IngestService) { s.mirrors = append(s.mirrors, mirrors...) }
}

func WithEvents(events ports.EventPublisher) IngestOption {
	return func(s *IngestService) { s.events = events }
}

func WithMetrics(metrics ports.Metrics) IngestOption {
	return func(s *IngestService) { s.metrics = metrics }
}

func WithLogger(log zerolog.Logger) IngestOption {
	return func(s *IngestService) { s.log = log }
}

func WithIDGenerator(newID func() string) IngestOption {
	return func(s *IngestService) { s.newID = newID }
}

func NewIngestService(registry ports.DeviceRegistry, readings ports.ReadingStore, opts ...IngestOption) *IngestService {
	s := &IngestService{
		registry:      registry,
		readings:      readings,
		arbitrator:    NewArbitrator(controller.New(controller.DefaultConfig())),
		metrics:       nopMetrics{},
		log:           zerolog.Nop(),
		now:           time.Now,
		location:      time.Local,
		newID:         uuid.NewString,
		mirrorTimeout: defaultMirrorTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest stores the report, arbitrates, and applies the manual-slot clear
// before returning so the next poll cannot see the same manual command.
func (s *IngestService) Ingest(ctx context.Context, report model.Report) (ports.IngestResult, error) {
	if !report.HasIdentity() {
		s.metrics.IngestRejected("missing_identity")
		return ports.IngestResult{}, model.ErrMissingIdentity
	}

	device, err := s.resolve(ctx, report)
	if err != nil {
		if errors.Is(err, model.ErrDeviceNotFound) {
			s.metrics.IngestRejected("not_found")
			s.log.Warn().Str("mac_address", report.MACAddress).Str("device_name", report.DeviceName).Msg("telemetry from unknown device")
		} else {
			s.metrics.IngestRejected("lookup_failed")
		}
		return ports.IngestResult{}, err
	}

	report = calibration.Apply(device.Calibration, report.Finite())
	now := s.now()
	reading := &model.Reading{
		ID:          s.newID(),
		DeviceID:    device.ID,
		DeviceName:  device.Name,
		Timestamp:   now.UTC(),
		Temperature: report.Temperature,
		Humidity:    report.Humidity,
		Moisture:    report.Moisture,
		Light:       report.Light,
	}
	s.storeReading(ctx, reading)
	s.syncActuators(ctx, device, report.Actuators)

	decision := s.arbitrator.Decide(device, reading.Sample(), now.In(s.location).Hour())

	if decision.ClearPending {
		cleared, err := s.registry.ClearPendingCommand(ctx, device.ID, decision.Command)
		if err != nil {
			return ports.IngestResult{}, fmt.Errorf("clear manual command for %s: %w", device.Name, err)
		}
		if !cleared {
			// consumed by another poll or replaced by the operator
			s.metrics.ManualSlotContended()
			s.log.Debug().Str("device", device.Name).Str("command", string(decision.Command)).Msg("manual command taken by a concurrent writer")
			return ports.IngestResult{}, nil
		}
	}

	result := ports.IngestResult{Command: decision.Command, Source: decision.Source}
	if result.HasCommand() {
		s.dispatched(ctx, device, result)
	}
	return result, nil
}

// Wait blocks until in-flight mirror calls finish.
func (s *IngestService) Wait() {
	s.pending.Wait()
}

func (s *IngestService) resolve(ctx context.Context, report model.Report) (*model.Device, error) {
	if report.MACAddress != "" {
		device, err := s.registry.FindByMAC(ctx, report.MACAddress)
		if err == nil {
			return device, nil
		}
		if !errors.Is(err, model.ErrDeviceNotFound) {
			return nil, err
		}
	}
	if report.DeviceName != "" {
		return s.registry.FindByName(ctx, report.DeviceName)
	}
	return nil, model.ErrDeviceNotFound
}

// storeReading logs failures; the poll carries on without the reading.
func (s *IngestService) storeReading(ctx context.Context, reading *model.Reading) {
	if err := s.readings.Append(ctx, reading); err != nil {
		s.metrics.ReadingStored(false)
		s.log.Error().Err(err).Str("device", reading.DeviceName).Msg("failed to store sensor reading")
		return
	}
	s.metrics.ReadingStored(true)

	if s.events != nil {
		if err := s.events.PublishReading(ctx, reading); err != nil {
			s.log.Warn().Err(err).Str("device", reading.DeviceName).Msg("failed to publish reading event")
		}
	}
}

// syncActuators caches the agent's self-reported outputs. The local copy is
// updated even if the write fails.
func (s *IngestService) syncActuators(ctx context.Context, device *model.Device, state model.ActuatorState) {
	if state.IsEmpty() {
		return
	}
	if state.Changes(device) {
		if err := s.registry.UpdateActuatorState(ctx, device.ID, state); err != nil {
			s.log.Warn().Err(err).Str("device", device.Name).Msg("failed to cache actuator state")
		}
	}
	state.Apply(device)
}

func (s *IngestService) dispatched(ctx context.Context, device *model.Device, result ports.IngestResult) {
	s.metrics.CommandDispatched(result.Command, result.Source)
	s.log.Info().
		Str("device", device.Name).
		Str("command", string(result.Command)).
		Str("source", string(result.Source)).
		Msg("command dispatched")

	if s.events != nil {
		if err := s.events.PublishCommand(ctx, device, result); err != nil {
			s.log.Warn().Err(err).Str("device", device.Name).Msg("failed to publish command event")
		}
	}

	for _, m := range s.mirrors {
		s.pending.Add(1)
		go func(m ports.ActuatorMirror) {
			defer s.pending.Done()
			mctx, cancel := context.WithTimeout(context.Background(), s.mirrorTimeout)
			defer cancel()
			if err := m.Mirror(mctx, device, result.Command); err != nil {
				s.log.Warn().Err(err).Str("mirror", m.Name()).Str("device", device.Name).Msg("failed to mirror command")
			}
		}(m)
	}
}

type nopMetrics struct{}

func (nopMetrics) ReadingStored(bool) {}
func (nopMetrics) CommandDispatched(model.Command, model.CommandSource) {}
func (nopMetrics) IngestRejected(string) {}
func (nopMetrics) ManualSlotContended() {}
