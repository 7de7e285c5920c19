package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"hydrocore/internal/domain/model"
	"hydrocore/internal/ports"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

type ControlService struct {
	registry     ports.DeviceRegistry
	readings     ports.ReadingStore
	log          zerolog.Logger
	defaultLimit int
	maxLimit     int
}

func NewControlService(registry ports.DeviceRegistry, readings ports.ReadingStore, log zerolog.Logger) *ControlService {
	return &ControlService{
		registry:     registry,
		readings:     readings,
		log:          log,
		defaultLimit: DefaultHistoryLimit,
		maxLimit:     MaxHistoryLimit,
	}
}

// SetHistoryLimits overrides the default and maximum page size for GetReadings.
func (s *ControlService) SetHistoryLimits(defaultLimit, maxLimit int) {
	if defaultLimit > 0 {
		s.defaultLimit = defaultLimit
	}
	if maxLimit > 0 {
		s.maxLimit = maxLimit
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}
}

func (s *ControlService) UpdateSettings(ctx context.Context, name string, update model.SettingsUpdate) error {
	if name == "" {
		return model.ErrMissingIdentity
	}
	if update.IsEmpty() {
		return fmt.Errorf("%w: nothing to update", model.ErrInvalidSettings)
	}
	if err := validThreshold("moisture_threshold", update.MoistureThreshold); err != nil {
		return err
	}
	if err := validThreshold("light_threshold", update.LightThreshold); err != nil {
		return err
	}

	if err := s.registry.UpdateSettings(ctx, name, update); err != nil {
		return err
	}
	s.log.Info().Str("device", name).Interface("update", update).Msg("settings updated")
	return nil
}

func (s *ControlService) GetSettings(ctx context.Context, name string) (*model.Settings, error) {
	if name == "" {
		return nil, model.ErrMissingIdentity
	}
	device, err := s.registry.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	settings := device.Settings()
	return &settings, nil
}

// EnqueueCommand fills the manual slot, replacing any command not yet consumed.
func (s *ControlService) EnqueueCommand(ctx context.Context, name string, cmd model.Command) error {
	if name == "" {
		return model.ErrMissingIdentity
	}
	if !cmd.Valid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidCommand, cmd)
	}
	if err := s.registry.SetPendingCommand(ctx, name, cmd); err != nil {
		return err
	}
	s.log.Info().Str("device", name).Str("command", string(cmd)).Msg("manual command queued")
	return nil
}

func (s *ControlService) ListDevices(ctx context.Context) ([]*model.DeviceOverview, error) {
	devices, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*model.DeviceOverview, 0, len(devices))
	for _, d := range devices {
		overview := &model.DeviceOverview{
			Name:       d.Name,
			MACAddress: d.MACAddress,
			Settings:   d.Settings(),
		}
		latest, err := s.readings.Recent(ctx, d.ID, 1)
		if err != nil {
			return nil, fmt.Errorf("latest reading for %s: %w", d.Name, err)
		}
		if len(latest) > 0 {
			overview.LatestReading = latest[0]
		}
		out = append(out, overview)
	}
	return out, nil
}

// GetReadings returns the newest readings first. limit <= 0 means the default page.
func (s *ControlService) GetReadings(ctx context.Context, name string, limit int) ([]*model.Reading, error) {
	if name == "" {
		return nil, model.ErrMissingIdentity
	}
	device, err := s.registry.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	return s.readings.Recent(ctx, device.ID, limit)
}

func validThreshold(field string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return fmt.Errorf("%w: %s must be a finite number", model.ErrInvalidSettings, field)
	}
	return nil
}

// IsClientError reports whether err stems from bad input rather than storage.
func IsClientError(err error) bool {
	return errors.Is(err, model.ErrMissingIdentity) ||
		errors.Is(err, model.ErrInvalidCommand) ||
		errors.Is(err, model.ErrInvalidSettings)
}
