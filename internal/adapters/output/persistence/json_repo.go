package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"hydrocore/internal/domain/model"
)

// JSONDeviceRepository keeps the device registry in a single JSON file.
// Every mutation is a read-modify-write under one lock, which also makes the
// manual-slot clear atomic with respect to concurrent polls.
type JSONDeviceRepository struct {
	filepath string
	mu       sync.RWMutex
}

type deviceFile struct {
	Devices []*model.Device `json:"devices"`
}

// Rows exported from the dashboard's devices table, before the registry had
// its own file format.
type legacyDevice struct {
	ID                json.RawMessage `json:"id"`
	MACAddress        string          `json:"mac_address"`
	DeviceName        string          `json:"device_name"`
	AutoMode          *bool           `json:"auto_mode"`
	MoistureThreshold *float64        `json:"moisture_threshold"`
	LightThreshold    *float64        `json:"light_threshold"`
	PumpState         *bool           `json:"pump_state"`
	LEDState          *bool           `json:"led_state"`
	CurrentCommand    *string         `json:"current_command"`
}

func NewJSONDeviceRepository(filepath string) *JSONDeviceRepository {
	return &JSONDeviceRepository{filepath: filepath}
}

func (r *JSONDeviceRepository) FindByMAC(ctx context.Context, mac string) (*model.Device, error) {
	return r.find(func(d *model.Device) bool { return d.MACAddress != "" && strings.EqualFold(d.MACAddress, mac) })
}

func (r *JSONDeviceRepository) FindByName(ctx context.Context, name string) (*model.Device, error) {
	return r.find(func(d *model.Device) bool { return d.Name == name })
}

func (r *JSONDeviceRepository) List(ctx context.Context) ([]*model.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	df, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]*model.Device, 0, len(df.Devices))
	for _, d := range df.Devices {
		out = append(out, clone(d))
	}
	return out, nil
}

func (r *JSONDeviceRepository) Create(ctx context.Context, device *model.Device) error {
	if device.Name == "" {
		return model.ErrMissingIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	df, err := r.load()
	if err != nil {
		return err
	}
	for _, d := range df.Devices {
		if d.Name == device.Name {
			return fmt.Errorf("%w: name %q", model.ErrDeviceExists, device.Name)
		}
		if device.MACAddress != "" && strings.EqualFold(d.MACAddress, device.MACAddress) {
			return fmt.Errorf("%w: mac %q", model.ErrDeviceExists, device.MACAddress)
		}
	}
	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	df.Devices = append(df.Devices, clone(device))
	return r.save(df)
}

func (r *JSONDeviceRepository) UpdateSettings(ctx context.Context, name string, update model.SettingsUpdate) error {
	return r.mutate(func(d *model.Device) bool { return d.Name == name }, func(d *model.Device) bool {
		update.Apply(d)
		return true
	})
}

func (r *JSONDeviceRepository) SetPendingCommand(ctx context.Context, name string, cmd model.Command) error {
	return r.mutate(func(d *model.Device) bool { return d.Name == name }, func(d *model.Device) bool {
		c := cmd
		d.PendingCommand = &c
		return true
	})
}

func (r *JSONDeviceRepository) UpdateActuatorState(ctx context.Context, id string, state model.ActuatorState) error {
	return r.mutate(func(d *model.Device) bool { return d.ID == id }, func(d *model.Device) bool {
		state.Apply(d)
		return true
	})
}

func (r *JSONDeviceRepository) ClearPendingCommand(ctx context.Context, id string, expected model.Command) (bool, error) {
	cleared := false
	err := r.mutate(func(d *model.Device) bool { return d.ID == id }, func(d *model.Device) bool {
		if d.PendingCommand == nil || *d.PendingCommand != expected {
			return false
		}
		d.PendingCommand = nil
		cleared = true
		return true
	})
	return cleared, err
}

func (r *JSONDeviceRepository) find(match func(*model.Device) bool) (*model.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	df, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, d := range df.Devices {
		if match(d) {
			return clone(d), nil
		}
	}
	return nil, model.ErrDeviceNotFound
}

// mutate applies change to the first matching device and saves only if
// change reports that it modified something.
func (r *JSONDeviceRepository) mutate(match func(*model.Device) bool, change func(*model.Device) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	df, err := r.load()
	if err != nil {
		return err
	}
	for _, d := range df.Devices {
		if !match(d) {
			continue
		}
		if !change(d) {
			return nil
		}
		return r.save(df)
	}
	return model.ErrDeviceNotFound
}

func (r *JSONDeviceRepository) load() (*deviceFile, error) {
	data, err := os.ReadFile(r.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return &deviceFile{Devices: []*model.Device{}}, nil
		}
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &deviceFile{Devices: []*model.Device{}}, nil
	}
	// Migration check: a top-level array is a legacy table export
	if trimmed[0] == '[' {
		return r.migrate(trimmed)
	}

	var df deviceFile
	if err := json.Unmarshal(trimmed, &df); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.filepath, err)
	}
	if df.Devices == nil {
		df.Devices = []*model.Device{}
	}
	for _, d := range df.Devices {
		if d.PendingCommand == nil {
			continue
		}
		// hand edits may leave values outside the command set
		if cmd, ok := model.ParseStoredCommand(string(*d.PendingCommand)); ok {
			d.PendingCommand = &cmd
		} else {
			d.PendingCommand = nil
		}
	}
	return &df, nil
}

func (r *JSONDeviceRepository) migrate(data []byte) (*deviceFile, error) {
	var legacy []legacyDevice
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("decode legacy devices %s: %w", r.filepath, err)
	}

	df := &deviceFile{Devices: make([]*model.Device, 0, len(legacy))}
	for _, l := range legacy {
		if l.DeviceName == "" {
			continue
		}
		d := &model.Device{
			ID:                strings.Trim(string(l.ID), `"`),
			MACAddress:        l.MACAddress,
			Name:              l.DeviceName,
			MoistureThreshold: l.MoistureThreshold,
			LightThreshold:    l.LightThreshold,
		}
		// must be stable across loads until the migrated file is first saved
		if d.ID == "" || d.ID == "null" {
			d.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(l.DeviceName)).String()
		}
		if l.AutoMode != nil {
			d.AutoMode = *l.AutoMode
		}
		if l.PumpState != nil {
			d.PumpOn = *l.PumpState
		}
		if l.LEDState != nil {
			d.LEDOn = *l.LEDState
		}
		if l.CurrentCommand != nil {
			if cmd, ok := model.ParseStoredCommand(*l.CurrentCommand); ok {
				d.PendingCommand = &cmd
			}
		}
		df.Devices = append(df.Devices, d)
	}
	return df, nil
}

func (r *JSONDeviceRepository) save(df *deviceFile) error {
	data, err := json.MarshalIndent(df, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(r.filepath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := r.filepath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, r.filepath)
}

func clone(d *model.Device) *model.Device {
	c := *d
	if d.MoistureThreshold != nil {
		v := *d.MoistureThreshold
		c.MoistureThreshold = &v
	}
	if d.LightThreshold != nil {
		v := *d.LightThreshold
		c.LightThreshold = &v
	}
	if d.PendingCommand != nil {
		v := *d.PendingCommand
		c.PendingCommand = &v
	}
	if d.Calibration != nil {
		v := *d.Calibration
		c.Calibration = &v
	}
	return &c
}
