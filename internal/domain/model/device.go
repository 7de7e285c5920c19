package model

const (
	DefaultMoistureThreshold = 30.0
	DefaultLightThreshold    = 20.0
)

// Device is the registry record of one physical agent.
// Thresholds are nil when never set; use the accessors so every consumer
// applies the same defaults.
type Device struct {
	ID                string       `json:"id"`
	MACAddress        string       `json:"mac_address,omitempty"`
	Name              string       `json:"device_name"`
	AutoMode          bool         `json:"auto_mode"`
	MoistureThreshold *float64     `json:"moisture_threshold,omitempty"`
	LightThreshold    *float64     `json:"light_threshold,omitempty"`
	PumpOn            bool         `json:"pump_state"`
	LEDOn             bool         `json:"led_state"`
	PendingCommand    *Command     `json:"current_command,omitempty"`
	Calibration       *Calibration `json:"calibration,omitempty"`
}

func (d *Device) EffectiveMoistureThreshold() float64 {
	if d.MoistureThreshold == nil {
		return DefaultMoistureThreshold
	}
	return *d.MoistureThreshold
}

func (d *Device) EffectiveLightThreshold() float64 {
	if d.LightThreshold == nil {
		return DefaultLightThreshold
	}
	return *d.LightThreshold
}

// Settings is the read-only control-plane view of a device.
type Settings struct {
	AutoMode          bool    `json:"auto_mode"`
	MoistureThreshold float64 `json:"moisture_threshold"`
	LightThreshold    float64 `json:"light_threshold"`
	PumpOn            bool    `json:"pump_state"`
	LEDOn             bool    `json:"led_state"`
}

func (d *Device) Settings() Settings {
	return Settings{
		AutoMode:          d.AutoMode,
		MoistureThreshold: d.EffectiveMoistureThreshold(),
		LightThreshold:    d.EffectiveLightThreshold(),
		PumpOn:            d.PumpOn,
		LEDOn:             d.LEDOn,
	}
}

// SettingsUpdate is a partial update; nil fields keep their stored value.
type SettingsUpdate struct {
	AutoMode          *bool    `json:"auto_mode,omitempty"`
	MoistureThreshold *float64 `json:"moisture_threshold,omitempty"`
	LightThreshold    *float64 `json:"light_threshold,omitempty"`
}

func (u SettingsUpdate) IsEmpty() bool {
	return u.AutoMode == nil && u.MoistureThreshold == nil && u.LightThreshold == nil
}

// Apply copies the supplied fields onto d.
func (u SettingsUpdate) Apply(d *Device) {
	if u.AutoMode != nil {
		d.AutoMode = *u.AutoMode
	}
	if u.MoistureThreshold != nil {
		v := *u.MoistureThreshold
		d.MoistureThreshold = &v
	}
	if u.LightThreshold != nil {
		v := *u.LightThreshold
		d.LightThreshold = &v
	}
}

// ActuatorState is what an agent reports about its own outputs. Nil means not reported.
type ActuatorState struct {
	PumpOn *bool
	LEDOn  *bool
}

func (a ActuatorState) IsEmpty() bool {
	return a.PumpOn == nil && a.LEDOn == nil
}

// Changes reports whether applying a would alter the cached state of d.
func (a ActuatorState) Changes(d *Device) bool {
	return (a.PumpOn != nil && *a.PumpOn != d.PumpOn) || (a.LEDOn != nil && *a.LEDOn != d.LEDOn)
}

func (a ActuatorState) Apply(d *Device) {
	if a.PumpOn != nil {
		d.PumpOn = *a.PumpOn
	}
	if a.LEDOn != nil {
		d.LEDOn = *a.LEDOn
	}
}
