// Package controller turns a device's thresholds, cached actuator state and
// latest sample into recommended actuator commands. It holds no state.
package controller

import "hydrocore/internal/domain/model"

const DefaultHysteresis = 5.0

type Config struct {
	MoistureHysteresis float64
	LightHysteresis    float64
	// Grow lights run during [DayStartHour, DayEndHour) when no light sensor reports.
	DayStartHour int
	DayEndHour   int
}

func DefaultConfig() Config {
	return Config{
		MoistureHysteresis: DefaultHysteresis,
		LightHysteresis:    DefaultHysteresis,
		DayStartHour:       6,
		DayEndHour:         22,
	}
}

type Controller struct {
	cfg Config
}

func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Evaluate returns every command the thresholds call for, pump first.
func (c *Controller) Evaluate(d *model.Device, s model.Sample, hour int) []model.Command {
	var cmds []model.Command
	if cmd, ok := c.pump(d, s); ok {
		cmds = append(cmds, cmd)
	}
	if cmd, ok := c.led(d, s, hour); ok {
		cmds = append(cmds, cmd)
	}
	return cmds
}

// Recommend evaluates and selects the single command to send.
func (c *Controller) Recommend(d *model.Device, s model.Sample, hour int) (model.Command, bool) {
	return Select(c.Evaluate(d, s, hour))
}

// Select picks one command per poll. Pump commands win over LED commands;
// the losing recommendation is dropped, not queued.
func Select(cmds []model.Command) (model.Command, bool) {
	for _, cmd := range cmds {
		if cmd.IsPump() {
			return cmd, true
		}
	}
	if len(cmds) > 0 {
		return cmds[0], true
	}
	return "", false
}

func (c *Controller) pump(d *model.Device, s model.Sample) (model.Command, bool) {
	if s.Moisture == nil {
		return "", false
	}
	return band(*s.Moisture, d.EffectiveMoistureThreshold(), c.cfg.MoistureHysteresis, d.PumpOn,
		model.CommandPumpOn, model.CommandPumpOff)
}

func (c *Controller) led(d *model.Device, s model.Sample, hour int) (model.Command, bool) {
	if s.Light != nil {
		return band(*s.Light, d.EffectiveLightThreshold(), c.cfg.LightHysteresis, d.LEDOn,
			model.CommandLEDOn, model.CommandLEDOff)
	}

	day := hour >= c.cfg.DayStartHour && hour < c.cfg.DayEndHour
	switch {
	case day && !d.LEDOn:
		return model.CommandLEDOn, true
	case !day && d.LEDOn:
		return model.CommandLEDOff, true
	}
	return "", false
}

// band switches on below threshold and off at or above threshold+hysteresis.
// Values in [threshold, threshold+hysteresis) hold the current state.
func band(value, threshold, hysteresis float64, on bool, onCmd, offCmd model.Command) (model.Command, bool) {
	switch {
	case value < threshold && !on:
		return onCmd, true
	case value >= threshold+hysteresis && on:
		return offCmd, true
	}
	return "", false
}
