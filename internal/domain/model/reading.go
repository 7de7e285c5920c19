package model

import (
	"math"
	"time"
)

// Report is one telemetry submission from an agent. Absent sensors stay nil.
type Report struct {
	MACAddress  string
	DeviceName  string
	Temperature *float64
	Humidity    *float64
	Moisture    *float64
	Light       *float64
	Actuators   ActuatorState
}

func (r *Report) HasIdentity() bool {
	return r.MACAddress != "" || r.DeviceName != ""
}

// Finite returns a copy of r with NaN and infinite sensor values dropped.
// Agents send NaN when a sensor read fails, so those channels count as absent.
func (r Report) Finite() Report {
	r.Temperature = Finite(r.Temperature)
	r.Humidity = Finite(r.Humidity)
	r.Moisture = Finite(r.Moisture)
	r.Light = Finite(r.Light)
	return r
}

// Finite returns v, or nil when v is NaN or infinite.
func Finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

// Reading is an immutable entry in the telemetry log.
type Reading struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	Moisture    *float64  `json:"moisture"`
	Light       *float64  `json:"light"`
}

// Sample is the subset of a reading the auto controller looks at.
type Sample struct {
	Moisture *float64
	Light    *float64
}

func (r *Reading) Sample() Sample {
	return Sample{Moisture: r.Moisture, Light: r.Light}
}

// DeviceOverview pairs a device with its newest reading, if any.
type DeviceOverview struct {
	Name          string   `json:"device_name"`
	MACAddress    string   `json:"mac_address,omitempty"`
	Settings      Settings `json:"settings"`
	LatestReading *Reading `json:"latest_reading"`
}
