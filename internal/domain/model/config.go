package model

type Channel string

const (
	ChannelTemperature Channel = "temperature"
	ChannelHumidity    Channel = "humidity"
	ChannelMoisture    Channel = "moisture"
	ChannelLight       Channel = "light"
)

// Calibration maps raw sensor values to calibrated ones.
// Each formula uses the variable x, e.g. "x * 1.05 - 2".
type Calibration struct {
	TemperatureFormula string `json:"temperature_formula,omitempty"`
	HumidityFormula    string `json:"humidity_formula,omitempty"`
	MoistureFormula    string `json:"moisture_formula,omitempty"`
	LightFormula       string `json:"light_formula,omitempty"`
}

func (c *Calibration) Formula(ch Channel) string {
	if c == nil {
		return ""
	}
	switch ch {
	case ChannelTemperature:
		return c.TemperatureFormula
	case ChannelHumidity:
		return c.HumidityFormula
	case ChannelMoisture:
		return c.MoistureFormula
	case ChannelLight:
		return c.LightFormula
	}
	return ""
}

func (c *Calibration) IsEmpty() bool {
	return c == nil || (c.TemperatureFormula == "" && c.HumidityFormula == "" &&
		c.MoistureFormula == "" && c.LightFormula == "")
}
