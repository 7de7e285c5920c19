package calibration

import (
	"fmt"

	"github.com/Knetic/govaluate"

	"hydrocore/internal/domain/model"
)

// Apply returns a copy of r with each present value passed through the
// device's formula for that channel. Absent values stay absent, and a formula
// that yields NaN or an infinity makes the value absent.
func Apply(c *model.Calibration, r model.Report) model.Report {
	if c.IsEmpty() {
		return r
	}
	r.Temperature = apply(c.Formula(model.ChannelTemperature), r.Temperature)
	r.Humidity = apply(c.Formula(model.ChannelHumidity), r.Humidity)
	r.Moisture = apply(c.Formula(model.ChannelMoisture), r.Moisture)
	r.Light = apply(c.Formula(model.ChannelLight), r.Light)
	return r
}

// Validate rejects formulas that do not parse or do not yield a number for x=1.
func Validate(c *model.Calibration) error {
	if c == nil {
		return nil
	}
	for _, ch := range []model.Channel{model.ChannelTemperature, model.ChannelHumidity, model.ChannelMoisture, model.ChannelLight} {
		formula := c.Formula(ch)
		if formula == "" {
			continue
		}
		if _, err := evaluate(formula, 1); err != nil {
			return fmt.Errorf("%s formula %q: %w", ch, formula, err)
		}
	}
	return nil
}

func apply(formula string, v *float64) *float64 {
	if v == nil || formula == "" {
		return v
	}
	out, err := evaluate(formula, *v)
	if err != nil {
		return v
	}
	return model.Finite(&out)
}

// evaluate handles simple formulas like "x * 2.54" or "x / 2.54 + 7"
func evaluate(formula string, x float64) (float64, error) {
	expression, err := govaluate.NewEvaluableExpression(formula)
	if err != nil {
		return 0, err
	}
	parameters := make(map[string]interface{}, 1)
	parameters["x"] = x

	result, err := expression.Evaluate(parameters)
	if err != nil {
		return 0, err
	}

	if val, ok := result.(float64); ok {
		return val, nil
	}
	return 0, fmt.Errorf("formula result is %T, not a number", result)
}
