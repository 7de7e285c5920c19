package hue

import (
	"context"
	"errors"
	"fmt"

	"github.com/amimof/huego"

	"hydrocore/internal/domain/model"
)

var errNoBridge = errors.New("hue bridge not configured")

type lightSetter interface {
	SetLightStateContext(ctx context.Context, id int, state huego.State) (*huego.Response, error)
}

// Mirror switches a Hue light alongside a device's grow LED.
// Pump commands are ignored.
type Mirror struct {
	bridge lightSetter
	lights map[string]int
}

// NewMirror connects to the bridge at host with an already paired user.
// lights maps device names to Hue light IDs.
func NewMirror(host, user string, lights map[string]int) *Mirror {
	var bridge lightSetter
	if host != "" && user != "" {
		bridge = huego.New(host, user)
	}
	return newMirror(bridge, lights)
}

func newMirror(bridge lightSetter, lights map[string]int) *Mirror {
	m := &Mirror{bridge: bridge, lights: make(map[string]int, len(lights))}
	for name, id := range lights {
		m.lights[name] = id
	}
	return m
}

func (m *Mirror) Name() string { return "hue" }

func (m *Mirror) Mirror(ctx context.Context, device *model.Device, cmd model.Command) error {
	if !cmd.IsLED() {
		return nil
	}
	id, ok := m.lights[device.Name]
	if !ok {
		return nil
	}
	if m.bridge == nil {
		return errNoBridge
	}

	if _, err := m.bridge.SetLightStateContext(ctx, id, huego.State{On: cmd.TurnsOn()}); err != nil {
		return fmt.Errorf("hue light %d: %w", id, err)
	}
	return nil
}
