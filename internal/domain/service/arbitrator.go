package service

import (
	"hydrocore/internal/domain/controller"
	"hydrocore/internal/domain/model"
)

// Decision is what the arbitrator wants sent to the agent, plus the registry
// mutation the caller must apply before answering.
type Decision struct {
	Command model.Command
	Source  model.CommandSource
	// ClearPending asks the caller to empty the manual slot, conditional on it
	// still holding Command.
	ClearPending bool
}

func (d Decision) HasCommand() bool {
	return d.Command != ""
}

// Arbitrator chooses between the operator's manual command and the auto
// controller. It reads only its arguments and never touches storage.
type Arbitrator struct {
	auto *controller.Controller
}

func NewArbitrator(auto *controller.Controller) *Arbitrator {
	return &Arbitrator{auto: auto}
}

func (a *Arbitrator) Decide(d *model.Device, s model.Sample, hour int) Decision {
	// Manual override wins regardless of auto mode.
	if d.PendingCommand != nil && *d.PendingCommand != "" {
		return Decision{Command: *d.PendingCommand, Source: model.SourceManual, ClearPending: true}
	}

	if !d.AutoMode {
		return Decision{}
	}

	cmd, ok := a.auto.Recommend(d, s, hour)
	if !ok {
		return Decision{}
	}
	return Decision{Command: cmd, Source: model.SourceAuto}
}
