package ports

import (
	"context"

	"hydrocore/internal/domain/model"
)

// ActuatorMirror replays a dispatched command onto an external system
// (smart bulb, home automation hub). Mirrors never change what the agent receives.
type ActuatorMirror interface {
	Name() string
	Mirror(ctx context.Context, device *model.Device, cmd model.Command) error
}

// EventPublisher announces stored readings and dispatched commands to
// downstream consumers such as a live dashboard.
type EventPublisher interface {
	PublishReading(ctx context.Context, reading *model.Reading) error
	PublishCommand(ctx context.Context, device *model.Device, result IngestResult) error
}

type Metrics interface {
	ReadingStored(ok bool)
	CommandDispatched(cmd model.Command, source model.CommandSource)
	IngestRejected(reason string)
	ManualSlotContended()
}
