package ports

import (
	"context"

	"hydrocore/internal/domain/model"
)

// IngestResult is the answer returned to a polling agent. Command is empty
// when there is nothing to do.
type IngestResult struct {
	Command model.Command
	Source  model.CommandSource
}

func (r IngestResult) HasCommand() bool {
	return r.Command != ""
}

type IngestPort interface {
	Ingest(ctx context.Context, report model.Report) (IngestResult, error)
}

type ControlPort interface {
	UpdateSettings(ctx context.Context, name string, update model.SettingsUpdate) error
	GetSettings(ctx context.Context, name string) (*model.Settings, error)
	EnqueueCommand(ctx context.Context, name string, cmd model.Command) error

	ListDevices(ctx context.Context) ([]*model.DeviceOverview, error)
	GetReadings(ctx context.Context, name string, limit int) ([]*model.Reading, error)
}
