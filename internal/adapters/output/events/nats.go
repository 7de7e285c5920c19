package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"hydrocore/internal/domain/model"
	"hydrocore/internal/ports"
)

const (
	TypeReading = "hydrocore.reading.stored"
	TypeCommand = "hydrocore.command.dispatched"
)

// Event is the envelope every message carries.
type Event struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Source string    `json:"source"`
	Time   time.Time `json:"time"`
	Data   any       `json:"data"`
}

type CommandData struct {
	DeviceID   string              `json:"device_id"`
	DeviceName string              `json:"device_name"`
	Command    model.Command       `json:"command"`
	Source     model.CommandSource `json:"source"`
}

type publisher interface {
	Publish(subj string, data []byte) error
}

// Publisher sends events on core NATS subjects
// <prefix>.readings.<device> and <prefix>.commands.<device>.
type Publisher struct {
	conn   publisher
	prefix string
	now    func() time.Time
}

func NewPublisher(conn *nats.Conn, prefix string) *Publisher {
	return newPublisher(conn, prefix)
}

func newPublisher(conn publisher, prefix string) *Publisher {
	if prefix == "" {
		prefix = "hydrocore"
	}
	return &Publisher{conn: conn, prefix: prefix, now: time.Now}
}

func (p *Publisher) PublishReading(ctx context.Context, reading *model.Reading) error {
	return p.publish(p.subject("readings", reading.DeviceName), TypeReading, reading)
}

func (p *Publisher) PublishCommand(ctx context.Context, device *model.Device, result ports.IngestResult) error {
	return p.publish(p.subject("commands", device.Name), TypeCommand, CommandData{
		DeviceID:   device.ID,
		DeviceName: device.Name,
		Command:    result.Command,
		Source:     result.Source,
	})
}

func (p *Publisher) publish(subject, eventType string, data any) error {
	event := Event{
		ID:     uuid.New().String(),
		Type:   eventType,
		Source: "hydrocore/ingest",
		Time:   p.now().UTC(),
		Data:   data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}

func (p *Publisher) subject(kind, device string) string {
	return p.prefix + "." + kind + "." + subjectToken(device)
}

// subjectToken keeps a device name inside a single NATS subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

// Connect dials NATS with reconnect handlers that log through log.
func Connect(url string, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("hydrocore"),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
	return nc, nil
}
