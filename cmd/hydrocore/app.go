package main

import (
	"context"
	"fmt"

	"hydrocore/internal/adapters/output/homeassistant"
	"hydrocore/internal/adapters/output/hue"
	"hydrocore/internal/adapters/output/persistence"
	"hydrocore/internal/adapters/output/postgres"
	"hydrocore/internal/config"
	"hydrocore/internal/logger"
	"hydrocore/internal/ports"
)

type stores struct {
	registry ports.DeviceRegistry
	readings ports.ReadingStore
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	log := logger.WithComponent("storage")

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Storage.Postgres.URL, cfg.Storage.Postgres.MaxConns, log)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &stores{
			registry: postgres.NewDeviceRepository(pool),
			readings: postgres.NewReadingRepository(pool),
			close:    pool.Close,
		}, nil

	case config.DriverJSON:
		log.Info().
			Str("devices", cfg.Storage.JSON.DevicesPath).
			Str("readings", cfg.Storage.JSON.ReadingsPath).
			Msg("using JSON file storage")
		return &stores{
			registry: persistence.NewJSONDeviceRepository(cfg.Storage.JSON.DevicesPath),
			readings: persistence.NewJSONLReadingStore(cfg.Storage.JSON.ReadingsPath),
			close:    func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// mirrors builds the actuator mirrors that have enough configuration to run.
func mirrors(ctx context.Context, cfg *config.Config) []ports.ActuatorMirror {
	log := logger.WithComponent("mirror")
	var out []ports.ActuatorMirror

	if h := cfg.Mirror.Hue; h.Host != "" && len(h.Lights) > 0 {
		if h.User == "" {
			log.Warn().Str("host", h.Host).Msg("hue mirror needs a paired user; skipping")
		} else {
			out = append(out, hue.NewMirror(h.Host, h.User, h.Lights))
		}
	}

	ha := homeassistant.NewClient()
	entities := make(map[string]homeassistant.Entities, len(cfg.Mirror.HomeAssistant.Entities))
	for name, e := range cfg.Mirror.HomeAssistant.Entities {
		entities[name] = homeassistant.Entities{Pump: e.Pump, Light: e.Light}
	}
	ha.Configure(cfg.Mirror.HomeAssistant.URL, cfg.Mirror.HomeAssistant.Token, entities)
	if ha.IsConfigured() && len(entities) > 0 {
		if err := ha.CheckConnection(ctx); err != nil {
			log.Warn().Err(err).Msg("home assistant unreachable; mirroring anyway")
		}
		out = append(out, ha)
	}

	for _, m := range out {
		log.Info().Str("mirror", m.Name()).Msg("actuator mirror enabled")
	}
	return out
}
