package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "hydrocore/internal/adapters/input/http"
	"hydrocore/internal/adapters/input/ssdp"
	"hydrocore/internal/adapters/output/events"
	"hydrocore/internal/adapters/output/metrics"
	"hydrocore/internal/config"
	"hydrocore/internal/domain/controller"
	"hydrocore/internal/domain/service"
	"hydrocore/internal/logger"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion and control-plane API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("serve")

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	opts := []service.IngestOption{
		service.WithControllerConfig(controller.Config{
			MoistureHysteresis: cfg.Control.MoistureHysteresis,
			LightHysteresis:    cfg.Control.LightHysteresis,
			DayStartHour:       cfg.Control.DayStartHour,
			DayEndHour:         cfg.Control.DayEndHour,
		}),
		service.WithLocation(loc),
		service.WithMetrics(recorder),
		service.WithLogger(logger.WithComponent("ingest")),
		service.WithMirrors(mirrors(ctx, cfg)...),
	}

	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL, logger.WithComponent("nats"))
		if err != nil {
			return err
		}
		defer nc.Drain()
		opts = append(opts, service.WithEvents(events.NewPublisher(nc, cfg.NATS.SubjectPrefix)))
	}

	ingest := service.NewIngestService(st.registry, st.readings, opts...)
	control := service.NewControlService(st.registry, st.readings, logger.WithComponent("control"))
	control.SetHistoryLimits(cfg.History.DefaultLimit, cfg.History.MaxLimit)

	server := httpadapter.NewServer(ingest, control,
		httpadapter.WithMetrics(recorder.Handler(), recorder.Instrument),
		httpadapter.WithRequestTimeout(cfg.HTTP.RequestTimeout),
		httpadapter.WithLogger(logger.WithComponent("http")),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, cfg.HTTP.Addr)
	})

	if cfg.Discovery.Enabled {
		ip := cfg.Discovery.LocalIP
		if ip == "" {
			ip = ssdp.LocalIP()
		}
		if ip == "" {
			log.Warn().Msg("could not determine local IP; set LOCAL_IP to enable discovery")
		} else {
			responder := ssdp.NewServer(ip, cfg.Discovery.Port, logger.WithComponent("ssdp"))
			g.Go(func() error {
				return responder.Start(gctx)
			})
		}
	}

	log.Info().
		Str("addr", cfg.HTTP.Addr).
		Str("storage", cfg.Storage.Driver).
		Str("timezone", loc.String()).
		Msg("hydrocore started")

	err = g.Wait()
	ingest.Wait()
	log.Info().Msg("hydrocore stopped")
	return err
}
