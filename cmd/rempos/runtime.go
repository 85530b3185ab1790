package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"rempos/internal/bridge"
	"rempos/internal/config"
	"rempos/internal/ingest"
	"rempos/internal/web"
)

const statsInterval = time.Minute

// service is the wired process: one bridge, its metrics registry and the
// optional HTTP surface.
type service struct {
	cfg     config.Config
	reg     *prometheus.Registry
	bridge  *bridge.Controller
	status  *web.Status
	handler http.Handler
}

func newService(cfg config.Config, logs *web.LogBuffer) *service {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctl := bridge.New(bridge.Config{Ingest: ingest.Config{
		Product:      cfg.Ingest.Product,
		Version:      cfg.Ingest.Version,
		WriteTimeout: cfg.Ingest.WriteTimeout,
		ReadLimit:    cfg.Ingest.ReadLimit,
		ReusePort:    cfg.Ingest.ReusePort,
	}}, bridge.WithMetrics(ingest.NewMetrics(reg)))

	status := web.NewStatus()
	status.SetStatic(cfg.Ingest.Product, cfg.Ingest.Version, bindFor(cfg).String())

	return &service{
		cfg:     cfg,
		reg:     reg,
		bridge:  ctl,
		status:  status,
		handler: web.Handler(status, ctl, logs, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
	}
}

func bindFor(cfg config.Config) ingest.Bind {
	return ingest.HostPortBind(cfg.Ingest.Host, cfg.Ingest.Port)
}

// run starts the bridge and the web server and blocks until ctx is done or
// one of them fails.
func run(ctx context.Context, cfg config.Config, logs *web.LogBuffer) error {
	return newService(cfg, logs).run(ctx)
}

func (svc *service) run(ctx context.Context) error {
	if err := svc.bridge.Start(ctx, bindFor(svc.cfg)); err != nil {
		return err
	}
	defer svc.bridge.Stop()

	g, gctx := errgroup.WithContext(ctx)

	if svc.cfg.Web.Enabled() {
		g.Go(func() error {
			log.Info().Str("listen", svc.cfg.Web.Listen).Msg("web server starting")
			err := web.Serve(gctx, svc.cfg.Web.Listen, svc.handler)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("web server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		svc.logStats(gctx, statsInterval)
		return nil
	})

	return g.Wait()
}

// logStats periodically logs ingest counters while traffic is flowing.
func (svc *service) logStats(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	var lastReceived uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		st := svc.bridge.Status()
		if st.Ingest.MessagesReceived == lastReceived {
			continue
		}
		lastReceived = st.Ingest.MessagesReceived
		log.Info().
			Uint64("received", st.Ingest.MessagesReceived).
			Uint64("decoded", st.Ingest.SamplesDecoded).
			Uint64("dropped", st.Ingest.MessagesDropped).
			Int64("connections", st.Connections).
			Msg("ingest stats")
	}
}
