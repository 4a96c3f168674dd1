// Command sla-monitor polls the ITSM SLA violation list, publishes opened and
// resolved violations to the configured sinks and serves health, metrics and
// snapshot endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/telekom/itsmctl/pkg/api"
	"github.com/telekom/itsmctl/pkg/cli"
	"github.com/telekom/itsmctl/pkg/escalation"
	"github.com/telekom/itsmctl/pkg/events"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
	"github.com/telekom/itsmctl/pkg/mail"
	"github.com/telekom/itsmctl/pkg/metrics"
	"github.com/telekom/itsmctl/pkg/ratelimit"
	"github.com/telekom/itsmctl/pkg/slamonitor"
	"github.com/telekom/itsmctl/pkg/system"
	"github.com/telekom/itsmctl/pkg/telemetry"
	"github.com/telekom/itsmctl/pkg/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := cli.LoadDotEnv(".env"); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 2
	}
	cfg, err := cli.Parse(args)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "sla-monitor: %v\n", err)
		return 2
	}

	zl, err := system.NewLogger(cfg.Debug)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to set up logger: %v\n", err)
		return 1
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()
	log.Infow("Starting sla-monitor", "version", version.Version, "commit", version.GitCommit)
	cfg.Print(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, zl); err != nil {
		log.Errorw("sla-monitor failed", "error", err)
		return 1
	}
	log.Info("sla-monitor stopped")
	return 0
}

func serve(ctx context.Context, cfg *cli.Config, zl *zap.Logger) error {
	log := zl.Sugar()

	_, shutdownTracing, err := telemetry.Init(ctx, telemetry.Options{
		Enabled:        cfg.Otel.Enabled,
		ServiceVersion: version.Version,
		Exporter:       cfg.Otel.Exporter,
		Endpoint:       cfg.Otel.Endpoint,
		Insecure:       cfg.Otel.Insecure,
		SamplingRate:   cfg.Otel.SamplingRate,
		Logger:         log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warnw("Failed to shut down tracing", "error", err)
		}
	}()

	itsm, err := newClient(cfg, log)
	if err != nil {
		return err
	}

	sink, reporters, err := buildSinks(cfg, zl)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warnw("Failed to close event sinks", "error", err)
		}
	}()

	mon := &slamonitor.Monitor{
		Source:      itsm.SLA(),
		Interval:    cfg.ParseInterval(log),
		Status:      cfg.Status,
		Filter:      cfg.ViolationFilter(),
		Sink:        sink,
		Tenant:      cfg.TenantCode,
		EmitInitial: cfg.EmitInitial,
		Log:         log.Named("slamonitor"),
	}
	if cfg.EscalationRules != "" {
		store := escalation.NewStore(cfg.EscalationRules)
		if err := store.Load(); err != nil {
			return fmt.Errorf("failed to load escalation rules: %w", err)
		}
		log.Infow("Escalation rules loaded", "path", cfg.EscalationRules, "rules", len(store.List()))
		mon.Escalations = store
	}

	limits := ratelimit.DefaultAPIConfig()
	limits.Rate, limits.Burst = cfg.RateLimit, cfg.RateBurst
	server := api.NewServer(zl, api.Config{
		ListenAddress: cfg.ListenAddress,
		TLSCertFile:   cfg.TLSCertFile,
		TLSKeyFile:    cfg.TLSKeyFile,
		Debug:         cfg.Debug,
		RateLimit:     limits,
	}, mon, reporters...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(gctx) })
	g.Go(server.Listen)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newClient(cfg *cli.Config, log *zap.SugaredLogger) (*client.Client, error) {
	token, err := cfg.ReadToken()
	if err != nil {
		return nil, err
	}
	opts := []client.Option{
		client.WithServer(cfg.Server),
		client.WithToken(token),
		client.WithTenant(cfg.TenantID, cfg.TenantCode),
		client.WithUserAgent(version.UserAgent("sla-monitor")),
		client.WithRequestObserver(metrics.ObserveClientRequest),
	}
	if cfg.CAFile != "" || cfg.InsecureSkipTLSVerify {
		opts = append(opts, client.WithTLSConfig(cfg.CAFile, cfg.InsecureSkipTLSVerify))
	}
	// WithTLSConfig replaces the http client, so the timeout goes last.
	opts = append(opts, client.WithTimeout(cfg.ParseRequestTimeout(log)))
	if cfg.TokenFile != "" {
		opts = append(opts, client.WithRefresher(func(context.Context) (string, error) {
			log.Info("Backend rejected the token, re-reading token file")
			return cfg.ReadToken()
		}))
	}
	return client.New(opts...)
}

// buildSinks always logs events. Kafka and the webhook are wrapped in
// queued sinks; mail alerts carry their own queue.
func buildSinks(cfg *cli.Config, zl *zap.Logger) (*events.MultiSink, []api.SinkHealthReporter, error) {
	sinks := []events.Sink{events.NewLogSink(zl)}
	var reporters []api.SinkHealthReporter
	var opened []events.Sink

	fail := func(err error) (*events.MultiSink, []api.SinkHealthReporter, error) {
		_ = events.NewMultiSink(opened...).Close()
		return nil, nil, err
	}

	kafkaCfg, err := cfg.KafkaSinkConfig()
	if err != nil {
		return fail(err)
	}
	if kafkaCfg != nil {
		k, err := events.NewKafkaSink(*kafkaCfg, zl)
		if err != nil {
			return fail(fmt.Errorf("failed to create kafka sink: %w", err))
		}
		q := events.NewQueuedSink(k, events.DefaultQueuedSinkConfig(), zl)
		sinks, reporters, opened = append(sinks, q), append(reporters, q), append(opened, q)
	}

	hookCfg, err := cfg.WebhookSinkConfig()
	if err != nil {
		return fail(err)
	}
	if hookCfg != nil {
		h, err := events.NewWebhookSink(*hookCfg, zl)
		if err != nil {
			return fail(fmt.Errorf("failed to create webhook sink: %w", err))
		}
		q := events.NewQueuedSink(h, events.DefaultQueuedSinkConfig(), zl)
		sinks, reporters, opened = append(sinks, q), append(reporters, q), append(opened, q)
	}

	if cfg.MailEnabled() {
		log := zl.Sugar()
		svc := mail.NewService(mail.NewSender(cfg.MailSenderConfig(), log), cfg.MailServiceConfig(), log)
		svc.Start()
		sinks = append(sinks, mail.NewAlertSink(svc))
	}

	return events.NewMultiSink(sinks...), reporters, nil
}
