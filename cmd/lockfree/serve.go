package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"lockfree/api/grpcserver"
	"lockfree/infra/kafka"
	"lockfree/infra/logging"
	"lockfree/infra/metrics"
	"lockfree/infra/report"
	"lockfree/jobs/broadcaster"
	"lockfree/jobs/reclaimer"
	"lockfree/service"
)

var cmdServe = &cobra.Command{
	Use:     "serve",
	Short:   "Serve the shared stack and queue over gRPC",
	GroupID: "run",
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	cfg := e.cfg

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Report Outbox ----------------

	// The outbox is opened once here: Stress RPCs write to it and the
	// broadcaster drains it from the same process.
	store, err := report.Open(cfg.Report.Dir, report.Options{})
	if err != nil {
		return errors.Wrap(err, "open report outbox")
	}
	defer store.Close()

	// ---------------- Containers ----------------

	runner := service.NewRunner(e.collector, logging.Component(e.log, "stress"))
	srv := grpcserver.NewServer(e.collector, grpcserver.WithStress(runner, store))

	// ---------------- Metrics ----------------

	reg := prometheus.NewRegistry()
	if err := metrics.RegisterCollector(reg, e.collector); err != nil {
		return err
	}
	if err := metrics.RegisterContainer(reg, "stack", srv.Stack()); err != nil {
		return err
	}
	if err := metrics.RegisterContainer(reg, "queue", srv.Queue()); err != nil {
		return err
	}

	var metricsSrv *http.Server
	if cfg.Server.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		metricsSrv = &http.Server{
			Addr:              cfg.Server.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.log.Error("metrics server exited", "err", err)
			}
		}()
		e.log.Info("metrics listening", "addr", cfg.Server.MetricsListen)
	}

	// ---------------- Background Jobs ----------------

	reclaimer.New(e.collector, cfg.AdvanceInterval(), logging.Component(e.log, "reclaimer")).Start(ctx)

	if cfg.Report.Publisher.Kind != "none" {
		pub, err := newPublisher(cfg.Report.Publisher.Kind, cfg.Report.Publisher.Brokers, cfg.Report.Publisher.Topic)
		if err != nil {
			return err
		}
		bc := broadcaster.New(store, pub,
			cfg.PublishInterval(), cfg.Report.Publisher.MaxRetries,
			logging.Component(e.log, "broadcaster"))
		defer bc.Close()

		if n, err := bc.Requeue(); err != nil {
			return errors.Wrap(err, "requeue in-flight reports")
		} else if n > 0 {
			e.log.Info("requeued in-flight reports", "count", n)
		}
		bc.Start(ctx)
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.Server.Listen)
	}

	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(
		grpcserver.LoggingInterceptor(logging.Component(e.log, "grpc"))))
	grpcserver.Register(grpcSrv, srv)

	go func() {
		<-ctx.Done()
		e.log.Info("shutting down")
		grpcSrv.GracefulStop()
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
	}()

	e.log.Info("lockfree serving", "addr", cfg.Server.Listen)
	if err := grpcSrv.Serve(lis); err != nil {
		return errors.Wrap(err, "gRPC server exited")
	}
	return nil
}

func newPublisher(kind string, brokers []string, topic string) (kafka.Publisher, error) {
	switch kind {
	case "sarama":
		return kafka.NewSaramaPublisher(brokers, topic)
	case "kafka-go":
		return kafka.NewProducer(brokers, topic), nil
	}
	return nil, errors.Newf("unknown publisher kind %q", kind)
}
