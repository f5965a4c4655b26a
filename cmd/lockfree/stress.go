package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"lockfree/api/grpcserver"
	"lockfree/infra/logging"
	"lockfree/infra/report"
	"lockfree/service"
)

var (
	stressScenario bool
	stressNoStore  bool
	stressServer   string
)

var cmdStress = &cobra.Command{
	Use:     "stress",
	Short:   "Run a concurrent workload and record its report",
	GroupID: "run",
	Args:    cobra.NoArgs,
	RunE:    runStress,
}

func init() {
	cmdStress.Flags().BoolVar(&stressScenario, "scenario", false, "run the fixed 8x100 stack scenario")
	cmdStress.Flags().BoolVar(&stressNoStore, "no-store", false, "print the report without storing it")
	cmdStress.Flags().StringVar(&stressServer, "server", "",
		"run on a serving lockfree at this address; it stores and publishes the report")
}

func runStress(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	cfg := e.cfg

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workload := service.Workload{
		Container:    cfg.Stress.Container,
		Workers:      cfg.Stress.Workers,
		OpsPerWorker: cfg.Stress.OpsPerWorker,
		PushRatio:    cfg.Stress.PushRatio,
		Seed:         cfg.Stress.Seed,
		Exact:        cfg.Stress.Exact,
	}

	var rep report.Report
	if stressServer != "" {
		rep, err = stressRemote(ctx, stressServer, grpcserver.StressRequest{
			Workload: workload,
			Scenario: stressScenario,
		})
		if err != nil {
			return err
		}
	} else {
		rep, err = stressLocal(ctx, e, workload)
		if err != nil {
			return err
		}
	}

	out, err := rep.JSON()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !rep.OK() {
		return errors.New("conservation check failed")
	}
	return nil
}

func stressRemote(ctx context.Context, addr string, req grpcserver.StressRequest) (report.Report, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return report.Report{}, errors.Wrapf(err, "dial %s", addr)
	}
	defer conn.Close()

	rep, err := grpcserver.NewClient(conn).Stress(ctx, req)
	if err != nil {
		return report.Report{}, errors.Wrap(err, "remote stress run")
	}
	return rep, nil
}

func stressLocal(ctx context.Context, e *env, w service.Workload) (report.Report, error) {
	runner := service.NewRunner(e.collector, logging.Component(e.log, "stress"))

	var (
		rep report.Report
		err error
	)
	if stressScenario {
		rep = runner.RunScenario(8, 100)
	} else {
		rep, err = runner.Run(ctx, w)
		if err != nil && !errors.Is(err, context.Canceled) {
			return report.Report{}, err
		}
	}
	if stressNoStore {
		return rep, nil
	}

	store, err := report.Open(e.cfg.Report.Dir, report.Options{})
	if err != nil {
		return report.Report{}, errors.Wrap(err,
			"open report outbox (if lockfree serve owns it, pass --server)")
	}
	defer store.Close()

	id, err := store.Put(rep)
	if err != nil {
		return report.Report{}, errors.Wrap(err, "store report")
	}
	rep.ID = id
	return rep, nil
}
