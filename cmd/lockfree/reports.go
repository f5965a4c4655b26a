package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lockfree/infra/report"
)

var reportsState string

var cmdReports = &cobra.Command{
	Use:     "reports",
	Short:   "List stored stress reports",
	GroupID: "inspect",
	Args:    cobra.NoArgs,
	RunE:    runReports,
}

func init() {
	cmdReports.Flags().StringVar(&reportsState, "state", "", "only list reports in this state (NEW, SENT, ACKED, FAILED)")
}

func runReports(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}

	store, err := report.Open(e.cfg.Report.Dir, report.Options{})
	if err != nil {
		return err
	}
	defer store.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tRETRIES\tCONTAINER\tWORKERS\tPUSHED\tOK\tOPS/S")

	row := func(en report.Entry) error {
		r := en.Report
		_, err := fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\t%d\t%t\t%.0f\n",
			en.ID, en.State, en.Retries, r.Container, r.Workers, r.Pushed, r.OK(), r.OpsPerSecond())
		return err
	}

	if reportsState == "" {
		err = store.List(row)
	} else {
		st, perr := report.ParseState(reportsState)
		if perr != nil {
			return perr
		}
		err = store.ScanByState(st, row)
	}
	if err != nil {
		return err
	}
	return w.Flush()
}
