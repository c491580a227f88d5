package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/samogod/patentvae/pkg/database"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	runsStatus string
	runsParams bool
)

var runsCmd = &cobra.Command{
	Use:   "runs [name]",
	Short: "Query the run registry",
	Long:  `Query the run registry for a single run or list all recorded runs`,
	Args:  cobra.MaximumNArgs(1),
	Run:   runRuns,
}

func init() {
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status (new, seen, changed)")
	runsCmd.Flags().BoolVarP(&runsParams, "params", "p", false, "print the recorded params of a single run")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) {
	orch := newOrchestrator()
	defer orch.Close()

	db := orch.GetDB()
	if !db.IsEnabled() {
		color.Red("Error: Run registry is not enabled. Please enable the database section in %s", orch.ConfigPath())
		os.Exit(1)
	}

	var records []database.RunRecord

	if len(args) == 1 {
		record, err := db.QueryRun(args[0])
		if errors.Is(err, database.ErrRunNotFound) {
			color.Yellow("[INF] Run %s not found in registry.", args[0])
			return
		}
		if err != nil {
			color.Red("Failed to query registry: %v", err)
			os.Exit(1)
		}
		if runsParams {
			printParamsTable(os.Stdout, record.Params)
			return
		}
		records = append(records, *record)
	} else {
		results, err := db.QueryRuns(strings.ToUpper(runsStatus))
		if err != nil {
			color.Red("Failed to query registry: %v", err)
			os.Exit(1)
		}
		records = results
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, color.CyanString("RUN\tFINGERPRINT\tSTATUS\tNZ\tBATCH\tEPOCHS\tFIRST_SEEN\tLAST_SEEN"))
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, r := range records {
		statusColor := color.GreenString
		switch r.Status {
		case database.StatusChanged:
			statusColor = color.YellowString
		case database.StatusNew:
			statusColor = color.CyanString
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.Name,
			r.Fingerprint[:12],
			statusColor(r.Status),
			r.Params.NZ,
			r.Params.BatchSize,
			r.Params.Epochs,
			r.FirstSeen.Format("2006-01-02 15:04:05"),
			r.LastSeen.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	color.Green("\nTotal runs: %d", len(records))
}
