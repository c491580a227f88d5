package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/samogod/patentvae/pkg/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	publishFile string
	exportFile  string
)

var publishCmd = &cobra.Command{
	Use:   "publish [run]",
	Short: "Index params into Elasticsearch",
	Long: `Index the effective params of a run into Elasticsearch, or bulk-index
a JSONL file written by "patentvae export" with --file.`,
	Example: `  patentvae publish patent-lstm
  patentvae publish --file runs.jsonl`,
	Args: cobra.MaximumNArgs(1),
	Run:  runPublish,
}

var exportCmd = &cobra.Command{
	Use:   "export <run>",
	Short: "Append the effective params to a JSONL file",
	Args:  cobra.ExactArgs(1),
	Run:   runExport,
}

func init() {
	addParamFlags(publishCmd)
	publishCmd.Flags().StringVar(&publishFile, "file", "", "JSONL file to bulk-index")

	addParamFlags(exportCmd)
	exportCmd.Flags().StringVarP(&exportFile, "output", "o", "", "file to append to (default: <cache>/exports/runs.jsonl)")

	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(exportCmd)
}

func runPublish(cmd *cobra.Command, args []string) {
	if (len(args) == 0) == (publishFile == "") {
		color.Red("Error: provide either a run name or --file")
		cmd.Help()
		os.Exit(1)
	}

	overrides, err := overridesFromFlags(cmd)
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	orch := newOrchestrator()
	defer orch.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if publishFile != "" {
		n, err := orch.PublishFile(ctx, publishFile)
		if err != nil {
			color.Red("Publish failed after %d documents: %v", n, err)
			os.Exit(1)
		}
		return
	}

	doc, err := orch.Publish(ctx, args[0], overrides)
	if err != nil {
		color.Red("Publish failed: %v", err)
		os.Exit(1)
	}
	color.Green("[INF] Published %s (%s)", doc.Run, doc.ID())
}

func runExport(cmd *cobra.Command, args []string) {
	overrides, err := overridesFromFlags(cmd)
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	path := exportFile
	if path == "" {
		dir := config.GetExportDir()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			color.Red("Failed to create export directory: %v", err)
			os.Exit(1)
		}
		path = filepath.Join(dir, "runs.jsonl")
	}

	orch := newOrchestrator()
	defer orch.Close()

	doc, err := orch.Export(args[0], path, overrides)
	if err != nil {
		color.Red("Export failed: %v", err)
		os.Exit(1)
	}
	color.Green("[INF] Exported %s (%s) to %s", doc.Run, doc.Fingerprint[:12], path)
}
