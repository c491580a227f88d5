package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/samogod/patentvae/pkg/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	showJSON bool
	showYAML bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective params",
	Long:  `Print the params after applying the config file, PATENTVAE_* environment variables and flags`,
	Run:   runShow,
}

func init() {
	addParamFlags(showCmd)
	showCmd.Flags().BoolVarP(&showJSON, "json", "j", false, "print as JSON")
	showCmd.Flags().BoolVar(&showYAML, "yaml", false, "print as YAML")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) {
	if showJSON && showYAML {
		color.Red("Error: cannot use both --json and --yaml")
		os.Exit(1)
	}

	overrides, err := overridesFromFlags(cmd)
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	orch := newOrchestrator()
	defer orch.Close()

	params, err := orch.Params(overrides)
	if err != nil {
		color.Yellow("[WARN] %v", err)
	}

	if err := writeParams(os.Stdout, params, showJSON, showYAML); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func writeParams(w io.Writer, params config.Params, asJSON, asYAML bool) error {
	switch {
	case asJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(params)
	case asYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(map[string]config.Params{"params": params})
	default:
		fmt.Fprintln(w)
		printParamsTable(w, params)
		return nil
	}
}
