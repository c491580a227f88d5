package cmd

import (
	"os"

	"github.com/samogod/patentvae/pkg/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	initForce  bool
	initGlobal bool
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file holding the patent defaults",
	Example: `  patentvae init
  patentvae init experiments/patent/params.yaml
  patentvae init --global`,
	Args: cobra.MaximumNArgs(1),
	Run:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	initCmd.Flags().BoolVar(&initGlobal, "global", false, "write to the user config directory")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) {
	path := config.DefaultFileName
	switch {
	case len(args) == 1 && initGlobal:
		color.Red("Error: cannot use both a path and --global")
		os.Exit(1)
	case len(args) == 1:
		path = args[0]
	case initGlobal:
		path = config.GetDefaultConfigPath()
	}

	if err := config.WriteDefault(path, initForce); err != nil {
		color.Red("Failed to write config: %v", err)
		os.Exit(1)
	}
	color.Green("[INF] Wrote default params to %s", path)
}
