package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/samogod/patentvae/pkg/config"
	"github.com/samogod/patentvae/pkg/database"
	"github.com/samogod/patentvae/pkg/dataset"
	"github.com/samogod/patentvae/pkg/orchestrator"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string
	silent     bool
	verbose    bool
	dataRoot   string
	skipData   bool
	recordAs   string

	encType       string
	decType       string
	nz            int
	ni            int
	encNH         int
	decNH         int
	decDropoutIn  float64
	decDropoutOut float64
	batchSize     int
	epochs        int
	testNEpoch    int
	trainData     string
	valData       string
	testData      string
)

var Verbose bool

var rootCmd = &cobra.Command{
	Use:   "patentvae",
	Short: "hyperparameter record for the patent LSTM VAE",
	Long:  `load, validate and preflight the hyperparameters of the LSTM-LSTM VAE trained on the patent corpus`,
	Run:   runCheck,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate params and preflight the dataset files",
	Run:   runCheck,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// debugOutput keeps [DBG] lines off stdout so --json and --yaml output stays parseable.
var debugOutput io.Writer = os.Stderr

func DebugLog(format string, args ...interface{}) {
	if Verbose {
		fmt.Fprintf(debugOutput, "[DBG] "+format+"\n", args...)
	}
}

func setDebugLogFunctions() {
	config.DebugLog = DebugLog
	dataset.DebugLog = DebugLog
	database.DebugLog = DebugLog
	orchestrator.DebugLog = DebugLog
}

// addParamFlags registers one flag per params key on cmd.
func addParamFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&encType, "enc-type", "", "encoder architecture (lstm)")
	f.StringVar(&decType, "dec-type", "", "decoder architecture (lstm)")
	f.IntVar(&nz, "nz", 0, "latent dimension")
	f.IntVar(&ni, "ni", 0, "input embedding dimension")
	f.IntVar(&encNH, "enc-nh", 0, "encoder hidden size")
	f.IntVar(&decNH, "dec-nh", 0, "decoder hidden size")
	f.Float64Var(&decDropoutIn, "dec-dropout-in", 0, "decoder input dropout in [0,1]")
	f.Float64Var(&decDropoutOut, "dec-dropout-out", 0, "decoder output dropout in [0,1]")
	f.IntVar(&batchSize, "batch-size", 0, "training batch size")
	f.IntVar(&epochs, "epochs", 0, "training epochs")
	f.IntVar(&testNEpoch, "test-nepoch", 0, "evaluate every N epochs")
	f.StringVar(&trainData, "train-data", "", "training data file")
	f.StringVar(&valData, "val-data", "", "validation data file")
	f.StringVar(&testData, "test-data", "", "test data file")
}

// overridesFromFlags builds overrides from the flags explicitly set on cmd.
func overridesFromFlags(cmd *cobra.Command) (config.Overrides, error) {
	var o config.Overrides
	f := cmd.Flags()

	if f.Changed("enc-type") {
		t, err := config.ParseNetworkType(encType)
		if err != nil {
			return o, fmt.Errorf("--enc-type: %w", err)
		}
		o.EncType = t
	}
	if f.Changed("dec-type") {
		t, err := config.ParseNetworkType(decType)
		if err != nil {
			return o, fmt.Errorf("--dec-type: %w", err)
		}
		o.DecType = t
	}

	for name, v := range map[string]int{
		"nz": nz, "ni": ni, "enc-nh": encNH, "dec-nh": decNH,
		"batch-size": batchSize, "epochs": epochs, "test-nepoch": testNEpoch,
	} {
		if f.Changed(name) && v <= 0 {
			return o, fmt.Errorf("--%s must be > 0 (got %d)", name, v)
		}
	}
	o.NZ, o.NI, o.EncNH, o.DecNH = nz, ni, encNH, decNH
	o.BatchSize, o.Epochs, o.TestNEpoch = batchSize, epochs, testNEpoch

	if f.Changed("dec-dropout-in") {
		v := decDropoutIn
		o.DecDropoutIn = &v
	}
	if f.Changed("dec-dropout-out") {
		v := decDropoutOut
		o.DecDropoutOut = &v
	}

	o.TrainData, o.ValData, o.TestData = trainData, valData, testData
	return o, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: params.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVar(&silent, "silent", false, "silent mode - no banner or extra output")

	for _, c := range []*cobra.Command{rootCmd, checkCmd} {
		addParamFlags(c)
		c.Flags().StringVar(&dataRoot, "data-root", "", "directory relative data paths resolve against (default: config file directory)")
		c.Flags().BoolVar(&skipData, "skip-data", false, "only validate params, do not check dataset files")
		c.Flags().StringVar(&recordAs, "record", "", "record the params in the run registry under this name")
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		Verbose = verbose
		if verbose {
			setDebugLogFunctions()
		}
	}

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func newOrchestrator() *orchestrator.Orchestrator {
	orch, err := orchestrator.NewOrchestrator(configFile)
	if err != nil {
		color.Red("Failed to initialize: %v", err)
		os.Exit(1)
	}
	if verbose {
		orch.Logger().SetLevel(logrus.DebugLevel)
	}
	return orch
}

func runCheck(cmd *cobra.Command, args []string) {
	if !silent {
		printBanner()
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

	result, err := orch.Check(ctx, orchestrator.CheckOptions{
		Overrides: overrides,
		DataRoot:  dataRoot,
		SkipData:  skipData,
		RecordAs:  recordAs,
	})
	if err != nil {
		color.Red("Check failed: %v", err)
		os.Exit(1)
	}

	if !silent {
		displayCheckResult(result)
	}

	if !result.Success {
		os.Exit(1)
	}
}

func displayCheckResult(result *orchestrator.CheckResult) {
	fmt.Println()
	printParamsTable(os.Stdout, result.Params)

	if result.Report != nil {
		fmt.Println()
		fmt.Printf(" %-6s %-50s %-10s %-10s\n", "Role", "Path", "Lines", "Status")
		color.Cyan(strings.Repeat("─", 80))
		for _, f := range result.Report.Files {
			status := color.GreenString("ok")
			if !f.OK() {
				status = color.RedString("missing")
			}
			fmt.Printf(" %-6s %-50s %-10d %s\n", f.Role, f.Resolved, f.Lines, status)
		}
	}

	fmt.Println()
	if result.Success {
		color.Green("[INF] Check passed in %v", result.Duration)
	} else {
		color.Red("[ERR] Check failed with %d error(s) in %v", len(result.Errors), result.Duration)
	}
}

func printParamsTable(w io.Writer, p config.Params) {
	fmt.Fprintf(w, " %-18s %s\n", "Key", "Value")
	fmt.Fprintln(w, color.CyanString(strings.Repeat("─", 50)))
	for _, f := range p.Fields() {
		fmt.Fprintf(w, " %-18s %s\n", f.Key, f.Value)
	}
}

func printBanner() {
	banner := color.CyanString(`
┌─┐┌─┐┌┬┐┌─┐┌┐┌┌┬┐┬  ┬┌─┐┌─┐
├─┘├─┤ │ ├┤ │││ │ └┐┌┘├─┤├┤
┴  ┴ ┴ ┴ └─┘┘└┘ ┴  └┘ ┴ ┴└─┘
`)
	info := color.HiBlackString("lstm-lstm vae hyperparameters for the patent corpus")
	fmt.Println(banner)
	fmt.Println(info)
	fmt.Println()
}
