package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AlexanderGrooff/uplaybook/pkg"
	"github.com/AlexanderGrooff/uplaybook/pkg/common"
	"github.com/AlexanderGrooff/uplaybook/pkg/config"
	_ "github.com/AlexanderGrooff/uplaybook/pkg/modules" // Register modules
	"github.com/AlexanderGrooff/uplaybook/pkg/playbook"
)

var (
	configFile string
	debug      bool
	cfg        *config.Config
)

// LoadConfig reads the configuration and applies its logging section. Without
// an explicit file ./uplaybook.yaml is used when it exists.
var LoadConfig = func(configFile string) error {
	configPaths := []string{}
	if configFile == "" {
		defaultConfig := "uplaybook.yaml"
		if _, err := os.Stat(defaultConfig); err == nil {
			configPaths = append(configPaths, defaultConfig)
		}
	} else {
		configPaths = append(configPaths, configFile)
	}

	loaded, err := config.Load(configPaths...)
	if err != nil {
		return fmt.Errorf("failed to load configuration %v: %w", configPaths, err)
	}
	if debug {
		loaded.Logging.Level = "debug"
	}
	if err := common.Configure(loaded.Logging); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// GetConfig returns the loaded configuration, or the defaults before
// LoadConfig ran.
func GetConfig() *config.Config {
	if cfg == nil {
		return config.Default()
	}
	return cfg
}

var RootCmd = &cobra.Command{
	Use:   "up [flags] playbook [playbook arguments]",
	Short: "Run playbooks of actions",
	Long: `Run playbooks of actions, typically to set up some sort of environment.

Everything after the playbook name is handed to the playbook's own argument
parser, so "up myplaybook --help" shows the playbook's arguments.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return LoadConfig(configFile)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cmd.UsageString())
			printPlaybooks(out, GetConfig().PlaybookPath)
			return &pkg.ArgumentError{Msg: "no playbook given"}
		}
		return RunPlaybook(GetConfig(), args[0], args[1:], pkg.WithOutput(cmd.OutOrStdout()))
	},
}

// RunPlaybook finds, loads and runs a playbook, then finishes the run:
// remaining handlers are flushed and the recap is printed. opts are applied
// to the run after the playbook and its arguments.
func RunPlaybook(cfg *config.Config, name string, args []string, opts ...pkg.RunOption) error {
	info, err := playbook.Find(name, cfg.PlaybookPath)
	if err != nil {
		return err
	}
	loader := playbook.NewLoader(cfg.PlaybookPath)
	pb, err := loader.Load(info)
	if err != nil {
		return err
	}

	opts = append([]pkg.RunOption{pkg.WithPlaybook(pb), pkg.WithRemainingArgs(args)}, opts...)
	r := pkg.NewRun(cfg, opts...)
	common.LogDebug("Running playbook", map[string]interface{}{
		"playbook": pb.Name,
		"file":     pb.Path,
		"run_id":   r.ID,
	})
	runErr := pb.Body(r)

	var argErr *pkg.ArgumentError
	if errors.As(runErr, &argErr) || errors.Is(runErr, pkg.ErrHelp) {
		// Bad invocation or --help: nothing ran worth a recap.
		return runErr
	}
	return r.Finish(runErr)
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.Flags().SetInterspersed(false)
	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path (default: ./uplaybook.yaml)")
	RootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log debugging information during the playbook run")
}
