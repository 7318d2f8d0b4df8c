package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"taskguard/internal/shared/config"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

var flagBindings = config.FlagBindings{
	"logging.level":      "log-level",
	"logging.format":     "log-format",
	"workspace":          "workspace",
	"checkpoint.kind":    "checkpoint-store",
	"checkpoint.dir":     "checkpoint-dir",
	"engine.max_retries": "max-retries",
	"engine.estimator":   "estimator",
	"metrics.addr":       "metrics-addr",
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "taskguard",
		Short:         "Run multi-phase tasks with retries and checkpoint recovery",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if !isTerminal(cmd) {
				color.NoColor = true
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Config file (default ./taskguard.yaml or ~/.taskguard/taskguard.yaml)")
	pf.String("log-level", "", "Log level (debug|info|warn|error)")
	pf.String("log-format", "", "Log format (text|json)")
	pf.StringP("workspace", "w", "", "Workspace root directory")
	pf.String("checkpoint-store", "", "Checkpoint store (file|memory)")
	pf.String("checkpoint-dir", "", "Checkpoint directory (default <workspace>/checkpoints)")

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newCheckpointsCommand(opts))
	return root
}

// loadConfig resolves configuration for cmd, letting any flag it defines
// override file and environment values.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(o.configPath, cmd.Flags(), flagBindings)
}

// isTerminal reports whether cmd writes to an interactive terminal.
func isTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
