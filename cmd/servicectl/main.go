package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := buildRoot(os.Stdout, os.Stderr)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the command tree writing results to out and logs to errOut.
func buildRoot(out, errOut io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	startFlags := &StartFlags{}
	stopFlags := &StopFlags{}

	c := &command{global: globalFlags, out: out, errOut: errOut}

	root := createRootCommand(globalFlags)
	root.SetOut(out)
	root.SetErr(errOut)
	root.AddCommand(
		createStartCommand(c, startFlags),
		createStopCommand(c, stopFlags),
		createRestartCommand(c, startFlags, stopFlags),
		createStatusCommand(c),
		createListCommand(c),
		createArgsFileCommand(c),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "servicectl",
		Short: "Start and stop long-running local services",
		Long: `servicectl starts the services declared in a TOML file, waits until each one
is available (port open or startup message logged) and records its pid so a
later invocation can stop the whole process tree.

Examples:
  servicectl start                 # every service, in file order
  servicectl start api worker
  servicectl status
  servicectl stop api`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "servicectl.toml", "path to TOML config file")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.LogFormat, "log-format", "", "override log format (text, json)")
	return root
}

func createStartCommand(c *command, f *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start [service...]",
		Short: "Start services and wait until they are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(cmd.Context(), args, *f)
		},
	}
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "override the configured start timeout")
	return cmd
}

func createStopCommand(c *command, f *StopFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop [service...]",
		Short: "Stop services recorded in their pid files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(cmd.Context(), args, *f)
		},
	}
	cmd.Flags().DurationVar(&f.Grace, "grace", 0, "time to wait for a terminated process to exit (default 30s)")
	return cmd
}

func createRestartCommand(c *command, sf *StartFlags, tf *StopFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart [service...]",
		Short: "Stop then start services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Restart(cmd.Context(), args, *sf, *tf)
		},
	}
	cmd.Flags().DurationVar(&sf.Timeout, "timeout", 0, "override the configured start timeout")
	cmd.Flags().DurationVar(&tf.Grace, "grace", 0, "time to wait for a terminated process to exit (default 30s)")
	return cmd
}

func createStatusCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "status [service...]",
		Short: "Print the recorded state of services as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(args)
		},
	}
}

func createListCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.List()
		},
	}
}

func createArgsFileCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "args-file <service>",
		Short: "Write the JVM arguments file of a java service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.ArgsFile(args[0])
		},
	}
}
