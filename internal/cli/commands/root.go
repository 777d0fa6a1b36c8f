// Package commands implements the gometr CLI.
package commands

import (
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version information - set at build time
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gometr",
		Short: "Instrument driver introspection and control",
		Long: color.CyanString(`gometr - SCPI instrument tooling

gometr parses Python instrument drivers statically, projects them into
parameter trees, and controls the instruments they describe over TCP or
serial SCPI sessions.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewParseCommand())
	rootCmd.AddCommand(NewDriversCommand())
	rootCmd.AddCommand(NewTreeCommand())
	rootCmd.AddCommand(NewGetCommand())
	rootCmd.AddCommand(NewSetCommand())
	rootCmd.AddCommand(NewAcquireCommand())
	rootCmd.AddCommand(NewMonitorCommand())
	rootCmd.AddCommand(NewScanCommand())
	rootCmd.AddCommand(NewConnectCommand())
	rootCmd.AddCommand(NewWatchCommand())
	rootCmd.AddCommand(NewHistoryCommand())
	rootCmd.AddCommand(NewServeCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			title := color.New(color.FgCyan, color.Bold)
			title.Fprint(cmd.OutOrStdout(), "gometr version: ")
			cmd.Println(Version)
			title.Fprint(cmd.OutOrStdout(), "Git commit: ")
			cmd.Println(GitCommit)
			title.Fprint(cmd.OutOrStdout(), "Build date: ")
			cmd.Println(BuildDate)
			title.Fprint(cmd.OutOrStdout(), "Go version: ")
			cmd.Println(runtime.Version())
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

func noColor(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("no-color")
	return v
}
