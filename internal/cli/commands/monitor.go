package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gometr/gometr/internal/acquire"
	"github.com/gometr/gometr/internal/cli/config"
)

// NewMonitorCommand creates the monitor command
func NewMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor <driver> <resource>",
		Short: "Continuously acquire and print traces",
		Long: `Run continuous acquisition against a live instrument and print
one line per captured trace until interrupted.`,
		Args: cobra.ExactArgs(2),
		RunE: runMonitor,
	}
	addDriverDirFlag(cmd)
	cmd.Flags().StringSlice("sources", nil, "Sources to capture (default: all driver sources)")
	cmd.Flags().Duration("interval", 0, "Sweep interval (default from gometr.yml)")
	return cmd
}

func runMonitor(cmd *cobra.Command, args []string) error {
	instrument, session, err := openInstrument(cmd, args[0], args[1])
	if err != nil {
		return err
	}
	defer session.Close()

	sources, _ := cmd.Flags().GetStringSlice("sources")
	if len(sources) == 0 {
		sources = instrument.Sources().Names()
	}
	if len(sources) == 0 {
		return fmt.Errorf("driver %s declares no sources", args[0])
	}

	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		interval = cfg.Acquire.Interval
	}

	engine := acquire.New(&acquire.WaveformFetcher{Instrument: instrument},
		acquire.WithInterval(interval))
	traces, unsubscribe := engine.Subscribe()
	defer unsubscribe()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx, sources); err != nil {
		return err
	}
	defer engine.Stop()

	green := color.New(color.FgGreen)
	if noColor(cmd) {
		green.DisableColor()
	}
	cmd.Printf("Monitoring %s every %s (Ctrl-C to stop)\n", args[0], interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-traces:
			if !ok {
				return nil
			}
			green.Fprintf(cmd.OutOrStdout(), "%s  %-8s %6d points\n",
				t.CapturedAt.Format("15:04:05.000"), t.Source, t.Points())
		}
	}
}
