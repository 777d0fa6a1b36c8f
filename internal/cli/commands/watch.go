package commands

import (
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gometr/gometr/internal/driver/registry"
	"github.com/gometr/gometr/internal/watch"
)

// NewWatchCommand creates the watch command
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the driver directory and re-parse on change",
		Long: `Watch driver files for edits, re-parsing each change and
printing the result. Useful while writing a driver.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
	addDriverDirFlag(cmd)
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir, err := driverDir(cmd)
	if err != nil {
		return err
	}

	reg := registry.New(zap.NewNop())
	if err := reg.LoadDir(dir); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	if noColor(cmd) {
		green.DisableColor()
	}

	watcher, err := watch.New(dir, reg,
		watch.WithOnReload(func(files []string) {
			for _, file := range files {
				green.Fprintf(cmd.OutOrStdout(), "reloaded %s\n", file)
			}
			for _, entry := range reg.Entries() {
				printWarnings(cmd, entry.Warnings)
			}
		}))
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	cmd.Printf("Watching %s (Ctrl-C to stop)\n", dir)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}
