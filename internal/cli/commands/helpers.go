package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gometr/gometr/internal/cli/config"
	"github.com/gometr/gometr/internal/cli/ui"
	"github.com/gometr/gometr/internal/driver/metadata"
	"github.com/gometr/gometr/internal/driver/registry"
	"github.com/gometr/gometr/internal/scpi"
)

// openSession dials an instrument; tests substitute scripted transports
var openSession = func(resource string) (*scpi.Session, error) {
	return scpi.Open(resource)
}

func addDriverDirFlag(cmd *cobra.Command) {
	cmd.Flags().String("driver-dir", "", "Driver directory (default from gometr.yml)")
}

func driverDir(cmd *cobra.Command) (string, error) {
	if dir, _ := cmd.Flags().GetString("driver-dir"); dir != "" {
		return dir, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	return cfg.DriverDir, nil
}

func loadRegistry(cmd *cobra.Command) (*registry.Registry, error) {
	dir, err := driverDir(cmd)
	if err != nil {
		return nil, err
	}
	reg := registry.New(zap.NewNop())
	if err := reg.LoadDir(dir); err != nil {
		return nil, fmt.Errorf("load drivers from %s: %w", dir, err)
	}
	return reg, nil
}

// findDriver resolves a driver name, printing a suggestion-bearing error on
// miss.
func findDriver(cmd *cobra.Command, reg *registry.Registry, name string) (*metadata.DriverMetadata, error) {
	if d := reg.Driver(name); d != nil {
		return d, nil
	}
	ui.NotFound("driver", name, reg.Names(), "List drivers: gometr drivers").
		Print(cmd.ErrOrStderr())
	return nil, fmt.Errorf("driver %q not found", name)
}

func printWarnings(cmd *cobra.Command, warnings []metadata.Warning) {
	for _, w := range warnings {
		ui.Notice{
			Level:   ui.LevelWarning,
			Problem: w.String(),
			NoColor: noColor(cmd),
		}.Print(cmd.ErrOrStderr())
	}
}
