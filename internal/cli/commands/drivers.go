package commands

import (
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gometr/gometr/internal/cli/ui"
)

// NewDriversCommand creates the drivers command
func NewDriversCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drivers",
		Short: "List drivers in the driver directory",
		Args:  cobra.NoArgs,
		RunE:  runDrivers,
	}
	addDriverDirFlag(cmd)
	return cmd
}

func runDrivers(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}

	table := ui.NewTable(cmd.OutOrStdout(),
		[]string{"DRIVER", "FILE", "SUBSYSTEMS", "WARNINGS"}, noColor(cmd))
	for _, entry := range reg.Entries() {
		for _, d := range entry.Drivers {
			table.AddRow(d.Name, filepath.Base(entry.File),
				strconv.Itoa(len(d.Subsystems)), strconv.Itoa(len(entry.Warnings)))
		}
	}
	table.Render()
	return nil
}
