package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gometr/gometr/internal/path"
	"github.com/gometr/gometr/internal/scpi"
)

// NewGetCommand creates the get command
func NewGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <driver> <resource> <path>",
		Short: "Read an instrument property",
		Long: `Open a session to the instrument at <resource>, resolve the
property path against the driver's object graph, and print the value.

Example:
  gometr get Oscilloscope "TCPIP0::10.0.0.5::5025::SOCKET" "channel[1].probe"`,
		Args: cobra.ExactArgs(3),
		RunE: runGet,
	}
	addDriverDirFlag(cmd)
	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	instrument, session, err := openInstrument(cmd, args[0], args[1])
	if err != nil {
		return err
	}
	defer session.Close()

	value, err := path.Resolve(instrument, args[2])
	if err != nil {
		return err
	}
	cmd.Printf("%v\n", value)
	return nil
}

// openInstrument dials a resource and binds it to the named driver
func openInstrument(cmd *cobra.Command, driverName, resource string) (*scpi.Instrument, *scpi.Session, error) {
	reg, err := loadRegistry(cmd)
	if err != nil {
		return nil, nil, err
	}
	d, err := findDriver(cmd, reg, driverName)
	if err != nil {
		return nil, nil, err
	}

	session, err := openSession(resource)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", resource, err)
	}
	return scpi.Build(d, session), session, nil
}
