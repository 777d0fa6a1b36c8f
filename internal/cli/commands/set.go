package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gometr/gometr/internal/path"
)

// NewSetCommand creates the set command
func NewSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <driver> <resource> <path> <value>",
		Short: "Write an instrument property",
		Long: `Open a session to the instrument at <resource> and assign a
value to the property path. Values are interpreted per the property's kind:
booleans and numbers are coerced, select choices match case-insensitively by
full spelling or unambiguous prefix.

Example:
  gometr set Oscilloscope "TCPIP0::10.0.0.5::5025::SOCKET" "channel[1].coupling" DC`,
		Args: cobra.ExactArgs(4),
		RunE: runSet,
	}
	addDriverDirFlag(cmd)
	return cmd
}

func runSet(cmd *cobra.Command, args []string) error {
	instrument, session, err := openInstrument(cmd, args[0], args[1])
	if err != nil {
		return err
	}
	defer session.Close()

	if err := path.Assign(instrument, args[2], coerceScalar(args[3])); err != nil {
		return err
	}
	cmd.Printf("%s = %s\n", args[2], args[3])
	return nil
}

// coerceScalar maps a command-line literal to the most specific scalar type
func coerceScalar(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
