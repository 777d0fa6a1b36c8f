package commands

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gometr/gometr/internal/cli/ui"
	"github.com/gometr/gometr/internal/path"
	"github.com/gometr/gometr/internal/ptree"
)

// NewConnectCommand creates the connect command
func NewConnectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Interactively connect to an instrument",
		Long: `Pick a driver, enter a resource string, and read or write
properties interactively. Enter a property path to read it, "path = value"
to write it, and an empty line to disconnect.`,
		Args: cobra.NoArgs,
		RunE: runConnect,
	}
	addDriverDirFlag(cmd)
	return cmd
}

func runConnect(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}
	names := reg.Names()
	if len(names) == 0 {
		return fmt.Errorf("no drivers loaded")
	}

	var driverName string
	if err := survey.AskOne(&survey.Select{
		Message: "Driver:",
		Options: names,
	}, &driverName); err != nil {
		return err
	}

	var resource string
	if err := survey.AskOne(&survey.Input{
		Message: "Resource:",
		Default: "TCPIP0::192.168.1.10::5025::SOCKET",
	}, &resource, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	instrument, session, err := openInstrument(cmd, driverName, resource)
	if err != nil {
		return err
	}
	defer session.Close()

	if idn, err := session.Identify(); err == nil {
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Connected: %s\n", idn)
	} else {
		ui.Notice{
			Level:   ui.LevelWarning,
			Problem: fmt.Sprintf("identification failed: %v", err),
			NoColor: noColor(cmd),
		}.Print(cmd.ErrOrStderr())
	}

	// Leaf paths double as completion hints for the prompt.
	var paths []string
	for _, leaf := range ptree.Build(instrument.Metadata()).Leaves() {
		if leaf.Path != "" {
			paths = append(paths, leaf.Path)
		}
	}

	for {
		var line string
		if err := survey.AskOne(&survey.Input{
			Message: ">",
			Suggest: func(toComplete string) []string {
				var matches []string
				for _, p := range paths {
					if strings.HasPrefix(p, toComplete) {
						matches = append(matches, p)
					}
				}
				return matches
			},
		}, &line); err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return nil
		}

		if before, after, found := strings.Cut(line, "="); found {
			target := strings.TrimSpace(before)
			value := coerceScalar(strings.TrimSpace(after))
			if err := path.Assign(instrument, target, value); err != nil {
				printInteractiveError(cmd, err)
				continue
			}
			cmd.Printf("%s = %v\n", target, value)
			continue
		}

		value, err := path.Resolve(instrument, line)
		if err != nil {
			printInteractiveError(cmd, err)
			continue
		}
		cmd.Printf("%v\n", value)
	}
}

func printInteractiveError(cmd *cobra.Command, err error) {
	ui.Notice{
		Level:   ui.LevelError,
		Problem: err.Error(),
		NoColor: noColor(cmd),
	}.Print(cmd.ErrOrStderr())
}
