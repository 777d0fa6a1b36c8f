package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gometr/gometr/internal/cli/ui"
	"github.com/gometr/gometr/internal/driver/metadata"
)

// NewParseCommand creates the parse command
func NewParseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <driver-file>",
		Short: "Parse a driver file and show the extracted metadata",
		Long: `Statically parse a Python instrument driver and report the
instrument classes, subsystems, and properties it declares. The driver is
never executed.`,
		Args: cobra.ExactArgs(1),
		RunE: runParse,
	}
	cmd.Flags().Bool("json", false, "Emit driver metadata as JSON")
	return cmd
}

func runParse(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read driver: %w", err)
	}

	ex, err := metadata.ExtractSource(string(source))
	if err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}
	if len(ex.Drivers) == 0 {
		return fmt.Errorf("%s declares no instrument classes", args[0])
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		for _, d := range ex.Drivers {
			out, err := d.ToJSON()
			if err != nil {
				return err
			}
			cmd.Println(out)
		}
		printWarnings(cmd, ex.Warnings)
		return nil
	}

	title := color.New(color.FgCyan, color.Bold)
	if noColor(cmd) {
		title.DisableColor()
	}

	for _, d := range ex.Drivers {
		title.Fprintf(cmd.OutOrStdout(), "%s\n", d.Name)
		if len(d.Sources) > 0 {
			cmd.Printf("Sources: %s\n", strings.Join(d.Sources, ", "))
		}
		cmd.Println()

		table := ui.NewTable(cmd.OutOrStdout(),
			[]string{"SUBSYSTEM", "ATTR", "PREFIX", "INSTANCES", "PROPERTIES"}, noColor(cmd))
		for _, sub := range d.Subsystems {
			instances := "-"
			if sub.NeedsIndexing {
				instances = strconv.Itoa(sub.InstanceCount)
			}
			table.AddRow(sub.Name, sub.Attr, sub.Prefix, instances, strconv.Itoa(len(sub.Properties)))
		}
		table.Render()

		if len(d.Methods) > 0 {
			var names []string
			for _, m := range d.Methods {
				names = append(names, m.Name)
			}
			cmd.Printf("\nMethods: %s\n", strings.Join(names, ", "))
		}
		cmd.Println()
	}

	printWarnings(cmd, ex.Warnings)
	return nil
}
