package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gometr/gometr/internal/cli/ui"
	"github.com/gometr/gometr/internal/scpi"
)

// NewScanCommand creates the scan command
func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List serial ports that may host instruments",
		Args:  cobra.NoArgs,
		RunE:  runScan,
	}
	cmd.Flags().Bool("probe", false, "Query *IDN? on each port")
	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	ports, err := scpi.ListSerialPorts()
	if err != nil {
		return fmt.Errorf("enumerate serial ports: %w", err)
	}
	if len(ports) == 0 {
		cmd.Println("No serial ports found.")
		return nil
	}

	probe, _ := cmd.Flags().GetBool("probe")
	headers := []string{"PORT", "RESOURCE"}
	if probe {
		headers = append(headers, "IDN")
	}

	table := ui.NewTable(cmd.OutOrStdout(), headers, noColor(cmd))
	for _, port := range ports {
		resource := fmt.Sprintf("ASRL::%s::INSTR", port)
		if !probe {
			table.AddRow(port, resource)
			continue
		}
		table.AddRow(port, resource, probePort(resource))
	}
	table.Render()
	return nil
}

// probePort asks the instrument to identify itself; ports that stay silent
// report a dash.
func probePort(resource string) string {
	session, err := openSession(resource)
	if err != nil {
		return "-"
	}
	defer session.Close()

	idn, err := session.Identify()
	if err != nil {
		return "-"
	}
	return idn
}
