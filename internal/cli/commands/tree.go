package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/gometr/gometr/internal/cli/ui"
	"github.com/gometr/gometr/internal/ptree"
)

// NewTreeCommand creates the tree command
func NewTreeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree <driver>",
		Short: "Show a driver's parameter tree",
		Args:  cobra.ExactArgs(1),
		RunE:  runTree,
	}
	addDriverDirFlag(cmd)
	cmd.Flags().Bool("json", false, "Emit the tree as JSON")
	return cmd
}

func runTree(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}
	d, err := findDriver(cmd, reg, args[0])
	if err != nil {
		return err
	}

	tree := ptree.Build(d)
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		out, err := json.MarshalIndent(tree, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(out))
		return nil
	}

	ui.RenderTree(cmd.OutOrStdout(), tree, noColor(cmd))
	return nil
}
