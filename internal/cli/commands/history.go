package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gometr/gometr/internal/cli/config"
	"github.com/gometr/gometr/internal/cli/ui"
	"github.com/gometr/gometr/internal/store"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List captured traces from the trace store",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	cmd.Flags().String("db", "", "Trace store path (default from gometr.yml)")
	cmd.Flags().String("instrument", "", "Filter by instrument name")
	cmd.Flags().String("source", "", "Filter by source")
	cmd.Flags().Int("limit", 20, "Maximum traces to list")
	cmd.Flags().Duration("prune", 0, "Delete traces older than this age instead of listing")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Store.Path == "" {
			return fmt.Errorf("trace store is disabled (store.path is empty)")
		}
		dbPath = cfg.Store.Path
	}

	st, err := store.Open(dbPath, zap.NewNop())
	if err != nil {
		return fmt.Errorf("open trace store: %w", err)
	}
	defer st.Close()

	if age, _ := cmd.Flags().GetDuration("prune"); age > 0 {
		deleted, err := st.Prune(cmd.Context(), time.Now().Add(-age))
		if err != nil {
			return err
		}
		cmd.Printf("Pruned %d traces older than %s\n", deleted, age)
		return nil
	}

	instrument, _ := cmd.Flags().GetString("instrument")
	source, _ := cmd.Flags().GetString("source")
	limit, _ := cmd.Flags().GetInt("limit")

	traces, err := st.List(cmd.Context(), store.Query{
		Instrument: instrument,
		Source:     source,
		Limit:      limit,
	})
	if err != nil {
		return err
	}

	table := ui.NewTable(cmd.OutOrStdout(),
		[]string{"ID", "INSTRUMENT", "SOURCE", "POINTS", "CAPTURED"}, noColor(cmd))
	for _, t := range traces {
		table.AddRow(t.ID.String(), t.Instrument, t.Source,
			strconv.Itoa(t.Points()), t.CapturedAt.Format(time.RFC3339))
	}
	table.Render()
	return nil
}
