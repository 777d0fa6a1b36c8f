package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gometr/gometr/internal/acquire"
	"github.com/gometr/gometr/internal/cli/config"
	"github.com/gometr/gometr/internal/cli/ui"
	"github.com/gometr/gometr/internal/store"
)

// NewAcquireCommand creates the acquire command
func NewAcquireCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acquire <driver> <resource>",
		Short: "Run a single acquisition sweep",
		Long: `Open a session, capture one waveform per selected source, and
print a summary. Captures are persisted to the trace store unless --no-save
is given.`,
		Args: cobra.ExactArgs(2),
		RunE: runAcquire,
	}
	addDriverDirFlag(cmd)
	cmd.Flags().StringSlice("sources", nil, "Sources to capture (default: all driver sources)")
	cmd.Flags().Bool("no-save", false, "Do not persist captured traces")
	return cmd
}

func runAcquire(cmd *cobra.Command, args []string) error {
	instrument, session, err := openInstrument(cmd, args[0], args[1])
	if err != nil {
		return err
	}
	defer session.Close()

	sources, _ := cmd.Flags().GetStringSlice("sources")
	if len(sources) == 0 {
		sources = instrument.Sources().Names()
	}
	if len(sources) == 0 {
		return fmt.Errorf("driver %s declares no sources", args[0])
	}

	opts := []acquire.Option{}
	if noSave, _ := cmd.Flags().GetBool("no-save"); !noSave {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Store.Path != "" {
			st, err := store.Open(cfg.Store.Path, zap.NewNop())
			if err != nil {
				return fmt.Errorf("open trace store: %w", err)
			}
			defer st.Close()
			opts = append(opts, acquire.WithSaver(st))
		}
	}

	engine := acquire.New(&acquire.WaveformFetcher{Instrument: instrument}, opts...)

	spinner := ui.NewSpinner(cmd.ErrOrStderr(), "acquiring", noColor(cmd))
	spinner.Start()
	traces, err := engine.Single(cmd.Context(), sources)
	spinner.Stop()
	if err != nil {
		return fmt.Errorf("acquisition failed: %w", err)
	}

	table := ui.NewTable(cmd.OutOrStdout(),
		[]string{"ID", "SOURCE", "POINTS", "CAPTURED"}, noColor(cmd))
	for _, t := range traces {
		table.AddRow(t.ID.String(), t.Source, strconv.Itoa(t.Points()),
			t.CapturedAt.Format("15:04:05.000"))
	}
	table.Render()
	return nil
}
