package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/meshwiz/internal/mcpserver"
	"github.com/mark3labs/meshwiz/internal/preview"
	"github.com/mark3labs/meshwiz/internal/state"
	"github.com/mark3labs/meshwiz/internal/synth"
	"github.com/mark3labs/meshwiz/internal/wizard"
	"github.com/spf13/cobra"
)

var previewFlags struct {
	diff bool
	raw  bool
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the documents a submission would write",
	Long: `Print the DestinationRule, Gateway, PeerAuthentication and VirtualService
a submission would write, as YAML or as diffs against the existing objects.

--raw prints a plain multi-document YAML stream suitable for piping.`,
	Args: cobra.NoArgs,
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().BoolVarP(&previewFlags.diff, "diff", "d", false, "Show diffs against the existing objects (default: from UI state)")
	previewCmd.Flags().BoolVar(&previewFlags.raw, "raw", false, "Print an uncolored YAML stream")
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name, err := sessionName()
	if err != nil {
		return err
	}
	opts, err := synthOptions()
	if err != nil {
		return err
	}

	store, cleanup, err := connectStore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := store.LoadState(ctx, name)
	if err != nil {
		return err
	}
	if !st.Wizard.Open {
		return fmt.Errorf("session %s: %w", name, wizard.ErrNotOpen)
	}

	items, err := preview.Items(st.Wizard, synth.Synthesize(st.Wizard, opts))
	if err != nil {
		return err
	}

	diff := previewFlags.diff
	if !cmd.Flags().Changed("diff") {
		diff = state.Load(cfg.DataDir).Preview.ShowDiff
	}

	if previewFlags.raw {
		_, err := fmt.Fprint(cmd.OutOrStdout(), mcpserver.RenderItems(preview.Title(st.Wizard), items, diff))
		return err
	}
	p := preview.NewPlain(os.Stdout, nil, true, diff)
	_, _, err = p.Present(ctx, preview.Page{Title: preview.Title(st.Wizard), Items: items})
	return err
}
