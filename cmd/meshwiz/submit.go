package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/mark3labs/meshwiz/internal/hooks"
	"github.com/mark3labs/meshwiz/internal/logger"
	"github.com/mark3labs/meshwiz/internal/mcpserver"
	"github.com/mark3labs/meshwiz/internal/preview"
	"github.com/mark3labs/meshwiz/internal/session"
	"github.com/mark3labs/meshwiz/internal/state"
	"github.com/spf13/cobra"
)

var submitFlags struct {
	yes   bool
	plain bool
	diff  bool
	templateFlags
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Review and write the wizard's documents",
	Long: `Review the documents of the current wizard and write them to the mesh console.

The review opens an interactive preview: tab switches documents, d toggles
diffs, e edits a document in $EDITOR, enter applies and esc cancels. Use
--plain for a printed preview with a y/N prompt, or --yes to apply without
asking.

The wizard is closed after every attempted submission, successful or not.
Hooks from .meshwiz.hooks.yml run before and after the writes.`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().BoolVarP(&submitFlags.yes, "yes", "y", false, "Apply without review")
	submitCmd.Flags().BoolVar(&submitFlags.plain, "plain", false, "Print the preview and prompt instead of the interactive view")
	submitCmd.Flags().BoolVarP(&submitFlags.diff, "diff", "d", false, "Start the preview with diffs (default: from UI state)")
	submitCmd.Flags().StringVar(&submitFlags.successTemplate, "success-template", "", "File with the success notification template")
	submitCmd.Flags().StringVar(&submitFlags.failureTemplate, "failure-template", "", "File with the failure notification template")
}

func runSubmit(cmd *cobra.Command, args []string) error {
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

	sub, err := newSubmitter(store, name, submitFlags.templateFlags)
	if err != nil {
		return err
	}

	ui := state.Load(cfg.DataDir)
	showDiff := ui.Preview.ShowDiff
	if cmd.Flags().Changed("diff") {
		showDiff = submitFlags.diff
	}

	var (
		presenter preview.Presenter
		tui       *preview.TUI
	)
	interactive := term.IsTerminal(os.Stdin.Fd()) && term.IsTerminal(os.Stdout.Fd())
	switch {
	case submitFlags.yes:
		presenter = preview.NewPlain(os.Stdout, nil, true, showDiff)
	case submitFlags.plain || ui.Preview.Presenter == state.PresenterPlain || !interactive:
		presenter = preview.NewPlain(os.Stdout, os.Stdin, false, showDiff)
	default:
		tui = preview.NewTUI(showDiff)
		presenter = tui
	}

	res, err := store.Submit(ctx, name, sub, opts, preview.Reviewer(presenter))

	// The diff toggle carries over to the next review.
	if tui != nil && tui.ShowDiff != ui.Preview.ShowDiff {
		ui.Preview.ShowDiff = tui.ShowDiff
		if err := state.Save(cfg.DataDir, ui); err != nil {
			logger.Warn("Failed to save UI state: %v", err)
		}
	}

	switch {
	case errors.Is(err, session.ErrCancelled):
		fmt.Println("Submission cancelled, the wizard is still open.")
		return nil
	case errors.Is(err, hooks.ErrRequiredFailed):
		fmt.Println(res.HookOutput)
		return fmt.Errorf("%w, nothing was written and the wizard is still open", err)
	case err != nil:
		return err
	}

	fmt.Println(mcpserver.SubmitSummary(res))
	if res.Err != nil {
		return fmt.Errorf("%d of %d operations failed", len(res.Failed()), len(res.Operations))
	}
	return nil
}
