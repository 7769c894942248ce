package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mark3labs/meshwiz/internal/hooks"
	"github.com/mark3labs/meshwiz/internal/preview"
	"github.com/mark3labs/meshwiz/internal/session"
	"github.com/mark3labs/meshwiz/internal/submit"
	"github.com/mark3labs/meshwiz/internal/synth"
	"github.com/mark3labs/meshwiz/internal/wizard"
)

// stateView is what wizard-state returns.
type stateView struct {
	Session  string       `json:"session"`
	Open     bool         `json:"open"`
	Type     string       `json:"type,omitempty"`
	Service  string       `json:"service,omitempty"`
	Update   bool         `json:"update"`
	Valid    bool         `json:"valid"`
	Invalid  []string     `json:"invalid,omitempty"`
	Tabs     []string     `json:"tabs,omitempty"`
	Gateways []string     `json:"gateways,omitempty"`
	State    wizard.State `json:"state"`
}

// handleState returns the wizard state as JSON.
func (s *Server) handleState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.store.LoadState(ctx, s.sessName)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: failed to load state: %v", err)), nil
	}
	w := st.Wizard
	view := stateView{Session: s.sessName, Open: w.Open}
	if w.Open {
		view.Type = string(w.Inputs.Type)
		view.Service = w.Inputs.Namespace + "/" + w.Inputs.ServiceName
		view.Update = w.Inputs.Update
		view.Valid = wizard.IsValid(w)
		view.Invalid = w.Valid.Invalid()
		view.Tabs = wizard.Tabs(w.Inputs.Type)
		view.Gateways = w.Inputs.Gateways
		// Existing resources are large and already summarized by the tabs.
		w.Inputs.Resources.VirtualServices = nil
		w.Inputs.Resources.DestinationRules = nil
		w.Inputs.Resources.PeerAuthentications = nil
		view.State = w
	}
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleTab returns the handler of an update tool. The tool arguments are
// the tab payload; the tab check decides the validity stored with it.
func (s *Server) handleTab(tab string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if len(args) == 0 {
			return mcp.NewToolResultText("error: no arguments provided"), nil
		}
		payload, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
		}

		msgs, next, err := UpdateTab(ctx, s.store, s.sessName, tab, payload)
		if err != nil {
			return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
		}
		return mcp.NewToolResultText(tabResult(tab, msgs, next)), nil
	}
}

// UpdateTab applies a tab payload to a session. It returns the tab check
// messages and the new wizard state.
func UpdateTab(ctx context.Context, store *session.Store, sessionName, tab string, payload []byte) ([]string, wizard.State, error) {
	st, err := store.LoadState(ctx, sessionName)
	if err != nil {
		return nil, wizard.State{}, fmt.Errorf("failed to load state: %w", err)
	}
	if st.Wizard.Submitting {
		return nil, st.Wizard, submit.ErrInProgress
	}
	action, msgs, err := wizard.TabAction(st.Wizard, tab, payload)
	if err != nil {
		return nil, st.Wizard, err
	}
	next, err := store.Dispatch(ctx, sessionName, action)
	if err != nil {
		return nil, st.Wizard, err
	}
	return msgs, next, nil
}

func tabResult(tab string, msgs []string, next wizard.State) string {
	var b strings.Builder
	if len(msgs) == 0 {
		fmt.Fprintf(&b, "%s updated", tab)
	} else {
		fmt.Fprintf(&b, "%s stored but invalid:", tab)
		for _, m := range msgs {
			fmt.Fprintf(&b, "\n  - %s", m)
		}
	}
	if wizard.IsValid(next) {
		b.WriteString("\nwizard is ready to submit")
	} else {
		fmt.Fprintf(&b, "\nsubmission blocked by: %s", strings.Join(next.Valid.Invalid(), ", "))
	}
	return b.String()
}

// handlePreview renders the documents a submission would write.
func (s *Server) handlePreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.store.LoadState(ctx, s.sessName)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: failed to load state: %v", err)), nil
	}
	if !st.Wizard.Open {
		return mcp.NewToolResultText("error: " + wizard.ErrNotOpen.Error()), nil
	}
	items, err := preview.Items(st.Wizard, synth.Synthesize(st.Wizard, s.synthOpts))
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	return mcp.NewToolResultText(RenderItems(preview.Title(st.Wizard), items, request.GetBool("diff", false))), nil
}

// RenderItems formats preview items as a multi-document YAML stream.
func RenderItems(title string, items []preview.Item, diff bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title)
	for _, it := range items {
		fmt.Fprintf(&b, "---\n# %s %s %s\n", it.Op, it.Title, it.Name)
		body := it.Document
		if diff || body == "" {
			body = it.Diff()
		}
		if body == "" {
			body = "# unchanged\n"
		}
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// handleSubmit writes the documents and closes the wizard.
func (s *Server) handleSubmit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.submitter == nil {
		return mcp.NewToolResultText("error: submission is not configured for this server"), nil
	}
	res, err := s.store.Submit(ctx, s.sessName, s.submitter, s.synthOpts, session.AutoConfirm)
	switch {
	case errors.Is(err, submit.ErrInvalid), errors.Is(err, submit.ErrInProgress), errors.Is(err, wizard.ErrNotOpen):
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	case errors.Is(err, hooks.ErrRequiredFailed):
		return mcp.NewToolResultText(fmt.Sprintf("error: %v, nothing was written\n%s", err, res.HookOutput)), nil
	case err != nil:
		return mcp.NewToolResultText(fmt.Sprintf("error: submission failed: %v", err)), nil
	}
	return mcp.NewToolResultText(SubmitSummary(res)), nil
}

// SubmitSummary describes a finished submission.
func SubmitSummary(res submit.Result) string {
	var b strings.Builder
	b.WriteString(res.Notification.Message)
	for _, op := range res.Operations {
		status := "ok"
		if op.Err != nil {
			status = op.Err.Error()
		}
		fmt.Fprintf(&b, "\n  %s: %s", op, status)
	}
	for _, op := range res.RolledBack {
		status := "ok"
		if op.Err != nil {
			status = op.Err.Error()
		}
		fmt.Fprintf(&b, "\n  rollback %s: %s", op, status)
	}
	if res.HookOutput != "" {
		b.WriteString("\n" + res.HookOutput)
	}
	return b.String()
}

// handleClose closes the wizard without writing.
func (s *Server) handleClose(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.store.Close(ctx, s.sessName, false); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("error: %v", err)), nil
	}
	return mcp.NewToolResultText("wizard closed"), nil
}
