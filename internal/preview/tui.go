package preview

import (
	"context"
	"fmt"
	"os"
	"strings"

	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/glamour/v2"
	"charm.land/lipgloss/v2"
	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/editor"
	"github.com/mark3labs/meshwiz/internal/synth"
	"github.com/mark3labs/meshwiz/internal/theme"
)

// TUI is the interactive presenter. Tab switches documents, d toggles the
// diff, e opens the document in $EDITOR, enter confirms and esc cancels.
type TUI struct {
	ShowDiff bool
	opts     []tea.ProgramOption
}

// NewTUI creates the interactive presenter. Program options are passed to
// bubbletea, mostly to redirect input and output in tests.
func NewTUI(showDiff bool, opts ...tea.ProgramOption) *TUI {
	return &TUI{ShowDiff: showDiff, opts: opts}
}

func (t *TUI) Present(ctx context.Context, page Page) ([]Item, bool, error) {
	m := newModel(page, t.ShowDiff)
	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, t.opts...)
	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return nil, false, fmt.Errorf("preview failed: %w", err)
	}
	fm, ok := final.(*model)
	if !ok {
		return nil, false, fmt.Errorf("unexpected model type")
	}
	// Remember the toggle for the caller to persist.
	t.ShowDiff = fm.showDiff
	return fm.items, fm.confirmed, nil
}

type keyMap struct {
	Next    key.Binding
	Prev    key.Binding
	Diff    key.Binding
	Edit    key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

var keys = keyMap{
	Next:    key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next")),
	Prev:    key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab", "prev")),
	Diff:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "diff")),
	Edit:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
	Confirm: key.NewBinding(key.WithKeys("enter", "y"), key.WithHelp("enter", "apply")),
	Cancel:  key.NewBinding(key.WithKeys("esc", "q", "ctrl+c", "n"), key.WithHelp("esc", "cancel")),
}

type documentEditedMsg struct {
	index   int
	content string
	err     error
}

type model struct {
	page      Page
	items     []Item
	active    int
	showDiff  bool
	viewport  viewport.Model
	summary   string
	status    string
	statusErr bool
	width     int
	height    int
	confirmed bool
	done      bool
}

func newModel(page Page, showDiff bool) *model {
	vp := viewport.New(
		viewport.WithWidth(80),
		viewport.WithHeight(20),
	)
	vp.MouseWheelEnabled = true
	vp.MouseWheelDelta = 3

	m := &model{
		page:     page,
		items:    append([]Item(nil), page.Items...),
		showDiff: showDiff,
		viewport: vp,
		width:    80,
		height:   24,
	}
	m.summary = renderMarkdown(page.Summary, m.width)
	m.refresh()
	return m
}

// renderMarkdown renders the wizard summary with glamour, falling back to the
// raw markdown.
func renderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width > 120 {
		width = 120
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.summary = renderMarkdown(m.page.Summary, m.width)
		m.refresh()
		return m, nil

	case documentEditedMsg:
		m.applyEdit(msg)
		return m, nil

	case tea.KeyPressMsg:
		switch {
		case key.Matches(msg, keys.Next):
			m.selectItem(m.active + 1)
			return m, nil
		case key.Matches(msg, keys.Prev):
			m.selectItem(m.active - 1)
			return m, nil
		case key.Matches(msg, keys.Diff):
			m.showDiff = !m.showDiff
			m.refresh()
			return m, nil
		case key.Matches(msg, keys.Edit):
			return m, m.openEditor()
		case key.Matches(msg, keys.Confirm):
			m.confirmed = true
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, keys.Cancel):
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) selectItem(i int) {
	if len(m.items) == 0 {
		return
	}
	m.active = (i + len(m.items)) % len(m.items)
	m.status = ""
	m.refresh()
	m.viewport.GotoTop()
}

func (m *model) current() (Item, bool) {
	if m.active >= len(m.items) {
		return Item{}, false
	}
	return m.items[m.active], true
}

// body is the text shown for the active item: its YAML, or the diff against
// the existing object.
func (m *model) body() string {
	it, ok := m.current()
	if !ok {
		return "No documents."
	}
	if m.showDiff || it.Document == "" {
		d := it.Diff()
		if d == "" {
			return "(unchanged)"
		}
		return HighlightDiff(strings.TrimRight(d, "\n"))
	}
	return Highlight(strings.TrimRight(it.Document, "\n"))
}

func (m *model) chrome() (header, footer string) {
	st := theme.Current().S()
	var tabs []string
	for i, it := range m.items {
		style := st.Tab
		if i == m.active {
			style = st.TabActive
		}
		tabs = append(tabs, style.Render(it.Label()))
	}
	parts := []string{st.Heading.Render(m.page.Title)}
	if m.summary != "" {
		parts = append(parts, m.summary)
	}
	parts = append(parts, lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	header = lipgloss.JoinVertical(lipgloss.Left, parts...)

	// The diff hint names the view the key switches to.
	diff := keys.Diff
	if m.showDiff {
		diff.SetHelp("d", "yaml")
	}
	bindings := []key.Binding{keys.Next, diff}
	if os.Getenv("EDITOR") != "" {
		bindings = append(bindings, keys.Edit)
	}
	bindings = append(bindings, keys.Confirm, keys.Cancel)
	var hints []string
	for _, b := range bindings {
		h := b.Help()
		hints = append(hints, st.HintKey.Render(h.Key)+" "+st.HintDesc.Render(h.Desc))
	}
	footer = strings.Join(hints, st.HintDesc.Render(" • "))
	if m.status != "" {
		style := st.StatusOK
		if m.statusErr {
			style = st.StatusErr
		}
		footer = style.Render(m.status) + "\n" + footer
	}
	return header, footer
}

// refresh resizes the viewport around the header and footer and reloads the
// active document.
func (m *model) refresh() {
	header, footer := m.chrome()
	h := m.height - lipgloss.Height(header) - lipgloss.Height(footer) - 1
	if h < 3 {
		h = 3
	}
	m.viewport.SetWidth(m.width)
	m.viewport.SetHeight(h)
	m.viewport.SetContent(m.body())
}

func (m *model) openEditor() tea.Cmd {
	it, ok := m.current()
	if !ok || it.Document == "" {
		m.status, m.statusErr = "nothing to edit", true
		return nil
	}
	tmp, err := os.CreateTemp("", "meshwiz_*.yaml")
	if err != nil {
		m.status, m.statusErr = err.Error(), true
		return nil
	}
	if _, err := tmp.WriteString(it.Document); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		m.status, m.statusErr = err.Error(), true
		return nil
	}
	_ = tmp.Close()

	cmd, err := editor.Command("meshwiz", tmp.Name())
	if err != nil {
		_ = os.Remove(tmp.Name())
		m.status, m.statusErr = err.Error(), true
		return nil
	}
	index := m.active
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		defer os.Remove(tmp.Name())
		if err != nil {
			return documentEditedMsg{index: index, err: err}
		}
		content, err := os.ReadFile(tmp.Name())
		return documentEditedMsg{index: index, content: string(content), err: err}
	})
}

// applyEdit keeps an edited document only when it still decodes to the same
// object.
func (m *model) applyEdit(msg documentEditedMsg) {
	if msg.index < 0 || msg.index >= len(m.items) {
		return
	}
	if msg.err != nil {
		m.status, m.statusErr = "edit failed: "+msg.err.Error(), true
		m.refresh()
		return
	}
	edited := m.items[msg.index]
	if edited.Document == msg.content {
		m.status, m.statusErr = "no changes", false
		m.refresh()
		return
	}
	edited.Document = msg.content
	if _, err := Apply(synth.PreviewSet{}, []Item{edited}); err != nil {
		m.status, m.statusErr = err.Error(), true
		m.refresh()
		return
	}
	m.items[msg.index] = edited
	m.status, m.statusErr = edited.Title+" "+edited.Name+" edited", false
	m.refresh()
}

func (m *model) View() tea.View {
	var view tea.View
	view.AltScreen = true
	if m.done || m.width == 0 || m.height == 0 {
		view.Content = lipgloss.NewLayer("")
		return view
	}

	header, footer := m.chrome()
	content := lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), footer)

	canvas := uv.NewScreenBuffer(m.width, m.height)
	uv.NewStyledString(content).Draw(canvas, uv.Rectangle{
		Min: uv.Position{X: 0, Y: 0},
		Max: uv.Position{X: m.width, Y: m.height},
	})
	view.Content = lipgloss.NewLayer(canvas.Render())
	return view
}
