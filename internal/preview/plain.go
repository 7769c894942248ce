package preview

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/colorprofile"
	"github.com/mark3labs/meshwiz/internal/theme"
)

// Plain prints the documents as YAML and asks for confirmation on In.
// Colors follow the terminal profile of Out.
type Plain struct {
	out      *colorprofile.Writer
	in       io.Reader
	confirm  bool
	showDiff bool
}

// NewPlain creates a plain presenter. With confirm set the documents are
// printed and accepted without a prompt.
func NewPlain(out io.Writer, in io.Reader, confirm, showDiff bool) *Plain {
	return &Plain{
		out:      colorprofile.NewWriter(out, os.Environ()),
		in:       in,
		confirm:  confirm,
		showDiff: showDiff,
	}
}

// WithProfile forces a color profile, mostly for tests.
func (p *Plain) WithProfile(profile colorprofile.Profile) *Plain {
	p.out.Profile = profile
	return p
}

func (p *Plain) Present(ctx context.Context, page Page) ([]Item, bool, error) {
	items := page.Items
	st := theme.Current().S()
	fmt.Fprintln(p.out, st.Heading.Render(page.Title))
	for _, it := range items {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, st.Item.Render("# "+summaryLine(it)))
		body := it.Document
		lang := Highlight
		if (p.showDiff && it.Existing != "") || it.Document == "" {
			body = it.Diff()
			lang = HighlightDiff
		}
		if body == "" {
			fmt.Fprintln(p.out, st.Muted.Render("(unchanged)"))
			continue
		}
		fmt.Fprintln(p.out, lang(strings.TrimRight(body, "\n")))
	}
	fmt.Fprintln(p.out)

	if p.confirm {
		return items, true, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	fmt.Fprint(p.out, "Apply these changes? [y/N] ")
	line, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return items, true, nil
	}
	return items, false, nil
}
