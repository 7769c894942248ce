// Package notify delivers the user-facing messages a submission produces.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/colorprofile"
	"github.com/mark3labs/meshwiz/internal/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Severity grades a notification.
type Severity string

const (
	Success Severity = "success"
	Info    Severity = "info"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// Notification is one message for the user.
type Notification struct {
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Namespace string    `json:"namespace,omitempty"`
	Service   string    `json:"service,omitempty"`
	Details   []string  `json:"details,omitempty"`
	Time      time.Time `json:"time"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification) error

func (f Func) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Log writes notifications to the leveled logger.
type Log struct {
	Logger *logger.Logger
}

func (l Log) Notify(_ context.Context, n Notification) error {
	lg := l.Logger
	if lg == nil {
		lg = logger.With("notify")
	}
	switch n.Severity {
	case Error:
		lg.Error("%s %v", n.Message, n.Details)
	case Warning:
		lg.Warn("%s %v", n.Message, n.Details)
	default:
		lg.Info("%s", n.Message)
	}
	return nil
}

var (
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1")).Bold(true)
	styleInfo    = lipgloss.NewStyle().Foreground(lipgloss.Color("#89b4fa")).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("#f9e2af")).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8")).Bold(true)
	styleDetail  = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8"))
)

// Writer prints notifications as terminal lines, downsampling colors to
// what the terminal supports.
type Writer struct {
	mu sync.Mutex
	w  *colorprofile.Writer
}

// NewWriter detects the color profile of w from the environment.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: colorprofile.NewWriter(w, os.Environ())}
}

// NewWriterWithProfile forces a color profile, mostly for tests.
func NewWriterWithProfile(w io.Writer, p colorprofile.Profile) *Writer {
	cw := colorprofile.NewWriter(w, os.Environ())
	cw.Profile = p
	return &Writer{w: cw}
}

func (w *Writer) Notify(_ context.Context, n Notification) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var prefix string
	switch n.Severity {
	case Success:
		prefix = styleSuccess.Render("✓")
	case Warning:
		prefix = styleWarning.Render("!")
	case Error:
		prefix = styleError.Render("✗")
	default:
		prefix = styleInfo.Render("•")
	}
	if _, err := fmt.Fprintf(w.w, "%s %s\n", prefix, n.Message); err != nil {
		return err
	}
	for _, d := range n.Details {
		if _, err := fmt.Fprintf(w.w, "  %s\n", styleDetail.Render(d)); err != nil {
			return err
		}
	}
	return nil
}

// Publisher stores notifications in a session's event log.
type Publisher interface {
	PublishNotification(ctx context.Context, session string, n Notification) error
}

// Bus records notifications on the session event log so other processes can
// list them.
type Bus struct {
	Session   string
	Publisher Publisher
}

func (b Bus) Notify(ctx context.Context, n Notification) error {
	return b.Publisher.PublishNotification(ctx, b.Session, n)
}

// Multi fans a notification out to every notifier. All are tried; failures
// are aggregated.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if nt == nil {
			continue
		}
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	list []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, n)
	return nil
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.list...)
}
