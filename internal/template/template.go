package template

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mark3labs/meshwiz/internal/logger"
	"github.com/mark3labs/meshwiz/internal/mesh"
	"github.com/mark3labs/meshwiz/internal/synth"
	"github.com/mark3labs/meshwiz/internal/wizard"
)

// Variables holds the data to be injected into template placeholders.
type Variables struct {
	Namespace string // Namespace of the edited service
	Service   string // Service name
	Wizard    string // Wizard title
	Session   string // Session name
	Action    string // "updated" or "created"
	Verb      string // "update" or "create"
	Documents string // Formatted document list
	Tabs      string // Formatted tab summary
	Errors    string // Formatted persistence errors
}

// Render replaces {{variable}} placeholders in template with actual values.
// Supports the following variables:
// - {{namespace}} - Namespace of the edited service
// - {{service}} - Service name
// - {{wizard}} - Wizard title
// - {{session}} - Session name
// - {{action}} - Past tense of the submission verb
// - {{verb}} - Submission verb
// - {{documents}} - Documents about to be written
// - {{tabs}} - Summary of the edited tabs
// - {{errors}} - Persistence errors (empty if none)
func Render(template string, vars Variables) string {
	result := template

	replacements := map[string]string{
		"{{namespace}}": vars.Namespace,
		"{{service}}":   vars.Service,
		"{{wizard}}":    vars.Wizard,
		"{{session}}":   vars.Session,
		"{{action}}":    vars.Action,
		"{{verb}}":      vars.Verb,
		"{{documents}}": vars.Documents,
		"{{tabs}}":      vars.Tabs,
		"{{errors}}":    vars.Errors,
	}

	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	return result
}

// LoadFromFile loads a template from a file.
// If the file doesn't exist or can't be read, returns an error.
func LoadFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template file %s: %w", path, err)
	}
	return string(data), nil
}

// GetTemplate returns the template content.
// If customPath is non-empty, loads from that file.
// Otherwise returns fallback.
func GetTemplate(customPath, fallback string) (string, error) {
	if customPath == "" {
		return fallback, nil
	}
	return LoadFromFile(customPath)
}

// ForState fills the variables that depend only on the wizard state.
func ForState(s wizard.State, sessionName string) Variables {
	vars := Variables{
		Namespace: s.Inputs.Namespace,
		Service:   s.Inputs.ServiceName,
		Wizard:    s.Inputs.Type.Title(),
		Session:   sessionName,
		Action:    "created",
		Verb:      "create",
	}
	if s.Inputs.Update {
		vars.Action = "updated"
		vars.Verb = "update"
	}
	return vars
}

// Messages are the notification texts used after a submission.
type Messages struct {
	Success string
	Failure string
}

// DefaultMessages returns the built-in notification texts.
func DefaultMessages() Messages {
	return Messages{Success: DefaultSuccess, Failure: DefaultFailure}
}

// WithDefaults fills empty messages with the built-in ones.
func (m Messages) WithDefaults() Messages {
	if strings.TrimSpace(m.Success) == "" {
		m.Success = DefaultSuccess
	}
	if strings.TrimSpace(m.Failure) == "" {
		m.Failure = DefaultFailure
	}
	return m
}

// BuildSummary renders the markdown summary shown above a preview.
func BuildSummary(s wizard.State, set synth.PreviewSet) string {
	vars := ForState(s, "")
	vars.Documents = formatDocuments(s, set)
	vars.Tabs = formatTabs(s)
	result := Render(DefaultSummary, vars)
	logger.Debug("Summary rendered: %d characters", len(result))
	return result
}

// formatDocuments lists the documents a submission writes, in write order.
func formatDocuments(s wizard.State, set synth.PreviewSet) string {
	verb := "create"
	if s.Inputs.Update {
		verb = "update"
	}

	var sb strings.Builder
	sb.WriteString("## Documents\n")
	if set.Gateway != nil {
		sb.WriteString(fmt.Sprintf("- **create** Gateway `%s`\n", set.Gateway.Name))
	}
	if set.DestinationRule != nil {
		sb.WriteString(fmt.Sprintf("- **%s** DestinationRule `%s`\n", verb, set.DestinationRule.Name))
	}
	if set.VirtualService != nil {
		sb.WriteString(fmt.Sprintf("- **%s** VirtualService `%s`\n", verb, set.VirtualService.Name))
	}
	if set.PeerAuthnOp != synth.OpNone {
		name := ""
		if set.DestinationRule != nil {
			name = set.DestinationRule.Name
		}
		sb.WriteString(fmt.Sprintf("- **%s** PeerAuthentication `%s`\n", set.PeerAuthnOp, name))
	}
	return sb.String()
}

// formatTabs summarizes what each tab will configure.
// Tabs left at their defaults are omitted.
func formatTabs(s wizard.State) string {
	var lines []string

	switch s.Inputs.Type {
	case wizard.TrafficShifting, wizard.TCPTrafficShifting:
		lines = append(lines, "Weights: "+formatWeights(s.Workloads))
	case wizard.RequestRouting:
		lines = append(lines, fmt.Sprintf("Rules: %d", len(s.Rules)))
	case wizard.FaultInjection:
		fi := s.FaultInjection
		if fi.Delayed {
			lines = append(lines, fmt.Sprintf("Delay: %s for %g%%", fi.Delay.FixedDelay, fi.Delay.Percentage))
		}
		if fi.Aborted {
			lines = append(lines, fmt.Sprintf("Abort: HTTP %d for %g%%", fi.Abort.HTTPStatus, fi.Abort.Percentage))
		}
	case wizard.RequestTimeouts:
		tr := s.TimeoutRetry
		if tr.IsTimeout {
			lines = append(lines, "Timeout: "+tr.Timeout)
		}
		if tr.IsRetry {
			lines = append(lines, fmt.Sprintf("Retries: %d x %s on %s", tr.Retries.Attempts, tr.Retries.PerTryTimeout, tr.Retries.RetryOn))
		}
	}

	lines = append(lines, "Hosts: "+strings.Join(s.Hosts, ", "))
	if s.Gateway.AddGateway {
		gw := s.Gateway.SelectedGateway
		if s.Gateway.NewGateway {
			gw = fmt.Sprintf("%s (new, port %d)", synth.GatewayName(s.Inputs.ServiceName), s.Gateway.Port)
		}
		if s.Gateway.AddMesh {
			gw += " + mesh"
		}
		lines = append(lines, "Gateway: "+gw)
	}
	tp := s.TrafficPolicy
	if tp.TLSModified && tp.TLS.Mode != mesh.TLSUnset {
		lines = append(lines, "TLS: "+tp.TLS.Mode)
	}
	if tp.PeerAuthn.Enabled() {
		lines = append(lines, "PeerAuthentication: "+tp.PeerAuthn.Mode)
	}
	if s.CircuitBreaker.AddConnectionPool || s.CircuitBreaker.AddOutlierDetection {
		lines = append(lines, "Circuit breaker: on")
	}

	var sb strings.Builder
	sb.WriteString("## Settings\n")
	for _, line := range lines {
		sb.WriteString("- " + line + "\n")
	}
	return sb.String()
}

func formatWeights(ws []mesh.WorkloadWeight) string {
	sorted := append([]mesh.WorkloadWeight(nil), ws...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Weight > sorted[j].Weight })
	parts := make([]string, 0, len(sorted))
	for _, w := range sorted {
		if w.Mirrored {
			parts = append(parts, fmt.Sprintf("%s mirror %d%%", w.Name, w.Weight))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %d%%", w.Name, w.Weight))
	}
	return strings.Join(parts, ", ")
}

// FormatErrors renders aggregated persistence errors one per line.
func FormatErrors(errs []error) string {
	if len(errs) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, err := range errs {
		sb.WriteString("- " + err.Error() + "\n")
	}
	return sb.String()
}
