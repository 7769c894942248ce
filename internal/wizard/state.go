// Package wizard implements the service wizard state: typed tab actions folded
// by a pure reducer, and the validation that gates submission.
package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/meshwiz/internal/mesh"
)

// ErrNotOpen is returned by callers that need an open wizard.
var ErrNotOpen = errors.New("wizard is not open")

// Type selects which routing feature the wizard configures.
type Type string

const (
	TrafficShifting    Type = "traffic_shifting"
	TCPTrafficShifting Type = "tcp_traffic_shifting"
	RequestRouting     Type = "request_routing"
	FaultInjection     Type = "fault_injection"
	RequestTimeouts    Type = "request_timeouts"
)

// Types lists every wizard type in menu order.
var Types = []Type{RequestRouting, FaultInjection, TrafficShifting, TCPTrafficShifting, RequestTimeouts}

// Titles are the human readable wizard names.
var Titles = map[Type]string{
	TrafficShifting:    "Traffic Shifting",
	TCPTrafficShifting: "TCP Traffic Shifting",
	RequestRouting:     "Request Routing",
	FaultInjection:     "Fault Injection",
	RequestTimeouts:    "Request Timeouts",
}

// ParseType accepts either the snake_case or dash separated form.
func ParseType(s string) (Type, error) {
	t := Type(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if _, ok := Titles[t]; !ok {
		return "", fmt.Errorf("unknown wizard type %q", s)
	}
	return t, nil
}

// Title returns the wizard title.
func (t Type) Title() string {
	return Titles[t]
}

// HTTP reports whether the wizard produces HTTP routes.
func (t Type) HTTP() bool {
	return t != TCPTrafficShifting
}

// Inputs is everything the wizard is opened with. The reducer never mutates
// it.
type Inputs struct {
	Type         Type            `json:"type"`
	Namespace    string          `json:"namespace"`
	ServiceName  string          `json:"serviceName"`
	Update       bool            `json:"update"`
	Workloads    []mesh.Workload `json:"workloads"`
	Resources    mesh.Resources  `json:"resources"`
	Gateways     []string        `json:"gateways,omitempty"`
	VersionLabel string          `json:"versionLabel,omitempty"`
	GatewayPort  uint32          `json:"gatewayPort,omitempty"`
}

// FQDN is the cluster-local host of the edited service.
func (in Inputs) FQDN() string {
	return mesh.FQDNServiceName(in.ServiceName, in.Namespace)
}

func (in Inputs) versionLabel() string {
	if in.VersionLabel == "" {
		return "version"
	}
	return in.VersionLabel
}

func (in Inputs) gatewayPort() uint32 {
	if in.GatewayPort == 0 {
		return 80
	}
	return in.GatewayPort
}

// Validity holds one flag per independently validated area.
type Validity struct {
	MainWizard bool `json:"mainWizard"`
	VsHosts    bool `json:"vsHosts"`
	TLS        bool `json:"tls"`
	LB         bool `json:"lb"`
	Gateway    bool `json:"gateway"`
	CP         bool `json:"cp"`
	OD         bool `json:"od"`
}

// State is the whole wizard. It is a plain value: the reducer returns a new
// State for every action.
type State struct {
	Open           bool                     `json:"open"`
	Submitting     bool                     `json:"submitting,omitempty"`
	Inputs         Inputs                   `json:"inputs"`
	Workloads      []mesh.WorkloadWeight    `json:"workloads,omitempty"`
	Rules          []mesh.Rule              `json:"rules,omitempty"`
	FaultInjection mesh.FaultInjectionRoute `json:"faultInjection"`
	TimeoutRetry   mesh.TimeoutRetryRoute   `json:"timeoutRetry"`
	TrafficPolicy  mesh.TrafficPolicy       `json:"trafficPolicy"`
	CircuitBreaker mesh.CircuitBreaker      `json:"circuitBreaker"`
	Gateway        mesh.Gateway             `json:"gateway"`
	Hosts          []string                 `json:"hosts"`
	Valid          Validity                 `json:"valid"`
}

// Empty is the closed wizard.
func Empty() State {
	return State{}
}

// New builds the initial state for the given inputs, reading every tab's
// starting value from the resources being edited.
func New(in Inputs) State {
	s := State{
		Open:   true,
		Inputs: in,
		Valid: Validity{
			MainWizard: true,
			VsHosts:    true,
			TLS:        true,
			LB:         true,
			Gateway:    true,
			CP:         true,
			OD:         true,
		},
	}
	vss := in.Resources.VirtualServices
	label := in.versionLabel()

	switch in.Type {
	case TrafficShifting, TCPTrafficShifting:
		s.Workloads = mesh.InitWeights(in.Workloads, vss, label)
	case RequestRouting:
		s.Rules = mesh.InitRules(in.Workloads, vss, label)
		// No rules is not a valid routing configuration.
		s.Valid.MainWizard = len(s.Rules) > 0
	case FaultInjection:
		s.FaultInjection = mesh.InitFaultInjectionRoute(in.Workloads, vss, label)
	case RequestTimeouts:
		s.TimeoutRetry = mesh.InitTimeoutRetryRoute(in.Workloads, vss, label)
	}

	hosts := mesh.InitHosts(vss)
	if len(hosts) == 0 || (len(hosts) == 1 && hosts[0] == "") {
		hosts = []string{in.FQDN()}
	}
	s.Hosts = hosts
	s.TrafficPolicy = mesh.InitTrafficPolicy(in.Resources)
	s.CircuitBreaker = mesh.InitCircuitBreaker(in.Resources)
	s.Gateway = mesh.InitGatewaySelection(vss, in.gatewayPort())
	return s
}

// GatewayHosts are the hosts a newly created gateway serves. They are always
// the VirtualService hosts; an existing gateway contributes none.
func (s State) GatewayHosts() []string {
	if !s.Gateway.AddGateway || !s.Gateway.NewGateway {
		return nil
	}
	return append([]string(nil), s.Hosts...)
}

// IsValid is the AND of every validity flag. A closed wizard is never valid.
func IsValid(s State) bool {
	if !s.Open {
		return false
	}
	v := s.Valid
	return v.MainWizard && v.VsHosts && v.TLS && v.LB && v.Gateway && v.CP && v.OD
}

// Invalid names the flags that currently block submission.
func (v Validity) Invalid() []string {
	var out []string
	for _, f := range []struct {
		name string
		ok   bool
	}{
		{"main", v.MainWizard},
		{"hosts", v.VsHosts},
		{"tls", v.TLS},
		{"load balancer", v.LB},
		{"gateway", v.Gateway},
		{"connection pool", v.CP},
		{"outlier detection", v.OD},
	} {
		if !f.ok {
			out = append(out, f.name)
		}
	}
	return out
}

func (s State) clone() State {
	out := s
	out.Workloads = append([]mesh.WorkloadWeight(nil), s.Workloads...)
	out.Rules = cloneRules(s.Rules)
	out.FaultInjection.Workloads = append([]mesh.WorkloadWeight(nil), s.FaultInjection.Workloads...)
	out.TimeoutRetry.Workloads = append([]mesh.WorkloadWeight(nil), s.TimeoutRetry.Workloads...)
	out.Hosts = append([]string(nil), s.Hosts...)
	return out
}

func cloneRules(rules []mesh.Rule) []mesh.Rule {
	if rules == nil {
		return nil
	}
	out := make([]mesh.Rule, len(rules))
	for i, r := range rules {
		c := r
		c.Matches = append([]string(nil), r.Matches...)
		c.Routes = append([]mesh.WorkloadWeight(nil), r.Routes...)
		if r.Delay != nil {
			d := *r.Delay
			c.Delay = &d
		}
		if r.Abort != nil {
			a := *r.Abort
			c.Abort = &a
		}
		if r.Retries != nil {
			rt := *r.Retries
			c.Retries = &rt
		}
		out[i] = c
	}
	return out
}
