package wizard

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mark3labs/meshwiz/internal/mesh"
)

// Tab names, as used by the command line and the tool server.
const (
	TabWeights        = "weights"
	TabRules          = "rules"
	TabFaultInjection = "fault-injection"
	TabTimeouts       = "timeouts"
	TabHosts          = "hosts"
	TabGateway        = "gateway"
	TabTrafficPolicy  = "traffic-policy"
	TabCircuitBreaker = "circuit-breaker"
)

// mainTabs is the primary tab of every wizard type. The other tabs are
// shared by all types.
var mainTabs = map[Type]string{
	TrafficShifting:    TabWeights,
	TCPTrafficShifting: TabWeights,
	RequestRouting:     TabRules,
	FaultInjection:     TabFaultInjection,
	RequestTimeouts:    TabTimeouts,
}

// WeightsInput is the payload of the weights tab.
type WeightsInput struct {
	Workloads []mesh.WorkloadWeight `json:"workloads"`
}

// RulesInput is the payload of the rules tab.
type RulesInput struct {
	Rules []mesh.Rule `json:"rules"`
}

// HostsInput is the payload of the hosts tab.
type HostsInput struct {
	Hosts []string `json:"hosts"`
}

// GatewayInput is the payload of the gateway tab. Hosts are optional and
// only used with a new gateway.
type GatewayInput struct {
	Gateway mesh.Gateway `json:"gateway"`
	Hosts   []string     `json:"hosts,omitempty"`
}

// Tabs lists the tabs available to a wizard type, main tab first.
func Tabs(t Type) []string {
	return []string{mainTabs[t], TabHosts, TabGateway, TabTrafficPolicy, TabCircuitBreaker}
}

// AllTabs lists every tab name, sorted.
func AllTabs() []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range Types {
		for _, tab := range Tabs(t) {
			if !seen[tab] {
				seen[tab] = true
				out = append(out, tab)
			}
		}
	}
	sort.Strings(out)
	return out
}

// TabAction decodes a tab payload, runs the tab check against s and returns
// the action carrying the value and its validity, plus the check messages.
// Invalid values still produce an action: they are stored and block
// submission until fixed.
func TabAction(s State, tab string, payload []byte) (Action, []string, error) {
	if !s.Open {
		return nil, nil, ErrNotOpen
	}
	if isMainTab(tab) && mainTabs[s.Inputs.Type] != tab {
		return nil, nil, fmt.Errorf("tab %q is not part of the %s wizard", tab, s.Inputs.Type.Title())
	}

	switch tab {
	case TabWeights:
		var in WeightsInput
		if err := decode(tab, payload, &in); err != nil {
			return nil, nil, err
		}
		valid, msgs := CheckWeights(in.Workloads, s.Inputs.Type.HTTP())
		return WeightsAction{Valid: valid, Workloads: in.Workloads}, msgs, nil

	case TabRules:
		var in RulesInput
		if err := decode(tab, payload, &in); err != nil {
			return nil, nil, err
		}
		valid, msgs := CheckRules(in.Rules)
		return RoutingAction{Valid: valid, Rules: in.Rules}, msgs, nil

	case TabFaultInjection:
		route := s.FaultInjection
		route.Workloads = append([]mesh.WorkloadWeight(nil), route.Workloads...)
		if err := decode(tab, payload, &route); err != nil {
			return nil, nil, err
		}
		valid, msgs := CheckFaultInjection(route)
		return FaultInjectionAction{Valid: valid, Route: route}, msgs, nil

	case TabTimeouts:
		route := s.TimeoutRetry
		route.Workloads = append([]mesh.WorkloadWeight(nil), route.Workloads...)
		if err := decode(tab, payload, &route); err != nil {
			return nil, nil, err
		}
		valid, msgs := CheckTimeoutRetry(route)
		return TimeoutRetryAction{Valid: valid, Route: route}, msgs, nil

	case TabHosts:
		var in HostsInput
		if err := decode(tab, payload, &in); err != nil {
			return nil, nil, err
		}
		valid, msgs := CheckHosts(in.Hosts)
		return HostsAction{Valid: valid, Hosts: in.Hosts}, msgs, nil

	case TabGateway:
		in := GatewayInput{Gateway: s.Gateway}
		if err := decode(tab, payload, &in); err != nil {
			return nil, nil, err
		}
		hosts := s.Hosts
		if in.Gateway.AddGateway && in.Gateway.NewGateway && len(in.Hosts) > 0 {
			hosts = in.Hosts
		}
		valid, msgs := CheckGateway(in.Gateway, hosts, s.Inputs.Gateways)
		return GatewayAction{Valid: valid, Gateway: in.Gateway, Hosts: in.Hosts}, msgs, nil

	case TabTrafficPolicy:
		tp := s.TrafficPolicy
		if err := decode(tab, payload, &tp); err != nil {
			return nil, nil, err
		}
		valid, msgs := CheckTrafficPolicy(tp)
		return TrafficPolicyAction{Valid: valid, Policy: tp}, msgs, nil

	case TabCircuitBreaker:
		cb := s.CircuitBreaker
		if err := decode(tab, payload, &cb); err != nil {
			return nil, nil, err
		}
		validCP, validOD, msgs := CheckCircuitBreaker(cb)
		return CircuitBreakerAction{ValidConnectionPool: validCP, ValidOutlierDetection: validOD, CircuitBreaker: cb}, msgs, nil
	}
	return nil, nil, fmt.Errorf("unknown tab %q", tab)
}

func isMainTab(tab string) bool {
	for _, t := range mainTabs {
		if t == tab {
			return true
		}
	}
	return false
}

// decode overlays payload onto out, so partial payloads keep the current
// value of the fields they omit.
func decode(tab string, payload []byte, out any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%s: empty payload", tab)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: %w", tab, err)
	}
	return nil
}
