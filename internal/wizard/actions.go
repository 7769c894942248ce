package wizard

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/meshwiz/internal/mesh"
)

// Action kinds. They double as event actions in the session log.
const (
	ActionOpen           = "open"
	ActionRouting        = "routing"
	ActionWeights        = "weights"
	ActionFaultInjection = "fault_injection"
	ActionTimeoutRetry   = "timeout_retry"
	ActionTrafficPolicy  = "traffic_policy"
	ActionCircuitBreaker = "circuit_breaker"
	ActionGateway        = "gateway"
	ActionHosts          = "hosts"
	ActionSubmitStarted  = "submit_started"
	ActionClose          = "close"
)

// Action is a message sent by one wizard tab to the reducer.
type Action interface {
	Kind() string
}

// OpenAction opens the wizard, or reinitializes it when the edited workloads
// changed.
type OpenAction struct {
	Inputs Inputs `json:"inputs"`
}

// RoutingAction carries the request routing rules.
type RoutingAction struct {
	Valid bool        `json:"valid"`
	Rules []mesh.Rule `json:"rules"`
}

// WeightsAction carries the traffic shifting weights.
type WeightsAction struct {
	Valid     bool                  `json:"valid"`
	Workloads []mesh.WorkloadWeight `json:"workloads"`
}

// FaultInjectionAction carries the fault injection tab.
type FaultInjectionAction struct {
	Valid bool                     `json:"valid"`
	Route mesh.FaultInjectionRoute `json:"route"`
}

// TimeoutRetryAction carries the request timeouts tab.
type TimeoutRetryAction struct {
	Valid bool                   `json:"valid"`
	Route mesh.TimeoutRetryRoute `json:"route"`
}

// TrafficPolicyAction carries the traffic policy tab. One flag covers both
// TLS and load balancer validity.
type TrafficPolicyAction struct {
	Valid  bool               `json:"valid"`
	Policy mesh.TrafficPolicy `json:"policy"`
}

// CircuitBreakerAction carries the circuit breaker tab.
type CircuitBreakerAction struct {
	ValidConnectionPool   bool                `json:"validConnectionPool"`
	ValidOutlierDetection bool                `json:"validOutlierDetection"`
	CircuitBreaker        mesh.CircuitBreaker `json:"circuitBreaker"`
}

// GatewayAction carries the gateway tab. Hosts, when set together with a
// new gateway, replace the VirtualService hosts.
type GatewayAction struct {
	Valid   bool         `json:"valid"`
	Gateway mesh.Gateway `json:"gateway"`
	Hosts   []string     `json:"hosts,omitempty"`
}

// HostsAction carries the VirtualService hosts.
type HostsAction struct {
	Valid bool     `json:"valid"`
	Hosts []string `json:"hosts"`
}

// SubmitStartedAction disables the primary action while writes are in flight.
type SubmitStartedAction struct{}

// CloseAction closes the wizard, committed or cancelled.
type CloseAction struct {
	Changed bool `json:"changed"`
}

func (OpenAction) Kind() string           { return ActionOpen }
func (RoutingAction) Kind() string        { return ActionRouting }
func (WeightsAction) Kind() string        { return ActionWeights }
func (FaultInjectionAction) Kind() string { return ActionFaultInjection }
func (TimeoutRetryAction) Kind() string   { return ActionTimeoutRetry }
func (TrafficPolicyAction) Kind() string  { return ActionTrafficPolicy }
func (CircuitBreakerAction) Kind() string { return ActionCircuitBreaker }
func (GatewayAction) Kind() string        { return ActionGateway }
func (HostsAction) Kind() string          { return ActionHosts }
func (SubmitStartedAction) Kind() string  { return ActionSubmitStarted }
func (CloseAction) Kind() string          { return ActionClose }

// DecodeAction rebuilds an action from its kind and JSON payload.
func DecodeAction(kind string, data []byte) (Action, error) {
	var a Action
	switch kind {
	case ActionOpen:
		a = &OpenAction{}
	case ActionRouting:
		a = &RoutingAction{}
	case ActionWeights:
		a = &WeightsAction{}
	case ActionFaultInjection:
		a = &FaultInjectionAction{}
	case ActionTimeoutRetry:
		a = &TimeoutRetryAction{}
	case ActionTrafficPolicy:
		a = &TrafficPolicyAction{}
	case ActionCircuitBreaker:
		a = &CircuitBreakerAction{}
	case ActionGateway:
		a = &GatewayAction{}
	case ActionHosts:
		a = &HostsAction{}
	case ActionSubmitStarted:
		return SubmitStartedAction{}, nil
	case ActionClose:
		a = &CloseAction{}
	default:
		return nil, fmt.Errorf("unknown wizard action %q", kind)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, a); err != nil {
			return nil, fmt.Errorf("decoding %s action: %w", kind, err)
		}
	}
	return deref(a), nil
}

func deref(a Action) Action {
	switch v := a.(type) {
	case *OpenAction:
		return *v
	case *RoutingAction:
		return *v
	case *WeightsAction:
		return *v
	case *FaultInjectionAction:
		return *v
	case *TimeoutRetryAction:
		return *v
	case *TrafficPolicyAction:
		return *v
	case *CircuitBreakerAction:
		return *v
	case *GatewayAction:
		return *v
	case *HostsAction:
		return *v
	case *CloseAction:
		return *v
	}
	return a
}
