package wizard

import (
	"github.com/mark3labs/meshwiz/internal/logger"
	"github.com/mark3labs/meshwiz/internal/mesh"
)

var log = logger.With("wizard")

// Reduce returns the state that follows s after a. It never mutates s.
// Tab actions on a closed wizard are ignored.
func Reduce(s State, a Action) State {
	switch act := a.(type) {
	case OpenAction:
		return reduceOpen(s, act.Inputs)
	case CloseAction:
		log.Debug("closing %s wizard for %s (changed=%t)", s.Inputs.Type, s.Inputs.ServiceName, act.Changed)
		return Empty()
	}

	if !s.Open {
		log.Debug("ignoring %s on closed wizard", a.Kind())
		return s
	}
	next := s.clone()

	switch act := a.(type) {
	case RoutingAction:
		next.Rules = cloneRules(act.Rules)
		next.Valid.MainWizard = act.Valid
	case WeightsAction:
		next.Workloads = append([]mesh.WorkloadWeight(nil), act.Workloads...)
		next.Valid.MainWizard = act.Valid
	case FaultInjectionAction:
		next.FaultInjection = act.Route
		next.FaultInjection.Workloads = append([]mesh.WorkloadWeight(nil), act.Route.Workloads...)
		next.Valid.MainWizard = act.Valid
	case TimeoutRetryAction:
		next.TimeoutRetry = act.Route
		next.TimeoutRetry.Workloads = append([]mesh.WorkloadWeight(nil), act.Route.Workloads...)
		next.Valid.MainWizard = act.Valid
	case TrafficPolicyAction:
		next.TrafficPolicy = act.Policy
		next.Valid.TLS = act.Valid
		next.Valid.LB = act.Valid
	case CircuitBreakerAction:
		next.CircuitBreaker = act.CircuitBreaker
		next.Valid.CP = act.ValidConnectionPool
		next.Valid.OD = act.ValidOutlierDetection
	case GatewayAction:
		next.Gateway = act.Gateway
		next.Valid.Gateway = act.Valid
		// Hosts named by a new gateway replace the VirtualService hosts and
		// carry their own validity.
		if act.Gateway.AddGateway && act.Gateway.NewGateway && len(act.Hosts) > 0 {
			next.Hosts = append([]string(nil), act.Hosts...)
			next.Valid.VsHosts, _ = CheckHosts(next.Hosts)
		}
	case HostsAction:
		next.Hosts = append([]string(nil), act.Hosts...)
		next.Valid.VsHosts = act.Valid
		// Hosts becoming valid can clear a gateway error caused by them,
		// except a wildcard host exposed to the mesh.
		if act.Valid && !next.Valid.Gateway {
			if !mesh.HasWildcard(act.Hosts) || !next.Gateway.AddMesh {
				next.Valid.Gateway = true
			}
		}
	case SubmitStartedAction:
		next.Submitting = true
		next.Valid.MainWizard = false
	default:
		log.Warn("unknown wizard action %T", a)
		return s
	}
	log.Debug("%s applied, valid=%t", a.Kind(), IsValid(next))
	return next
}

func reduceOpen(s State, in Inputs) State {
	if s.Open && s.Inputs.Type == in.Type && s.Inputs.Namespace == in.Namespace &&
		s.Inputs.ServiceName == in.ServiceName && mesh.WorkloadsEqual(s.Inputs.Workloads, in.Workloads) {
		next := s.clone()
		next.Inputs = in
		// Reopening after an interrupted submission makes the wizard
		// submittable again.
		if next.Submitting {
			log.Debug("clearing stale submission on %s wizard for %s", in.Type, in.ServiceName)
			next.Submitting = false
			next.Valid.MainWizard, _ = CheckMain(next)
		}
		return next
	}
	log.Debug("initializing %s wizard for %s/%s with %d workloads", in.Type, in.Namespace, in.ServiceName, len(in.Workloads))
	return New(in)
}

// Open opens the wizard on s.
func Open(s State, in Inputs) State {
	return Reduce(s, OpenAction{Inputs: in})
}

// UpdateRouting replaces the request routing rules.
func UpdateRouting(s State, valid bool, rules []mesh.Rule) State {
	return Reduce(s, RoutingAction{Valid: valid, Rules: rules})
}

// UpdateWeights replaces the traffic shifting weights.
func UpdateWeights(s State, valid bool, workloads []mesh.WorkloadWeight) State {
	return Reduce(s, WeightsAction{Valid: valid, Workloads: workloads})
}

// UpdateFaultInjection replaces the fault injection tab.
func UpdateFaultInjection(s State, valid bool, route mesh.FaultInjectionRoute) State {
	return Reduce(s, FaultInjectionAction{Valid: valid, Route: route})
}

// UpdateTimeoutRetry replaces the request timeouts tab.
func UpdateTimeoutRetry(s State, valid bool, route mesh.TimeoutRetryRoute) State {
	return Reduce(s, TimeoutRetryAction{Valid: valid, Route: route})
}

// UpdateTrafficPolicy replaces the traffic policy tab.
func UpdateTrafficPolicy(s State, valid bool, policy mesh.TrafficPolicy) State {
	return Reduce(s, TrafficPolicyAction{Valid: valid, Policy: policy})
}

// UpdateCircuitBreaker replaces the circuit breaker tab.
func UpdateCircuitBreaker(s State, validCP, validOD bool, cb mesh.CircuitBreaker) State {
	return Reduce(s, CircuitBreakerAction{ValidConnectionPool: validCP, ValidOutlierDetection: validOD, CircuitBreaker: cb})
}

// UpdateGateway replaces the gateway tab; hosts may be nil.
func UpdateGateway(s State, valid bool, gw mesh.Gateway, hosts []string) State {
	return Reduce(s, GatewayAction{Valid: valid, Gateway: gw, Hosts: hosts})
}

// UpdateHosts replaces the VirtualService hosts.
func UpdateHosts(s State, valid bool, hosts []string) State {
	return Reduce(s, HostsAction{Valid: valid, Hosts: hosts})
}
