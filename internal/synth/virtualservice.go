package synth

import (
	"github.com/mark3labs/meshwiz/internal/mesh"
	"github.com/mark3labs/meshwiz/internal/wizard"
	istionet "istio.io/api/networking/v1alpha3"
	networkingv1alpha3 "istio.io/client-go/pkg/apis/networking/v1alpha3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func buildVirtualService(s wizard.State, opts Options) *networkingv1alpha3.VirtualService {
	vs := &networkingv1alpha3.VirtualService{
		TypeMeta:   metav1.TypeMeta{APIVersion: mesh.NetworkingAPIVersion, Kind: mesh.KindVirtualService},
		ObjectMeta: objectMeta(s, vsName(s)),
	}
	vs.Spec.Hosts = append([]string(nil), s.Hosts...)
	vs.Spec.Gateways = gateways(s)

	_, subsets := mesh.Subsets(s.Inputs.Workloads, opts.VersionLabel)
	r := routeBuilder{host: s.Inputs.FQDN(), subsets: subsets}

	switch s.Inputs.Type {
	case wizard.TrafficShifting:
		vs.Spec.Http = []*istionet.HTTPRoute{r.weighted(s.Workloads)}
	case wizard.TCPTrafficShifting:
		vs.Spec.Tcp = []*istionet.TCPRoute{{Route: r.tcpDestinations(s.Workloads)}}
	case wizard.RequestRouting:
		for _, rule := range s.Rules {
			vs.Spec.Http = append(vs.Spec.Http, r.rule(rule))
		}
	case wizard.FaultInjection:
		route := r.weighted(s.FaultInjection.Workloads)
		route.Fault = fault(s.FaultInjection)
		vs.Spec.Http = []*istionet.HTTPRoute{route}
	case wizard.RequestTimeouts:
		tr := s.TimeoutRetry
		route := r.weighted(tr.Workloads)
		if tr.IsTimeout {
			route.Timeout = mesh.ParseDuration(tr.Timeout)
		}
		if tr.IsRetry {
			route.Retries = retries(tr.Retries)
		}
		vs.Spec.Http = []*istionet.HTTPRoute{route}
	}
	return vs
}

// gateways lists the gateways the VirtualService binds to: the new or
// selected gateway, then mesh when requested.
func gateways(s wizard.State) []string {
	gw := s.Gateway
	if !gw.AddGateway {
		return nil
	}
	var out []string
	if gw.NewGateway {
		out = append(out, GatewayName(s.Inputs.ServiceName))
	} else if gw.SelectedGateway != "" {
		out = append(out, gw.SelectedGateway)
	}
	if gw.AddMesh {
		out = append(out, mesh.MeshGateway)
	}
	return out
}

type routeBuilder struct {
	host    string
	subsets map[string]string
}

func (r routeBuilder) destination(workload string) *istionet.Destination {
	subset, ok := r.subsets[workload]
	if !ok {
		subset = workload
	}
	return &istionet.Destination{Host: r.host, Subset: subset}
}

// httpDestinations skips mirrored workloads and workloads without traffic,
// unless nothing would be left.
func (r routeBuilder) httpDestinations(ws []mesh.WorkloadWeight) []*istionet.HTTPRouteDestination {
	var out []*istionet.HTTPRouteDestination
	for _, w := range ws {
		if w.Mirrored || w.Weight <= 0 {
			continue
		}
		out = append(out, &istionet.HTTPRouteDestination{Destination: r.destination(w.Name), Weight: w.Weight})
	}
	if len(out) == 0 {
		for _, w := range ws {
			if !w.Mirrored {
				out = append(out, &istionet.HTTPRouteDestination{Destination: r.destination(w.Name), Weight: w.Weight})
			}
		}
	}
	return out
}

func (r routeBuilder) tcpDestinations(ws []mesh.WorkloadWeight) []*istionet.RouteDestination {
	var out []*istionet.RouteDestination
	for _, w := range ws {
		if w.Mirrored || w.Weight <= 0 {
			continue
		}
		out = append(out, &istionet.RouteDestination{Destination: r.destination(w.Name), Weight: w.Weight})
	}
	return out
}

func (r routeBuilder) weighted(ws []mesh.WorkloadWeight) *istionet.HTTPRoute {
	route := &istionet.HTTPRoute{Route: r.httpDestinations(ws)}
	for _, w := range ws {
		if !w.Mirrored {
			continue
		}
		route.Mirror = r.destination(w.Name)
		if w.Weight > 0 && w.Weight < 100 {
			route.MirrorPercentage = &istionet.Percent{Value: float64(w.Weight)}
		}
		break
	}
	return route
}

func (r routeBuilder) rule(rule mesh.Rule) *istionet.HTTPRoute {
	route := r.weighted(rule.Routes)
	if m := mesh.HTTPMatchRequest(rule.Matches); m != nil {
		route.Match = []*istionet.HTTPMatchRequest{m}
	}
	if rule.Delay != nil || rule.Abort != nil {
		route.Fault = &istionet.HTTPFaultInjection{}
		if rule.Delay != nil {
			route.Fault.Delay = delay(*rule.Delay)
		}
		if rule.Abort != nil {
			route.Fault.Abort = abort(*rule.Abort)
		}
	}
	route.Timeout = mesh.ParseDuration(rule.Timeout)
	if rule.Retries != nil {
		route.Retries = retries(*rule.Retries)
	}
	return route
}

func fault(fi mesh.FaultInjectionRoute) *istionet.HTTPFaultInjection {
	if !fi.Delayed && !fi.Aborted {
		return nil
	}
	f := &istionet.HTTPFaultInjection{}
	if fi.Delayed {
		f.Delay = delay(fi.Delay)
	}
	if fi.Aborted {
		f.Abort = abort(fi.Abort)
	}
	return f
}

func delay(d mesh.Delay) *istionet.HTTPFaultInjection_Delay {
	return &istionet.HTTPFaultInjection_Delay{
		Percentage:    &istionet.Percent{Value: d.Percentage},
		HttpDelayType: &istionet.HTTPFaultInjection_Delay_FixedDelay{FixedDelay: mesh.ParseDuration(d.FixedDelay)},
	}
}

func abort(a mesh.Abort) *istionet.HTTPFaultInjection_Abort {
	return &istionet.HTTPFaultInjection_Abort{
		Percentage: &istionet.Percent{Value: a.Percentage},
		ErrorType:  &istionet.HTTPFaultInjection_Abort_HttpStatus{HttpStatus: a.HTTPStatus},
	}
}

func retries(r mesh.Retry) *istionet.HTTPRetry {
	return &istionet.HTTPRetry{
		Attempts:      r.Attempts,
		PerTryTimeout: mesh.ParseDuration(r.PerTryTimeout),
		RetryOn:       r.RetryOn,
	}
}
