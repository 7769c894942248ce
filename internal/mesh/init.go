package mesh

import (
	"time"

	"google.golang.org/protobuf/types/known/durationpb"
	istionet "istio.io/api/networking/v1alpha3"
	networkingv1alpha3 "istio.io/client-go/pkg/apis/networking/v1alpha3"
	securityv1beta1 "istio.io/client-go/pkg/apis/security/v1beta1"
)

// FormatDuration renders a proto duration the way the wizard edits it.
func FormatDuration(d *durationpb.Duration) string {
	if d == nil {
		return ""
	}
	return d.AsDuration().String()
}

// ParseDuration converts a wizard duration string into a proto duration.
// Invalid or empty input yields nil.
func ParseDuration(s string) *durationpb.Duration {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil
	}
	return durationpb.New(d)
}

// EvenWeights spreads 100% across the named workloads; the remainder goes to
// the first one.
func EvenWeights(workloads []Workload) []WorkloadWeight {
	if len(workloads) == 0 {
		return nil
	}
	n := int32(len(workloads))
	each := 100 / n
	out := make([]WorkloadWeight, 0, len(workloads))
	for i, w := range workloads {
		weight := each
		if i == 0 {
			weight += 100 - each*n
		}
		out = append(out, WorkloadWeight{Name: w.Name, Weight: weight})
	}
	return out
}

// InitHosts returns the hosts of the existing VirtualService.
func InitHosts(vss []*networkingv1alpha3.VirtualService) []string {
	if len(vss) == 0 {
		return nil
	}
	return append([]string(nil), vss[0].Spec.GetHosts()...)
}

func trafficPolicy(drs []*networkingv1alpha3.DestinationRule) *istionet.TrafficPolicy {
	if len(drs) == 0 {
		return nil
	}
	return drs[0].Spec.GetTrafficPolicy()
}

// InitTLS reads the client TLS settings of the existing DestinationRule.
func InitTLS(drs []*networkingv1alpha3.DestinationRule) (ClientTLS, bool) {
	tls := trafficPolicy(drs).GetTls()
	if tls == nil {
		return ClientTLS{Mode: TLSUnset}, false
	}
	return ClientTLS{
		Mode:              tls.GetMode().String(),
		ClientCertificate: tls.GetClientCertificate(),
		PrivateKey:        tls.GetPrivateKey(),
		CACertificates:    tls.GetCaCertificates(),
	}, true
}

// InitLoadBalancer reads the load balancer of the existing DestinationRule.
func InitLoadBalancer(drs []*networkingv1alpha3.DestinationRule) (LoadBalancer, bool) {
	lb := trafficPolicy(drs).GetLoadBalancer()
	out := LoadBalancer{Simple: true, Policy: LBRoundRobin, HashType: HashHTTPHeaderName}
	if lb == nil {
		return out, false
	}
	if ch := lb.GetConsistentHash(); ch != nil {
		out.Simple = false
		out.Policy = ""
		switch key := ch.GetHashKey().(type) {
		case *istionet.LoadBalancerSettings_ConsistentHashLB_HttpHeaderName:
			out.HashType = HashHTTPHeaderName
			out.HTTPHeaderName = key.HttpHeaderName
		case *istionet.LoadBalancerSettings_ConsistentHashLB_HttpCookie:
			out.HashType = HashHTTPCookie
			out.CookieName = key.HttpCookie.GetName()
			out.CookieTTL = FormatDuration(key.HttpCookie.GetTtl())
		case *istionet.LoadBalancerSettings_ConsistentHashLB_UseSourceIp:
			out.HashType = HashUseSourceIP
		}
		return out, true
	}
	out.Policy = lb.GetSimple().String()
	return out, true
}

// InitPeerAuthentication returns the mTLS mode of the PeerAuthentication
// that shares its name with the existing DestinationRule.
func InitPeerAuthentication(drs []*networkingv1alpha3.DestinationRule, pas []*securityv1beta1.PeerAuthentication) (string, bool) {
	if len(drs) == 0 {
		return "", false
	}
	for _, pa := range pas {
		if pa.Name == drs[0].Name {
			return pa.Spec.GetMtls().GetMode().String(), true
		}
	}
	return "", false
}

// InitConnectionPool reads the connection pool of the existing DestinationRule.
func InitConnectionPool(drs []*networkingv1alpha3.DestinationRule) (ConnectionPool, bool) {
	cp := trafficPolicy(drs).GetConnectionPool()
	if cp == nil {
		return DefaultCircuitBreaker().ConnectionPool, false
	}
	return ConnectionPool{
		MaxConnections:          cp.GetTcp().GetMaxConnections(),
		HTTP1MaxPendingRequests: cp.GetHttp().GetHttp1MaxPendingRequests(),
	}, true
}

// InitOutlierDetection reads the outlier detection of the existing
// DestinationRule.
func InitOutlierDetection(drs []*networkingv1alpha3.DestinationRule) (OutlierDetection, bool) {
	od := trafficPolicy(drs).GetOutlierDetection()
	if od == nil {
		return DefaultCircuitBreaker().OutlierDetection, false
	}
	return OutlierDetection{
		Consecutive5xxErrors: od.GetConsecutive_5XxErrors().GetValue(),
		Interval:             FormatDuration(od.GetInterval()),
		BaseEjectionTime:     FormatDuration(od.GetBaseEjectionTime()),
		MaxEjectionPercent:   od.GetMaxEjectionPercent(),
	}, true
}

// InitTrafficPolicy builds the traffic policy tab from existing resources.
func InitTrafficPolicy(res Resources) TrafficPolicy {
	tp := DefaultTrafficPolicy()
	tp.TLS, tp.TLSModified = InitTLS(res.DestinationRules)
	tp.LoadBalancer, tp.AddLoadBalancer = InitLoadBalancer(res.DestinationRules)
	if mode, ok := InitPeerAuthentication(res.DestinationRules, res.PeerAuthentications); ok {
		tp.PeerAuthn = PeerAuthn{Add: true, Mode: mode}
	}
	return tp
}

// InitCircuitBreaker builds the circuit breaker tab from existing resources.
func InitCircuitBreaker(res Resources) CircuitBreaker {
	var cb CircuitBreaker
	cb.ConnectionPool, cb.AddConnectionPool = InitConnectionPool(res.DestinationRules)
	cb.OutlierDetection, cb.AddOutlierDetection = InitOutlierDetection(res.DestinationRules)
	return cb
}

// HasGateway reports whether the existing VirtualService is bound to any
// gateway.
func HasGateway(vss []*networkingv1alpha3.VirtualService) bool {
	return len(vss) > 0 && len(vss[0].Spec.GetGateways()) > 0
}

// InitGateway returns the first non mesh gateway of the existing
// VirtualService and whether the mesh gateway is listed too.
func InitGateway(vss []*networkingv1alpha3.VirtualService) (string, bool) {
	if len(vss) == 0 {
		return "", false
	}
	selected := ""
	isMesh := false
	for _, gw := range vss[0].Spec.GetGateways() {
		if gw == MeshGateway {
			isMesh = true
			continue
		}
		if selected == "" {
			selected = gw
		}
	}
	return selected, isMesh
}

// InitGatewaySelection builds the gateway tab from existing resources.
func InitGatewaySelection(vss []*networkingv1alpha3.VirtualService, port uint32) Gateway {
	gw := DefaultGateway(port)
	if HasGateway(vss) {
		gw.AddGateway = true
		gw.SelectedGateway, gw.AddMesh = InitGateway(vss)
	}
	return gw
}

type destWeight struct {
	subset string
	weight int32
}

// subsetWeights maps the route destinations of one route to workload weights.
func subsetWeights(workloads []Workload, versionLabel string, dests []destWeight) []WorkloadWeight {
	var out []WorkloadWeight
	for _, d := range dests {
		name, ok := WorkloadForSubset(workloads, versionLabel, d.subset)
		if !ok {
			continue
		}
		w := d.weight
		if w == 0 && len(dests) == 1 {
			w = 100
		}
		out = append(out, WorkloadWeight{Name: name, Weight: w})
	}
	return out
}

func httpDests(route *istionet.HTTPRoute) []destWeight {
	var dests []destWeight
	for _, d := range route.GetRoute() {
		dests = append(dests, destWeight{subset: d.GetDestination().GetSubset(), weight: d.GetWeight()})
	}
	return dests
}

// InitWeights reads the traffic split of the existing VirtualService. Missing
// workloads get weight zero; without a usable route the split is even.
func InitWeights(workloads []Workload, vss []*networkingv1alpha3.VirtualService, versionLabel string) []WorkloadWeight {
	if len(vss) == 0 {
		return EvenWeights(workloads)
	}
	spec := &vss[0].Spec
	var found []WorkloadWeight
	mirrored := ""
	var mirrorPct int32 = 100
	switch {
	case len(spec.GetHttp()) > 0:
		route := spec.GetHttp()[0]
		found = subsetWeights(workloads, versionLabel, httpDests(route))
		if m := route.GetMirror(); m != nil {
			mirrored, _ = WorkloadForSubset(workloads, versionLabel, m.GetSubset())
			if p := route.GetMirrorPercentage(); p != nil {
				mirrorPct = int32(p.GetValue())
			}
		}
	case len(spec.GetTcp()) > 0:
		var dests []destWeight
		for _, d := range spec.GetTcp()[0].GetRoute() {
			dests = append(dests, destWeight{subset: d.GetDestination().GetSubset(), weight: d.GetWeight()})
		}
		found = subsetWeights(workloads, versionLabel, dests)
	}
	if len(found) == 0 {
		return EvenWeights(workloads)
	}
	byName := map[string]WorkloadWeight{}
	for _, w := range found {
		byName[w.Name] = w
	}
	out := make([]WorkloadWeight, 0, len(workloads))
	for _, w := range workloads {
		ww, ok := byName[w.Name]
		if !ok {
			ww = WorkloadWeight{Name: w.Name}
		}
		if w.Name == mirrored {
			ww = WorkloadWeight{Name: w.Name, Weight: mirrorPct, Mirrored: true}
		}
		out = append(out, ww)
	}
	return out
}

// InitRules reads the request routing rules of the existing VirtualService,
// preserving their order.
func InitRules(workloads []Workload, vss []*networkingv1alpha3.VirtualService, versionLabel string) []Rule {
	if len(vss) == 0 {
		return nil
	}
	var rules []Rule
	for _, route := range vss[0].Spec.GetHttp() {
		routes := subsetWeights(workloads, versionLabel, httpDests(route))
		if len(routes) == 0 {
			continue
		}
		matches := MatchStrings(firstMatch(route.GetMatch()))
		rule := Rule{Matches: matches, Routes: routes}
		if d := route.GetFault().GetDelay(); d != nil {
			rule.Delay = &Delay{Percentage: d.GetPercentage().GetValue(), FixedDelay: FormatDuration(d.GetFixedDelay())}
		}
		if a := route.GetFault().GetAbort(); a != nil {
			rule.Abort = &Abort{Percentage: a.GetPercentage().GetValue(), HTTPStatus: a.GetHttpStatus()}
		}
		rule.Timeout = FormatDuration(route.GetTimeout())
		if r := route.GetRetries(); r != nil {
			rule.Retries = &Retry{Attempts: r.GetAttempts(), PerTryTimeout: FormatDuration(r.GetPerTryTimeout()), RetryOn: r.GetRetryOn()}
		}
		rules = append(rules, rule)
	}
	return rules
}

func firstMatch(ms []*istionet.HTTPMatchRequest) *istionet.HTTPMatchRequest {
	if len(ms) == 0 {
		return nil
	}
	return ms[0]
}

// InitFaultInjectionRoute reads delay and abort of the first HTTP route.
func InitFaultInjectionRoute(workloads []Workload, vss []*networkingv1alpha3.VirtualService, versionLabel string) FaultInjectionRoute {
	fi := DefaultFaultInjection(InitWeights(workloads, vss, versionLabel))
	if len(vss) == 0 || len(vss[0].Spec.GetHttp()) == 0 {
		return fi
	}
	fault := vss[0].Spec.GetHttp()[0].GetFault()
	if d := fault.GetDelay(); d != nil {
		fi.Delayed = true
		fi.Delay = Delay{Percentage: d.GetPercentage().GetValue(), FixedDelay: FormatDuration(d.GetFixedDelay())}
	}
	if a := fault.GetAbort(); a != nil {
		fi.Aborted = true
		fi.Abort = Abort{Percentage: a.GetPercentage().GetValue(), HTTPStatus: a.GetHttpStatus()}
	}
	return fi
}

// InitTimeoutRetryRoute reads timeout and retries of the first HTTP route.
func InitTimeoutRetryRoute(workloads []Workload, vss []*networkingv1alpha3.VirtualService, versionLabel string) TimeoutRetryRoute {
	tr := DefaultTimeoutRetry(InitWeights(workloads, vss, versionLabel))
	if len(vss) == 0 || len(vss[0].Spec.GetHttp()) == 0 {
		return tr
	}
	route := vss[0].Spec.GetHttp()[0]
	if t := route.GetTimeout(); t != nil {
		tr.IsTimeout = true
		tr.Timeout = FormatDuration(t)
	}
	if r := route.GetRetries(); r != nil {
		tr.IsRetry = true
		tr.Retries = Retry{Attempts: r.GetAttempts(), PerTryTimeout: FormatDuration(r.GetPerTryTimeout()), RetryOn: r.GetRetryOn()}
	}
	return tr
}
