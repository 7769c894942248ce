package synth

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/meshwiz/internal/mesh"
	"github.com/mark3labs/meshwiz/internal/wizard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	istionet "istio.io/api/networking/v1alpha3"
	istiosec "istio.io/api/security/v1beta1"
	networkingv1alpha3 "istio.io/client-go/pkg/apis/networking/v1alpha3"
	securityv1beta1 "istio.io/client-go/pkg/apis/security/v1beta1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const host = "reviews.bookinfo.svc.cluster.local"

var workloads = []mesh.Workload{
	{Name: "reviews-v1", Labels: map[string]string{"app": "reviews", "version": "v1"}},
	{Name: "reviews-v2", Labels: map[string]string{"app": "reviews", "version": "v2"}},
	{Name: "reviews-v3", Labels: map[string]string{"app": "reviews", "version": "v3"}},
}

func open(t wizard.Type) wizard.State {
	return wizard.New(wizard.Inputs{Type: t, Namespace: "bookinfo", ServiceName: "reviews", Workloads: workloads})
}

func existing() mesh.Resources {
	vs := &networkingv1alpha3.VirtualService{ObjectMeta: metav1.ObjectMeta{Name: "reviews-vs", Namespace: "bookinfo", ResourceVersion: "7"}}
	vs.Spec.Hosts = []string{host}
	vs.Spec.Http = []*istionet.HTTPRoute{{Route: []*istionet.HTTPRouteDestination{{Destination: &istionet.Destination{Host: host, Subset: "v1"}}}}}
	dr := &networkingv1alpha3.DestinationRule{ObjectMeta: metav1.ObjectMeta{Name: "reviews-dr", Namespace: "bookinfo"}}
	dr.Spec.Host = host
	pa := &securityv1beta1.PeerAuthentication{ObjectMeta: metav1.ObjectMeta{Name: "reviews-dr", Namespace: "bookinfo"}}
	pa.Spec.Mtls = &istiosec.PeerAuthentication_MutualTLS{Mode: istiosec.PeerAuthentication_MutualTLS_PERMISSIVE}
	return mesh.Resources{
		VirtualServices:     []*networkingv1alpha3.VirtualService{vs},
		DestinationRules:    []*networkingv1alpha3.DestinationRule{dr},
		PeerAuthentications: []*securityv1beta1.PeerAuthentication{pa},
	}
}

func marshal(t *testing.T, set PreviewSet) string {
	t.Helper()
	data, err := json.Marshal(&set)
	require.NoError(t, err)
	return string(data)
}

func TestTrafficShifting(t *testing.T) {
	s := open(wizard.TrafficShifting)
	s = wizard.UpdateWeights(s, true, []mesh.WorkloadWeight{
		{Name: "reviews-v1", Weight: 80},
		{Name: "reviews-v2", Weight: 20},
		{Name: "reviews-v3", Weight: 50, Mirrored: true},
	})
	set := Synthesize(s, Options{})

	dr := set.DestinationRule
	require.NotNil(t, dr)
	assert.Equal(t, "reviews", dr.Name)
	assert.Equal(t, "bookinfo", dr.Namespace)
	assert.Equal(t, "DestinationRule", dr.Kind)
	assert.Equal(t, string(wizard.TrafficShifting), dr.Labels[WizardLabel])
	assert.Equal(t, host, dr.Spec.Host)
	require.Len(t, dr.Spec.Subsets, 3)
	assert.Equal(t, "v2", dr.Spec.Subsets[1].Name)
	assert.Equal(t, map[string]string{"version": "v2"}, dr.Spec.Subsets[1].Labels)
	assert.Nil(t, dr.Spec.TrafficPolicy)

	vs := set.VirtualService
	require.NotNil(t, vs)
	assert.Equal(t, []string{host}, vs.Spec.Hosts)
	assert.Empty(t, vs.Spec.Gateways)
	require.Len(t, vs.Spec.Http, 1)
	route := vs.Spec.Http[0]
	require.Len(t, route.Route, 2)
	assert.Equal(t, "v1", route.Route[0].Destination.Subset)
	assert.Equal(t, int32(80), route.Route[0].Weight)
	assert.Equal(t, "v3", route.Mirror.Subset)
	assert.Equal(t, 50.0, route.MirrorPercentage.GetValue())

	assert.Nil(t, set.Gateway)
	assert.Nil(t, set.PeerAuthentication)
	assert.Equal(t, OpNone, set.PeerAuthnOp)
}

func TestTCPTrafficShifting(t *testing.T) {
	s := open(wizard.TCPTrafficShifting)
	s = wizard.UpdateWeights(s, true, []mesh.WorkloadWeight{{Name: "reviews-v1", Weight: 100}, {Name: "reviews-v2"}})
	vs := Synthesize(s, Options{}).VirtualService

	assert.Empty(t, vs.Spec.Http)
	require.Len(t, vs.Spec.Tcp, 1)
	require.Len(t, vs.Spec.Tcp[0].Route, 1)
	assert.Equal(t, "v1", vs.Spec.Tcp[0].Route[0].Destination.Subset)
}

func TestRequestRoutingPreservesOrder(t *testing.T) {
	s := open(wizard.RequestRouting)
	rules := []mesh.Rule{
		{Matches: []string{"headers [end-user] exact jason"}, Routes: []mesh.WorkloadWeight{{Name: "reviews-v2", Weight: 100}}},
		{Matches: []string{"uri prefix /beta"}, Routes: []mesh.WorkloadWeight{{Name: "reviews-v3", Weight: 100}},
			Delay: &mesh.Delay{Percentage: 10, FixedDelay: "1s"}, Timeout: "4s",
			Retries: &mesh.Retry{Attempts: 2, PerTryTimeout: "1s", RetryOn: "5xx"}},
		{Routes: []mesh.WorkloadWeight{{Name: "reviews-v1", Weight: 100}}},
	}
	s = wizard.UpdateRouting(s, true, rules)
	vs := Synthesize(s, Options{}).VirtualService

	require.Len(t, vs.Spec.Http, 3)
	assert.Equal(t, "jason", vs.Spec.Http[0].Match[0].Headers["end-user"].GetExact())
	assert.Equal(t, "v2", vs.Spec.Http[0].Route[0].Destination.Subset)
	assert.Nil(t, vs.Spec.Http[0].Fault)

	second := vs.Spec.Http[1]
	assert.Equal(t, "/beta", second.Match[0].Uri.GetPrefix())
	assert.Equal(t, time.Second, second.Fault.Delay.GetFixedDelay().AsDuration())
	assert.Equal(t, 4*time.Second, second.Timeout.AsDuration())
	assert.Equal(t, int32(2), second.Retries.Attempts)
	assert.Equal(t, "5xx", second.Retries.RetryOn)

	assert.Empty(t, vs.Spec.Http[2].Match)
	assert.Equal(t, "v1", vs.Spec.Http[2].Route[0].Destination.Subset)
}

func TestFaultInjection(t *testing.T) {
	s := open(wizard.FaultInjection)
	fi := s.FaultInjection
	fi.Delayed = true
	fi.Aborted = true
	fi.Abort.HTTPStatus = 500
	s = wizard.UpdateFaultInjection(s, true, fi)

	route := Synthesize(s, Options{}).VirtualService.Spec.Http[0]
	require.NotNil(t, route.Fault)
	assert.Equal(t, 100.0, route.Fault.Delay.Percentage.GetValue())
	assert.Equal(t, 5*time.Second, route.Fault.Delay.GetFixedDelay().AsDuration())
	assert.Equal(t, int32(500), route.Fault.Abort.GetHttpStatus())
	assert.Len(t, route.Route, 3)
}

func TestRequestTimeouts(t *testing.T) {
	s := open(wizard.RequestTimeouts)
	tr := s.TimeoutRetry
	tr.IsRetry = true
	s = wizard.UpdateTimeoutRetry(s, true, tr)

	route := Synthesize(s, Options{}).VirtualService.Spec.Http[0]
	assert.Nil(t, route.Timeout)
	require.NotNil(t, route.Retries)
	assert.Equal(t, int32(3), route.Retries.Attempts)
	assert.Equal(t, 2*time.Second, route.Retries.PerTryTimeout.AsDuration())
	assert.Equal(t, "gateway-error,connect-failure,refused-stream", route.Retries.RetryOn)
}

func TestTrafficPolicy(t *testing.T) {
	s := open(wizard.TrafficShifting)
	tp := s.TrafficPolicy
	tp.TLSModified = true
	tp.TLS.Mode = mesh.TLSIstioMutual
	tp.AddLoadBalancer = true
	tp.LoadBalancer = mesh.LoadBalancer{HashType: mesh.HashHTTPHeaderName, HTTPHeaderName: "x-user"}
	s = wizard.UpdateTrafficPolicy(s, true, tp)
	cb := s.CircuitBreaker
	cb.AddConnectionPool = true
	cb.AddOutlierDetection = true
	cb.OutlierDetection.Interval = "30s"
	s = wizard.UpdateCircuitBreaker(s, true, true, cb)

	policy := Synthesize(s, Options{}).DestinationRule.Spec.TrafficPolicy
	require.NotNil(t, policy)
	assert.Equal(t, istionet.ClientTLSSettings_ISTIO_MUTUAL, policy.Tls.Mode)
	assert.Equal(t, "x-user", policy.LoadBalancer.GetConsistentHash().GetHttpHeaderName())
	assert.Equal(t, int32(1), policy.ConnectionPool.Tcp.MaxConnections)
	assert.Equal(t, int32(1), policy.ConnectionPool.Http.Http1MaxPendingRequests)
	assert.Equal(t, uint32(1), policy.OutlierDetection.Consecutive_5XxErrors.GetValue())
	assert.Equal(t, 30*time.Second, policy.OutlierDetection.Interval.AsDuration())

	tp.LoadBalancer = mesh.LoadBalancer{Simple: true, Policy: mesh.LBRandom}
	s = wizard.UpdateTrafficPolicy(s, true, tp)
	policy = Synthesize(s, Options{}).DestinationRule.Spec.TrafficPolicy
	assert.Equal(t, istionet.LoadBalancerSettings_RANDOM, policy.LoadBalancer.GetSimple())
}

func TestGateway(t *testing.T) {
	t.Run("new gateway with mesh", func(t *testing.T) {
		s := open(wizard.TrafficShifting)
		s = wizard.UpdateHosts(s, true, []string{"reviews.example.com"})
		s = wizard.UpdateGateway(s, true, mesh.Gateway{AddGateway: true, NewGateway: true, AddMesh: true, Port: 8080}, nil)
		set := Synthesize(s, Options{GatewaySelector: map[string]string{"istio": "edge"}})

		require.NotNil(t, set.Gateway)
		assert.Equal(t, "reviews-gateway", set.Gateway.Name)
		assert.Equal(t, map[string]string{"istio": "edge"}, set.Gateway.Spec.Selector)
		require.Len(t, set.Gateway.Spec.Servers, 1)
		server := set.Gateway.Spec.Servers[0]
		assert.Equal(t, uint32(8080), server.Port.Number)
		assert.Equal(t, "HTTP", server.Port.Protocol)
		assert.Equal(t, []string{"reviews.example.com"}, server.Hosts)
		assert.Equal(t, []string{"reviews-gateway", "mesh"}, set.VirtualService.Spec.Gateways)
	})

	t.Run("existing gateway", func(t *testing.T) {
		s := open(wizard.TrafficShifting)
		s = wizard.UpdateGateway(s, true, mesh.Gateway{AddGateway: true, SelectedGateway: "bookinfo/bookinfo-gateway", Port: 80}, nil)
		set := Synthesize(s, Options{})
		assert.Nil(t, set.Gateway)
		assert.Equal(t, []string{"bookinfo/bookinfo-gateway"}, set.VirtualService.Spec.Gateways)
	})
}

func TestPeerAuthnOp(t *testing.T) {
	tests := []struct {
		name    string
		update  bool
		res     mesh.Resources
		add     bool
		mode    string
		want    Op
		wantDoc bool
	}{
		{"create when newly added", false, mesh.Resources{}, true, mesh.MTLSStrict, OpCreate, true},
		{"update when it existed", true, existing(), true, mesh.MTLSStrict, OpUpdate, true},
		{"delete when removed", true, existing(), false, mesh.MTLSStrict, OpDelete, false},
		{"delete when mode cleared", true, existing(), true, mesh.MTLSUnset, OpDelete, false},
		{"nothing when added unset", true, mesh.Resources{}, true, mesh.MTLSUnset, OpNone, false},
		{"nothing when never present", true, mesh.Resources{}, false, mesh.MTLSStrict, OpNone, false},
		{"create mode never deletes", false, existing(), false, mesh.MTLSStrict, OpNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := wizard.New(wizard.Inputs{Type: wizard.TrafficShifting, Namespace: "bookinfo", ServiceName: "reviews", Update: tt.update, Workloads: workloads, Resources: tt.res})
			tp := s.TrafficPolicy
			tp.PeerAuthn = mesh.PeerAuthn{Add: tt.add, Mode: tt.mode}
			s = wizard.UpdateTrafficPolicy(s, true, tp)

			set := Synthesize(s, Options{})
			assert.Equal(t, tt.want, set.PeerAuthnOp)
			if !tt.wantDoc {
				assert.Nil(t, set.PeerAuthentication)
				return
			}
			pa := set.PeerAuthentication
			require.NotNil(t, pa)
			assert.Equal(t, set.DestinationRule.Name, pa.Name)
			assert.Equal(t, map[string]string{"app": "reviews"}, pa.Spec.Selector.MatchLabels)
			assert.Equal(t, istiosec.PeerAuthentication_MutualTLS_STRICT, pa.Spec.Mtls.Mode)
		})
	}
}

func TestUpdateKeepsNamesAndExistingUntouched(t *testing.T) {
	res := existing()
	before, err := json.Marshal(res)
	require.NoError(t, err)

	s := wizard.New(wizard.Inputs{Type: wizard.TrafficShifting, Namespace: "bookinfo", ServiceName: "reviews", Update: true, Workloads: workloads, Resources: res})
	set := Synthesize(s, Options{})
	assert.Equal(t, "reviews-dr", set.DestinationRule.Name)
	assert.Equal(t, "reviews-vs", set.VirtualService.Name)
	assert.Empty(t, set.VirtualService.ResourceVersion)

	set.VirtualService.Spec.Hosts[0] = "mutated"
	after, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestSynthesizeIsIdempotent(t *testing.T) {
	for _, typ := range wizard.Types {
		t.Run(string(typ), func(t *testing.T) {
			s := wizard.New(wizard.Inputs{Type: typ, Namespace: "bookinfo", ServiceName: "reviews", Update: true, Workloads: workloads, Resources: existing()})
			s = wizard.UpdateGateway(s, true, mesh.Gateway{AddGateway: true, NewGateway: true, Port: 80}, nil)
			first := marshal(t, Synthesize(s, Options{}))
			second := marshal(t, Synthesize(s, Options{}))
			assert.JSONEq(t, first, second)
		})
	}
}
