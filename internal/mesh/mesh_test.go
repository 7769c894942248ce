package mesh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
	istionet "istio.io/api/networking/v1alpha3"
	istiosec "istio.io/api/security/v1beta1"
	networkingv1alpha3 "istio.io/client-go/pkg/apis/networking/v1alpha3"
	securityv1beta1 "istio.io/client-go/pkg/apis/security/v1beta1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

var reviews = []Workload{
	{Name: "reviews-v1", Labels: map[string]string{"app": "reviews", "version": "v1"}},
	{Name: "reviews-v2", Labels: map[string]string{"app": "reviews", "version": "v2"}},
	{Name: "reviews-v3", Labels: map[string]string{"app": "reviews", "version": "v3"}},
}

func TestWorkloadsEqual(t *testing.T) {
	reordered := []Workload{reviews[2], reviews[0], reviews[1]}
	relabeled := []Workload{reviews[0], reviews[1], {Name: "reviews-v3", Labels: map[string]string{"app": "reviews"}}}

	assert.True(t, WorkloadsEqual(reviews, reordered))
	assert.True(t, WorkloadsEqual(nil, []Workload{}))
	assert.False(t, WorkloadsEqual(reviews, reviews[:2]))
	assert.False(t, WorkloadsEqual(reviews, relabeled))
	assert.True(t, WorkloadsEqual(
		[]Workload{{Name: "a"}},
		[]Workload{{Name: "a", Labels: map[string]string{}}},
	))
}

func TestFQDNServiceName(t *testing.T) {
	assert.Equal(t, "reviews.bookinfo.svc.cluster.local", FQDNServiceName("reviews", "bookinfo"))
}

func TestParseMatch(t *testing.T) {
	tests := []struct {
		in      string
		want    Match
		wantErr bool
	}{
		{in: "headers [end-user] exact jason", want: Match{Category: "headers", Header: "end-user", Operator: "exact", Value: "jason"}},
		{in: "uri prefix /api/v1", want: Match{Category: "uri", Operator: "prefix", Value: "/api/v1"}},
		{in: "METHOD exact GET", want: Match{Category: "method", Operator: "exact", Value: "GET"}},
		{in: "authority regex .*\\.example\\.com", want: Match{Category: "authority", Operator: "regex", Value: ".*\\.example\\.com"}},
		{in: "headers [x] exact two words", want: Match{Category: "headers", Header: "x", Operator: "exact", Value: "two words"}},
		{in: "uri", wantErr: true},
		{in: "port exact 80", wantErr: true},
		{in: "uri contains /x", wantErr: true},
		{in: "headers end-user exact jason", wantErr: true},
		{in: "headers [] exact jason", wantErr: true},
		{in: "headers [end-user] exact", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMatch(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPMatchRequestRoundTrip(t *testing.T) {
	matches := []string{
		"uri prefix /reviews",
		"method exact GET",
		"headers [end-user] exact jason",
		"headers [cookie] regex ^(.*?;)?(user=jason)(;.*)?$",
	}
	req := HTTPMatchRequest(matches)
	require.NotNil(t, req)
	assert.Equal(t, "/reviews", req.GetUri().GetPrefix())
	assert.Equal(t, "GET", req.GetMethod().GetExact())
	assert.Equal(t, "jason", req.GetHeaders()["end-user"].GetExact())

	assert.Equal(t, []string{
		"uri prefix /reviews",
		"method exact GET",
		"headers [cookie] regex ^(.*?;)?(user=jason)(;.*)?$",
		"headers [end-user] exact jason",
	}, MatchStrings(req))

	assert.Nil(t, HTTPMatchRequest(nil))
	assert.Nil(t, MatchStrings(nil))
}

func TestSubsets(t *testing.T) {
	workloads := append([]Workload{}, reviews...)
	workloads = append(workloads,
		Workload{Name: "reviews-v1-canary", Labels: map[string]string{"app": "reviews", "version": "v1"}},
		Workload{Name: "reviews-legacy", Labels: map[string]string{"app": "reviews", "track": "legacy"}},
	)

	subsets, byWorkload := Subsets(workloads, "version")
	require.Len(t, subsets, 4)
	assert.Equal(t, Subset{Name: "v1", Labels: map[string]string{"version": "v1"}}, subsets[0])
	assert.Equal(t, Subset{Name: "reviews-legacy", Labels: map[string]string{"app": "reviews", "track": "legacy"}}, subsets[3])
	assert.Equal(t, "v1", byWorkload["reviews-v1-canary"])

	name, ok := WorkloadForSubset(workloads, "version", "v1")
	assert.True(t, ok)
	assert.Equal(t, "reviews-v1", name)
	_, ok = WorkloadForSubset(workloads, "version", "v9")
	assert.False(t, ok)
}

func TestEvenWeights(t *testing.T) {
	got := EvenWeights(reviews)
	assert.Equal(t, []WorkloadWeight{
		{Name: "reviews-v1", Weight: 34},
		{Name: "reviews-v2", Weight: 33},
		{Name: "reviews-v3", Weight: 33},
	}, got)
	assert.Nil(t, EvenWeights(nil))
}

func routeTo(subset string, weight int32) *istionet.HTTPRouteDestination {
	return &istionet.HTTPRouteDestination{
		Destination: &istionet.Destination{Host: "reviews.bookinfo.svc.cluster.local", Subset: subset},
		Weight:      weight,
	}
}

func existingVS() *networkingv1alpha3.VirtualService {
	vs := &networkingv1alpha3.VirtualService{ObjectMeta: metav1.ObjectMeta{Name: "reviews", Namespace: "bookinfo"}}
	vs.Spec.Hosts = []string{"reviews.example.com"}
	vs.Spec.Gateways = []string{"bookinfo-gateway", MeshGateway}
	vs.Spec.Http = []*istionet.HTTPRoute{
		{
			Match: []*istionet.HTTPMatchRequest{HTTPMatchRequest([]string{"headers [end-user] exact jason"})},
			Route: []*istionet.HTTPRouteDestination{routeTo("v2", 0)},
			Fault: &istionet.HTTPFaultInjection{
				Delay: &istionet.HTTPFaultInjection_Delay{
					Percentage:    &istionet.Percent{Value: 50},
					HttpDelayType: &istionet.HTTPFaultInjection_Delay_FixedDelay{FixedDelay: durationpb.New(7 * time.Second)},
				},
			},
			Timeout: durationpb.New(3 * time.Second),
		},
		{
			Route:  []*istionet.HTTPRouteDestination{routeTo("v1", 70), routeTo("v3", 30)},
			Mirror: &istionet.Destination{Host: "reviews.bookinfo.svc.cluster.local", Subset: "v2"},
		},
	}
	return vs
}

func existingDR() *networkingv1alpha3.DestinationRule {
	dr := &networkingv1alpha3.DestinationRule{ObjectMeta: metav1.ObjectMeta{Name: "reviews-dr", Namespace: "bookinfo"}}
	dr.Spec.Host = "reviews.bookinfo.svc.cluster.local"
	dr.Spec.TrafficPolicy = &istionet.TrafficPolicy{
		Tls: &istionet.ClientTLSSettings{Mode: istionet.ClientTLSSettings_ISTIO_MUTUAL},
		LoadBalancer: &istionet.LoadBalancerSettings{
			LbPolicy: &istionet.LoadBalancerSettings_ConsistentHash{
				ConsistentHash: &istionet.LoadBalancerSettings_ConsistentHashLB{
					HashKey: &istionet.LoadBalancerSettings_ConsistentHashLB_HttpCookie{
						HttpCookie: &istionet.LoadBalancerSettings_ConsistentHashLB_HTTPCookie{Name: "session", Ttl: durationpb.New(time.Minute)},
					},
				},
			},
		},
		ConnectionPool: &istionet.ConnectionPoolSettings{
			Tcp:  &istionet.ConnectionPoolSettings_TCPSettings{MaxConnections: 10},
			Http: &istionet.ConnectionPoolSettings_HTTPSettings{Http1MaxPendingRequests: 5},
		},
		OutlierDetection: &istionet.OutlierDetection{
			Consecutive_5XxErrors: wrapperspb.UInt32(3),
			Interval:              durationpb.New(10 * time.Second),
		},
	}
	return dr
}

func TestInitFromExisting(t *testing.T) {
	vss := []*networkingv1alpha3.VirtualService{existingVS()}
	drs := []*networkingv1alpha3.DestinationRule{existingDR()}
	pa := &securityv1beta1.PeerAuthentication{ObjectMeta: metav1.ObjectMeta{Name: "reviews-dr"}}
	pa.Spec.Mtls = &istiosec.PeerAuthentication_MutualTLS{Mode: istiosec.PeerAuthentication_MutualTLS_STRICT}
	res := Resources{VirtualServices: vss, DestinationRules: drs, PeerAuthentications: []*securityv1beta1.PeerAuthentication{pa}}

	t.Run("hosts and gateway", func(t *testing.T) {
		assert.Equal(t, []string{"reviews.example.com"}, InitHosts(vss))
		assert.True(t, HasGateway(vss))
		gw := InitGatewaySelection(vss, 80)
		assert.Equal(t, Gateway{AddGateway: true, SelectedGateway: "bookinfo-gateway", AddMesh: true, Port: 80}, gw)
		assert.Equal(t, DefaultGateway(443), InitGatewaySelection(nil, 443))
	})

	t.Run("traffic policy", func(t *testing.T) {
		tp := InitTrafficPolicy(res)
		assert.True(t, tp.TLSModified)
		assert.Equal(t, TLSIstioMutual, tp.TLS.Mode)
		assert.True(t, tp.AddLoadBalancer)
		assert.Equal(t, LoadBalancer{HashType: HashHTTPCookie, CookieName: "session", CookieTTL: "1m0s"}, tp.LoadBalancer)
		assert.Equal(t, PeerAuthn{Add: true, Mode: MTLSStrict}, tp.PeerAuthn)

		assert.Equal(t, DefaultTrafficPolicy(), InitTrafficPolicy(Resources{}))
	})

	t.Run("circuit breaker", func(t *testing.T) {
		cb := InitCircuitBreaker(res)
		assert.Equal(t, CircuitBreaker{
			AddConnectionPool:   true,
			ConnectionPool:      ConnectionPool{MaxConnections: 10, HTTP1MaxPendingRequests: 5},
			AddOutlierDetection: true,
			OutlierDetection:    OutlierDetection{Consecutive5xxErrors: 3, Interval: "10s"},
		}, cb)
		assert.Equal(t, DefaultCircuitBreaker(), InitCircuitBreaker(Resources{}))
	})

	t.Run("weights follow the first route", func(t *testing.T) {
		got := InitWeights(reviews, vss, "version")
		assert.Equal(t, []WorkloadWeight{{Name: "reviews-v1"}, {Name: "reviews-v2", Weight: 100}, {Name: "reviews-v3"}}, got)
		assert.Equal(t, EvenWeights(reviews), InitWeights(reviews, nil, "version"))
	})

	t.Run("rules keep order", func(t *testing.T) {
		rules := InitRules(reviews, vss, "version")
		require.Len(t, rules, 2)
		assert.Equal(t, []string{"headers [end-user] exact jason"}, rules[0].Matches)
		assert.Equal(t, []WorkloadWeight{{Name: "reviews-v2", Weight: 100}}, rules[0].Routes)
		assert.Equal(t, &Delay{Percentage: 50, FixedDelay: "7s"}, rules[0].Delay)
		assert.Equal(t, "3s", rules[0].Timeout)
		assert.Empty(t, rules[1].Matches)
		assert.Equal(t, []WorkloadWeight{{Name: "reviews-v1", Weight: 70}, {Name: "reviews-v3", Weight: 30}}, rules[1].Routes)
	})

	t.Run("fault injection and timeouts", func(t *testing.T) {
		fi := InitFaultInjectionRoute(reviews, vss, "version")
		assert.True(t, fi.Delayed)
		assert.False(t, fi.Aborted)
		assert.Equal(t, Delay{Percentage: 50, FixedDelay: "7s"}, fi.Delay)
		assert.Equal(t, Abort{Percentage: 100, HTTPStatus: 503}, fi.Abort)

		tr := InitTimeoutRetryRoute(reviews, vss, "version")
		assert.True(t, tr.IsTimeout)
		assert.Equal(t, "3s", tr.Timeout)
		assert.False(t, tr.IsRetry)
		assert.Equal(t, DefaultTimeoutRetry(nil).Retries, tr.Retries)
	})

	t.Run("resources are not shared by DeepCopy", func(t *testing.T) {
		cp := res.DeepCopy()
		cp.VirtualServices[0].Spec.Hosts[0] = "changed"
		assert.Equal(t, "reviews.example.com", res.VirtualServices[0].Spec.Hosts[0])
	})
}

func TestInitWeightsMirror(t *testing.T) {
	vs := existingVS()
	vs.Spec.Http = vs.Spec.Http[1:]
	got := InitWeights(reviews, []*networkingv1alpha3.VirtualService{vs}, "version")
	assert.Equal(t, []WorkloadWeight{
		{Name: "reviews-v1", Weight: 70},
		{Name: "reviews-v2", Weight: 100, Mirrored: true},
		{Name: "reviews-v3", Weight: 30},
	}, got)
}

func TestDurations(t *testing.T) {
	assert.Equal(t, "2s", FormatDuration(ParseDuration("2s")))
	assert.Nil(t, ParseDuration(""))
	assert.Nil(t, ParseDuration("soon"))
	assert.Equal(t, "", FormatDuration(nil))
}

func TestSplitHostsAndWildcard(t *testing.T) {
	assert.Equal(t, []string{"a.example.com", "*"}, SplitHosts(" a.example.com, ,* "))
	assert.Nil(t, SplitHosts(""))
	assert.True(t, HasWildcard([]string{"a", "*"}))
	assert.False(t, HasWildcard([]string{"*.example.com"}))
}
