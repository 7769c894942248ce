package wizard

import (
	"testing"

	"github.com/mark3labs/meshwiz/internal/mesh"
	"github.com/stretchr/testify/assert"
)

func TestCheckWeights(t *testing.T) {
	tests := []struct {
		name  string
		ws    []mesh.WorkloadWeight
		http  bool
		valid bool
	}{
		{"balanced", []mesh.WorkloadWeight{{Name: "a", Weight: 60}, {Name: "b", Weight: 40}}, true, true},
		{"short of 100", []mesh.WorkloadWeight{{Name: "a", Weight: 60}, {Name: "b", Weight: 30}}, true, false},
		{"empty", nil, true, false},
		{"mirror ignored in total", []mesh.WorkloadWeight{{Name: "a", Weight: 100}, {Name: "b", Weight: 30, Mirrored: true}}, true, true},
		{"mirror at zero percent", []mesh.WorkloadWeight{{Name: "a", Weight: 100}, {Name: "b", Weight: 0, Mirrored: true}}, true, false},
		{"mirror on tcp", []mesh.WorkloadWeight{{Name: "a", Weight: 100}, {Name: "b", Weight: 30, Mirrored: true}}, false, false},
		{"two mirrors", []mesh.WorkloadWeight{{Name: "a", Weight: 100}, {Name: "b", Weight: 30, Mirrored: true}, {Name: "c", Weight: 30, Mirrored: true}}, true, false},
		{"negative", []mesh.WorkloadWeight{{Name: "a", Weight: 110}, {Name: "b", Weight: -10}}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, msgs := CheckWeights(tt.ws, tt.http)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.valid, len(msgs) == 0)
		})
	}
}

func TestCheckRules(t *testing.T) {
	route := []mesh.WorkloadWeight{{Name: "a", Weight: 100}}
	tests := []struct {
		name  string
		rules []mesh.Rule
		valid bool
	}{
		{"single catch all", []mesh.Rule{{Routes: route}}, true},
		{"match then catch all", []mesh.Rule{{Matches: []string{"uri prefix /a"}, Routes: route}, {Routes: route}}, true},
		{"no rules", nil, false},
		{"catch all first", []mesh.Rule{{Routes: route}, {Matches: []string{"uri prefix /a"}, Routes: route}}, false},
		{"duplicate matches", []mesh.Rule{{Matches: []string{"uri prefix /a"}, Routes: route}, {Matches: []string{"uri prefix /a"}, Routes: route}}, false},
		{"bad match", []mesh.Rule{{Matches: []string{"port exact 80"}, Routes: route}}, false},
		{"bad delay", []mesh.Rule{{Routes: route, Delay: &mesh.Delay{Percentage: 50, FixedDelay: "later"}}}, false},
		{"bad abort", []mesh.Rule{{Routes: route, Abort: &mesh.Abort{Percentage: 50, HTTPStatus: 42}}}, false},
		{"bad retries", []mesh.Rule{{Routes: route, Retries: &mesh.Retry{Attempts: 0, PerTryTimeout: "1s"}}}, false},
		{"good timeout", []mesh.Rule{{Routes: route, Timeout: "1s"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, _ := CheckRules(tt.rules)
			assert.Equal(t, tt.valid, ok)
		})
	}
}

func TestCheckFaultInjectionAndTimeouts(t *testing.T) {
	fi := mesh.DefaultFaultInjection(nil)
	ok, _ := CheckFaultInjection(fi)
	assert.False(t, ok, "nothing enabled")

	fi.Delayed = true
	ok, _ = CheckFaultInjection(fi)
	assert.True(t, ok)

	fi.Aborted = true
	fi.Abort.Percentage = 120
	ok, msgs := CheckFaultInjection(fi)
	assert.False(t, ok)
	assert.Len(t, msgs, 1)

	tr := mesh.DefaultTimeoutRetry(nil)
	ok, _ = CheckTimeoutRetry(tr)
	assert.False(t, ok)
	tr.IsTimeout, tr.IsRetry = true, true
	ok, _ = CheckTimeoutRetry(tr)
	assert.True(t, ok)
	tr.Timeout = "0s"
	ok, _ = CheckTimeoutRetry(tr)
	assert.False(t, ok)
}

func TestCheckHosts(t *testing.T) {
	tests := []struct {
		hosts []string
		valid bool
	}{
		{[]string{"reviews.bookinfo.svc.cluster.local"}, true},
		{[]string{"*"}, true},
		{[]string{"*.example.com", "api.example.com"}, true},
		{[]string{"Not_A_Host"}, false},
		{[]string{"api.*.com"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		ok, _ := CheckHosts(tt.hosts)
		assert.Equal(t, tt.valid, ok, "%v", tt.hosts)
	}
}

func TestCheckGateway(t *testing.T) {
	hosts := []string{"reviews.example.com"}
	available := []string{"bookinfo/bookinfo-gateway"}
	tests := []struct {
		name  string
		gw    mesh.Gateway
		hosts []string
		valid bool
	}{
		{"disabled", mesh.Gateway{}, nil, true},
		{"new gateway", mesh.Gateway{AddGateway: true, NewGateway: true, Port: 80}, hosts, true},
		{"new gateway bad port", mesh.Gateway{AddGateway: true, NewGateway: true, Port: 0}, hosts, false},
		{"new gateway without hosts", mesh.Gateway{AddGateway: true, NewGateway: true, Port: 80}, nil, false},
		{"new gateway invalid host", mesh.Gateway{AddGateway: true, NewGateway: true, Port: 80}, []string{"Not_A_Host"}, false},
		{"new gateway wildcard subdomain", mesh.Gateway{AddGateway: true, NewGateway: true, Port: 80}, []string{"*.example.com"}, true},
		{"existing gateway", mesh.Gateway{AddGateway: true, SelectedGateway: "bookinfo/bookinfo-gateway"}, hosts, true},
		{"unknown gateway", mesh.Gateway{AddGateway: true, SelectedGateway: "other"}, hosts, false},
		{"nothing selected", mesh.Gateway{AddGateway: true}, hosts, false},
		{"wildcard with mesh", mesh.Gateway{AddGateway: true, NewGateway: true, AddMesh: true, Port: 80}, []string{"*"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, _ := CheckGateway(tt.gw, tt.hosts, available)
			assert.Equal(t, tt.valid, ok)
		})
	}
}

func TestCheckTrafficPolicy(t *testing.T) {
	ok, _ := CheckTrafficPolicy(mesh.DefaultTrafficPolicy())
	assert.True(t, ok)

	tp := mesh.DefaultTrafficPolicy()
	tp.TLSModified = true
	tp.TLS.Mode = mesh.TLSMutual
	ok, _ = CheckTrafficPolicy(tp)
	assert.False(t, ok, "mutual without certificates")

	tp = mesh.DefaultTrafficPolicy()
	tp.AddLoadBalancer = true
	tp.LoadBalancer = mesh.LoadBalancer{HashType: mesh.HashHTTPHeaderName, HTTPHeaderName: "x-user"}
	ok, _ = CheckTrafficPolicy(tp)
	assert.True(t, ok)

	tp.LoadBalancer = mesh.LoadBalancer{HashType: mesh.HashHTTPCookie, CookieName: "session", CookieTTL: "soon"}
	ok, _ = CheckTrafficPolicy(tp)
	assert.False(t, ok)

	tp = mesh.DefaultTrafficPolicy()
	tp.PeerAuthn = mesh.PeerAuthn{Add: true, Mode: "OPTIONAL"}
	ok, _ = CheckTrafficPolicy(tp)
	assert.False(t, ok)
}

func TestCheckCircuitBreaker(t *testing.T) {
	cb := mesh.DefaultCircuitBreaker()
	cp, od, msgs := CheckCircuitBreaker(cb)
	assert.True(t, cp)
	assert.True(t, od)
	assert.Empty(t, msgs)

	cb.AddConnectionPool = true
	cb.ConnectionPool.MaxConnections = 0
	cb.AddOutlierDetection = true
	cb.OutlierDetection.Interval = "10s"
	cp, od, msgs = CheckCircuitBreaker(cb)
	assert.False(t, cp)
	assert.True(t, od)
	assert.Len(t, msgs, 1)
}

func TestCheckMain(t *testing.T) {
	ok, _ := CheckMain(New(inputs(TrafficShifting)))
	assert.True(t, ok)
	ok, _ = CheckMain(New(inputs(RequestRouting)))
	assert.False(t, ok)
	ok, _ = CheckMain(State{})
	assert.False(t, ok)
}
