// Package mesh holds the service mesh domain model used by the wizard: the
// workloads behind a service, the value objects each wizard tab edits and the
// helpers that read initial values back out of existing Istio resources.
package mesh

import (
	"reflect"
	"strings"
)

// Client TLS modes for DestinationRule traffic policies.
const (
	TLSUnset       = "UNSET"
	TLSDisable     = "DISABLE"
	TLSSimple      = "SIMPLE"
	TLSMutual      = "MUTUAL"
	TLSIstioMutual = "ISTIO_MUTUAL"
)

// PeerAuthentication mutual TLS modes.
const (
	MTLSUnset      = "UNSET"
	MTLSDisable    = "DISABLE"
	MTLSPermissive = "PERMISSIVE"
	MTLSStrict     = "STRICT"
)

// Simple load balancer policies.
const (
	LBRoundRobin   = "ROUND_ROBIN"
	LBLeastRequest = "LEAST_REQUEST"
	LBLeastConn    = "LEAST_CONN"
	LBRandom       = "RANDOM"
	LBPassthrough  = "PASSTHROUGH"
)

// Consistent hash key types.
const (
	HashHTTPHeaderName = "HTTP_HEADER_NAME"
	HashHTTPCookie     = "HTTP_COOKIE"
	HashUseSourceIP    = "USE_SOURCE_IP"
)

// MeshGateway is the reserved gateway name for sidecar to sidecar traffic.
const MeshGateway = "mesh"

// Workload is a deployment backing the edited service.
type Workload struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
}

// WorkloadsEqual reports whether both lists hold the same workloads,
// ignoring order.
func WorkloadsEqual(a, b []Workload) bool {
	if len(a) != len(b) {
		return false
	}
	for _, wa := range a {
		found := false
		for _, wb := range b {
			if wa.Name == wb.Name && labelsEqual(wa.Labels, wb.Labels) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func labelsEqual(a, b map[string]string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// FQDNServiceName returns the cluster-local host of a service.
func FQDNServiceName(service, namespace string) string {
	return service + "." + namespace + ".svc.cluster.local"
}

// WorkloadWeight is the share of traffic routed to one workload. For a
// mirrored workload Weight is the percentage of traffic mirrored to it.
type WorkloadWeight struct {
	Name     string `json:"name"`
	Weight   int32  `json:"weight"`
	Locked   bool   `json:"locked,omitempty"`
	Mirrored bool   `json:"mirrored,omitempty"`
}

// Delay is an injected fixed delay.
type Delay struct {
	Percentage float64 `json:"percentage"`
	FixedDelay string  `json:"fixedDelay"`
}

// Abort is an injected HTTP failure.
type Abort struct {
	Percentage float64 `json:"percentage"`
	HTTPStatus int32   `json:"httpStatus"`
}

// Retry is an HTTP retry policy.
type Retry struct {
	Attempts      int32  `json:"attempts"`
	PerTryTimeout string `json:"perTryTimeout"`
	RetryOn       string `json:"retryOn,omitempty"`
}

// Rule is one request routing rule. Matches use the textual form parsed by
// ParseMatch; an empty list matches every request.
type Rule struct {
	Matches []string         `json:"matches,omitempty"`
	Routes  []WorkloadWeight `json:"routes"`
	Delay   *Delay           `json:"delay,omitempty"`
	Abort   *Abort           `json:"abort,omitempty"`
	Timeout string           `json:"timeout,omitempty"`
	Retries *Retry           `json:"retries,omitempty"`
}

// Equal compares two rules structurally.
func (r Rule) Equal(o Rule) bool {
	return reflect.DeepEqual(r, o)
}

// FaultInjectionRoute is the fault injection tab value.
type FaultInjectionRoute struct {
	Workloads []WorkloadWeight `json:"workloads"`
	Delayed   bool             `json:"delayed"`
	Delay     Delay            `json:"delay"`
	Aborted   bool             `json:"aborted"`
	Abort     Abort            `json:"abort"`
}

// TimeoutRetryRoute is the request timeouts tab value.
type TimeoutRetryRoute struct {
	Workloads []WorkloadWeight `json:"workloads"`
	IsTimeout bool             `json:"isTimeout"`
	Timeout   string           `json:"timeout"`
	IsRetry   bool             `json:"isRetry"`
	Retries   Retry            `json:"retries"`
}

// DefaultFaultInjection returns the values a fresh fault injection tab shows.
func DefaultFaultInjection(workloads []WorkloadWeight) FaultInjectionRoute {
	return FaultInjectionRoute{
		Workloads: workloads,
		Delay:     Delay{Percentage: 100, FixedDelay: "5s"},
		Abort:     Abort{Percentage: 100, HTTPStatus: 503},
	}
}

// DefaultTimeoutRetry returns the values a fresh request timeouts tab shows.
func DefaultTimeoutRetry(workloads []WorkloadWeight) TimeoutRetryRoute {
	return TimeoutRetryRoute{
		Workloads: workloads,
		Timeout:   "2s",
		Retries: Retry{
			Attempts:      3,
			PerTryTimeout: "2s",
			RetryOn:       "gateway-error,connect-failure,refused-stream",
		},
	}
}

// ClientTLS is the DestinationRule client TLS setting.
type ClientTLS struct {
	Mode              string `json:"mode"`
	ClientCertificate string `json:"clientCertificate,omitempty"`
	PrivateKey        string `json:"privateKey,omitempty"`
	CACertificates    string `json:"caCertificates,omitempty"`
}

// LoadBalancer is either a simple policy or a consistent hash.
type LoadBalancer struct {
	Simple         bool   `json:"simple"`
	Policy         string `json:"policy,omitempty"`
	HashType       string `json:"hashType,omitempty"`
	HTTPHeaderName string `json:"httpHeaderName,omitempty"`
	CookieName     string `json:"cookieName,omitempty"`
	CookieTTL      string `json:"cookieTtl,omitempty"`
}

// PeerAuthn is the PeerAuthentication selector of the traffic policy tab.
type PeerAuthn struct {
	Add  bool   `json:"add"`
	Mode string `json:"mode"`
}

// Enabled reports whether a PeerAuthentication should exist: it was added
// and its mode is set.
func (p PeerAuthn) Enabled() bool {
	return p.Add && p.Mode != "" && p.Mode != MTLSUnset
}

// TrafficPolicy is the traffic policy tab value.
type TrafficPolicy struct {
	TLSModified     bool         `json:"tlsModified"`
	TLS             ClientTLS    `json:"tls"`
	AddLoadBalancer bool         `json:"addLoadBalancer"`
	LoadBalancer    LoadBalancer `json:"loadBalancer"`
	PeerAuthn       PeerAuthn    `json:"peerAuthn"`
}

// ConnectionPool limits connections to the upstream service.
type ConnectionPool struct {
	MaxConnections          int32 `json:"maxConnections"`
	HTTP1MaxPendingRequests int32 `json:"http1MaxPendingRequests"`
}

// OutlierDetection ejects unhealthy hosts from the load balancing pool.
type OutlierDetection struct {
	Consecutive5xxErrors uint32 `json:"consecutive5xxErrors"`
	Interval             string `json:"interval,omitempty"`
	BaseEjectionTime     string `json:"baseEjectionTime,omitempty"`
	MaxEjectionPercent   int32  `json:"maxEjectionPercent,omitempty"`
}

// CircuitBreaker is the circuit breaker tab value.
type CircuitBreaker struct {
	AddConnectionPool   bool             `json:"addConnectionPool"`
	ConnectionPool      ConnectionPool   `json:"connectionPool"`
	AddOutlierDetection bool             `json:"addOutlierDetection"`
	OutlierDetection    OutlierDetection `json:"outlierDetection"`
}

// DefaultTrafficPolicy is the traffic policy of a service without
// DestinationRule.
func DefaultTrafficPolicy() TrafficPolicy {
	return TrafficPolicy{
		TLS: ClientTLS{Mode: TLSUnset},
		LoadBalancer: LoadBalancer{
			Simple:   true,
			Policy:   LBRoundRobin,
			HashType: HashHTTPHeaderName,
		},
		PeerAuthn: PeerAuthn{Mode: MTLSUnset},
	}
}

// DefaultCircuitBreaker is the circuit breaker of a service without
// DestinationRule.
func DefaultCircuitBreaker() CircuitBreaker {
	return CircuitBreaker{
		ConnectionPool:   ConnectionPool{MaxConnections: 1, HTTP1MaxPendingRequests: 1},
		OutlierDetection: OutlierDetection{Consecutive5xxErrors: 1},
	}
}

// Gateway is the gateway selector tab value. A new gateway always serves the
// VirtualService hosts, so it keeps no host list of its own.
type Gateway struct {
	AddGateway      bool   `json:"addGateway"`
	NewGateway      bool   `json:"newGateway"`
	SelectedGateway string `json:"selectedGateway,omitempty"`
	AddMesh         bool   `json:"addMesh"`
	Port            uint32 `json:"port"`
}

// DefaultGateway is the gateway tab of a VirtualService without gateways.
func DefaultGateway(port uint32) Gateway {
	return Gateway{Port: port}
}

// HasWildcard reports whether hosts contains the "*" host.
func HasWildcard(hosts []string) bool {
	for _, h := range hosts {
		if h == "*" {
			return true
		}
	}
	return false
}

// SplitHosts parses a comma separated host list.
func SplitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
