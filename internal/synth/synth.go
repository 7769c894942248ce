// Package synth turns wizard state into the Istio documents it stands for.
// Synthesis is pure: it never fails and never touches the existing
// resources it reads names from.
package synth

import (
	"github.com/mark3labs/meshwiz/internal/logger"
	"github.com/mark3labs/meshwiz/internal/mesh"
	"github.com/mark3labs/meshwiz/internal/wizard"
	"google.golang.org/protobuf/types/known/wrapperspb"
	istionet "istio.io/api/networking/v1alpha3"
	istiosec "istio.io/api/security/v1beta1"
	istiotype "istio.io/api/type/v1beta1"
	networkingv1alpha3 "istio.io/client-go/pkg/apis/networking/v1alpha3"
	securityv1beta1 "istio.io/client-go/pkg/apis/security/v1beta1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

var log = logger.With("synth")

// WizardLabel marks every document created by the wizard with its type.
const WizardLabel = "meshwiz.io/wizard"

// Op is the write a document needs.
type Op string

const (
	OpNone   Op = ""
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Options tune the generated documents.
type Options struct {
	VersionLabel    string
	AppLabel        string
	GatewaySelector map[string]string
}

// DefaultOptions match a stock Istio installation.
func DefaultOptions() Options {
	return Options{
		VersionLabel:    "version",
		AppLabel:        "app",
		GatewaySelector: map[string]string{"istio": "ingressgateway"},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.VersionLabel == "" {
		o.VersionLabel = d.VersionLabel
	}
	if o.AppLabel == "" {
		o.AppLabel = d.AppLabel
	}
	if len(o.GatewaySelector) == 0 {
		o.GatewaySelector = d.GatewaySelector
	}
	return o
}

// PreviewSet holds the documents one wizard run produces. Gateway is set only
// when a new gateway was requested. PeerAuthentication is set when the user
// opted into one; PeerAuthnOp says how to persist it, including deleting a
// policy that existed before.
type PreviewSet struct {
	DestinationRule    *networkingv1alpha3.DestinationRule `json:"destinationRule,omitempty"`
	VirtualService     *networkingv1alpha3.VirtualService  `json:"virtualService,omitempty"`
	Gateway            *networkingv1alpha3.Gateway         `json:"gateway,omitempty"`
	PeerAuthentication *securityv1beta1.PeerAuthentication `json:"peerAuthentication,omitempty"`
	PeerAuthnOp        Op                                  `json:"peerAuthnOp,omitempty"`
}

// Synthesize builds the PreviewSet for s.
func Synthesize(s wizard.State, opts Options) PreviewSet {
	opts = opts.withDefaults()
	in := s.Inputs
	set := PreviewSet{
		DestinationRule: buildDestinationRule(s, opts),
		VirtualService:  buildVirtualService(s, opts),
		Gateway:         buildGateway(s, opts),
	}
	set.PeerAuthentication = buildPeerAuthentication(s, opts, set.DestinationRule.Name)
	set.PeerAuthnOp = PeerAuthnOp(s)
	log.Debug("synthesized %s for %s/%s: gateway=%t peerauthn=%q", in.Type, in.Namespace, in.ServiceName, set.Gateway != nil, set.PeerAuthnOp)
	return set
}

// PeerAuthnOp decides how the PeerAuthentication is persisted: created when
// newly added, updated when it already existed, deleted when an existing one
// was removed or its mode cleared to UNSET. Outside update mode nothing is
// ever updated or deleted.
func PeerAuthnOp(s wizard.State) Op {
	present := s.TrafficPolicy.PeerAuthn.Enabled()
	_, found := mesh.InitPeerAuthentication(s.Inputs.Resources.DestinationRules, s.Inputs.Resources.PeerAuthentications)
	existed := s.Inputs.Update && found
	switch {
	case present && existed:
		return OpUpdate
	case present:
		return OpCreate
	case existed:
		return OpDelete
	}
	return OpNone
}

func objectMeta(s wizard.State, name string) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:      name,
		Namespace: s.Inputs.Namespace,
		Labels:    map[string]string{WizardLabel: string(s.Inputs.Type)},
	}
}

// drName is the existing DestinationRule's name when updating, the service
// name otherwise. The VirtualService is named the same way.
func drName(s wizard.State) string {
	if dr := s.Inputs.Resources.DestinationRule(); s.Inputs.Update && dr != nil {
		return dr.Name
	}
	return s.Inputs.ServiceName
}

func vsName(s wizard.State) string {
	if vs := s.Inputs.Resources.VirtualService(); s.Inputs.Update && vs != nil {
		return vs.Name
	}
	return s.Inputs.ServiceName
}

// GatewayName is the name of a gateway created for service.
func GatewayName(service string) string {
	return service + "-gateway"
}

func buildDestinationRule(s wizard.State, opts Options) *networkingv1alpha3.DestinationRule {
	dr := &networkingv1alpha3.DestinationRule{
		TypeMeta:   metav1.TypeMeta{APIVersion: mesh.NetworkingAPIVersion, Kind: mesh.KindDestinationRule},
		ObjectMeta: objectMeta(s, drName(s)),
	}
	dr.Spec.Host = s.Inputs.FQDN()
	subsets, _ := mesh.Subsets(s.Inputs.Workloads, opts.VersionLabel)
	for _, sub := range subsets {
		dr.Spec.Subsets = append(dr.Spec.Subsets, &istionet.Subset{Name: sub.Name, Labels: sub.Labels})
	}
	dr.Spec.TrafficPolicy = buildTrafficPolicy(s.TrafficPolicy, s.CircuitBreaker)
	return dr
}

func buildTrafficPolicy(tp mesh.TrafficPolicy, cb mesh.CircuitBreaker) *istionet.TrafficPolicy {
	out := &istionet.TrafficPolicy{}
	empty := true
	if tp.TLSModified && tp.TLS.Mode != "" && tp.TLS.Mode != mesh.TLSUnset {
		out.Tls = &istionet.ClientTLSSettings{
			Mode:              istionet.ClientTLSSettings_TLSmode(istionet.ClientTLSSettings_TLSmode_value[tp.TLS.Mode]),
			ClientCertificate: tp.TLS.ClientCertificate,
			PrivateKey:        tp.TLS.PrivateKey,
			CaCertificates:    tp.TLS.CACertificates,
		}
		empty = false
	}
	if tp.AddLoadBalancer {
		out.LoadBalancer = buildLoadBalancer(tp.LoadBalancer)
		empty = false
	}
	if cb.AddConnectionPool {
		out.ConnectionPool = &istionet.ConnectionPoolSettings{
			Tcp:  &istionet.ConnectionPoolSettings_TCPSettings{MaxConnections: cb.ConnectionPool.MaxConnections},
			Http: &istionet.ConnectionPoolSettings_HTTPSettings{Http1MaxPendingRequests: cb.ConnectionPool.HTTP1MaxPendingRequests},
		}
		empty = false
	}
	if cb.AddOutlierDetection {
		od := cb.OutlierDetection
		out.OutlierDetection = &istionet.OutlierDetection{
			Consecutive_5XxErrors: wrapperspb.UInt32(od.Consecutive5xxErrors),
			Interval:              mesh.ParseDuration(od.Interval),
			BaseEjectionTime:      mesh.ParseDuration(od.BaseEjectionTime),
			MaxEjectionPercent:    od.MaxEjectionPercent,
		}
		empty = false
	}
	if empty {
		return nil
	}
	return out
}

func buildLoadBalancer(lb mesh.LoadBalancer) *istionet.LoadBalancerSettings {
	if lb.Simple {
		return &istionet.LoadBalancerSettings{
			LbPolicy: &istionet.LoadBalancerSettings_Simple{
				Simple: istionet.LoadBalancerSettings_SimpleLB(istionet.LoadBalancerSettings_SimpleLB_value[lb.Policy]),
			},
		}
	}
	ch := &istionet.LoadBalancerSettings_ConsistentHashLB{}
	switch lb.HashType {
	case mesh.HashHTTPCookie:
		ch.HashKey = &istionet.LoadBalancerSettings_ConsistentHashLB_HttpCookie{
			HttpCookie: &istionet.LoadBalancerSettings_ConsistentHashLB_HTTPCookie{
				Name: lb.CookieName,
				Ttl:  mesh.ParseDuration(lb.CookieTTL),
			},
		}
	case mesh.HashUseSourceIP:
		ch.HashKey = &istionet.LoadBalancerSettings_ConsistentHashLB_UseSourceIp{UseSourceIp: true}
	default:
		ch.HashKey = &istionet.LoadBalancerSettings_ConsistentHashLB_HttpHeaderName{HttpHeaderName: lb.HTTPHeaderName}
	}
	return &istionet.LoadBalancerSettings{
		LbPolicy: &istionet.LoadBalancerSettings_ConsistentHash{ConsistentHash: ch},
	}
}

func buildGateway(s wizard.State, opts Options) *networkingv1alpha3.Gateway {
	if !s.Gateway.AddGateway || !s.Gateway.NewGateway {
		return nil
	}
	gw := &networkingv1alpha3.Gateway{
		TypeMeta:   metav1.TypeMeta{APIVersion: mesh.NetworkingAPIVersion, Kind: mesh.KindGateway},
		ObjectMeta: objectMeta(s, GatewayName(s.Inputs.ServiceName)),
	}
	selector := make(map[string]string, len(opts.GatewaySelector))
	for k, v := range opts.GatewaySelector {
		selector[k] = v
	}
	gw.Spec.Selector = selector
	gw.Spec.Servers = []*istionet.Server{{
		Port:  &istionet.Port{Number: s.Gateway.Port, Name: "http", Protocol: "HTTP"},
		Hosts: s.GatewayHosts(),
	}}
	return gw
}

func buildPeerAuthentication(s wizard.State, opts Options, name string) *securityv1beta1.PeerAuthentication {
	pa := s.TrafficPolicy.PeerAuthn
	if !pa.Enabled() {
		return nil
	}
	out := &securityv1beta1.PeerAuthentication{
		TypeMeta:   metav1.TypeMeta{APIVersion: mesh.SecurityAPIVersion, Kind: mesh.KindPeerAuthentication},
		ObjectMeta: objectMeta(s, name),
	}
	out.Spec.Selector = &istiotype.WorkloadSelector{
		MatchLabels: map[string]string{opts.AppLabel: s.Inputs.ServiceName},
	}
	out.Spec.Mtls = &istiosec.PeerAuthentication_MutualTLS{
		Mode: istiosec.PeerAuthentication_MutualTLS_Mode(istiosec.PeerAuthentication_MutualTLS_Mode_value[pa.Mode]),
	}
	return out
}
