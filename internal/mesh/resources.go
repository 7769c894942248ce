package mesh

import (
	networkingv1alpha3 "istio.io/client-go/pkg/apis/networking/v1alpha3"
	securityv1beta1 "istio.io/client-go/pkg/apis/security/v1beta1"
)

// Resource kinds as used in the console REST paths.
const (
	KindGateways            = "gateways"
	KindDestinationRules    = "destinationrules"
	KindVirtualServices     = "virtualservices"
	KindPeerAuthentications = "peerauthentications"
)

// API versions and kinds stamped on synthesized documents.
const (
	NetworkingAPIVersion = "networking.istio.io/v1alpha3"
	SecurityAPIVersion   = "security.istio.io/v1beta1"

	KindVirtualService     = "VirtualService"
	KindDestinationRule    = "DestinationRule"
	KindGateway            = "Gateway"
	KindPeerAuthentication = "PeerAuthentication"
)

// Resources are the Istio objects that already exist for the edited service.
type Resources struct {
	VirtualServices     []*networkingv1alpha3.VirtualService  `json:"virtualServices,omitempty"`
	DestinationRules    []*networkingv1alpha3.DestinationRule `json:"destinationRules,omitempty"`
	PeerAuthentications []*securityv1beta1.PeerAuthentication `json:"peerAuthentications,omitempty"`
}

// DeepCopy returns a copy that shares nothing with r.
func (r Resources) DeepCopy() Resources {
	out := Resources{}
	for _, vs := range r.VirtualServices {
		out.VirtualServices = append(out.VirtualServices, vs.DeepCopy())
	}
	for _, dr := range r.DestinationRules {
		out.DestinationRules = append(out.DestinationRules, dr.DeepCopy())
	}
	for _, pa := range r.PeerAuthentications {
		out.PeerAuthentications = append(out.PeerAuthentications, pa.DeepCopy())
	}
	return out
}

// VirtualService returns the first existing VirtualService, if any.
func (r Resources) VirtualService() *networkingv1alpha3.VirtualService {
	if len(r.VirtualServices) == 0 {
		return nil
	}
	return r.VirtualServices[0]
}

// DestinationRule returns the first existing DestinationRule, if any.
func (r Resources) DestinationRule() *networkingv1alpha3.DestinationRule {
	if len(r.DestinationRules) == 0 {
		return nil
	}
	return r.DestinationRules[0]
}

// PeerAuthentication returns the PeerAuthentication named after the first
// existing DestinationRule, if any.
func (r Resources) PeerAuthentication() *securityv1beta1.PeerAuthentication {
	dr := r.DestinationRule()
	if dr == nil {
		return nil
	}
	for _, pa := range r.PeerAuthentications {
		if pa.Name == dr.Name {
			return pa
		}
	}
	return nil
}
