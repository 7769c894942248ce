package meshapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/mark3labs/meshwiz/internal/mesh"
	"github.com/mark3labs/meshwiz/internal/wizard"
	networkingv1alpha3 "istio.io/client-go/pkg/apis/networking/v1alpha3"
	securityv1beta1 "istio.io/client-go/pkg/apis/security/v1beta1"
)

// ServiceDetails is the console view of one service.
type ServiceDetails struct {
	Workloads        []mesh.Workload                       `json:"workloads"`
	VirtualServices  []*networkingv1alpha3.VirtualService  `json:"virtualServices"`
	DestinationRules []*networkingv1alpha3.DestinationRule `json:"destinationRules"`
}

// IstioObjects are the namespace wide objects the wizard reads.
type IstioObjects struct {
	Gateways            []*networkingv1alpha3.Gateway         `json:"gateways"`
	PeerAuthentications []*securityv1beta1.PeerAuthentication `json:"peerAuthentications"`
}

// GetService fetches the workloads and routing objects of a service.
func (c *Client) GetService(ctx context.Context, namespace, service string) (*ServiceDetails, error) {
	path := "/api/namespaces/" + url.PathEscape(namespace) + "/services/" + url.PathEscape(service)
	var out ServiceDetails
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("get service %s/%s: %w", namespace, service, err)
	}
	return &out, nil
}

// GetIstioObjects fetches gateways and peer authentications of a namespace.
func (c *Client) GetIstioObjects(ctx context.Context, namespace string) (*IstioObjects, error) {
	q := url.Values{"objects": {mesh.KindGateways + "," + mesh.KindPeerAuthentications}}
	path := "/api/namespaces/" + url.PathEscape(namespace) + "/istio?" + q.Encode()
	var out IstioObjects
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("get istio objects in %s: %w", namespace, err)
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Lookup names the service a wizard is opened for.
type Lookup struct {
	Type              wizard.Type
	Namespace         string
	Service           string
	GatewayNamespaces []string
	VersionLabel      string
	GatewayPort       uint32
}

// OpenInputs gathers everything a wizard needs from the console. The wizard
// opens in update mode when the service already has a VirtualService or
// DestinationRule.
func (c *Client) OpenInputs(ctx context.Context, l Lookup) (wizard.Inputs, error) {
	svc, err := c.GetService(ctx, l.Namespace, l.Service)
	if err != nil {
		return wizard.Inputs{}, err
	}
	if len(svc.Workloads) == 0 {
		return wizard.Inputs{}, fmt.Errorf("service %s/%s has no workloads", l.Namespace, l.Service)
	}

	in := wizard.Inputs{
		Type:         l.Type,
		Namespace:    l.Namespace,
		ServiceName:  l.Service,
		Workloads:    svc.Workloads,
		VersionLabel: l.VersionLabel,
		GatewayPort:  l.GatewayPort,
		Resources: mesh.Resources{
			VirtualServices:  svc.VirtualServices,
			DestinationRules: svc.DestinationRules,
		},
	}
	in.Update = len(svc.VirtualServices) > 0 || len(svc.DestinationRules) > 0

	namespaces := append([]string{l.Namespace}, l.GatewayNamespaces...)
	seen := map[string]bool{}
	for _, ns := range namespaces {
		if seen[ns] {
			continue
		}
		seen[ns] = true
		objs, err := c.GetIstioObjects(ctx, ns)
		if err != nil {
			return wizard.Inputs{}, err
		}
		for _, gw := range objs.Gateways {
			in.Gateways = append(in.Gateways, GatewayRef(gw.Namespace, gw.Name))
			if gw.Namespace == l.Namespace {
				in.Gateways = append(in.Gateways, gw.Name)
			}
		}
		if ns == l.Namespace {
			in.Resources.PeerAuthentications = objs.PeerAuthentications
		}
	}
	sort.Strings(in.Gateways)

	log.Debug("inputs for %s/%s: %d workloads, update=%t, %d gateways", l.Namespace, l.Service, len(in.Workloads), in.Update, len(in.Gateways))
	return in, nil
}

// GatewayRef is how a VirtualService refers to a gateway in another
// namespace.
func GatewayRef(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "/" + name
}
