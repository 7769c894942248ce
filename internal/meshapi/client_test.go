package meshapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/mark3labs/meshwiz/internal/mesh"
	"github.com/mark3labs/meshwiz/internal/wizard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	networkingv1alpha3 "istio.io/client-go/pkg/apis/networking/v1alpha3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const base = "http://console.test/kiali"

func newClient(t *testing.T, opts ...Option) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	opts = append(opts, WithHTTPClient(&http.Client{Transport: mt}))
	return New(base+"/", opts...), mt
}

func TestCreateUpdateDelete(t *testing.T) {
	c, mt := newClient(t, WithToken("s3cret"))

	dr := &networkingv1alpha3.DestinationRule{ObjectMeta: metav1.ObjectMeta{Name: "reviews", Namespace: "bookinfo"}}
	dr.Spec.Host = "reviews.bookinfo.svc.cluster.local"

	mt.RegisterResponder(http.MethodPost, base+"/api/namespaces/bookinfo/istio/destinationrules",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer s3cret", req.Header.Get("Authorization"))
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			body, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			var got map[string]any
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, "reviews.bookinfo.svc.cluster.local", got["spec"].(map[string]any)["host"])
			return httpmock.NewStringResponse(http.StatusOK, `{}`), nil
		})
	mt.RegisterResponder(http.MethodPatch, base+"/api/namespaces/bookinfo/istio/virtualservices/reviews",
		httpmock.NewStringResponder(http.StatusOK, ``))
	mt.RegisterResponder(http.MethodDelete, base+"/api/namespaces/bookinfo/istio/peerauthentications/reviews",
		httpmock.NewStringResponder(http.StatusOK, ``))

	ctx := context.Background()
	require.NoError(t, c.Create(ctx, "bookinfo", mesh.KindDestinationRules, dr))
	require.NoError(t, c.Update(ctx, "bookinfo", mesh.KindVirtualServices, "reviews", map[string]any{"spec": map[string]any{}}))
	require.NoError(t, c.Delete(ctx, "bookinfo", mesh.KindPeerAuthentications, "reviews"))

	calls := mt.GetCallCountInfo()
	assert.Equal(t, 1, calls["POST "+base+"/api/namespaces/bookinfo/istio/destinationrules"])
	assert.Equal(t, 1, calls["PATCH "+base+"/api/namespaces/bookinfo/istio/virtualservices/reviews"])
	assert.Equal(t, 1, calls["DELETE "+base+"/api/namespaces/bookinfo/istio/peerauthentications/reviews"])
}

func TestAPIError(t *testing.T) {
	c, mt := newClient(t)
	mt.RegisterResponder(http.MethodDelete, base+"/api/namespaces/bookinfo/istio/gateways/gone",
		httpmock.NewStringResponder(http.StatusNotFound, `object not found`))
	mt.RegisterResponder(http.MethodPost, base+"/api/namespaces/bookinfo/istio/gateways",
		httpmock.NewStringResponder(http.StatusForbidden, ``))

	err := c.Delete(context.Background(), "bookinfo", mesh.KindGateways, "gone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, err.Error(), "object not found")

	err = c.Create(context.Background(), "bookinfo", mesh.KindGateways, struct{}{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "403 Forbidden")
}

func TestTransportError(t *testing.T) {
	c, mt := newClient(t)
	mt.RegisterNoResponder(httpmock.NewErrorResponder(errors.New("connection refused")))

	err := c.Delete(context.Background(), "bookinfo", mesh.KindGateways, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestOpenInputs(t *testing.T) {
	c, mt := newClient(t)

	mt.RegisterResponder(http.MethodGet, base+"/api/namespaces/bookinfo/services/reviews",
		httpmock.NewStringResponder(http.StatusOK, `{
			"workloads": [
				{"name": "reviews-v1", "labels": {"app": "reviews", "version": "v1"}},
				{"name": "reviews-v2", "labels": {"app": "reviews", "version": "v2"}}
			],
			"virtualServices": [{"metadata": {"name": "reviews", "namespace": "bookinfo"},
				"spec": {"hosts": ["reviews"], "gateways": ["bookinfo-gateway"]}}],
			"destinationRules": []
		}`))
	mt.RegisterResponderWithQuery(http.MethodGet, base+"/api/namespaces/bookinfo/istio",
		map[string]string{"objects": "gateways,peerauthentications"},
		httpmock.NewStringResponder(http.StatusOK, `{
			"gateways": [{"metadata": {"name": "bookinfo-gateway", "namespace": "bookinfo"}}],
			"peerAuthentications": [{"metadata": {"name": "reviews", "namespace": "bookinfo"}, "spec": {"mtls": {"mode": "STRICT"}}}]
		}`))
	mt.RegisterResponderWithQuery(http.MethodGet, base+"/api/namespaces/istio-system/istio",
		map[string]string{"objects": "gateways,peerauthentications"},
		httpmock.NewStringResponder(http.StatusOK, `{
			"gateways": [{"metadata": {"name": "ingress", "namespace": "istio-system"}}],
			"peerAuthentications": [{"metadata": {"name": "default", "namespace": "istio-system"}}]
		}`))

	in, err := c.OpenInputs(context.Background(), Lookup{
		Type:              wizard.TrafficShifting,
		Namespace:         "bookinfo",
		Service:           "reviews",
		GatewayNamespaces: []string{"istio-system", "bookinfo"},
	})
	require.NoError(t, err)

	assert.True(t, in.Update)
	assert.Len(t, in.Workloads, 2)
	require.Len(t, in.Resources.VirtualServices, 1)
	assert.Equal(t, []string{"bookinfo-gateway"}, in.Resources.VirtualServices[0].Spec.Gateways)
	require.Len(t, in.Resources.PeerAuthentications, 1)
	assert.Equal(t, "reviews", in.Resources.PeerAuthentications[0].Name)
	assert.Equal(t, []string{"bookinfo-gateway", "bookinfo/bookinfo-gateway", "istio-system/ingress"}, in.Gateways)

	s := wizard.New(in)
	assert.True(t, s.Gateway.AddGateway)
	assert.True(t, s.Valid.Gateway)
}

func TestOpenInputsWithoutWorkloads(t *testing.T) {
	c, mt := newClient(t)
	mt.RegisterResponder(http.MethodGet, base+"/api/namespaces/bookinfo/services/ghost",
		httpmock.NewStringResponder(http.StatusOK, `{"workloads": []}`))

	_, err := c.OpenInputs(context.Background(), Lookup{Type: wizard.TrafficShifting, Namespace: "bookinfo", Service: "ghost"})
	assert.ErrorContains(t, err, "no workloads")
}

func TestInputsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inputs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
type: traffic-shifting
namespace: bookinfo
serviceName: reviews
workloads:
  - name: reviews-v1
    labels: {app: reviews, version: v1}
resources:
  destinationRules:
    - metadata: {name: reviews-dr, namespace: bookinfo}
      spec:
        host: reviews.bookinfo.svc.cluster.local
        trafficPolicy:
          tls: {mode: ISTIO_MUTUAL}
`), 0644))

	in, err := LoadInputsFile(path)
	require.NoError(t, err)
	assert.Equal(t, wizard.TrafficShifting, in.Type)
	require.Len(t, in.Resources.DestinationRules, 1)
	tls, ok := mesh.InitTLS(in.Resources.DestinationRules)
	assert.True(t, ok)
	assert.Equal(t, mesh.TLSIstioMutual, tls.Mode)

	out := filepath.Join(dir, "out.yaml")
	require.NoError(t, WriteInputsFile(out, in))
	again, err := LoadInputsFile(out)
	require.NoError(t, err)
	assert.Equal(t, in.ServiceName, again.ServiceName)
	assert.Equal(t, "reviews-dr", again.Resources.DestinationRules[0].Name)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("type: canary\nnamespace: x\n"), 0644))
	_, err = LoadInputsFile(bad)
	assert.ErrorContains(t, err, "unknown wizard type")
}
