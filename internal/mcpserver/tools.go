package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/meshwiz/internal/wizard"
)

var workloadWeightSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name":     map[string]any{"type": "string", "description": "Workload name"},
		"weight":   map[string]any{"type": "integer", "description": "Traffic percentage, or mirror percentage when mirrored"},
		"locked":   map[string]any{"type": "boolean"},
		"mirrored": map[string]any{"type": "boolean", "description": "Mirror traffic to this workload"},
	},
	"required": []string{"name", "weight"},
}

// registerTools adds every wizard tool to the MCP server.
func (s *Server) registerTools() error {
	s.mcpServer.AddTool(
		mcp.NewTool("wizard-state",
			mcp.WithDescription("Show the wizard state: type, service, tab values and which validity flags block submission"),
		),
		s.handleState,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("update-weights",
			mcp.WithDescription("Set the traffic split of a traffic shifting wizard. Weights of routed workloads must add up to 100"),
			mcp.WithArray("workloads", mcp.Required(), mcp.Items(workloadWeightSchema)),
		),
		s.handleTab(wizard.TabWeights),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("update-rules",
			mcp.WithDescription("Set the ordered request routing rules. First match wins. "+
				"Matches use the form '<headers|uri|scheme|method|authority> [header] <exact|prefix|regex> <value>'"),
			mcp.WithArray("rules", mcp.Required(),
				mcp.Items(map[string]any{
					"type": "object",
					"properties": map[string]any{
						"matches": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"routes":  map[string]any{"type": "array", "items": workloadWeightSchema},
						"timeout": map[string]any{"type": "string", "description": "Request timeout, e.g. 2s"},
					},
					"required": []string{"routes"},
				})),
		),
		s.handleTab(wizard.TabRules),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("update-fault-injection",
			mcp.WithDescription("Configure injected delays and aborts. Omitted fields keep their current value"),
			mcp.WithBoolean("delayed", mcp.Description("Inject a fixed delay")),
			mcp.WithObject("delay", mcp.Description("{percentage, fixedDelay}")),
			mcp.WithBoolean("aborted", mcp.Description("Inject HTTP failures")),
			mcp.WithObject("abort", mcp.Description("{percentage, httpStatus}")),
		),
		s.handleTab(wizard.TabFaultInjection),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("update-timeouts",
			mcp.WithDescription("Configure request timeout and retries. Omitted fields keep their current value"),
			mcp.WithBoolean("isTimeout"),
			mcp.WithString("timeout", mcp.Description("Request timeout, e.g. 2s")),
			mcp.WithBoolean("isRetry"),
			mcp.WithObject("retries", mcp.Description("{attempts, perTryTimeout, retryOn}")),
		),
		s.handleTab(wizard.TabTimeouts),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("update-hosts",
			mcp.WithDescription("Set the VirtualService hosts"),
			mcp.WithArray("hosts", mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
		),
		s.handleTab(wizard.TabHosts),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("update-gateway",
			mcp.WithDescription("Attach a new or existing gateway to the VirtualService"),
			mcp.WithObject("gateway", mcp.Required(),
				mcp.Description("{addGateway, newGateway, selectedGateway, addMesh, port}")),
			mcp.WithArray("hosts", mcp.Items(map[string]any{"type": "string"}),
				mcp.Description("Hosts for a new gateway; they replace the VirtualService hosts")),
		),
		s.handleTab(wizard.TabGateway),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("update-traffic-policy",
			mcp.WithDescription("Configure client TLS, load balancing and the PeerAuthentication. Omitted fields keep their current value"),
			mcp.WithBoolean("tlsModified"),
			mcp.WithObject("tls", mcp.Description("{mode, clientCertificate, privateKey, caCertificates}")),
			mcp.WithBoolean("addLoadBalancer"),
			mcp.WithObject("loadBalancer", mcp.Description("{simple, policy, hashType, httpHeaderName, cookieName, cookieTtl}")),
			mcp.WithObject("peerAuthn", mcp.Description("{add, mode}")),
		),
		s.handleTab(wizard.TabTrafficPolicy),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("update-circuit-breaker",
			mcp.WithDescription("Configure the connection pool and outlier detection. Omitted fields keep their current value"),
			mcp.WithBoolean("addConnectionPool"),
			mcp.WithObject("connectionPool", mcp.Description("{maxConnections, http1MaxPendingRequests}")),
			mcp.WithBoolean("addOutlierDetection"),
			mcp.WithObject("outlierDetection", mcp.Description("{consecutive5xxErrors, interval, baseEjectionTime, maxEjectionPercent}")),
		),
		s.handleTab(wizard.TabCircuitBreaker),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("wizard-preview",
			mcp.WithDescription("Show the YAML documents a submission would write"),
			mcp.WithBoolean("diff", mcp.Description("Show diffs against the existing objects instead of full documents")),
		),
		s.handlePreview,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("wizard-submit",
			mcp.WithDescription("Write the documents and close the wizard. Fails while the wizard is invalid"),
		),
		s.handleSubmit,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("wizard-close",
			mcp.WithDescription("Close the wizard without writing anything"),
		),
		s.handleClose,
	)

	return nil
}
