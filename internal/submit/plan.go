package submit

import (
	"fmt"
	"strings"

	"github.com/mark3labs/meshwiz/internal/mesh"
	"github.com/mark3labs/meshwiz/internal/preview"
	"github.com/mark3labs/meshwiz/internal/synth"
	"github.com/mark3labs/meshwiz/internal/wizard"
)

// Operation is one write against the console.
type Operation struct {
	Op        synth.Op `json:"op"`
	Kind      string   `json:"kind"`
	Namespace string   `json:"namespace"`
	Name      string   `json:"name"`
	Object    any      `json:"-"`
	Err       error    `json:"-"`
}

func (o Operation) String() string {
	return fmt.Sprintf("%s %s %s/%s", o.Op, o.Kind, o.Namespace, o.Name)
}

// Plan lists the writes a submission performs, in order: a new gateway, the
// DestinationRule, the VirtualService, then the PeerAuthentication. The rule
// and service are updated when they already exist in update mode and created
// otherwise. The PeerAuthentication always carries the DestinationRule name.
func Plan(s wizard.State, set synth.PreviewSet) []Operation {
	ns := s.Inputs.Namespace
	var ops []Operation

	if set.Gateway != nil {
		ops = append(ops, Operation{Op: synth.OpCreate, Kind: mesh.KindGateways, Namespace: ns, Name: set.Gateway.Name, Object: set.Gateway})
	}

	drName := ""
	if dr := set.DestinationRule; dr != nil {
		drName = dr.Name
		op := synth.OpCreate
		if s.Inputs.Update && s.Inputs.Resources.DestinationRule() != nil {
			op = synth.OpUpdate
		}
		ops = append(ops, Operation{Op: op, Kind: mesh.KindDestinationRules, Namespace: ns, Name: dr.Name, Object: dr})
	}

	if vs := set.VirtualService; vs != nil {
		op := synth.OpCreate
		if s.Inputs.Update && s.Inputs.Resources.VirtualService() != nil {
			op = synth.OpUpdate
		}
		ops = append(ops, Operation{Op: op, Kind: mesh.KindVirtualServices, Namespace: ns, Name: vs.Name, Object: vs})
	}

	switch set.PeerAuthnOp {
	case synth.OpCreate, synth.OpUpdate:
		ops = append(ops, Operation{Op: set.PeerAuthnOp, Kind: mesh.KindPeerAuthentications, Namespace: ns, Name: drName, Object: set.PeerAuthentication})
	case synth.OpDelete:
		ops = append(ops, Operation{Op: synth.OpDelete, Kind: mesh.KindPeerAuthentications, Namespace: ns, Name: drName})
	}
	return ops
}

// Documents renders the objects written by ops as one multi-document YAML
// stream. Deletes carry no object and are skipped.
func Documents(ops []Operation) ([]byte, error) {
	var docs []string
	for _, op := range ops {
		if op.Object == nil {
			continue
		}
		doc, err := preview.RenderYAML(op.Object)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", op, err)
		}
		docs = append(docs, doc)
	}
	return []byte(strings.Join(docs, "---\n")), nil
}
