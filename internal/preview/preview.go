// Package preview shows the documents a wizard is about to write and lets
// the user confirm or edit them first.
package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/mark3labs/meshwiz/internal/logger"
	"github.com/mark3labs/meshwiz/internal/mesh"
	"github.com/mark3labs/meshwiz/internal/synth"
	"github.com/mark3labs/meshwiz/internal/template"
	"github.com/mark3labs/meshwiz/internal/wizard"
	networkingv1alpha3 "istio.io/client-go/pkg/apis/networking/v1alpha3"
	securityv1beta1 "istio.io/client-go/pkg/apis/security/v1beta1"
	"sigs.k8s.io/yaml"
)

var log = logger.With("preview")

// Item is one document shown for confirmation. Document is empty when the
// object is going to be deleted; Existing holds the object being replaced.
type Item struct {
	Kind     string   `json:"kind"`
	Title    string   `json:"title"`
	Name     string   `json:"name"`
	Op       synth.Op `json:"op"`
	Document string   `json:"document,omitempty"`
	Existing string   `json:"existing,omitempty"`
}

// Label is the tab caption of an item.
func (it Item) Label() string {
	return fmt.Sprintf("%s (%s)", it.Title, it.Op)
}

// Diff is the unified diff from the existing object to the proposed one.
// New objects diff against nothing.
func (it Item) Diff() string {
	return Diff(it.Name+".yaml", it.Existing, it.Document)
}

// Page is everything a presenter shows: a heading, a markdown summary of the
// wizard and the documents.
type Page struct {
	Title   string
	Summary string
	Items   []Item
}

// Presenter shows a page and returns the possibly edited items and whether
// the user confirmed them.
type Presenter interface {
	Present(ctx context.Context, page Page) ([]Item, bool, error)
}

// Items lists the documents of set in display order: DestinationRule,
// Gateway, PeerAuthentication, VirtualService.
func Items(s wizard.State, set synth.PreviewSet) ([]Item, error) {
	res := s.Inputs.Resources
	update := s.Inputs.Update
	var items []Item

	add := func(kind, title, name string, op synth.Op, doc, existing any) error {
		it := Item{Kind: kind, Title: title, Name: name, Op: op}
		var err error
		if doc != nil {
			if it.Document, err = RenderYAML(doc); err != nil {
				return fmt.Errorf("render %s: %w", title, err)
			}
		}
		if existing != nil {
			if it.Existing, err = RenderYAML(existing); err != nil {
				return fmt.Errorf("render existing %s: %w", title, err)
			}
		}
		items = append(items, it)
		return nil
	}

	drName := ""
	if dr := set.DestinationRule; dr != nil {
		drName = dr.Name
		op, existing := synth.OpCreate, res.DestinationRule()
		if update && existing != nil {
			op = synth.OpUpdate
		} else {
			existing = nil
		}
		if err := add(mesh.KindDestinationRules, mesh.KindDestinationRule, dr.Name, op, dr, nilIfEmpty(existing)); err != nil {
			return nil, err
		}
	}
	if gw := set.Gateway; gw != nil {
		if err := add(mesh.KindGateways, mesh.KindGateway, gw.Name, synth.OpCreate, gw, nil); err != nil {
			return nil, err
		}
	}
	if op := set.PeerAuthnOp; op != synth.OpNone {
		var doc, existing any
		if set.PeerAuthentication != nil && op != synth.OpDelete {
			doc = set.PeerAuthentication
		}
		if pa := res.PeerAuthentication(); pa != nil && op != synth.OpCreate {
			existing = pa
		}
		if err := add(mesh.KindPeerAuthentications, mesh.KindPeerAuthentication, drName, op, doc, existing); err != nil {
			return nil, err
		}
	}
	if vs := set.VirtualService; vs != nil {
		op, existing := synth.OpCreate, res.VirtualService()
		if update && existing != nil {
			op = synth.OpUpdate
		} else {
			existing = nil
		}
		if err := add(mesh.KindVirtualServices, mesh.KindVirtualService, vs.Name, op, vs, nilIfEmpty(existing)); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// nilIfEmpty turns a typed nil pointer into an untyped nil so it is not
// rendered.
func nilIfEmpty[T any](p *T) any {
	if p == nil {
		return nil
	}
	return p
}

// Apply folds edited items back into set. Only documents can change: an
// edit may not rename an object or change its kind.
func Apply(set synth.PreviewSet, items []Item) (synth.PreviewSet, error) {
	out := set
	for _, it := range items {
		if it.Document == "" {
			continue
		}
		switch it.Kind {
		case mesh.KindDestinationRules:
			dr := &networkingv1alpha3.DestinationRule{}
			if err := decode(it, dr); err != nil {
				return set, err
			}
			out.DestinationRule = dr
		case mesh.KindVirtualServices:
			vs := &networkingv1alpha3.VirtualService{}
			if err := decode(it, vs); err != nil {
				return set, err
			}
			out.VirtualService = vs
		case mesh.KindGateways:
			gw := &networkingv1alpha3.Gateway{}
			if err := decode(it, gw); err != nil {
				return set, err
			}
			out.Gateway = gw
		case mesh.KindPeerAuthentications:
			pa := &securityv1beta1.PeerAuthentication{}
			if err := decode(it, pa); err != nil {
				return set, err
			}
			out.PeerAuthentication = pa
		default:
			return set, fmt.Errorf("unknown document kind %q", it.Kind)
		}
	}
	return out, nil
}

// decode parses it.Document into obj and checks that the object kept its
// name and kind.
func decode(it Item, obj any) error {
	if err := yaml.UnmarshalStrict([]byte(it.Document), obj); err != nil {
		return fmt.Errorf("edited %s %s: %w", it.Title, it.Name, err)
	}
	var meta struct {
		Kind     string `json:"kind"`
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
	}
	if err := yaml.Unmarshal([]byte(it.Document), &meta); err != nil {
		return fmt.Errorf("edited %s %s: %w", it.Title, it.Name, err)
	}
	if meta.Metadata.Name != it.Name {
		return fmt.Errorf("edited %s %s: renaming to %q is not supported", it.Title, it.Name, meta.Metadata.Name)
	}
	if meta.Kind != "" && meta.Kind != it.Title {
		return fmt.Errorf("edited %s %s: kind changed to %q", it.Title, it.Name, meta.Kind)
	}
	log.Debug("applied edited %s %s", it.Title, it.Name)
	return nil
}

// RenderYAML renders a document the way it is shown and edited. Empty
// status and a null creation timestamp are dropped.
func RenderYAML(obj any) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return "", err
	}
	if st, ok := m["status"].(map[string]any); ok && len(st) == 0 {
		delete(m, "status")
	}
	if md, ok := m["metadata"].(map[string]any); ok {
		if md["creationTimestamp"] == nil {
			delete(md, "creationTimestamp")
		}
	}
	out, err := yaml.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Diff returns a unified diff of two YAML documents, or "" when they are
// equal.
func Diff(name, existing, proposed string) string {
	if existing == proposed {
		return ""
	}
	from := "a/" + name
	if existing == "" {
		from = "/dev/null"
	}
	to := "b/" + name
	if proposed == "" {
		to = "/dev/null"
	}
	return udiff.Unified(from, to, existing, proposed)
}

// Reviewer adapts a Presenter to the review step of a submission.
func Reviewer(p Presenter) func(context.Context, wizard.State, synth.PreviewSet) (synth.PreviewSet, bool, error) {
	return func(ctx context.Context, s wizard.State, set synth.PreviewSet) (synth.PreviewSet, bool, error) {
		items, err := Items(s, set)
		if err != nil {
			return set, false, err
		}
		page := Page{Title: Title(s), Summary: template.BuildSummary(s, set), Items: items}
		edited, ok, err := p.Present(ctx, page)
		if err != nil || !ok {
			return set, false, err
		}
		out, err := Apply(set, edited)
		if err != nil {
			return set, false, err
		}
		return out, true, nil
	}
}

// Title is the heading shown above the documents.
func Title(s wizard.State) string {
	verb := "Create"
	if s.Inputs.Update {
		verb = "Update"
	}
	return fmt.Sprintf("%s %s for %s/%s", verb, s.Inputs.Type.Title(), s.Inputs.Namespace, s.Inputs.ServiceName)
}

// summaryLine is a one-line description of an item, used by both presenters.
func summaryLine(it Item) string {
	return strings.TrimSpace(fmt.Sprintf("%s %s %s", it.Op, it.Title, it.Name))
}
