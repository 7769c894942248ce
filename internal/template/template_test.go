package template

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/meshwiz/internal/mesh"
	"github.com/mark3labs/meshwiz/internal/synth"
	"github.com/mark3labs/meshwiz/internal/wizard"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     Variables
		want     string
	}{
		{
			name:     "default success",
			template: DefaultSuccess,
			vars:     Variables{Service: "reviews", Action: "updated"},
			want:     "Istio Config updated for reviews service.",
		},
		{
			name:     "default failure",
			template: DefaultFailure,
			vars:     Variables{Verb: "create"},
			want:     "Could not create Istio config objects.",
		},
		{
			name:     "all variables",
			template: "{{namespace}}|{{service}}|{{wizard}}|{{session}}|{{action}}|{{verb}}|{{documents}}|{{tabs}}|{{errors}}",
			vars: Variables{
				Namespace: "ns",
				Service:   "svc",
				Wizard:    "Fault Injection",
				Session:   "s1",
				Action:    "created",
				Verb:      "create",
				Documents: "docs",
				Tabs:      "tabs",
				Errors:    "errs",
			},
			want: "ns|svc|Fault Injection|s1|created|create|docs|tabs|errs",
		},
		{
			name:     "placeholder not replaced if variable missing",
			template: "{{service}} {{unknown}}",
			vars:     Variables{Service: "reviews"},
			want:     "reviews {{unknown}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.template, tt.vars)
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestForState(t *testing.T) {
	in := wizard.Inputs{Type: wizard.FaultInjection, Namespace: "bookinfo", ServiceName: "ratings"}
	vars := ForState(wizard.Empty(), "")
	if vars.Verb != "create" {
		t.Errorf("closed wizard verb = %q, want create", vars.Verb)
	}

	in.Update = true
	s := wizard.State{Inputs: in}
	vars = ForState(s, "bookinfo-ratings")
	if vars.Action != "updated" || vars.Verb != "update" {
		t.Errorf("update mode gave %q/%q", vars.Action, vars.Verb)
	}
	if vars.Wizard != "Fault Injection" || vars.Session != "bookinfo-ratings" {
		t.Errorf("unexpected variables: %+v", vars)
	}
}

func TestMessagesWithDefaults(t *testing.T) {
	m := Messages{Success: "  ", Failure: "custom"}.WithDefaults()
	if m.Success != DefaultSuccess {
		t.Errorf("Success = %q", m.Success)
	}
	if m.Failure != "custom" {
		t.Errorf("Failure = %q", m.Failure)
	}
	if DefaultMessages() != (Messages{Success: DefaultSuccess, Failure: DefaultFailure}) {
		t.Error("DefaultMessages mismatch")
	}
}

func TestBuildSummary(t *testing.T) {
	s := wizard.New(wizard.Inputs{
		Type:        wizard.TrafficShifting,
		Namespace:   "bookinfo",
		ServiceName: "reviews",
		Workloads: []mesh.Workload{
			{Name: "reviews-v1", Labels: map[string]string{"version": "v1"}},
			{Name: "reviews-v2", Labels: map[string]string{"version": "v2"}},
		},
	})
	s = wizard.UpdateWeights(s, true, []mesh.WorkloadWeight{{Name: "reviews-v1", Weight: 100}, {Name: "reviews-v2", Weight: 25, Mirrored: true}})
	s = wizard.UpdateGateway(s, true, mesh.Gateway{AddGateway: true, NewGateway: true, AddMesh: true, Port: 8080}, nil)
	tp := s.TrafficPolicy
	tp.PeerAuthn = mesh.PeerAuthn{Add: true, Mode: mesh.MTLSStrict}
	s = wizard.UpdateTrafficPolicy(s, true, tp)

	got := BuildSummary(s, synth.Synthesize(s, synth.Options{}))

	for _, want := range []string{
		"# Traffic Shifting: bookinfo/reviews",
		"- **create** Gateway `reviews-gateway`",
		"- **create** DestinationRule `reviews`",
		"- **create** VirtualService `reviews`",
		"- **create** PeerAuthentication `reviews`",
		"Weights: reviews-v1 100%, reviews-v2 mirror 25%",
		"Gateway: reviews-gateway (new, port 8080) + mesh",
		"PeerAuthentication: STRICT",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "{{") {
		t.Errorf("summary has unreplaced placeholders:\n%s", got)
	}

	// Gateway comes before the DestinationRule, which comes before the VirtualService.
	gw := strings.Index(got, "Gateway `")
	dr := strings.Index(got, "DestinationRule `")
	vs := strings.Index(got, "VirtualService `")
	if !(gw < dr && dr < vs) {
		t.Errorf("documents out of write order:\n%s", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(t *testing.T) string // Returns file path
		wantErr     bool
		wantContent string
	}{
		{
			name: "load existing file",
			setup: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "success.txt")
				if err := os.WriteFile(path, []byte("Done with {{service}}"), 0644); err != nil {
					t.Fatal(err)
				}
				return path
			},
			wantContent: "Done with {{service}}",
		},
		{
			name: "file does not exist",
			setup: func(t *testing.T) string {
				return "/nonexistent/path/template.txt"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadFromFile(tt.setup(t))
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadFromFile() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.wantContent {
				t.Errorf("LoadFromFile() = %q, want %q", got, tt.wantContent)
			}
		})
	}
}

func TestGetTemplate(t *testing.T) {
	got, err := GetTemplate("", DefaultFailure)
	if err != nil {
		t.Fatal(err)
	}
	if got != DefaultFailure {
		t.Errorf("GetTemplate() = %q, want fallback", got)
	}

	if _, err := GetTemplate("/nonexistent/custom.txt", DefaultFailure); err == nil {
		t.Error("expected error for missing custom template")
	}
}

func TestFormatErrors(t *testing.T) {
	if got := FormatErrors(nil); got != "" {
		t.Errorf("FormatErrors(nil) = %q", got)
	}
	got := FormatErrors([]error{os.ErrNotExist, os.ErrPermission})
	if got != "- file does not exist\n- permission denied\n" {
		t.Errorf("FormatErrors() = %q", got)
	}
}
