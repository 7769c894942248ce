package meshapi

import (
	"fmt"
	"os"

	"github.com/mark3labs/meshwiz/internal/wizard"
	"sigs.k8s.io/yaml"
)

// LoadInputsFile reads wizard inputs from a YAML or JSON file, for working
// without a console.
func LoadInputsFile(path string) (wizard.Inputs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return wizard.Inputs{}, fmt.Errorf("read inputs: %w", err)
	}
	var in wizard.Inputs
	if err := yaml.Unmarshal(data, &in); err != nil {
		return wizard.Inputs{}, fmt.Errorf("parse inputs %s: %w", path, err)
	}
	if in.Type, err = wizard.ParseType(string(in.Type)); err != nil {
		return wizard.Inputs{}, fmt.Errorf("inputs %s: %w", path, err)
	}
	switch {
	case in.Namespace == "":
		return wizard.Inputs{}, fmt.Errorf("inputs %s: namespace is required", path)
	case in.ServiceName == "":
		return wizard.Inputs{}, fmt.Errorf("inputs %s: serviceName is required", path)
	case len(in.Workloads) == 0:
		return wizard.Inputs{}, fmt.Errorf("inputs %s: at least one workload is required", path)
	}
	return in, nil
}

// WriteInputsFile stores inputs as YAML so a later run can reopen them.
func WriteInputsFile(path string, in wizard.Inputs) error {
	data, err := yaml.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write inputs: %w", err)
	}
	return nil
}
