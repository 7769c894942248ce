package mesh

// Subset is a named DestinationRule subset selecting one workload version.
type Subset struct {
	Name   string
	Labels map[string]string
}

// Subsets derives one subset per distinct version of the given workloads.
// A workload carrying versionLabel maps to a subset named after the label
// value; a workload without it maps to a subset named after the workload that
// selects all of its labels. The returned map resolves workload names to
// subset names. Order follows the first appearance of each subset.
func Subsets(workloads []Workload, versionLabel string) ([]Subset, map[string]string) {
	var subsets []Subset
	byWorkload := make(map[string]string, len(workloads))
	seen := map[string]bool{}
	for _, w := range workloads {
		var s Subset
		if v, ok := w.Labels[versionLabel]; ok && v != "" {
			s = Subset{Name: v, Labels: map[string]string{versionLabel: v}}
		} else {
			labels := make(map[string]string, len(w.Labels))
			for k, v := range w.Labels {
				labels[k] = v
			}
			s = Subset{Name: w.Name, Labels: labels}
		}
		byWorkload[w.Name] = s.Name
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		subsets = append(subsets, s)
	}
	return subsets, byWorkload
}

// WorkloadForSubset resolves a subset name back to a workload name. When
// several workloads share a version the first one wins.
func WorkloadForSubset(workloads []Workload, versionLabel, subset string) (string, bool) {
	_, byWorkload := Subsets(workloads, versionLabel)
	for _, w := range workloads {
		if byWorkload[w.Name] == subset {
			return w.Name, true
		}
	}
	return "", false
}
