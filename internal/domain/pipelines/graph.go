package pipelines

import "fmt"

// ExecutionOrder resolves the stage dependency graph into a deterministic
// run order. Among stages whose dependencies are all satisfied, declaration
// order wins, so the same definition always produces the same order.
// Returns an error when the graph contains a cycle.
func (p *Pipeline) ExecutionOrder() ([]Stage, error) {
	indegree := make(map[string]int, len(p.Stages))
	for _, st := range p.Stages {
		indegree[st.Name] = len(st.DependsOn)
	}

	done := make(map[string]bool, len(p.Stages))
	order := make([]Stage, 0, len(p.Stages))

	for len(order) < len(p.Stages) {
		progressed := false
		for _, st := range p.Stages {
			if done[st.Name] || indegree[st.Name] != 0 {
				continue
			}
			done[st.Name] = true
			order = append(order, st)
			progressed = true
			// release dependents
			for _, other := range p.Stages {
				for _, dep := range other.DependsOn {
					if dep == st.Name {
						indegree[other.Name]--
					}
				}
			}
			break
		}
		if !progressed {
			return nil, fmt.Errorf("pipeline %q: dependency cycle detected", p.Name)
		}
	}
	return order, nil
}
