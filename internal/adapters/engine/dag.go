package engine

import (
	"errors"
	"fmt"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/heimdalr/dag"
)

// buildDAG mirrors graph into a heimdalr DAG. The library rejects loops on
// insertion, which backs up the validator's cycle check, and later answers
// descendant queries for dependency-failure propagation.
func buildDAG(graph *domain.ExecutionGraph) (*dag.DAG, error) {
	d := dag.NewDAG()
	for _, node := range graph.Nodes {
		if err := d.AddVertexByID(node.ID, node.ID); err != nil {
			return nil, &domain.GraphValidationError{NodeID: node.ID, Reason: err.Error()}
		}
	}

	for _, node := range graph.Nodes {
		for _, dep := range node.Deps {
			if err := d.AddEdge(dep, node.ID); err != nil {
				var loop dag.EdgeLoopError
				if errors.As(err, &loop) {
					return nil, &domain.GraphValidationError{
						NodeID: node.ID,
						Reason: fmt.Sprintf("dependency on %s would create a cycle", dep),
					}
				}
				var dup dag.EdgeDuplicateError
				if errors.As(err, &dup) {
					continue
				}
				return nil, &domain.GraphValidationError{NodeID: node.ID, Reason: err.Error()}
			}
		}
	}
	return d, nil
}

func descendants(d *dag.DAG, id string) []string {
	desc, err := d.GetDescendants(id)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(desc))
	for descID := range desc {
		ids = append(ids, descID)
	}
	return ids
}
