package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Violation describes one invariant failure found by Check.
type Violation struct {
	Invariant string
	NodeID    NodeID
	Detail    string
}

func (v Violation) String() string {
	return fmt.Sprintf("[%s] node %d: %s", v.Invariant, v.NodeID, v.Detail)
}

// CheckReport is the result of one Check run, tagged with a unique run
// id so repeated `--check` invocations can be told apart in logs.
type CheckReport struct {
	RunID      string
	Nodes      int
	Violations []Violation
}

// OK reports whether the scan found no violations.
func (r CheckReport) OK() bool { return len(r.Violations) == 0 }

// Check scans the whole stored tree for violations of invariants 1-6:
// exactly one root, every non-root node has exactly one parent edge, no
// dangling info/edge references, no duplicate sibling names, and that
// the tree is acyclic and fully reachable from the root.
func (s *Store) Check(ctx context.Context) (CheckReport, error) {
	report := CheckReport{RunID: uuid.NewString()}

	roots, err := s.findRootCandidates(ctx)
	if err != nil {
		return report, err
	}
	switch {
	case len(roots) == 0:
		report.Violations = append(report.Violations, Violation{
			Invariant: "I1-root-exists", Detail: "no node without a parent edge",
		})
	case len(roots) > 1:
		for _, id := range roots {
			report.Violations = append(report.Violations, Violation{
				Invariant: "I1-single-root", NodeID: id,
				Detail: "multiple nodes have no parent edge",
			})
		}
	}

	dangling, err := s.danglingEdges(ctx)
	if err != nil {
		return report, err
	}
	for _, id := range dangling {
		report.Violations = append(report.Violations, Violation{
			Invariant: "I2-edge-integrity", NodeID: id,
			Detail: "edge references a node that does not exist",
		})
	}

	orphanInfo, err := s.orphanInfoRows(ctx)
	if err != nil {
		return report, err
	}
	for _, id := range orphanInfo {
		report.Violations = append(report.Violations, Violation{
			Invariant: "I3-info-integrity", NodeID: id,
			Detail: "node references an info row that does not exist",
		})
	}

	dupes, err := s.duplicateSiblingNames(ctx)
	if err != nil {
		return report, err
	}
	for _, id := range dupes {
		report.Violations = append(report.Violations, Violation{
			Invariant: "I4-unique-siblings", NodeID: id,
			Detail: "two children of the same parent share a name",
		})
	}

	multiParent, err := s.multiParentNodes(ctx)
	if err != nil {
		return report, err
	}
	for _, id := range multiParent {
		report.Violations = append(report.Violations, Violation{
			Invariant: "I5-single-parent", NodeID: id,
			Detail: "node has more than one incoming edge",
		})
	}

	total, unreached, err := s.unreachableNodes(ctx, roots)
	if err != nil {
		return report, err
	}
	report.Nodes = total
	for _, id := range unreached {
		report.Violations = append(report.Violations, Violation{
			Invariant: "I6-reachable", NodeID: id,
			Detail: "node is not reachable from the root",
		})
	}

	return report, nil
}

func (s *Store) findRootCandidates(ctx context.Context) ([]NodeID, error) {
	rows, err := s.reader().QueryContext(ctx,
		`SELECT id FROM nodes WHERE id NOT IN (SELECT child FROM edges)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NodeID
	for rows.Next() {
		var id NodeID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) danglingEdges(ctx context.Context) ([]NodeID, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT e.child FROM edges e LEFT JOIN nodes n ON n.id = e.child
		WHERE n.id IS NULL
		UNION
		SELECT e.parent FROM edges e LEFT JOIN nodes n ON n.id = e.parent
		WHERE n.id IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NodeID
	for rows.Next() {
		var id NodeID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) orphanInfoRows(ctx context.Context) ([]NodeID, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT n.id FROM nodes n LEFT JOIN info i ON i.id = n.info_id
		WHERE i.id IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NodeID
	for rows.Next() {
		var id NodeID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) duplicateSiblingNames(ctx context.Context) ([]NodeID, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT e.child FROM edges e
		JOIN nodes n ON n.id = e.child
		WHERE (
			SELECT count(*) FROM edges e2 JOIN nodes n2 ON n2.id = e2.child
			WHERE e2.parent = e.parent AND n2.name = n.name
		) > 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NodeID
	for rows.Next() {
		var id NodeID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) multiParentNodes(ctx context.Context) ([]NodeID, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT child FROM edges GROUP BY child HAVING count(*) > 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NodeID
	for rows.Next() {
		var id NodeID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// unreachableNodes does a plain BFS from each root candidate (there
// should be exactly one) over the edges table, returning the total node
// count and the ids never visited.
func (s *Store) unreachableNodes(ctx context.Context, roots []NodeID) (int, []NodeID, error) {
	all, err := s.allNodeIDs(ctx)
	if err != nil {
		return 0, nil, err
	}

	visited := make(map[NodeID]bool, len(all))
	queue := append([]NodeID{}, roots...)
	for _, r := range roots {
		visited[r] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		kids, err := s.children(ctx, cur)
		if err != nil {
			return 0, nil, err
		}
		for _, k := range kids {
			if !visited[k.id] {
				visited[k.id] = true
				queue = append(queue, k.id)
			}
		}
	}

	var unreached []NodeID
	for _, id := range all {
		if !visited[id] {
			unreached = append(unreached, id)
		}
	}
	return len(all), unreached, nil
}

func (s *Store) allNodeIDs(ctx context.Context) ([]NodeID, error) {
	rows, err := s.reader().QueryContext(ctx, `SELECT id FROM nodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NodeID
	for rows.Next() {
		var id NodeID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
