package index

import (
	"context"
	"testing"
)

func TestCheckCleanTreeHasNoViolations(t *testing.T) {
	s, _ := openTemp(t)
	buildSample(t, s)

	report, err := s.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !report.OK() {
		t.Fatalf("unexpected violations: %v", report.Violations)
	}
	if report.Nodes != 4 {
		t.Fatalf("got %d nodes, want 4", report.Nodes)
	}
	if report.RunID == "" {
		t.Fatalf("expected a non-empty run id")
	}
}

func TestCheckDetectsDuplicateSiblingNames(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	root, _ := s.AddNode(ctx, NoNode, "root", dirInfo())
	s.AddNode(ctx, root, "dup", fileInfo(1))
	s.AddNode(ctx, root, "dup", fileInfo(2))

	report, err := s.Check(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.OK() {
		t.Fatalf("expected duplicate-sibling violation")
	}
	found := false
	for _, v := range report.Violations {
		if v.Invariant == "I4-unique-siblings" {
			found = true
		}
	}
	if !found {
		t.Fatalf("violations missing I4-unique-siblings: %+v", report.Violations)
	}
}

func TestCheckDetectsMultiParent(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	root, _ := s.AddNode(ctx, NoNode, "root", dirInfo())
	other, _ := s.AddNode(ctx, NoNode, "other", dirInfo())
	a, _ := s.AddNode(ctx, root, "a", fileInfo(1))

	w, err := s.writer()
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	if _, err := w.ExecContext(ctx, `INSERT INTO edges(parent, child) VALUES(?, ?)`, other, a); err != nil {
		t.Fatalf("forcing multi-parent: %v", err)
	}

	report, err := s.Check(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	found := false
	for _, v := range report.Violations {
		if v.Invariant == "I5-single-parent" && v.NodeID == a {
			found = true
		}
	}
	if !found {
		t.Fatalf("violations missing I5-single-parent for node %d: %+v", a, report.Violations)
	}
}
