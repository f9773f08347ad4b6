package index

import (
	"context"
	"testing"
)

// buildSample constructs the r0,a1,b1,x2 tree from the merge worked
// example: root -> {a (leaf), b -> {x (leaf)}}.
func buildSample(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	root, err := s.AddNode(ctx, NoNode, "root", dirInfo())
	if err != nil {
		t.Fatalf("AddNode root: %v", err)
	}
	if _, err := s.AddNode(ctx, root, "a", fileInfo(1)); err != nil {
		t.Fatalf("AddNode a: %v", err)
	}
	b, err := s.AddNode(ctx, root, "b", dirInfo())
	if err != nil {
		t.Fatalf("AddNode b: %v", err)
	}
	if _, err := s.AddNode(ctx, b, "x", fileInfo(1)); err != nil {
		t.Fatalf("AddNode x: %v", err)
	}
}

func TestPreOrderMatchesWalkOrder(t *testing.T) {
	s, _ := openTemp(t)
	buildSample(t, s)

	cur, err := s.PreOrder(context.Background(), "")
	if err != nil {
		t.Fatalf("PreOrder: %v", err)
	}

	var names []string
	for {
		n, ok, err := cur.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		names = append(names, n.Name)
	}

	want := []string{"root", "a", "b", "x"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}

func TestPostOrderFromWorkedExample(t *testing.T) {
	s, _ := openTemp(t)
	buildSample(t, s)

	nodes, err := s.PostOrder(context.Background(), "")
	if err != nil {
		t.Fatalf("PostOrder: %v", err)
	}

	var names []string
	for _, n := range nodes {
		names = append(names, n.Name)
	}

	want := []string{"a", "x", "b", "root"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}

func TestPreOrderEmptyStore(t *testing.T) {
	s, _ := openTemp(t)
	cur, err := s.PreOrder(context.Background(), "")
	if err != nil {
		t.Fatalf("PreOrder: %v", err)
	}
	_, ok, err := cur.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ok {
		t.Fatalf("expected no nodes from an empty store")
	}
}

func TestPreOrderRestrictsToBaseSubtree(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	buildSample(t, s)

	cur, err := s.PreOrder(ctx, "b")
	if err != nil {
		t.Fatalf("PreOrder: %v", err)
	}

	var got []Node
	for {
		n, ok, err := cur.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, n)
	}

	wantNames := []string{"b", "x"}
	if len(got) != len(wantNames) {
		t.Fatalf("got %v, want names %v", got, wantNames)
	}
	for i, name := range wantNames {
		if got[i].Name != name {
			t.Fatalf("got %v, want names %v", got, wantNames)
		}
	}
	// Depth stays relative to the true root: "b" is depth 1 under
	// "root", same as a whole-tree PreOrder("") would report.
	if got[0].Depth != 1 || got[1].Depth != 2 {
		t.Fatalf("got depths %d,%d, want 1,2", got[0].Depth, got[1].Depth)
	}
}

func TestPostOrderRestrictsToBaseSubtree(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	buildSample(t, s)

	nodes, err := s.PostOrder(ctx, "b")
	if err != nil {
		t.Fatalf("PostOrder: %v", err)
	}
	var names []string
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	want := []string{"x", "b"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}

func TestPreOrderBaseNotFound(t *testing.T) {
	s, _ := openTemp(t)
	buildSample(t, s)

	cur, err := s.PreOrder(context.Background(), "nope")
	if err != nil {
		t.Fatalf("PreOrder: %v", err)
	}
	_, ok, err := cur.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ok {
		t.Fatalf("expected no nodes for a nonexistent base")
	}
}
