package bvh

import (
	"testing"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/go-gl/mathgl/mgl64"
)

func box(minX, maxX float64) core.BoundingBox {
	return core.BoundingBox{Min: mgl64.Vec3{minX, -1, -1}, Max: mgl64.Vec3{maxX, 1, 1}}
}

func TestTwoObjectsSplit(t *testing.T) {
	tree := Build([]core.BoundingBox{box(-100, -98), box(100, 102)})

	if len(tree.Nodes) != 3 {
		t.Fatalf("Expected 3 nodes, got %d", len(tree.Nodes))
	}
	root := tree.Nodes[0]
	if root.Box.Min.X() > -100 || root.Box.Max.X() < 100 {
		t.Errorf("Root box should span both objects, got %v", root.Box)
	}
	if root.Left == -1 || root.Right == -1 || root.Left == root.Right {
		t.Fatalf("Root should have two distinct children, got %d and %d", root.Left, root.Right)
	}
	if !tree.Nodes[root.Left].IsLeaf() || !tree.Nodes[root.Right].IsLeaf() {
		t.Error("Children should be leaves")
	}
}

func TestSingleObject(t *testing.T) {
	tree := Build([]core.BoundingBox{box(0, 1)})
	if len(tree.Nodes) != 1 {
		t.Fatalf("Expected 1 node, got %d", len(tree.Nodes))
	}
	n := tree.Nodes[0]
	if !n.IsLeaf() || n.LeafFirst != 0 || n.LeafCount != 1 {
		t.Errorf("Root should be a leaf for object 0, got %+v", n)
	}
}

func TestEmptyTree(t *testing.T) {
	tree := Build(nil)
	if got := tree.Query(box(-10, 10)); len(got) != 0 {
		t.Errorf("Expected no hits, got %v", got)
	}
}

func TestQuery(t *testing.T) {
	boxes := []core.BoundingBox{
		box(0, 10),
		{},
		box(20, 30),
		box(40, 50),
		box(5, 45),
		box(60, 70),
	}
	tree := Build(boxes)

	tests := []struct {
		name  string
		query core.BoundingBox
		want  []int
	}{
		{"touching face", box(30, 35), []int{2, 4}},
		{"gap", box(55, 58), nil},
		{"everything", box(-1000, 1000), []int{0, 2, 3, 4, 5}},
		{"inside one", box(61, 62), []int{5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tree.Query(tt.query)
			if len(got) != len(tt.want) {
				t.Fatalf("Query(%v) = %v, want %v", tt.query, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Query(%v) = %v, want %v", tt.query, got, tt.want)
					break
				}
			}
		})
	}
}
