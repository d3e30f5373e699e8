package bvh

import (
	"math"
	"sort"

	"github.com/braingenix/brainstream/rt/core"
	"github.com/go-gl/mathgl/mgl64"
)

// Node is one entry of the flattened hierarchy. Leaves have Left and Right
// set to -1 and reference one item through LeafFirst.
type Node struct {
	Box       core.BoundingBox
	Left      int32
	Right     int32
	LeafFirst int32
	LeafCount int32
}

func (n *Node) IsLeaf() bool { return n.Left < 0 && n.Right < 0 }

type item struct {
	box      core.BoundingBox
	centroid mgl64.Vec3
	index    int
}

// Tree is a median-split AABB hierarchy over a fixed set of boxes. Node 0 is
// the root.
type Tree struct {
	Nodes []Node
}

// Build constructs a tree over boxes. Item indices refer to positions in
// boxes. Zero boxes, as reported by unsupported shapes, are skipped.
func Build(boxes []core.BoundingBox) *Tree {
	items := make([]item, 0, len(boxes))
	for i, b := range boxes {
		if b == (core.BoundingBox{}) {
			continue
		}
		items = append(items, item{box: b, centroid: b.Center(), index: i})
	}

	t := &Tree{}
	if len(items) == 0 {
		return t
	}
	t.build(items)
	return t
}

func (t *Tree) build(items []item) int32 {
	idx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{Left: -1, Right: -1, LeafFirst: -1})

	minB := mgl64.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	maxB := mgl64.Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, it := range items {
		for a := 0; a < 3; a++ {
			minB[a] = math.Min(minB[a], it.box.Min[a])
			maxB[a] = math.Max(maxB[a], it.box.Max[a])
		}
	}
	t.Nodes[idx].Box = core.BoundingBox{Min: minB, Max: maxB}

	if len(items) == 1 {
		t.Nodes[idx].LeafFirst = int32(items[0].index)
		t.Nodes[idx].LeafCount = 1
		return idx
	}

	// Split at the median centroid along the longest axis.
	extent := maxB.Sub(minB)
	axis := 0
	if extent.Y() > extent.X() {
		axis = 1
	}
	if extent.Z() > extent[axis] {
		axis = 2
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].centroid[axis] < items[j].centroid[axis]
	})

	mid := len(items) / 2
	left := t.build(items[:mid])
	right := t.build(items[mid:])
	t.Nodes[idx].Left = left
	t.Nodes[idx].Right = right
	return idx
}

// Query returns the indices of every item whose box intersects box, in
// ascending order. Touching boxes count as intersecting.
func (t *Tree) Query(box core.BoundingBox) []int {
	if len(t.Nodes) == 0 {
		return nil
	}
	var out []int
	stack := []int32{0}
	for len(stack) > 0 {
		n := &t.Nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if !n.Box.Intersects(box) {
			continue
		}
		if n.IsLeaf() {
			out = append(out, int(n.LeafFirst))
			continue
		}
		stack = append(stack, n.Left, n.Right)
	}
	sort.Ints(out)
	return out
}
