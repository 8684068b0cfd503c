package version

import "slices"

// Node is a version with its children, as rendered in a history tree.
type Node struct {
	Version
	Children []*Node `json:"children"`
}

// BuildTree arranges a task's versions into a forest. Nodes are indexed by
// id and attached to their parent's child list in one pass; a node whose
// parent is absent, unknown or itself becomes a root. Nodes caught in a
// parent cycle are unreachable from any root, so each cycle is cut by
// promoting its first member in input order to a root. Children keep the
// input order.
func BuildTree(versions []*Version) []*Node {
	nodes := make([]*Node, len(versions))
	index := make(map[string]int, len(versions))
	for i, v := range versions {
		nodes[i] = &Node{Version: *v, Children: []*Node{}}
		if _, dup := index[v.ID]; !dup {
			index[v.ID] = i
		}
	}

	parent := make([]int, len(nodes))
	roots := []*Node{}
	for i, n := range nodes {
		parent[i] = -1
		if n.ParentID != nil && *n.ParentID != n.ID {
			if p, ok := index[*n.ParentID]; ok {
				parent[i] = p
				nodes[p].Children = append(nodes[p].Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}

	reached := make(map[*Node]bool, len(nodes))
	var mark func(n *Node)
	mark = func(n *Node) {
		if reached[n] {
			return
		}
		reached[n] = true
		for _, c := range n.Children {
			mark(c)
		}
	}
	for _, r := range roots {
		mark(r)
	}

	for i, n := range nodes {
		if reached[n] {
			continue
		}
		p := nodes[parent[i]]
		p.Children = slices.DeleteFunc(p.Children, func(c *Node) bool { return c == n })
		roots = append(roots, n)
		mark(n)
	}
	return roots
}
