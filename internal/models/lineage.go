package models

import "time"

// LineageNode - паттерн в дереве ветвлений.
type LineageNode struct {
	ID              string         `json:"id"`
	PatternID       string         `json:"pattern_id,omitempty"`
	PatternRef      string         `json:"pattern_ref,omitempty"`
	SeedID          string         `json:"seed_id,omitempty"`
	ParentPatternID string         `json:"parent_pattern_id,omitempty"`
	BranchPoint     string         `json:"branch_point,omitempty"`
	Generation      int            `json:"generation"`
	BranchCount     int            `json:"branch_count"`
	UserLikes       int            `json:"user_likes"`
	Word            string         `json:"word,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	Children        []*LineageNode `json:"children,omitempty"`
}

// IsRoot is true for seed patterns without a parent.
func (n *LineageNode) IsRoot() bool {
	return n.ParentPatternID == ""
}

// LineageTree - ответ /api/patterns/lineage-tree.
type LineageTree struct {
	Roots         []*LineageNode `json:"roots"`
	TotalBranches int            `json:"total_branches"`
	MaxGeneration int            `json:"max_generation"`
}

// Walk обходит дерево в глубину. fn возвращает false, чтобы не спускаться в детей узла.
func (t LineageTree) Walk(fn func(n *LineageNode, depth int) bool) {
	var visit func(n *LineageNode, depth int)
	visit = func(n *LineageNode, depth int) {
		if n == nil || !fn(n, depth) {
			return
		}
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	for _, r := range t.Roots {
		visit(r, 0)
	}
}

// Find returns the node with the given id, or nil.
func (t LineageTree) Find(id string) *LineageNode {
	var found *LineageNode
	t.Walk(func(n *LineageNode, _ int) bool {
		if found != nil {
			return false
		}
		if n.ID == id || (n.PatternID != "" && n.PatternID == id) {
			found = n
			return false
		}
		return true
	})
	return found
}

// Count - число узлов в дереве.
func (t LineageTree) Count() int {
	n := 0
	t.Walk(func(*LineageNode, int) bool {
		n++
		return true
	})
	return n
}

// PathTo возвращает цепочку id от корня до узла id включительно.
func (t LineageTree) PathTo(id string) []string {
	var path []string
	var visit func(n *LineageNode) bool
	visit = func(n *LineageNode) bool {
		path = append(path, n.ID)
		if n.ID == id {
			return true
		}
		for _, c := range n.Children {
			if visit(c) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	for _, r := range t.Roots {
		if visit(r) {
			return path
		}
	}
	return nil
}
