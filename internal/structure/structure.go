// Package structure exposes a read-only, visibility-filtered view of the
// course block hierarchy. Views are produced by a provider and shared
// across callers; nothing in this package mutates a view after build.
package structure

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownBlock indicates a lookup for a block id absent from the view.
var ErrUnknownBlock = errors.New("unknown block")

// ErrCyclicStructure indicates the supplied block graph contains a cycle.
var ErrCyclicStructure = errors.New("course structure contains a cycle")

// ErrMissingRoot indicates no course root block was supplied.
var ErrMissingRoot = errors.New("course structure has no root block")

// BlockID identifies a block within a course. IDs are opaque, comparable
// and usable as map keys.
type BlockID string

// CourseID identifies a course run.
type CourseID string

// String returns the raw identifier.
func (b BlockID) String() string { return string(b) }

// String returns the raw identifier.
func (c CourseID) String() string { return string(c) }

// Block categories recognised by the gating and grading engines.
const (
	CategoryCourse     = "course"
	CategoryChapter    = "chapter"
	CategorySequential = "sequential"
	CategoryVertical   = "vertical"
	CategoryProblem    = "problem"
	CategoryHTML       = "html"
)

// ScorableCategories lists the leaf categories the score reader resolves.
var ScorableCategories = map[string]bool{
	CategoryProblem: true,
}

// BlockNode is a single node in the course hierarchy. Children are ordered
// in authoring order; the same child may legitimately appear under more
// than one parent, so the overall shape is a DAG rather than a tree.
type BlockNode struct {
	ID                 BlockID
	Category           string
	DisplayName        string
	Children           []BlockID
	Graded             bool
	Format             string
	Weight             *float64
	MaxScore           float64
	Due                *time.Time
	VisibleToStaffOnly bool
	StartAt            *time.Time
}

// Scorable reports whether the node's category carries a problem score.
func (n BlockNode) Scorable() bool {
	return ScorableCategories[n.Category]
}

// View is an immutable snapshot of the visible blocks for one
// (course, access-filter) pair. It may be shared read-only across users.
type View struct {
	course CourseID
	root   BlockID
	nodes  map[BlockID]BlockNode
}

// NewView assembles a view from the given nodes. The node whose category
// is "course" becomes the root. The block graph is checked for cycles.
func NewView(course CourseID, nodes []BlockNode) (*View, error) {
	byID := make(map[BlockID]BlockNode, len(nodes))
	var root BlockID
	for _, node := range nodes {
		byID[node.ID] = node
		if node.Category == CategoryCourse {
			root = node.ID
		}
	}
	if root == "" {
		return nil, ErrMissingRoot
	}

	view := &View{course: course, root: root, nodes: byID}
	if err := view.checkAcyclic(); err != nil {
		return nil, err
	}
	return view, nil
}

// Course returns the course this view belongs to.
func (v *View) Course() CourseID { return v.course }

// Root returns the course root block id.
func (v *View) Root() BlockID { return v.root }

// Len returns the number of visible blocks.
func (v *View) Len() int { return len(v.nodes) }

// Get resolves a block node or fails with ErrUnknownBlock.
func (v *View) Get(id BlockID) (BlockNode, error) {
	node, ok := v.nodes[id]
	if !ok {
		return BlockNode{}, fmt.Errorf("%w: %s", ErrUnknownBlock, id)
	}
	return node, nil
}

// Has reports whether the block is present in the view.
func (v *View) Has(id BlockID) bool {
	_, ok := v.nodes[id]
	return ok
}

// ChildrenOf returns the ordered children of a block. Children absent
// from the view (filtered out) are skipped; duplicates are preserved.
func (v *View) ChildrenOf(id BlockID) []BlockID {
	node, ok := v.nodes[id]
	if !ok {
		return nil
	}
	children := make([]BlockID, 0, len(node.Children))
	for _, child := range node.Children {
		if _, present := v.nodes[child]; present {
			children = append(children, child)
		}
	}
	return children
}

// Descendants returns every block reachable beneath the given block in
// first-visit pre-order. A block reachable through multiple parents is
// reported once; order follows the first authoring path that reaches it.
func (v *View) Descendants(id BlockID) []BlockID {
	if _, ok := v.nodes[id]; !ok {
		return nil
	}

	seen := map[BlockID]bool{id: true}
	var out []BlockID
	stack := [][]BlockID{v.ChildrenOf(id)}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if len(top) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}
		next := top[0]
		stack[len(stack)-1] = top[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		out = append(out, next)
		stack = append(stack, v.ChildrenOf(next))
	}
	return out
}

// DescendantsByCategory filters Descendants to one category.
func (v *View) DescendantsByCategory(id BlockID, category string) []BlockID {
	var out []BlockID
	for _, desc := range v.Descendants(id) {
		if node, ok := v.nodes[desc]; ok && node.Category == category {
			out = append(out, desc)
		}
	}
	return out
}

// Subsections returns the graded unit blocks of the course in authoring
// order: the sequentials beneath each chapter beneath the root.
func (v *View) Subsections() []BlockID {
	var out []BlockID
	seen := map[BlockID]bool{}
	for _, chapter := range v.ChildrenOf(v.root) {
		node, ok := v.nodes[chapter]
		if !ok || node.Category != CategoryChapter {
			continue
		}
		for _, sub := range v.ChildrenOf(chapter) {
			child, ok := v.nodes[sub]
			if !ok || child.Category != CategorySequential || seen[sub] {
				continue
			}
			seen[sub] = true
			out = append(out, sub)
		}
	}
	return out
}

// SubsectionOf returns the subsection that contains the given block. A
// subsection contains itself. The second return is false when the block
// sits outside every subsection.
func (v *View) SubsectionOf(id BlockID) (BlockID, bool) {
	for _, sub := range v.Subsections() {
		if sub == id {
			return sub, true
		}
		for _, descendant := range v.Descendants(sub) {
			if descendant == id {
				return sub, true
			}
		}
	}
	return "", false
}

// Chapters returns the chapter blocks directly beneath the root.
func (v *View) Chapters() []BlockID {
	var out []BlockID
	for _, id := range v.ChildrenOf(v.root) {
		if node, ok := v.nodes[id]; ok && node.Category == CategoryChapter {
			out = append(out, id)
		}
	}
	return out
}

func (v *View) checkAcyclic() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[BlockID]int, len(v.nodes))

	var visit func(id BlockID) error
	visit = func(id BlockID) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("%w: via %s", ErrCyclicStructure, id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, child := range v.ChildrenOf(id) {
			if err := visit(child); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for id := range v.nodes {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
