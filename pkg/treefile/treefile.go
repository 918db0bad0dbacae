// Package treefile models the JSON tree export of the concept graph and
// the inspector operations over it: print, flatten, find, leaves, type
// counts, structural validation, and node moves.
package treefile

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Node is one tree node. ParentID, when set, must match the actual parent
// in the structure; Validate checks this.
type Node struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type,omitempty"`
	ParentID *int64   `json:"parentId,omitempty"`
	Phrases  []string `json:"phrases,omitempty"`
	Children []*Node  `json:"children,omitempty"`
}

// Export is the top-level tree file shape.
type Export struct {
	ExportedAt time.Time `json:"exportedAt"`
	Roots      []*Node   `json:"roots"`
}

// Load reads an export from a file.
func Load(path string) (*Export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree file: %w", err)
	}
	var e Export
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to parse tree file: %w", err)
	}
	if e.Roots == nil {
		return nil, fmt.Errorf("tree file has no top-level roots list")
	}
	return &e, nil
}

// Save writes an export to a file, indented.
func (e *Export) Save(path string) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tree: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write tree file: %w", err)
	}
	return nil
}

// Walk visits every node depth first. visit receives the node, its parent
// (nil for roots), and the name path down to and including the node.
func (e *Export) Walk(visit func(n, parent *Node, path []string)) {
	for _, r := range e.Roots {
		walk(r, nil, nil, visit)
	}
}

func walk(n, parent *Node, path []string, visit func(n, parent *Node, path []string)) {
	current := append(append([]string{}, path...), n.Name)
	visit(n, parent, current)
	for _, child := range n.Children {
		walk(child, n, current, visit)
	}
}

// Print renders the tree with two-space indentation per depth.
func (e *Export) Print(w io.Writer) {
	for _, r := range e.Roots {
		printNode(w, r, 0)
	}
}

func printNode(w io.Writer, n *Node, depth int) {
	typeStr := ""
	if n.Type != "" {
		typeStr = fmt.Sprintf(" (%s)", n.Type)
	}
	fmt.Fprintf(w, "%s- %s [id=%d]%s\n", strings.Repeat("  ", depth), n.Name, n.ID, typeStr)
	for _, child := range n.Children {
		printNode(w, child, depth+1)
	}
}

// FlatRow is one flattened node.
type FlatRow struct {
	ID       int64
	Name     string
	Type     string
	ParentID *int64
	Path     string
}

// Flatten lists every node as a row with its full name path.
func (e *Export) Flatten() []FlatRow {
	var rows []FlatRow
	e.Walk(func(n, parent *Node, path []string) {
		row := FlatRow{
			ID:   n.ID,
			Name: n.Name,
			Type: n.Type,
			Path: joinPath(path),
		}
		if parent != nil {
			id := parent.ID
			row.ParentID = &id
		}
		rows = append(rows, row)
	})
	return rows
}

// WriteCSV writes flattened rows with a header.
func WriteCSV(rows []FlatRow, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "name", "type", "parent_id", "path"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range rows {
		parentID := ""
		if r.ParentID != nil {
			parentID = strconv.FormatInt(*r.ParentID, 10)
		}
		record := []string{strconv.FormatInt(r.ID, 10), r.Name, r.Type, parentID, r.Path}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FindByID returns the first node with the given id, or nil.
func (e *Export) FindByID(id int64) *Node {
	var found *Node
	e.Walk(func(n, parent *Node, path []string) {
		if found == nil && n.ID == id {
			found = n
		}
	})
	return found
}

// Match is a found node with its parent and name path.
type Match struct {
	Node   *Node
	Parent *Node
	Path   string
}

// FindByName returns every node whose name contains needle, case
// insensitively.
func (e *Export) FindByName(needle string) []Match {
	needle = strings.ToLower(needle)
	var matches []Match
	e.Walk(func(n, parent *Node, path []string) {
		if strings.Contains(strings.ToLower(n.Name), needle) {
			matches = append(matches, Match{Node: n, Parent: parent, Path: joinPath(path)})
		}
	})
	return matches
}

// Leaves returns every node without children, with its name path.
func (e *Export) Leaves() []Match {
	var out []Match
	e.Walk(func(n, parent *Node, path []string) {
		if len(n.Children) == 0 {
			out = append(out, Match{Node: n, Parent: parent, Path: joinPath(path)})
		}
	})
	return out
}

// CountTypes tallies nodes by their type value; untyped nodes count under
// "<missing>".
func (e *Export) CountTypes() map[string]int {
	counts := map[string]int{}
	e.Walk(func(n, parent *Node, path []string) {
		t := n.Type
		if t == "" {
			t = "<missing>"
		}
		counts[t]++
	})
	return counts
}

// Validate checks id uniqueness and, where ParentID is set, that it
// matches the node's actual position. Returns one message per problem.
func (e *Export) Validate() []string {
	var problems []string
	seen := map[int64]bool{}

	e.Walk(func(n, parent *Node, path []string) {
		p := joinPath(path)
		if seen[n.ID] {
			problems = append(problems, fmt.Sprintf("duplicate id=%d at path: %s", n.ID, p))
		}
		seen[n.ID] = true

		if n.ParentID != nil {
			var expected *int64
			if parent != nil {
				expected = &parent.ID
			}
			switch {
			case expected == nil:
				problems = append(problems, fmt.Sprintf(
					"parentId mismatch at id=%d (%s): recorded %d, node is a root", n.ID, p, *n.ParentID))
			case *n.ParentID != *expected:
				problems = append(problems, fmt.Sprintf(
					"parentId mismatch at id=%d (%s): recorded %d, actual %d", n.ID, p, *n.ParentID, *expected))
			}
		}
	})

	return problems
}

// Move re-parents a node. newParentID nil moves it to the roots. Moving a
// node under its own subtree is rejected.
func (e *Export) Move(nodeID int64, newParentID *int64) error {
	node := e.FindByID(nodeID)
	if node == nil {
		return fmt.Errorf("node id=%d not found", nodeID)
	}

	if newParentID != nil {
		if e.FindByID(*newParentID) == nil {
			return fmt.Errorf("new parent id=%d not found", *newParentID)
		}
		if containsID(node, *newParentID) {
			return fmt.Errorf("invalid move: new parent is inside the node's subtree")
		}
	}

	detached := e.detach(nodeID)
	if detached == nil {
		return fmt.Errorf("failed to detach node id=%d", nodeID)
	}

	if newParentID == nil {
		detached.ParentID = nil
		e.Roots = append(e.Roots, detached)
		return nil
	}

	parent := e.FindByID(*newParentID)
	parent.Children = append(parent.Children, detached)
	id := *newParentID
	detached.ParentID = &id
	return nil
}

// detach removes the node from its parent's children, or from the roots.
func (e *Export) detach(nodeID int64) *Node {
	for i, r := range e.Roots {
		if r.ID == nodeID {
			e.Roots = append(e.Roots[:i], e.Roots[i+1:]...)
			return r
		}
	}

	var detached *Node
	e.Walk(func(n, parent *Node, path []string) {
		if detached != nil {
			return
		}
		for i, child := range n.Children {
			if child.ID == nodeID {
				n.Children = append(n.Children[:i], n.Children[i+1:]...)
				detached = child
				return
			}
		}
	})
	return detached
}

func containsID(n *Node, id int64) bool {
	if n.ID == id {
		return true
	}
	for _, child := range n.Children {
		if containsID(child, id) {
			return true
		}
	}
	return false
}

func joinPath(parts []string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " > ")
}
