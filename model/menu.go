package model

// MenuNode is one entry of the console's navigation tree. Leaf nodes carry a
// Path; section nodes usually only group Children.
type MenuNode struct {
	Key      string     `json:"key" yaml:"key"`
	Label    string     `json:"label" yaml:"label"`
	Path     string     `json:"path,omitempty" yaml:"path"`
	Icon     string     `json:"icon,omitempty" yaml:"icon"`
	Children []MenuNode `json:"children,omitempty" yaml:"children"`
}

// FindPath returns the chain of nodes from a root of tree down to the first
// node (depth-first, in order) whose Path equals path. It returns nil when no
// node matches. The returned nodes are copies; tree is not modified.
func FindPath(tree []MenuNode, path string) []MenuNode {
	if path == "" {
		return nil
	}
	for _, node := range tree {
		if node.Path == path {
			return []MenuNode{node}
		}
		if len(node.Children) > 0 {
			if chain := FindPath(node.Children, path); chain != nil {
				return append([]MenuNode{node}, chain...)
			}
		}
	}
	return nil
}

// Leaves returns every node with a Path, in depth-first order.
func Leaves(tree []MenuNode) []MenuNode {
	var out []MenuNode
	for _, node := range tree {
		if node.Path != "" {
			out = append(out, node)
		}
		out = append(out, Leaves(node.Children)...)
	}
	return out
}

// Breadcrumb is one step in the shell's breadcrumb trail.
type Breadcrumb struct {
	Title string `json:"title"`
	Path  string `json:"path"`
}
