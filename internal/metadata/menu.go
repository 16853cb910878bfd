// Package metadata serves the console shell's navigation: the menu tree and
// the breadcrumb trail for a location.
package metadata

import (
	"slices"
	"strings"

	"github.com/13879107157/wyclient/model"
)

// HomeTitle and HomePath form the first breadcrumb of every trail.
const (
	HomeTitle = "Home"
	HomePath  = "/"
)

// MenuProvider serves a fixed menu tree.
type MenuProvider struct {
	tree []model.MenuNode
}

// NewMenuProvider creates a provider over tree. The tree is copied.
func NewMenuProvider(tree []model.MenuNode) *MenuProvider {
	return &MenuProvider{tree: cloneTree(tree)}
}

// Menu returns a copy of the tree.
func (p *MenuProvider) Menu() []model.MenuNode {
	return cloneTree(p.tree)
}

// Breadcrumbs returns the trail for urlPath within the provider's tree.
func (p *MenuProvider) Breadcrumbs(urlPath string) []model.Breadcrumb {
	return Breadcrumbs(p.tree, urlPath)
}

// Routes returns every navigable path in menu order.
func (p *MenuProvider) Routes() []string {
	leaves := model.Leaves(p.tree)
	out := make([]string, len(leaves))
	for i, n := range leaves {
		out[i] = n.Path
	}
	return out
}

// Breadcrumbs builds the trail for urlPath: Home first, then for each
// cumulative prefix of the path ("/a", "/a/b", ...) the menu chain leading to
// it. A label already in the trail is not repeated.
func Breadcrumbs(tree []model.MenuNode, urlPath string) []model.Breadcrumb {
	crumbs := []model.Breadcrumb{{Title: HomeTitle, Path: HomePath}}
	prefix := ""
	for _, seg := range strings.Split(urlPath, "/") {
		if seg == "" {
			continue
		}
		prefix += "/" + seg
		for _, node := range model.FindPath(tree, prefix) {
			seen := slices.ContainsFunc(crumbs, func(b model.Breadcrumb) bool {
				return b.Title == node.Label
			})
			if !seen {
				crumbs = append(crumbs, model.Breadcrumb{Title: node.Label, Path: node.Path})
			}
		}
	}
	return crumbs
}

func cloneTree(tree []model.MenuNode) []model.MenuNode {
	if tree == nil {
		return nil
	}
	out := make([]model.MenuNode, len(tree))
	for i, n := range tree {
		out[i] = n
		out[i].Children = cloneTree(n.Children)
	}
	return out
}
