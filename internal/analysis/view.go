// Package analysis reshapes the match-result tree returned by the Excel
// matching endpoint: filtered views, aggregated statistics, chart series,
// drill-downs and spreadsheet export, held per session in a Workspace.
package analysis

import (
	"slices"

	"github.com/13879107157/wyclient/model"
)

// Group filter values that select every group.
const (
	AllGroups   = "全部"
	AllGroupsEn = "all"
)

// selectsAllGroups reports whether a group filter keeps every group.
func selectsAllGroups(groups []string) bool {
	return len(groups) == 0 || slices.Contains(groups, AllGroups) || slices.Contains(groups, AllGroupsEn)
}

func keepGroup(groups []string, name string) bool {
	return selectsAllGroups(groups) || slices.Contains(groups, name)
}

func keepPlatform(platforms []string, name string) bool {
	return len(platforms) == 0 || slices.Contains(platforms, name)
}

// FilterView returns the groups of result selected by the group filter, each
// with its children narrowed to the platform filter. Groups left without
// children are dropped. The returned nodes are new; result is not modified.
func FilterView(result *model.MatchResult, groups, platforms []string) []model.PlatformGroupNode {
	if result == nil {
		return []model.PlatformGroupNode{}
	}
	out := make([]model.PlatformGroupNode, 0, len(result.PlatformStructure))
	for _, g := range result.PlatformStructure {
		if !keepGroup(groups, g.GroupName) {
			continue
		}
		node := g
		node.Children = make([]model.PlatformNode, 0, len(g.Children))
		for _, p := range g.Children {
			if keepPlatform(platforms, p.PlatformName) {
				node.Children = append(node.Children, p)
			}
		}
		if len(node.Children) > 0 {
			out = append(out, node)
		}
	}
	return out
}

// surviving returns every platform of result that passes both filters.
func surviving(result *model.MatchResult, groups, platforms []string) []model.PlatformNode {
	if result == nil {
		return nil
	}
	var out []model.PlatformNode
	for _, g := range result.PlatformStructure {
		if !keepGroup(groups, g.GroupName) {
			continue
		}
		for _, p := range g.Children {
			if keepPlatform(platforms, p.PlatformName) {
				out = append(out, p)
			}
		}
	}
	return out
}

// GroupOptions returns every group name in result, in order.
func GroupOptions(result *model.MatchResult) []string {
	out := []string{}
	if result == nil {
		return out
	}
	for _, g := range result.PlatformStructure {
		if !slices.Contains(out, g.GroupName) {
			out = append(out, g.GroupName)
		}
	}
	return out
}

// PlatformOptions returns the platform names available under the selected
// groups, without duplicates. No selection yields no options.
func PlatformOptions(result *model.MatchResult, groups []string) []string {
	out := []string{}
	if result == nil || len(groups) == 0 {
		return out
	}
	for _, p := range surviving(result, groups, nil) {
		if !slices.Contains(out, p.PlatformName) {
			out = append(out, p.PlatformName)
		}
	}
	return out
}

// withoutRows copies a view with matched rows stripped, for payloads that
// only need the tree and counts.
func withoutRows(view []model.PlatformGroupNode) []model.PlatformGroupNode {
	out := make([]model.PlatformGroupNode, len(view))
	for i, g := range view {
		out[i] = g
		out[i].Children = make([]model.PlatformNode, len(g.Children))
		for j, p := range g.Children {
			p.MatchedData = nil
			out[i].Children[j] = p
		}
	}
	return out
}
