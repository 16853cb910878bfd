package resource

import (
	"fmt"
	"sort"

	"github.com/13879107157/wyclient/model"
)

// Names resolves group and type ids to display names.
type Names struct {
	Groups map[int64]string
	Types  map[int64]string
}

// NamesFrom indexes the given groups and types by id.
func NamesFrom(groups []model.PlatformGroup, types []model.PlatformType) Names {
	n := Names{Groups: make(map[int64]string, len(groups)), Types: make(map[int64]string, len(types))}
	for _, g := range groups {
		n.Groups[g.ID] = g.Name
	}
	for _, t := range types {
		n.Types[t.ID] = t.Name
	}
	return n
}

// GroupLabel renders "name-[平台组ID:id]", with "-" for an unknown name.
func GroupLabel(name string, id int64) string {
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("%s-[平台组ID:%d]", name, id)
}

// TypeLabel renders "name-[类型ID：id]", with "-" for an unknown name.
func TypeLabel(name string, id int64) string {
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("%s-[类型ID：%d]", name, id)
}

// PlatformRow is a platform with its group and type display labels.
type PlatformRow struct {
	model.Platform
	GroupLabel string `json:"group_label"`
	TypeLabel  string `json:"type_label"`
}

// Label attaches display labels to every platform.
func (n Names) Label(platforms []model.Platform) []PlatformRow {
	out := make([]PlatformRow, len(platforms))
	for i, p := range platforms {
		out[i] = PlatformRow{
			Platform:   p,
			GroupLabel: GroupLabel(n.Groups[p.GroupID], p.GroupID),
			TypeLabel:  TypeLabel(n.Types[p.TypeID], p.TypeID),
		}
	}
	return out
}

// PlatformSection is one expandable group in the grouped platform list.
type PlatformSection struct {
	GroupID   int64         `json:"group_id"`
	GroupName string        `json:"group_name"`
	Label     string        `json:"label"`
	Order     int           `json:"order"`
	Platforms []PlatformRow `json:"platforms"`
}

// GroupPlatforms groups platforms by platform_group_id. Sections follow the
// group order, then group id; platforms inside a section follow their own
// order, then id. Platforms whose group is unknown form sections after the
// known groups. Groups without platforms are left out.
func GroupPlatforms(platforms []model.Platform, groups []model.PlatformGroup, types []model.PlatformType) []PlatformSection {
	names := NamesFrom(groups, types)
	known := make(map[int64]model.PlatformGroup, len(groups))
	for _, g := range groups {
		known[g.ID] = g
	}

	byGroup := make(map[int64][]PlatformRow)
	for _, row := range names.Label(platforms) {
		byGroup[row.GroupID] = append(byGroup[row.GroupID], row)
	}

	sections := make([]PlatformSection, 0, len(byGroup))
	for id, rows := range byGroup {
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].Order != rows[j].Order {
				return rows[i].Order < rows[j].Order
			}
			return rows[i].ID < rows[j].ID
		})
		g := known[id]
		sections = append(sections, PlatformSection{
			GroupID:   id,
			GroupName: g.Name,
			Label:     GroupLabel(g.Name, id),
			Order:     g.Order,
			Platforms: rows,
		})
	}

	sort.Slice(sections, func(i, j int) bool {
		_, ki := known[sections[i].GroupID]
		_, kj := known[sections[j].GroupID]
		if ki != kj {
			return ki
		}
		if sections[i].Order != sections[j].Order {
			return sections[i].Order < sections[j].Order
		}
		return sections[i].GroupID < sections[j].GroupID
	})
	return sections
}
