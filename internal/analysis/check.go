package analysis

import (
	"fmt"

	"github.com/13879107157/wyclient/model"
)

// CountMismatch is a group whose matchCount differs from the sum of its
// children's matchCount.
type CountMismatch struct {
	Group       string `json:"group"`
	MatchCount  int    `json:"match_count"`
	ChildrenSum int    `json:"children_sum"`
}

// Note renders the mismatch as an advisory message.
func (m CountMismatch) Note() string {
	return fmt.Sprintf("平台组 %s 的匹配数量 %d 与其平台匹配数量之和 %d 不一致", m.Group, m.MatchCount, m.ChildrenSum)
}

// CheckGroupCounts compares each group's matchCount with the sum of its
// children. Mismatches are advisory; the result is used as returned.
func CheckGroupCounts(result *model.MatchResult) []CountMismatch {
	if result == nil {
		return nil
	}
	var out []CountMismatch
	for _, g := range result.PlatformStructure {
		sum := 0
		for _, p := range g.Children {
			sum += p.MatchCount
		}
		if sum != g.MatchCount {
			out = append(out, CountMismatch{Group: g.GroupName, MatchCount: g.MatchCount, ChildrenSum: sum})
		}
	}
	return out
}
