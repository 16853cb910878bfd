package analysis

import (
	"errors"
	"sort"

	"github.com/13879107157/wyclient/model"
)

// ErrNoStatistics is returned by SummarizeStatistics when every dimension is
// empty.
var ErrNoStatistics = errors.New("暂无统计数据")

// CalculateFilteredStatistics sums, for each dimension in dims, the
// per-value counts of every platform in original that survives the group and
// platform filters. Empty dims or a nil result give an empty map.
func CalculateFilteredStatistics(original *model.MatchResult, groups, platforms, dims []string) model.Statistics {
	out := model.Statistics{}
	if original == nil || len(dims) == 0 {
		return out
	}
	kept := surviving(original, groups, platforms)
	for _, dim := range dims {
		sums := map[string]int64{}
		for _, p := range kept {
			for value, count := range p.Statistics[dim] {
				sums[value] += count
			}
		}
		out[dim] = sums
	}
	return out
}

// ValueCount is one distinct value of a dimension and its count.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// sortedValues orders a value map by count, highest first, then by value.
func sortedValues(values map[string]int64) []ValueCount {
	out := make([]ValueCount, 0, len(values))
	for v, c := range values {
		out = append(out, ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// DimensionSummary is the drill-down of one dimension: its total and values
// sorted by count.
type DimensionSummary struct {
	Dimension string       `json:"dimension"`
	Total     int64        `json:"total"`
	Values    []ValueCount `json:"values"`
}

// SummarizeStatistics builds the per-dimension drill-down of stats, ordered
// by dimension name.
func SummarizeStatistics(stats model.Statistics) ([]DimensionSummary, error) {
	if stats.Empty() {
		return nil, ErrNoStatistics
	}
	dims := make([]string, 0, len(stats))
	for d := range stats {
		dims = append(dims, d)
	}
	sort.Strings(dims)

	out := make([]DimensionSummary, 0, len(dims))
	for _, d := range dims {
		s := DimensionSummary{Dimension: d, Values: sortedValues(stats[d])}
		for _, vc := range s.Values {
			s.Total += vc.Count
		}
		out = append(out, s)
	}
	return out, nil
}
