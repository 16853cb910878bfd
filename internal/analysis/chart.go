package analysis

import "github.com/13879107157/wyclient/model"

// TopValues is the number of bars kept per series.
const TopValues = 10

// Series is one bar series: a dimension's top values in count order.
type Series struct {
	Name   string   `json:"name"`
	Labels []string `json:"labels"`
	Data   []int64  `json:"data"`
}

// Chart is a bar chart over a shared category axis. Categories come from the
// first series; later series are laid over them by position.
type Chart struct {
	Categories []string `json:"categories"`
	Series     []Series `json:"series"`
	YMax       int64    `json:"y_max"`
}

// BuildChart renders one series per dimension of dims that stats holds.
// Empty dims give no chart.
func BuildChart(stats model.Statistics, dims []string) *Chart {
	if len(dims) == 0 {
		return nil
	}
	chart := &Chart{Categories: []string{}, Series: []Series{}}
	var maxCount int64
	for _, dim := range dims {
		values, ok := stats[dim]
		if !ok {
			continue
		}
		top := sortedValues(values)
		if len(top) > TopValues {
			top = top[:TopValues]
		}
		s := Series{Name: dim, Labels: make([]string, len(top)), Data: make([]int64, len(top))}
		for i, vc := range top {
			s.Labels[i] = vc.Value
			s.Data[i] = vc.Count
			maxCount = max(maxCount, vc.Count)
		}
		chart.Series = append(chart.Series, s)
	}
	if len(chart.Series) > 0 {
		chart.Categories = chart.Series[0].Labels
	}
	chart.YMax = ceilTenPercent(maxCount)
	return chart
}

// ceilTenPercent returns ceil(n * 1.1) in integer arithmetic.
func ceilTenPercent(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return (n*11 + 9) / 10
}
