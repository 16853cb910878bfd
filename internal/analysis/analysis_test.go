package analysis

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/13879107157/wyclient/internal/api"
	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/internal/session"
	"github.com/13879107157/wyclient/model"
)

// sample is a two-group result: A holds X and Y, B holds Z.
func sample() *model.MatchResult {
	return &model.MatchResult{
		TotalRows:    100,
		ExcelColumns: []string{"关键字URL", "city"},
		PlatformStructure: []model.PlatformGroupNode{
			{GroupName: "A", Order: 1, MatchCount: 70, Children: []model.PlatformNode{
				{PlatformName: "X", PlatformTypeName: "社交", MatchCount: 60,
					MatchedData: []model.Row{
						model.NewRow("关键字URL", "http://x/1", "city", "北京"),
						model.NewRow("关键字URL", "http://x/2", "city", "上海"),
					},
					Statistics: model.Statistics{"city": {"北京": 40, "上海": 20}}},
				{PlatformName: "Y", PlatformTypeName: "电商", MatchCount: 10,
					Statistics: model.Statistics{"city": {"北京": 5, "广州": 5}}},
			}},
			{GroupName: "B", Order: 2, MatchCount: 3, Children: []model.PlatformNode{
				{PlatformName: "Z", PlatformTypeName: "社交", MatchCount: 3,
					Statistics: model.Statistics{"city": {"上海": 3}, "age": {"20": 3}}},
			}},
		},
	}
}

type fakeMatcher struct {
	mu       sync.Mutex
	requests []api.MatchRequest
	respond  func(n int, req api.MatchRequest) model.Result[*model.MatchResult]
}

func (f *fakeMatcher) Match(_ context.Context, req api.MatchRequest) model.Result[*model.MatchResult] {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()
	return f.respond(n, req)
}

func returning(result *model.MatchResult) *fakeMatcher {
	return &fakeMatcher{respond: func(int, api.MatchRequest) model.Result[*model.MatchResult] {
		return model.Ok(result, nil)
	}}
}

func newTestWorkspace(m Matcher) (*Workspace, *observability.Metrics) {
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	return NewWorkspace(m, nil, metrics), metrics
}

func names(view []model.PlatformGroupNode) []string {
	var out []string
	for _, g := range view {
		for _, p := range g.Children {
			out = append(out, g.GroupName+"/"+p.PlatformName)
		}
	}
	return out
}

func TestFilterView(t *testing.T) {
	result := sample()
	tests := []struct {
		name      string
		groups    []string
		platforms []string
		want      []string
	}{
		{"no filter", nil, nil, []string{"A/X", "A/Y", "B/Z"}},
		{"all keyword", []string{AllGroups}, nil, []string{"A/X", "A/Y", "B/Z"}},
		{"english all", []string{AllGroupsEn}, nil, []string{"A/X", "A/Y", "B/Z"}},
		{"one group", []string{"B"}, nil, []string{"B/Z"}},
		{"platform filter", nil, []string{"Y", "Z"}, []string{"A/Y", "B/Z"}},
		{"group and platform", []string{"A"}, []string{"Z"}, nil},
		{"unknown group", []string{"C"}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := FilterView(result, tt.groups, tt.platforms)
			assert.Equal(t, tt.want, names(view))
		})
	}
}

func TestFilterView_subsetAndUnmodified(t *testing.T) {
	result := sample()
	view := FilterView(result, []string{"A"}, []string{"X"})

	require.Len(t, view, 1)
	assert.Equal(t, "A", view[0].GroupName)
	require.Len(t, view[0].Children, 1)
	assert.Len(t, result.PlatformStructure[0].Children, 2, "source result must be untouched")
}

func TestCalculateFilteredStatistics_sums(t *testing.T) {
	result := sample()

	all := CalculateFilteredStatistics(result, nil, nil, []string{"city"})
	assert.Equal(t, model.Statistics{"city": {"北京": 45, "上海": 23, "广州": 5}}, all)

	onlyA := CalculateFilteredStatistics(result, []string{"A"}, nil, []string{"city", "age"})
	assert.Equal(t, model.Statistics{"city": {"北京": 45, "上海": 20, "广州": 5}, "age": {}}, onlyA)

	assert.Empty(t, CalculateFilteredStatistics(result, nil, nil, nil))
	assert.Empty(t, CalculateFilteredStatistics(nil, nil, nil, []string{"city"}))
}

func TestCalculateFilteredStatistics_sumMatchesPlatforms(t *testing.T) {
	// Sums are worked out by hand from sample(): X city 60, Y city 10, Z city 3 and age 3.
	tests := []struct {
		name      string
		groups    []string
		platforms []string
		dim       string
		want      map[string]int64
		sum       int64
	}{
		{"platforms across groups", nil, []string{"X", "Z"}, "city", map[string]int64{"北京": 40, "上海": 23}, 63},
		{"one group", []string{"A"}, nil, "city", map[string]int64{"北京": 45, "上海": 20, "广州": 5}, 70},
		{"all keyword", []string{"全部"}, []string{"Y"}, "city", map[string]int64{"北京": 5, "广州": 5}, 10},
		{"platform outside group", []string{"B"}, []string{"X"}, "city", nil, 0},
		{"dimension on one platform", nil, nil, "age", map[string]int64{"20": 3}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := CalculateFilteredStatistics(sample(), tt.groups, tt.platforms, []string{tt.dim})

			var got int64
			for _, c := range stats[tt.dim] {
				got += c
			}
			assert.Equal(t, tt.sum, got)
			if tt.want != nil {
				assert.Equal(t, tt.want, map[string]int64(stats[tt.dim]))
			}
		})
	}
}

func TestBuildChart_singleSeries(t *testing.T) {
	result := &model.MatchResult{PlatformStructure: []model.PlatformGroupNode{
		{GroupName: "A", MatchCount: 60, Children: []model.PlatformNode{
			{PlatformName: "X", MatchCount: 60, Statistics: model.Statistics{"city": {"北京": 40, "上海": 20}}},
		}},
	}}
	stats := CalculateFilteredStatistics(result, nil, nil, []string{"city"})

	chart := BuildChart(stats, []string{"city"})

	require.NotNil(t, chart)
	require.Len(t, chart.Series, 1)
	assert.Equal(t, "city", chart.Series[0].Name)
	assert.Equal(t, []string{"北京", "上海"}, chart.Categories)
	assert.Equal(t, []int64{40, 20}, chart.Series[0].Data)
	assert.Equal(t, int64(44), chart.YMax)
}

func TestBuildChart_topValuesAndEmpty(t *testing.T) {
	values := map[string]int64{}
	for i := range 15 {
		values[fmt.Sprintf("v%02d", i)] = int64(i + 1)
	}
	chart := BuildChart(model.Statistics{"d": values}, []string{"d", "missing"})

	require.Len(t, chart.Series, 1)
	assert.Len(t, chart.Series[0].Data, TopValues)
	assert.Equal(t, int64(15), chart.Series[0].Data[0])
	assert.Equal(t, int64(17), chart.YMax)

	assert.Nil(t, BuildChart(model.Statistics{"d": values}, nil))
}

func TestCeilTenPercent(t *testing.T) {
	for n, want := range map[int64]int64{0: 0, 1: 2, 10: 11, 40: 44, 100: 110, 7: 8} {
		assert.Equal(t, want, ceilTenPercent(n), "n=%d", n)
	}
}

func TestSummarizeStatistics(t *testing.T) {
	out, err := SummarizeStatistics(model.Statistics{
		"city": {"北京": 5, "上海": 9, "广州": 5},
		"age":  {"20": 1},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "age", out[0].Dimension)
	assert.Equal(t, int64(19), out[1].Total)
	assert.Equal(t, []ValueCount{{"上海", 9}, {"北京", 5}, {"广州", 5}}, out[1].Values)

	_, err = SummarizeStatistics(model.Statistics{"city": {}})
	assert.ErrorIs(t, err, ErrNoStatistics)
}

func TestOptions(t *testing.T) {
	result := sample()
	assert.Equal(t, []string{"A", "B"}, GroupOptions(result))
	assert.Equal(t, []string{}, PlatformOptions(result, nil))
	assert.Equal(t, []string{"X", "Y"}, PlatformOptions(result, []string{"A"}))
	assert.Equal(t, []string{"X", "Y", "Z"}, PlatformOptions(result, []string{AllGroups}))
}

func TestCheckGroupCounts(t *testing.T) {
	result := sample()
	assert.Empty(t, CheckGroupCounts(result))

	result.PlatformStructure[1].MatchCount = 5
	got := CheckGroupCounts(result)
	require.Len(t, got, 1)
	assert.Equal(t, CountMismatch{Group: "B", MatchCount: 5, ChildrenSum: 3}, got[0])
	assert.Contains(t, got[0].Note(), "B")
}

func TestPageRows(t *testing.T) {
	rows := make([]model.Row, 25)
	for i := range rows {
		rows[i] = model.NewRow("n", i)
	}
	p := PageRows(rows, nil, 3, 10)
	assert.Equal(t, 25, p.Total)
	assert.Len(t, p.Rows, 5)
	assert.Equal(t, []string{}, p.Columns)

	assert.Empty(t, PageRows(rows, nil, 4, 10).Rows)
	assert.Len(t, PageRows(rows, nil, 0, 0).Rows, DefaultRowPageSize)

	huge := PageRows(rows, nil, math.MaxInt, 10)
	assert.Empty(t, huge.Rows)
	assert.Equal(t, math.MaxInt, huge.Page)
	assert.Empty(t, PageRows(rows, nil, math.MaxInt, math.MaxInt).Rows)
	assert.Len(t, PageRows(rows, nil, 1, math.MaxInt).Rows, 25)
}

func TestExport_documentOrder(t *testing.T) {
	rows := Export(FilterView(sample(), []string{"A"}, []string{"X"}))

	require.Len(t, rows, 4)
	assert.Equal(t, []string{ColGroupName, ColOrder, ColMatchCount}, rows[0].Keys)
	assert.Equal(t, []string{ColPlatformName, ColMatchCount, ColPlatformType}, rows[1].Keys)
	assert.Equal(t, "http://x/1", rows[2].Values["关键字URL"])
	assert.Equal(t, "http://x/2", rows[3].Values["关键字URL"])
}

func TestWorkbook_roundTrip(t *testing.T) {
	rows := Export(FilterView(sample(), []string{"A"}, nil))

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, rows))
	back, err := ReadWorkbook(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	require.Len(t, back, len(rows))
	for i, r := range rows {
		want := map[string]any{}
		for _, k := range r.Keys {
			want[k] = fmt.Sprint(r.Values[k])
		}
		assert.Equal(t, want, back[i].Values, "row %d", i)
	}
}

func TestWorkspace_uploadClearsFilters(t *testing.T) {
	m := returning(sample())
	ws, metrics := newTestWorkspace(m)

	_, err := ws.Upload(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, MsgNoFile, model.AsEnvelope(err).Message)

	ws.SelectFile("a.xlsx", []byte("data"))
	ws.SetFilters(FilterUpdate{Groups: &[]string{"A"}, Dimensions: &[]string{"city"}})

	snap, err := ws.Upload(context.Background(), []string{"city"})
	require.NoError(t, err)

	assert.True(t, snap.HasResult)
	assert.Equal(t, "a.xlsx", snap.FileName)
	assert.Empty(t, snap.Filters.Groups)
	assert.Empty(t, snap.Filters.Dimensions)
	assert.Equal(t, []string{"city"}, m.requests[0].ColumnsToInclude)
	assert.Equal(t, []byte("data"), m.requests[0].File)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AnalysisUploadsTotal.WithLabelValues(KindUpload, "success")))

	for _, g := range snap.Groups {
		for _, p := range g.Children {
			assert.Nil(t, p.MatchedData)
		}
	}
}

func TestWorkspace_uploadFailureKeepsState(t *testing.T) {
	calls := 0
	m := &fakeMatcher{respond: func(n int, _ api.MatchRequest) model.Result[*model.MatchResult] {
		calls = n
		if n == 1 {
			return model.Ok(sample(), nil)
		}
		if n == 2 {
			return model.Fail[*model.MatchResult](model.NewNetworkError())
		}
		return model.Fail[*model.MatchResult](model.NewSessionExpiredError())
	}}
	ws, _ := newTestWorkspace(m)
	ws.SelectFile("a.xlsx", nil)
	_, err := ws.Upload(context.Background(), nil)
	require.NoError(t, err)
	before, _ := ws.Results()

	_, err = ws.Upload(context.Background(), nil)
	require.Error(t, err)
	env := model.AsEnvelope(err)
	assert.Equal(t, model.ErrNetworkError, env.Code)
	assert.Equal(t, MsgUploadFailed, env.Message)
	after, _ := ws.Results()
	assert.Same(t, before, after)

	_, err = ws.Upload(context.Background(), nil)
	assert.True(t, model.IsCode(err, model.ErrSessionExpired))
	assert.NotEqual(t, MsgUploadFailed, model.AsEnvelope(err).Message)
	assert.Equal(t, 3, calls)
}

func TestWorkspace_groupChangeClearsPlatforms(t *testing.T) {
	ws, _ := newTestWorkspace(returning(sample()))

	ws.SetFilters(FilterUpdate{Groups: &[]string{"A"}, Platforms: &[]string{"X"}})
	assert.Equal(t, []string{"X"}, ws.Filters().Platforms)

	snap := ws.SetGroupFilter([]string{"B"})
	assert.Empty(t, snap.Filters.Platforms)
	assert.Equal(t, []string{"B"}, snap.Filters.Groups)

	ws.SetPlatformFilter([]string{"Z"})
	ws.SetDimensionFilter([]string{"city"})
	assert.Equal(t, []string{"Z"}, ws.Filters().Platforms)
}

func TestWorkspace_resetRestoresOriginal(t *testing.T) {
	first, second := sample(), sample()
	second.TotalRows = 7
	m := &fakeMatcher{respond: func(n int, _ api.MatchRequest) model.Result[*model.MatchResult] {
		if n == 1 {
			return model.Ok(first, nil)
		}
		return model.Ok(second, nil)
	}}
	ws, _ := newTestWorkspace(m)
	ws.SelectFile("a.xlsx", nil)
	_, err := ws.Upload(context.Background(), nil)
	require.NoError(t, err)

	ws.SetDimensionFilter([]string{"city"})
	snap, err := ws.DimensionQuery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"city"}, snap.Filters.Dimensions, "dimension query keeps filters")
	assert.Equal(t, []string{"city"}, m.requests[1].ColumnsToInclude)

	ws.SetGroupFilter([]string{"A"})
	snap = ws.ResetQuery()
	result, original := ws.Results()
	assert.Same(t, original, result)
	assert.Empty(t, snap.Filters.Groups)
	assert.Empty(t, snap.Filters.Dimensions)
}

func TestWorkspace_clearFile(t *testing.T) {
	ws, _ := newTestWorkspace(returning(sample()))
	ws.SelectFile("a.xlsx", nil)
	_, err := ws.Upload(context.Background(), nil)
	require.NoError(t, err)

	snap := ws.ClearFile()
	assert.False(t, snap.HasResult)
	assert.Empty(t, snap.FileName)

	_, err = ws.DimensionQuery(context.Background())
	assert.Equal(t, MsgUploadFirst, model.AsEnvelope(err).Message)
	_, err = ws.Export()
	assert.Equal(t, MsgNothingToExport, model.AsEnvelope(err).Message)
}

func TestWorkspace_staleResponseLastWins(t *testing.T) {
	slow, fast := sample(), sample()
	slow.TotalRows, fast.TotalRows = 1, 2
	entered := make(chan struct{})
	release := make(chan struct{})
	m := &fakeMatcher{respond: func(n int, _ api.MatchRequest) model.Result[*model.MatchResult] {
		if n == 1 {
			close(entered)
			<-release
			return model.Ok(slow, nil)
		}
		return model.Ok(fast, nil)
	}}
	ws, metrics := newTestWorkspace(m)
	ws.SelectFile("a.xlsx", nil)

	done := make(chan error, 1)
	go func() {
		_, err := ws.Upload(context.Background(), nil)
		done <- err
	}()
	<-entered

	_, err := ws.Upload(context.Background(), nil)
	require.NoError(t, err)
	result, _ := ws.Results()
	assert.Equal(t, 2, result.TotalRows)

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("slow upload did not finish")
	}

	result, _ = ws.Results()
	assert.Equal(t, 1, result.TotalRows, "last response to arrive wins")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AnalysisStaleResponses))
}

func TestWorkspace_countMismatchNotes(t *testing.T) {
	bad := sample()
	bad.PlatformStructure[0].MatchCount = 99
	ws, _ := newTestWorkspace(returning(bad))
	ws.SelectFile("a.xlsx", nil)

	snap, err := ws.Upload(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, snap.Notes, 1)
	assert.Contains(t, snap.Notes[0], "A")
	assert.True(t, snap.HasResult)
}

func TestWorkspace_drillDowns(t *testing.T) {
	ws, metrics := newTestWorkspace(returning(sample()))
	_, err := ws.Statistics("A", "")
	require.Error(t, err)

	ws.SelectFile("a.xlsx", nil)
	_, err = ws.Upload(context.Background(), nil)
	require.NoError(t, err)

	summary, err := ws.Statistics("A", "X")
	require.NoError(t, err)
	assert.Equal(t, int64(60), summary[0].Total)

	_, err = ws.Statistics("A", "")
	assert.ErrorIs(t, err, ErrNoStatistics)

	_, err = ws.Statistics("C", "")
	assert.True(t, model.IsCode(err, model.ErrNotFound))

	page, err := ws.Rows("A", "X", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Rows, 1)
	assert.Equal(t, []string{"关键字URL", "city"}, page.Columns)

	ws.SetGroupFilter([]string{"B"})
	rows, err := ws.Export()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AnalysisExportsTotal))
}

func TestWorkspace_snapshotStatistics(t *testing.T) {
	ws, _ := newTestWorkspace(returning(sample()))
	ws.SelectFile("a.xlsx", nil)
	_, err := ws.Upload(context.Background(), nil)
	require.NoError(t, err)

	ws.SetFilters(FilterUpdate{Groups: &[]string{"B"}, Dimensions: &[]string{"city"}})
	snap := ws.Snapshot()

	assert.Equal(t, model.Statistics{"city": {"上海": 3}}, snap.Statistics)
	require.NotNil(t, snap.Chart)
	assert.Equal(t, []string{"上海"}, snap.Chart.Categories)
	assert.Equal(t, []string{"Z"}, snap.PlatformOptions)
	assert.Equal(t, []string{"A", "B"}, snap.GroupOptions)
}

func TestRegistry(t *testing.T) {
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	r := NewRegistry(returning(sample()), config.AnalysisConfig{IdleTTL: time.Hour}, nil, metrics)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	a := r.Workspace("s1")
	assert.Same(t, a, r.Workspace("s1"))
	r.Workspace("s2")
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.AnalysisWorkspaces))

	r.SessionClosed(context.Background(), &session.Session{ID: "s1"}, session.ReasonLogout)
	assert.Equal(t, 1, r.Len())
	assert.NotSame(t, a, r.Workspace("s1"))

	now = now.Add(90 * time.Minute)
	r.Workspace("s1")
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AnalysisWorkspaces))
}

func TestRegistry_schedule(t *testing.T) {
	r := NewRegistry(returning(sample()), config.AnalysisConfig{}, nil, nil)
	c := cron.New()

	_, err := r.Schedule(c, "@every 1m")
	require.NoError(t, err)
	_, err = r.Schedule(c, "not a spec")
	assert.Error(t, err)
	assert.Equal(t, 0, r.Sweep())
}
