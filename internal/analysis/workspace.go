package analysis

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/api"
	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/model"
)

// User-facing messages.
const (
	MsgUploadFailed    = "上传失败，请稍后重试"
	MsgNoFile          = "请选择要上传的文件"
	MsgCleared         = "已清空上传文件和相关数据"
	MsgReset           = "已重置查询条件"
	MsgQueryFailed     = "查询失败，请稍后重试"
	MsgUploadFirst     = "请先上传文件"
	MsgNothingToExport = "请先上传文件并获取数据"
)

// Upload kinds, used as metric labels.
const (
	KindUpload = "upload"
	KindQuery  = "dimension_query"
)

// Matcher posts a spreadsheet to the backend matching endpoint.
type Matcher interface {
	Match(ctx context.Context, req api.MatchRequest) model.Result[*model.MatchResult]
}

// File is a selected spreadsheet.
type File struct {
	Name string
	Data []byte
}

// Filters are the current selections. Nil and empty mean no selection.
type Filters struct {
	Groups     []string `json:"groups"`
	Platforms  []string `json:"platforms"`
	Dimensions []string `json:"dimensions"`
}

// FilterUpdate changes some filters. Nil fields are left as they are.
type FilterUpdate struct {
	Groups     *[]string `json:"groups,omitempty"`
	Platforms  *[]string `json:"platforms,omitempty"`
	Dimensions *[]string `json:"dimensions,omitempty"`
}

// Snapshot is the workspace as the page renders it: the filtered tree
// without matched rows, the select options and the chart.
type Snapshot struct {
	FileName        string                    `json:"file_name,omitempty"`
	HasResult       bool                      `json:"has_result"`
	TotalRows       int                       `json:"total_rows"`
	ExcelColumns    []string                  `json:"excel_columns"`
	Filters         Filters                   `json:"filters"`
	Groups          []model.PlatformGroupNode `json:"groups"`
	GroupOptions    []string                  `json:"group_options"`
	PlatformOptions []string                  `json:"platform_options"`
	Statistics      model.Statistics          `json:"statistics"`
	Chart           *Chart                    `json:"chart"`
	Notes           []string                  `json:"notes,omitempty"`
	Seq             uint64                    `json:"seq"`
}

// Workspace is one session's analysis state. Backend calls run outside the
// lock; their responses are applied in arrival order, so the last response
// to arrive wins.
type Workspace struct {
	matcher Matcher
	logger  *zap.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	file      *File
	urlColumn string
	original  *model.MatchResult
	result    *model.MatchResult
	filters   Filters
	notes     []string
	issued    uint64
	applied   uint64
}

// NewWorkspace creates an empty workspace.
func NewWorkspace(m Matcher, logger *zap.Logger, metrics *observability.Metrics) *Workspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workspace{matcher: m, logger: logger, metrics: metrics}
}

// SelectFile records the file to upload without uploading it.
func (w *Workspace) SelectFile(name string, data []byte) {
	w.mu.Lock()
	w.file = &File{Name: name, Data: data}
	w.mu.Unlock()
}

// SetURLColumn overrides the column holding the URLs to match. Empty uses
// the backend default.
func (w *Workspace) SetURLColumn(col string) {
	w.mu.Lock()
	w.urlColumn = col
	w.mu.Unlock()
}

// Upload posts the selected file with dims as the columns to include. On
// success both results are replaced and every filter is cleared; on failure
// the workspace is left as it was.
func (w *Workspace) Upload(ctx context.Context, dims []string) (Snapshot, error) {
	return w.run(ctx, KindUpload, dims, true)
}

// DimensionQuery re-posts the file with the current dimension filter,
// replacing both results and keeping the filters.
func (w *Workspace) DimensionQuery(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	dims := slices.Clone(w.filters.Dimensions)
	w.mu.Unlock()
	return w.run(ctx, KindQuery, dims, false)
}

func (w *Workspace) run(ctx context.Context, kind string, dims []string, clearFilters bool) (Snapshot, error) {
	missing, failed := MsgNoFile, MsgUploadFailed
	if kind == KindQuery {
		missing, failed = MsgUploadFirst, MsgQueryFailed
	}

	w.mu.Lock()
	if w.file == nil {
		w.mu.Unlock()
		return Snapshot{}, model.NewBadRequestError(missing)
	}
	file := *w.file
	urlColumn := w.urlColumn
	w.issued++
	seq := w.issued
	w.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, "analysis."+kind,
		observability.AttrUploadKind.String(kind),
		observability.AttrUploadSeq.Int64(int64(seq)),
	)
	res := w.matcher.Match(ctx, api.MatchRequest{
		FileName:         file.Name,
		File:             file.Data,
		URLColumn:        urlColumn,
		ColumnsToInclude: dims,
	})
	log := observability.LoggerFrom(ctx, w.logger)
	if !res.OK() {
		observability.EndSpanWithError(span, res.Err)
		w.metrics.RecordUpload(kind, "failure")
		log.Warn("analysis upload failed",
			zap.String("kind", kind),
			zap.Uint64("seq", seq),
			zap.String("code", res.Err.Code),
			zap.String("message", res.Err.Message),
		)
		return Snapshot{}, uploadError(res.Err, failed)
	}
	span.SetAttributes(observability.AttrRowCount.Int(res.Value.TotalRows))
	span.End()
	w.metrics.RecordUpload(kind, "success")

	mismatches := CheckGroupCounts(res.Value)
	for _, m := range mismatches {
		log.Warn("group match count differs from its platforms",
			zap.String("group", m.Group),
			zap.Int("match_count", m.MatchCount),
			zap.Int("children_sum", m.ChildrenSum),
		)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if seq < w.applied {
		w.metrics.RecordStaleResponse()
		log.Warn("applying analysis response older than the current one",
			zap.Uint64("seq", seq),
			zap.Uint64("applied", w.applied),
		)
	}
	w.applied = seq
	w.original = res.Value
	w.result = res.Value
	w.notes = w.notes[:0]
	for _, m := range mismatches {
		w.notes = append(w.notes, m.Note())
	}
	if clearFilters {
		w.filters = Filters{}
	}
	return w.snapshotLocked(), nil
}

// uploadError keeps session expiry as it is so the caller still redirects
// to login; anything else carries the page's failure message.
func uploadError(err *model.ErrorEnvelope, msg string) *model.ErrorEnvelope {
	if err.Code == model.ErrSessionExpired {
		return err
	}
	out := *err
	out.Message = msg
	return &out
}

// ClearFile drops the file, both results and every filter.
func (w *Workspace) ClearFile() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.file = nil
	w.original = nil
	w.result = nil
	w.notes = nil
	w.filters = Filters{}
	return w.snapshotLocked()
}

// ResetQuery restores the displayed result to the baseline and clears every
// filter without calling the backend.
func (w *Workspace) ResetQuery() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.result = w.original
	w.filters = Filters{}
	return w.snapshotLocked()
}

// SetFilters applies an update. Changing the group filter clears the
// platform filter unless the same update sets platforms.
func (w *Workspace) SetFilters(u FilterUpdate) Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	if u.Groups != nil {
		w.filters.Groups = slices.Clone(*u.Groups)
		w.filters.Platforms = nil
	}
	if u.Platforms != nil {
		w.filters.Platforms = slices.Clone(*u.Platforms)
	}
	if u.Dimensions != nil {
		w.filters.Dimensions = slices.Clone(*u.Dimensions)
	}
	return w.snapshotLocked()
}

// SetGroupFilter selects groups and clears the platform filter.
func (w *Workspace) SetGroupFilter(groups []string) Snapshot {
	return w.SetFilters(FilterUpdate{Groups: &groups})
}

// SetPlatformFilter selects platforms.
func (w *Workspace) SetPlatformFilter(platforms []string) Snapshot {
	return w.SetFilters(FilterUpdate{Platforms: &platforms})
}

// SetDimensionFilter selects dimensions.
func (w *Workspace) SetDimensionFilter(dims []string) Snapshot {
	return w.SetFilters(FilterUpdate{Dimensions: &dims})
}

// Snapshot returns the current state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Results returns the displayed result and the baseline.
func (w *Workspace) Results() (result, original *model.MatchResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result, w.original
}

// Filters returns a copy of the current filters.
func (w *Workspace) Filters() Filters {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Filters{
		Groups:     slices.Clone(w.filters.Groups),
		Platforms:  slices.Clone(w.filters.Platforms),
		Dimensions: slices.Clone(w.filters.Dimensions),
	}
}

func (w *Workspace) snapshotLocked() Snapshot {
	f := w.filters
	s := Snapshot{
		ExcelColumns: []string{},
		Filters: Filters{
			Groups:     nonNil(f.Groups),
			Platforms:  nonNil(f.Platforms),
			Dimensions: nonNil(f.Dimensions),
		},
		Groups:          withoutRows(FilterView(w.result, f.Groups, f.Platforms)),
		GroupOptions:    GroupOptions(w.original),
		PlatformOptions: PlatformOptions(w.result, f.Groups),
		Statistics:      CalculateFilteredStatistics(w.original, f.Groups, f.Platforms, f.Dimensions),
		Notes:           slices.Clone(w.notes),
		Seq:             w.applied,
	}
	s.Chart = BuildChart(s.Statistics, f.Dimensions)
	if w.file != nil {
		s.FileName = w.file.Name
	}
	if w.result != nil {
		s.HasResult = true
		s.TotalRows = w.result.TotalRows
		if w.result.ExcelColumns != nil {
			s.ExcelColumns = w.result.ExcelColumns
		}
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

// Statistics returns the drill-down of a group, or of a platform inside it
// when platform is set.
func (w *Workspace) Statistics(group, platform string) ([]DimensionSummary, error) {
	w.mu.Lock()
	result := w.result
	w.mu.Unlock()

	if result == nil {
		return nil, model.NewBadRequestError(MsgUploadFirst)
	}
	var stats model.Statistics
	if platform == "" {
		g, ok := result.FindGroup(group)
		if !ok {
			return nil, model.NewNotFoundError("平台组不存在: " + group)
		}
		stats = g.Statistics
	} else {
		p, ok := result.FindPlatform(group, platform)
		if !ok {
			return nil, model.NewNotFoundError("平台不存在: " + platform)
		}
		stats = p.Statistics
	}
	return SummarizeStatistics(stats)
}

// Rows returns one page of a platform's matched rows.
func (w *Workspace) Rows(group, platform string, page, pageSize int) (RowPage, error) {
	w.mu.Lock()
	result := w.result
	w.mu.Unlock()

	if result == nil {
		return RowPage{}, model.NewBadRequestError(MsgUploadFirst)
	}
	p, ok := result.FindPlatform(group, platform)
	if !ok {
		return RowPage{}, model.NewNotFoundError("平台不存在: " + platform)
	}
	return PageRows(p.MatchedData, result.ExcelColumns, page, pageSize), nil
}

// Export flattens the current filtered view for download.
func (w *Workspace) Export() ([]model.Row, error) {
	w.mu.Lock()
	result := w.result
	f := w.filters
	w.mu.Unlock()

	if result == nil {
		return nil, model.NewBadRequestError(MsgNothingToExport)
	}
	rows := Export(FilterView(result, f.Groups, f.Platforms))
	w.metrics.RecordExport(len(rows))
	return rows, nil
}
