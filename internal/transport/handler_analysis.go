package transport

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/13879107157/wyclient/internal/analysis"
	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/model"
)

// UploadField is the multipart field holding the spreadsheet.
const UploadField = "file"

func workspace(reg *analysis.Registry, r *http.Request) *analysis.Workspace {
	return reg.Workspace(model.MustRequestContext(r.Context()).SessionID)
}

func info(msg string) *model.Notice {
	return &model.Notice{Level: model.NoticeInfo, Message: msg}
}

func success(msg string) *model.Notice {
	return &model.Notice{Level: model.NoticeSuccess, Message: msg}
}

// splitList reads a list form value sent either repeated or comma-joined.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// handleUpload selects the posted file (when one is sent) and uploads it
// with the given dimensions.
func handleUpload(reg *analysis.Registry, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws := workspace(reg, r)
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteError(w, r, model.NewBadRequestError("文件过大"))
				return
			}
			WriteError(w, r, model.NewBadRequestError(analysis.MsgNoFile))
			return
		}

		file, header, err := r.FormFile(UploadField)
		switch {
		case err == nil:
			data, readErr := io.ReadAll(file)
			file.Close()
			if readErr != nil {
				WriteError(w, r, model.NewBadRequestError(analysis.MsgUploadFailed))
				return
			}
			ws.SelectFile(header.Filename, data)
		case !errors.Is(err, http.ErrMissingFile):
			WriteError(w, r, model.NewBadRequestError(analysis.MsgNoFile))
			return
		}
		if col, ok := r.MultipartForm.Value["urlColumn"]; ok && len(col) > 0 {
			ws.SetURLColumn(strings.TrimSpace(col[0]))
		}

		snap, err := ws.Upload(r.Context(), splitList(r.MultipartForm.Value["dimensions"]))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteData(w, http.StatusOK, snap, nil)
	}
}

func handleSnapshot(reg *analysis.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteData(w, http.StatusOK, workspace(reg, r).Snapshot(), nil)
	}
}

func handleClearFile(reg *analysis.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteData(w, http.StatusOK, workspace(reg, r).ClearFile(), success(analysis.MsgCleared))
	}
}

func handleResetQuery(reg *analysis.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteData(w, http.StatusOK, workspace(reg, r).ResetQuery(), success(analysis.MsgReset))
	}
}

func handleSetFilters(reg *analysis.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u analysis.FilterUpdate
		if err := render.DecodeJSON(r.Body, &u); err != nil {
			WriteError(w, r, model.NewBadRequestError("Invalid JSON request body"))
			return
		}
		WriteData(w, http.StatusOK, workspace(reg, r).SetFilters(u), nil)
	}
}

func handleDimensionQuery(reg *analysis.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := workspace(reg, r).DimensionQuery(r.Context())
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteData(w, http.StatusOK, snap, nil)
	}
}

// handleStatistics answers an empty drill-down with an info notice rather
// than an error.
func handleStatistics(reg *analysis.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		summary, err := workspace(reg, r).Statistics(q.Get("group"), q.Get("platform"))
		if errors.Is(err, analysis.ErrNoStatistics) {
			WriteData(w, http.StatusOK, []analysis.DimensionSummary{}, info(err.Error()))
			return
		}
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteData(w, http.StatusOK, summary, nil)
	}
}

func handleRows(reg *analysis.Registry, cfg config.AnalysisConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, err := workspace(reg, r).Rows(q.Get("group"), q.Get("platform"),
			queryInt(r, "page", 1), queryInt(r, "page_size", cfg.PageSize))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteData(w, http.StatusOK, page, nil)
	}
}

// handleExport streams the filtered view as an xlsx download.
func handleExport(reg *analysis.Registry, cfg config.AnalysisConfig) http.HandlerFunc {
	name := cfg.ExportName
	if name == "" {
		name = analysis.ExportName
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := workspace(reg, r).Export()
		if err != nil {
			WriteError(w, r, err)
			return
		}
		var buf bytes.Buffer
		if err := analysis.WriteWorkbook(&buf, rows); err != nil {
			observability.LoggerFrom(r.Context(), nil).Error("writing export workbook", zap.Error(err))
			WriteError(w, r, model.NewInternalError())
			return
		}
		w.Header().Set("Content-Type", analysis.XLSXType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}
