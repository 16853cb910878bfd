package api

import (
	"context"
	"strings"

	"github.com/13879107157/wyclient/internal/backend"
	"github.com/13879107157/wyclient/internal/config"
	"github.com/13879107157/wyclient/model"
)

// MatchRequest is one Excel matching call.
type MatchRequest struct {
	FileName         string
	File             []byte
	URLColumn        string
	ColumnsToInclude []string
}

// Matching uploads spreadsheets to the backend matching endpoint.
type Matching struct {
	client           *backend.Client
	path             string
	defaultURLColumn string
}

// NewMatching creates the module from the matching config.
func NewMatching(c *backend.Client, cfg config.MatchingConfig) *Matching {
	path := cfg.Path
	if path == "" {
		path = "/api/excelMatching"
	}
	return &Matching{client: c, path: path, defaultURLColumn: cfg.DefaultURLColumn}
}

// Form builds the multipart payload: file, then urlColumn and the
// comma-joined columnsToInclude when present.
func (m *Matching) Form(req MatchRequest) *backend.Form {
	form := &backend.Form{
		FileField: "file",
		FileName:  req.FileName,
		File:      req.File,
	}
	urlColumn := req.URLColumn
	if urlColumn == "" {
		urlColumn = m.defaultURLColumn
	}
	if urlColumn != "" {
		form.Fields = append(form.Fields, backend.FormField{Name: "urlColumn", Value: urlColumn})
	}
	if len(req.ColumnsToInclude) > 0 {
		form.Fields = append(form.Fields, backend.FormField{
			Name:  "columnsToInclude",
			Value: strings.Join(req.ColumnsToInclude, ","),
		})
	}
	return form
}

// Match uploads the file and returns the parsed match result. A success
// envelope without data is reported as a business error.
func (m *Matching) Match(ctx context.Context, req MatchRequest) model.Result[*model.MatchResult] {
	res := backend.PostMultipart[*model.MatchResult](ctx, m.client, m.path, m.Form(req))
	if res.OK() && res.Value == nil {
		return model.Fail[*model.MatchResult](model.NewBusinessError(""))
	}
	return res
}
