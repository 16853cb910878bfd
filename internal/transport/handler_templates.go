package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/13879107157/wyclient/internal/templates"
	"github.com/13879107157/wyclient/model"
)

type deleteTemplatesRequest struct {
	IDs []string `json:"ids"`
}

func owner(r *http.Request) string {
	return model.MustRequestContext(r.Context()).UserID
}

func handleListTemplates(svc *templates.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, r, http.StatusOK, svc.List(r.Context(), owner(r)))
	}
}

func handleSaveTemplate(svc *templates.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in templates.Input
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			WriteError(w, r, model.NewBadRequestError("Invalid JSON request body"))
			return
		}
		writeResult(w, r, http.StatusCreated, svc.Save(r.Context(), owner(r), in))
	}
}

func handleApplyTemplate(svc *templates.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, r, http.StatusOK, svc.Apply(r.Context(), owner(r), chi.URLParam(r, "id")))
	}
}

// handleDeleteTemplates takes the ids from a JSON body or repeated ?id=
// parameters.
func handleDeleteTemplates(svc *templates.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deleteTemplatesRequest
		if r.ContentLength != 0 {
			if err := render.DecodeJSON(r.Body, &req); err != nil {
				WriteError(w, r, model.NewBadRequestError("Invalid JSON request body"))
				return
			}
		}
		if len(req.IDs) == 0 {
			req.IDs = r.URL.Query()["id"]
		}
		writeResult(w, r, http.StatusOK, svc.Delete(r.Context(), owner(r), req.IDs))
	}
}
