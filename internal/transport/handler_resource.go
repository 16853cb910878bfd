package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/13879107157/wyclient/internal/resource"
	"github.com/13879107157/wyclient/model"
)

// mountResource registers list, create, get, update and delete for one
// resource on r. list may replace the plain list handler.
func mountResource[T resource.Item, In any](r chi.Router, svc *resource.Service[T, In], list http.HandlerFunc) {
	if list == nil {
		list = handleList(svc)
	}
	r.Get("/", list)
	r.Post("/", handleCreate(svc))
	r.Get("/{id}", handleGet(svc))
	r.Put("/{id}", handleUpdate(svc))
	r.Delete("/{id}", handleDelete(svc))
}

func listQuery(r *http.Request) resource.Query {
	return resource.Query{
		Search:   r.URL.Query().Get("q"),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", resource.DefaultPageSize),
	}
}

// pathID parses the {id} URL parameter. Anything unparsable is 0, which the
// services reject as an invalid id.
func pathID(r *http.Request) int64 {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func handleList[T resource.Item, In any](svc *resource.Service[T, In]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, r, http.StatusOK, svc.List(r.Context(), listQuery(r)))
	}
}

func handleGet[T resource.Item, In any](svc *resource.Service[T, In]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, r, http.StatusOK, svc.Get(r.Context(), pathID(r)))
	}
}

func handleCreate[T resource.Item, In any](svc *resource.Service[T, In]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in In
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			WriteError(w, r, model.NewBadRequestError("Invalid JSON request body"))
			return
		}
		writeResult(w, r, http.StatusCreated, svc.Create(r.Context(), in))
	}
}

func handleUpdate[T resource.Item, In any](svc *resource.Service[T, In]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in In
		if err := render.DecodeJSON(r.Body, &in); err != nil {
			WriteError(w, r, model.NewBadRequestError("Invalid JSON request body"))
			return
		}
		writeResult(w, r, http.StatusOK, svc.Update(r.Context(), pathID(r), in))
	}
}

// handleDelete deletes once and answers with the list page the row was
// removed from.
func handleDelete[T resource.Item, In any](svc *resource.Service[T, In]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, r, http.StatusOK, svc.Delete(r.Context(), pathID(r), listQuery(r)))
	}
}

func handlePlatformList(p *resource.Platforms) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, r, http.StatusOK, p.Labeled(r.Context(), listQuery(r)))
	}
}

func handlePlatformsGrouped(p *resource.Platforms) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, r, http.StatusOK, p.Grouped(r.Context(), r.URL.Query().Get("q")))
	}
}
