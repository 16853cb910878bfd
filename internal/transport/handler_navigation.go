package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/13879107157/wyclient/internal/lookup"
	"github.com/13879107157/wyclient/internal/metadata"
	"github.com/13879107157/wyclient/model"
)

func handleNavigation(menu *metadata.MenuProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteData(w, http.StatusOK, menu.Menu(), nil)
	}
}

func handleBreadcrumbs(menu *metadata.MenuProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteData(w, http.StatusOK, menu.Breadcrumbs(r.URL.Query().Get("path")), nil)
	}
}

// handleLookup serves the group and type select options.
func handleLookup(p *lookup.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		switch chi.URLParam(r, "lookupId") {
		case "groups", lookup.Groups:
			writeResult(w, r, http.StatusOK, p.GroupOptions(r.Context(), q))
		case "types", lookup.Types:
			writeResult(w, r, http.StatusOK, p.TypeOptions(r.Context(), q))
		default:
			WriteError(w, r, model.NewNotFoundError("unknown lookup"))
		}
	}
}
