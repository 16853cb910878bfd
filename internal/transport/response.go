// Package transport contains the HTTP router, middleware chain, session gate
// and request handlers of the console BFF.
package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/13879107157/wyclient/internal/observability"
	"github.com/13879107157/wyclient/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:         http.StatusBadRequest,
	model.ErrUnauthorized:       http.StatusUnauthorized,
	model.ErrForbidden:          http.StatusForbidden,
	model.ErrNotFound:           http.StatusNotFound,
	model.ErrConflict:           http.StatusConflict,
	model.ErrValidationError:    http.StatusUnprocessableEntity,
	model.ErrInternalError:      http.StatusInternalServerError,
	model.ErrBackendUnavailable: http.StatusBadGateway,
	model.ErrBackendTimeout:     http.StatusGatewayTimeout,
	model.ErrNetworkError:       http.StatusBadGateway,
	model.ErrBusinessError:      http.StatusBadRequest,
	model.ErrSessionExpired:     http.StatusUnauthorized,
	model.ErrResponseTooBig:     http.StatusBadGateway,
}

// StatusFor returns the HTTP status for an error code.
func StatusFor(code string) int {
	if status, ok := statusForCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error   *model.ErrorEnvelope `json:"error"`
	Notices []model.Notice       `json:"notices,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteData writes a success envelope around data.
func WriteData(w http.ResponseWriter, status int, data any, notice *model.Notice) {
	env := model.Envelope{Success: true, Data: data}
	if notice != nil {
		env.Message = notice.Message
		env.Notices = []model.Notice{*notice}
	}
	WriteJSON(w, status, env)
}

// WriteError writes err as an error envelope with the status for its code.
// Errors that are not envelopes become a generic 500. The trace id of the
// request is attached when the envelope has none. A session expiry inside a
// gated request also clears the session cookie.
func WriteError(w http.ResponseWriter, r *http.Request, err error, notices ...model.Notice) {
	ee := *model.AsEnvelope(err)
	if r != nil {
		if ee.TraceID == "" {
			ee.TraceID = observability.TraceIDFromContext(r.Context())
		}
		if g := gateFrom(r.Context()); g != nil && ee.Code == model.ErrSessionExpired {
			g.ClearCookie(w)
		}
	}
	WriteJSON(w, StatusFor(ee.Code), errorResponse{Error: &ee, Notices: notices})
}

// writeResult writes a resource Result: the envelope on success, the error
// (with any error notice) on failure.
func writeResult[T any](w http.ResponseWriter, r *http.Request, status int, res model.Result[T]) {
	if !res.OK() {
		if res.Notice != nil {
			WriteError(w, r, res.Err, *res.Notice)
			return
		}
		WriteError(w, r, res.Err)
		return
	}
	WriteData(w, status, res.Value, res.Notice)
}

// queryInt extracts an integer query param with a default.
func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
