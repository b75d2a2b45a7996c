package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/handoff"
	"article-pipeline/internal/service"
	"article-pipeline/internal/stage"
	"article-pipeline/internal/worker"
)

type apiError struct {
	Message string `json:"message"`
}

type successResp struct {
	Success bool `json:"success"`
}

type healthResp struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Message: msg})
}

// writeServiceErr maps the sentinel errors of the lower layers onto status codes.
func writeServiceErr(w http.ResponseWriter, err error) {
	writeErr(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, entity.ErrUnknownJobType):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, entity.ErrIllegalTransition),
		errors.Is(err, worker.ErrArticleBusy):
		return http.StatusConflict
	case stage.IsPermanent(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, handoff.ErrObjectNotFound):
		return http.StatusFailedDependency
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResp{Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)})
}
