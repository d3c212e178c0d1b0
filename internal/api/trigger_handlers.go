package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/pkg/httputil"
	"github.com/ignite/studio-automation/internal/triggers"
)

var validate = validator.New()

type registrationRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type attendanceRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Count  int    `json:"count" validate:"gt=0"`
}

// decodeValid decodes the body into dst and runs struct validation. It
// writes the error response itself and reports whether the handler
// should continue.
func decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !httputil.Decode(w, r, dst) {
		return false
	}
	if err := validate.Struct(dst); err != nil {
		httputil.Unprocessable(w, "invalid request", err.Error())
		return false
	}
	return true
}

// TriggerRegistration enrolls a newly registered user.
//
//	POST /api/triggers/registration {"user_id": "..."}
func (h *Handlers) TriggerRegistration(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if !decodeValid(w, r, &req) {
		return
	}
	res, err := h.deps.Triggers.OnRegistration(r.Context(), req.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// TriggerClassCompleted enrolls an attendee into post-class campaigns.
//
//	POST /api/triggers/class-completed
func (h *Handlers) TriggerClassCompleted(w http.ResponseWriter, r *http.Request) {
	var req triggers.ClassCompletion
	if !decodeValid(w, r, &req) {
		return
	}
	res, err := h.deps.Triggers.OnClassCompleted(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// TriggerAttendance reports a new attendance count for milestone campaigns.
//
//	POST /api/triggers/attendance {"user_id": "...", "count": 25}
func (h *Handlers) TriggerAttendance(w http.ResponseWriter, r *http.Request) {
	var req attendanceRequest
	if !decodeValid(w, r, &req) {
		return
	}
	res, err := h.deps.Triggers.OnAttendanceRecorded(r.Context(), req.UserID, req.Count)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// TriggerScan runs one periodic scan immediately.
//
//	POST /api/triggers/scan/{kind}
func (h *Handlers) TriggerScan(w http.ResponseWriter, r *http.Request) {
	kind := domain.TriggerKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		httputil.NotFound(w, "unknown trigger kind")
		return
	}
	res, err := h.deps.Triggers.Scan(r.Context(), kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}
