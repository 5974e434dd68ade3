package mailscheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/interactive-solutions/go-mailscheduler/internal"
	"github.com/pkg/errors"
)

type contextKey string

const actorContextKey contextKey = "mailscheduler.actor"

// WithActor attaches the authenticated actor to a request context. The
// surrounding application's auth middleware is expected to call this
// before the handlers run.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(Actor)

	return actor, ok
}

type HttpHandler struct {
	app *application
}

func (h *HttpHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/schedules", h.CreateSchedule).Methods(http.MethodPost)
	router.HandleFunc("/schedules", h.ListSchedules).Methods(http.MethodGet)
	router.HandleFunc("/schedules/{id}", h.GetSchedule).Methods(http.MethodGet)
	router.HandleFunc("/schedules/{id}", h.CancelSchedule).Methods(http.MethodDelete)
	router.HandleFunc("/templates", h.ListTemplatesForSending).Methods(http.MethodGet)
	router.HandleFunc("/templates/{id}/preview", h.PreviewTemplate).Methods(http.MethodPost)
	router.HandleFunc("/templates/{id}/test-send", h.SendTestEmail).Methods(http.MethodPost)
}

func (h *HttpHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing actor", http.StatusUnauthorized)
		return
	}

	body := &internal.ScheduleEmailRequest{}
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		http.Error(w, "Failed to parse incoming json", http.StatusBadRequest)
		return
	}

	result, err := h.app.SubmitSchedule(r.Context(), SubmitScheduleRequest{
		TemplateId:      body.TemplateId,
		RecipientEmails: body.RecipientEmails,
		Variables:       body.Variables,
		Spec: ScheduleSpec{
			Type:           ScheduleType(body.Schedule.Type),
			Date:           body.Schedule.Date,
			FromDate:       body.Schedule.FromDate,
			ToDate:         body.Schedule.ToDate,
			Dates:          body.Schedule.Dates,
			Times:          body.Schedule.Times,
			TimeZoneOffset: body.Schedule.TimeZoneOffset,
		},
	}, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJson(w, http.StatusCreated, result)
}

func (h *HttpHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing actor", http.StatusUnauthorized)
		return
	}

	filter := ListSchedulesFilter{
		Status: ScheduleStatus(r.URL.Query().Get("status")),
	}

	if raw := r.URL.Query().Get("organizationId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid organizationId", http.StatusBadRequest)
			return
		}

		filter.OrganizationId = &id
	}

	schedules, err := h.app.ListSchedules(r.Context(), actor, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	payload := struct {
		Data []Schedule `json:"data"`
	}{schedules}

	h.writeJson(w, http.StatusOK, payload)
}

func (h *HttpHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing actor", http.StatusUnauthorized)
		return
	}

	id, ok := h.pathId(w, r)
	if !ok {
		return
	}

	schedule, err := h.app.GetSchedule(r.Context(), id, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJson(w, http.StatusOK, schedule)
}

func (h *HttpHandler) CancelSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing actor", http.StatusUnauthorized)
		return
	}

	id, ok := h.pathId(w, r)
	if !ok {
		return
	}

	schedule, err := h.app.CancelSchedule(r.Context(), id, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJson(w, http.StatusOK, schedule)
}

func (h *HttpHandler) ListTemplatesForSending(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing actor", http.StatusUnauthorized)
		return
	}

	templates, err := h.app.templateRepo.ListForSending(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	payload := struct {
		Data []Template `json:"data"`
	}{templates}

	h.writeJson(w, http.StatusOK, payload)
}

func (h *HttpHandler) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing actor", http.StatusUnauthorized)
		return
	}

	id, ok := h.pathId(w, r)
	if !ok {
		return
	}

	body := &internal.PreviewTemplateRequest{}
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		http.Error(w, "Failed to parse incoming json", http.StatusBadRequest)
		return
	}

	preview, err := h.app.RenderPreview(r.Context(), id, body.Variables, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJson(w, http.StatusOK, preview)
}

func (h *HttpHandler) SendTestEmail(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing actor", http.StatusUnauthorized)
		return
	}

	id, ok := h.pathId(w, r)
	if !ok {
		return
	}

	body := &internal.TestSendRequest{}
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		http.Error(w, "Failed to parse incoming json", http.StatusBadRequest)
		return
	}

	if body.Target == "" {
		http.Error(w, "Missing target", http.StatusBadRequest)
		return
	}

	if err := h.app.SendTestEmail(r.Context(), body.Target, id, body.Variables, actor); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *HttpHandler) pathId(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw, ok := mux.Vars(r)["id"]
	if !ok {
		http.Error(w, "Route id var", http.StatusBadRequest)
		return 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "Invalid id provided, integer expected", http.StatusBadRequest)
		return 0, false
	}

	return id, true
}

func (h *HttpHandler) writeJson(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Failed to convert to json", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (h *HttpHandler) writeError(w http.ResponseWriter, err error) {
	switch errors.Cause(err) {
	case TemplateNotFoundErr, ScheduleNotFoundErr:
		http.Error(w, err.Error(), http.StatusNotFound)

	case AccessDeniedErr, TemplateNotUsableErr:
		http.Error(w, err.Error(), http.StatusForbidden)

	case ScheduleNotPendingErr:
		http.Error(w, err.Error(), http.StatusConflict)

	case InvalidScheduleErr, EmptyScheduleErr, NoRecipientsErr:
		http.Error(w, err.Error(), http.StatusBadRequest)

	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
