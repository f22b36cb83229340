package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/frontdesk/libs/httpx"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/scheduling"
)

type AppointmentHandler struct {
	manager *scheduling.Manager
	logger  *slog.Logger
}

func NewAppointmentHandler(manager *scheduling.Manager, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{manager: manager, logger: logger}
}

// Register mounts the appointment routes on mux.
func (h *AppointmentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/appointments", h.appointments)
	mux.HandleFunc("/api/v1/appointments/get", h.Get)
	mux.HandleFunc("/api/v1/appointments/reschedule", h.Reschedule)
	mux.HandleFunc("/api/v1/appointments/status", h.SetStatus)
	mux.HandleFunc("/api/v1/appointments/resolve-memo", h.ResolveMemo)
	mux.HandleFunc("/api/v1/clock/today", h.Today)
}

type createAppointmentRequest struct {
	PatientID       string  `json:"patient_id"`
	StaffID         *string `json:"staff_id"`
	StartAt         string  `json:"start_at"`
	DurationMinutes *int    `json:"duration_minutes"`
	Memo            string  `json:"memo"`
	AdminMemo       string  `json:"admin_memo"`
}

type rescheduleRequest struct {
	AppointmentID   string `json:"appointment_id"`
	StartAt         string `json:"start_at"`
	DurationMinutes *int   `json:"duration_minutes"`
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type appointmentIDRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type appointmentItem struct {
	ID              string  `json:"id"`
	PatientID       string  `json:"patient_id"`
	StaffID         *string `json:"staff_id"`
	StartAt         string  `json:"start_at"`
	EndAt           string  `json:"end_at"`
	StartLocal      string  `json:"start_local"`
	EndLocal        string  `json:"end_local"`
	DurationMinutes int     `json:"duration_minutes"`
	Status          string  `json:"status"`
	Memo            string  `json:"memo"`
	AdminMemo       string  `json:"admin_memo"`
	IsMemoResolved  bool    `json:"is_memo_resolved"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type listResponse struct {
	From  string            `json:"from"`
	To    string            `json:"to"`
	Items []appointmentItem `json:"items"`
}

type errorResponse struct {
	Error                    string `json:"error"`
	Field                    string `json:"field,omitempty"`
	ConflictingAppointmentID string `json:"conflicting_appointment_id,omitempty"`
}

func writeBadRequest(w http.ResponseWriter, msg, field string) {
	httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Field: field})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}

func (h *AppointmentHandler) appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Create(w, r)
	case http.MethodGet:
		h.List(w, r)
	default:
		writeMethodNotAllowed(w)
	}
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body", "")
		return
	}
	startAt, ok := h.parseStart(w, req.StartAt)
	if !ok {
		return
	}

	appt, err := h.manager.Create(r.Context(), scheduling.CreateRequest{
		PatientID:       req.PatientID,
		StaffID:         req.StaffID,
		StartAt:         startAt,
		DurationMinutes: req.DurationMinutes,
		Memo:            req.Memo,
		AdminMemo:       req.AdminMemo,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, h.item(appt))
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeBadRequest(w, "id is required", "id")
		return
	}
	appt, err := h.manager.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.item(appt))
}

// List answers one of three shapes: whole business days (date, to_date),
// an explicit instant range (from, to), or today when neither is given.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()

	var staffID *string
	if s := strings.TrimSpace(q.Get("staff_id")); s != "" {
		staffID = &s
	}
	activeOnly := false
	if raw := strings.TrimSpace(q.Get("active_only")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, "invalid active_only", "active_only")
			return
		}
		activeOnly = v
	}

	ctx := r.Context()
	zone := h.manager.Zone()
	var (
		from, to time.Time
		appts    []model.Appointment
		err      error
	)
	switch {
	case q.Get("date") != "":
		first, perr := scheduling.ParseDate(q.Get("date"))
		if perr != nil {
			writeBadRequest(w, "invalid date", "date")
			return
		}
		last := first
		if raw := q.Get("to_date"); raw != "" {
			if last, perr = scheduling.ParseDate(raw); perr != nil {
				writeBadRequest(w, "invalid to_date", "to_date")
				return
			}
		}
		from, to = zone.DayStart(first), zone.DayEnd(last)
		appts, err = h.manager.ListForDays(ctx, staffID, first, last, activeOnly)
	case q.Get("from") != "" || q.Get("to") != "":
		var perr error
		if from, perr = zone.ParseInstant(q.Get("from")); perr != nil {
			writeBadRequest(w, "invalid from", "from")
			return
		}
		if to, perr = zone.ParseInstant(q.Get("to")); perr != nil {
			writeBadRequest(w, "invalid to", "to")
			return
		}
		appts, err = h.manager.ListForRange(ctx, staffID, from, to, activeOnly)
	default:
		today := h.manager.Today()
		from, to = zone.DayStart(today), zone.DayEnd(today)
		appts, err = h.manager.ListForToday(ctx, staffID, activeOnly)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, h.item(appt))
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{
		From:  from.UTC().Format(time.RFC3339Nano),
		To:    to.UTC().Format(time.RFC3339Nano),
		Items: items,
	})
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body", "")
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		writeBadRequest(w, "appointment_id is required", "appointment_id")
		return
	}
	startAt, ok := h.parseStart(w, req.StartAt)
	if !ok {
		return
	}

	appt, err := h.manager.Reschedule(r.Context(), req.AppointmentID, scheduling.RescheduleRequest{
		StartAt:         startAt,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.item(appt))
}

func (h *AppointmentHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body", "")
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		writeBadRequest(w, "appointment_id is required", "appointment_id")
		return
	}

	appt, err := h.manager.Transition(r.Context(), req.AppointmentID, model.Status(strings.TrimSpace(req.Status)))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.item(appt))
}

func (h *AppointmentHandler) ResolveMemo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req appointmentIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json body", "")
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		writeBadRequest(w, "appointment_id is required", "appointment_id")
		return
	}

	appt, err := h.manager.ResolveAdminMemo(r.Context(), req.AppointmentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.item(appt))
}

type todayResponse struct {
	Date     string `json:"date"`
	Now      string `json:"now"`
	NowLocal string `json:"now_local"`
	Zone     string `json:"zone"`
	DayStart string `json:"day_start"`
	DayEnd   string `json:"day_end"`
}

func (h *AppointmentHandler) Today(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	zone := h.manager.Zone()
	now := h.manager.Now()
	today := zone.DateOf(now)
	httpx.WriteJSON(w, http.StatusOK, todayResponse{
		Date:     today.String(),
		Now:      now.UTC().Format(time.RFC3339Nano),
		NowLocal: zone.Format(now),
		Zone:     zone.Name(),
		DayStart: zone.DayStart(today).Format(time.RFC3339Nano),
		DayEnd:   zone.DayEnd(today).Format(time.RFC3339Nano),
	})
}

func (h *AppointmentHandler) parseStart(w http.ResponseWriter, raw string) (time.Time, bool) {
	t, err := h.manager.Zone().ParseInstant(raw)
	if err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: "start_at"})
		return time.Time{}, false
	}
	return t, true
}

func (h *AppointmentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *scheduling.ValidationError
		ce *scheduling.ConflictError
		te *scheduling.InvalidTransitionError
	)
	switch {
	case errors.As(err, &ve):
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: ve.Field})
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		httpx.WriteJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &ce):
		httpx.WriteJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), ConflictingAppointmentID: ce.ConflictingAppointmentID})
	case errors.As(err, &te):
		httpx.WriteJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("appointment request failed", "err", err, "path", r.URL.Path)
		httpx.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (h *AppointmentHandler) item(appt model.Appointment) appointmentItem {
	zone := h.manager.Zone()
	return appointmentItem{
		ID:              appt.ID,
		PatientID:       appt.PatientID,
		StaffID:         appt.StaffID,
		StartAt:         appt.StartAt.UTC().Format(time.RFC3339),
		EndAt:           appt.EndAt.UTC().Format(time.RFC3339),
		StartLocal:      zone.Format(appt.StartAt),
		EndLocal:        zone.Format(appt.EndAt),
		DurationMinutes: appt.DurationMinutes,
		Status:          string(appt.Status),
		Memo:            appt.Memo,
		AdminMemo:       appt.AdminMemo,
		IsMemoResolved:  appt.IsMemoResolved,
		CreatedAt:       appt.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       appt.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
