package analytics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/carepulse/analytics-platform/pkg/common/logger"
	"github.com/carepulse/analytics-platform/pkg/common/models"
	"github.com/gorilla/mux"
)

const (
	defaultLimit = 100
	maxLimit     = 1000

	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/app_profiles", h.handleListProfiles).Methods(http.MethodGet)
	r.HandleFunc("/app_profiles/page", h.handleProfilePage).Methods(http.MethodGet)
	r.HandleFunc("/appointments", h.handleListAppointments).Methods(http.MethodGet)
	r.HandleFunc("/appointments/page", h.handleAppointmentPage).Methods(http.MethodGet)
	r.HandleFunc("/ab_events", h.handleListABEvents).Methods(http.MethodGet)
	r.HandleFunc("/ab_events/page", h.handleABEventPage).Methods(http.MethodGet)
	r.HandleFunc("/meta/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/meta/counts", h.handleCounts).Methods(http.MethodGet)
	r.HandleFunc("/meta/ab_funnel", h.handleABFunnel).Methods(http.MethodGet)
}

func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePaging(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f := profileFilterFrom(r)

	profiles, err := h.service.ListProfiles(r.Context(), f, limit, offset)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list app profiles")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, profiles)
}

func (h *Handler) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePaging(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f := profileFilterFrom(r)

	page, err := h.service.ProfilePage(r.Context(), f, limit, offset)
	if err != nil {
		logger.Log.WithError(err).Error("failed to count app profiles")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, page)
}

func (h *Handler) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePaging(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := appointmentFilterFrom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	appointments, err := h.service.ListAppointments(r.Context(), f, limit, offset)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list appointments")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, appointments)
}

func (h *Handler) handleAppointmentPage(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePaging(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := appointmentFilterFrom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page, err := h.service.AppointmentPage(r.Context(), f, limit, offset)
	if err != nil {
		logger.Log.WithError(err).Error("failed to count appointments")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, page)
}

func (h *Handler) handleListABEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePaging(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := abEventFilterFrom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := h.service.ListABEvents(r.Context(), f, limit, offset)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list ab events")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}

func (h *Handler) handleABEventPage(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePaging(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := abEventFilterFrom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page, err := h.service.ABEventPage(r.Context(), f, limit, offset)
	if err != nil {
		logger.Log.WithError(err).Error("failed to count ab events")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, page)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Health(r.Context()); err != nil {
		logger.Log.WithError(err).Error("health probe failed")
		http.Error(w, "storage unreachable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handler) handleCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.Counts(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to read table counts")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, counts)
}

func (h *Handler) handleABFunnel(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ABFunnel(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to compute ab funnel")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func profileFilterFrom(r *http.Request) models.ProfileFilter {
	q := r.URL.Query()
	return models.ProfileFilter{
		TrafficSource: q.Get("traffic_source"),
		DeviceLike:    q.Get("device_like"),
	}
}

func appointmentFilterFrom(r *http.Request) (models.AppointmentFilter, error) {
	q := r.URL.Query()
	f := models.AppointmentFilter{
		Status: q.Get("appointment_status"),
		Doctor: q.Get("doctor_name"),
		Reason: q.Get("appointment_reason"),
	}

	var err error
	if f.PatientID, err = queryInt(q.Get("patient_id"), "patient_id"); err != nil {
		return f, err
	}
	if f.DateFrom, err = queryDate(q.Get("date_from"), "date_from"); err != nil {
		return f, err
	}
	if f.DateTo, err = queryDate(q.Get("date_to"), "date_to"); err != nil {
		return f, err
	}
	return f, nil
}

func abEventFilterFrom(r *http.Request) (models.ABEventFilter, error) {
	q := r.URL.Query()
	f := models.ABEventFilter{
		Group:     q.Get("group"),
		EventName: q.Get("event_name"),
	}

	var err error
	if f.PatientID, err = queryInt(q.Get("patient_id"), "patient_id"); err != nil {
		return f, err
	}
	if f.Since, err = queryDatetime(q.Get("since"), "since"); err != nil {
		return f, err
	}
	if f.Before, err = queryDatetime(q.Get("before"), "before"); err != nil {
		return f, err
	}
	return f, nil
}

func parsePaging(r *http.Request) (int, int, error) {
	q := r.URL.Query()

	limit := defaultLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			return 0, 0, fmt.Errorf("limit must be an integer between 1 and %d", maxLimit)
		}
		limit = n
	}

	offset := 0
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
		offset = n
	}
	return limit, offset, nil
}

func queryInt(raw, name string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", name)
	}
	return &n, nil
}

func queryDate(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a %s date", name, dateLayout)
	}
	return &t, nil
}

// queryDatetime accepts the ingestion timestamp format and RFC 3339.
func queryDatetime(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(datetimeLayout, raw); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	return nil, fmt.Errorf("%s must be a %q or RFC 3339 timestamp", name, datetimeLayout)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
