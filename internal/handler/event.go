package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/service"
)

// EventHandler serves the event catalogue and RSVP endpoints.
//
// Reads go through EventService; join and leave go through the
// AdmissionController, which is the only code allowed to change an event's
// attendee set.
type EventHandler struct {
	events    *service.EventService
	admission *service.AdmissionController
	logger    *slog.Logger
}

func NewEventHandler(events *service.EventService, admission *service.AdmissionController, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, admission: admission, logger: logger}
}

// createEventRequest mirrors the create form. Capacity is raw so that both
// 25 and "25" are accepted.
type createEventRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
	Location    string          `json:"location"`
	Capacity    json.RawMessage `json:"capacity"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
}

// rsvpResponse is the body of a successful join or leave.
type rsvpResponse struct {
	Message string          `json:"message"`
	Event   model.EventView `json:"event"`
}

// parseCapacity returns 0 for anything that is not a whole number, which the
// service rejects as an invalid capacity in its usual field order.
func parseCapacity(raw json.RawMessage) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0
		}
		return int(n)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v
		}
	}
	return 0
}

// HandleList returns all events with fill state for the caller.
//
// HTTP: GET /api/events?q=jazz&category=Music&sort=popularity
// Auth: optional
func (h *EventHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	views, err := h.events.List(r.Context(), service.ListQuery{
		Search:   query.Get("q"),
		Category: query.Get("category"),
		Sort:     query.Get("sort"),
	}, viewerID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, views)
}

// HandleCreate creates an event organized by the caller.
//
// HTTP: POST /api/events
// Auth: required
func (h *EventHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	event, err := h.events.Create(r.Context(), userID, service.CreateEventInput{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Location:    req.Location,
		Capacity:    parseCapacity(req.Capacity),
		Category:    req.Category,
		Image:       req.Image,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, model.NewEventView(*event, userID))
}

// HandleListMine returns the events the caller organizes.
//
// HTTP: GET /api/events/my-events
// Auth: required
func (h *EventHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	views, err := h.events.ListMine(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, views)
}

// HandleGet returns a single event.
//
// HTTP: GET /api/events/{id}
// Auth: optional
func (h *EventHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.events.Get(r.Context(), chi.URLParam(r, "id"), viewerID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// HandleDelete removes an event. Only its organizer may do so.
//
// HTTP: DELETE /api/events/{id}
// Auth: required
// 204 on success; 403 for anyone but the organizer; 404 if already gone.
func (h *EventHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.events.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleJoin RSVPs the caller to an event.
//
// HTTP: POST /api/events/rsvp/{id}
// Auth: required
// 200 with the updated event; 409 already_joined or event_unavailable.
func (h *EventHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	event, err := h.admission.Join(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rsvpResponse{
		Message: "RSVP Successful",
		Event:   model.NewEventView(*event, userID),
	})
}

// HandleLeave withdraws the caller's RSVP. Leaving an event the caller never
// joined succeeds and returns the event unchanged.
//
// HTTP: DELETE /api/events/rsvp/{id}
// Auth: required
func (h *EventHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	event, err := h.admission.Leave(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rsvpResponse{
		Message: "Left event successfully",
		Event:   model.NewEventView(*event, userID),
	})
}
