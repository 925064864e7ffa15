package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"horizonx-meter/internal/meter"
	"horizonx-meter/internal/storage/sqlite"
	"horizonx-meter/internal/storage/snapshot"
	"horizonx-meter/internal/validator"
)

type MeterRegistry interface {
	Meter(kind meter.Kind) (meter.Meter, bool)
	Meters() []meter.Meter
}

type HistoryReader interface {
	List(ctx context.Context, kind meter.Kind, opts sqlite.ListOptions) ([]meter.Update, error)
}

type MeterStatus struct {
	Kind   meter.Kind    `json:"kind"`
	Latest *meter.Update `json:"latest"`
}

type HistoryQuery struct {
	Since string `json:"since" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit int    `json:"limit" validate:"gte=0,lte=1000"`
}

type MeterHandler struct {
	meters    MeterRegistry
	store     *snapshot.Updates
	history   HistoryReader
	validator validator.Validator
}

// NewMeterHandler serves the latest readings from store. history may be
// nil when history storage is off.
func NewMeterHandler(meters MeterRegistry, store *snapshot.Updates, history HistoryReader) *MeterHandler {
	return &MeterHandler{
		meters:    meters,
		store:     store,
		history:   history,
		validator: validator.NewValidator(),
	}
}

func (h *MeterHandler) Index(w http.ResponseWriter, r *http.Request) {
	meters := h.meters.Meters()
	statuses := make([]MeterStatus, 0, len(meters))

	for _, m := range meters {
		status := MeterStatus{Kind: m.Kind()}
		if u, ok := h.store.Get(m.Kind()); ok {
			status.Latest = &u
		}
		statuses = append(statuses, status)
	}

	JSONSuccess(w, http.StatusOK, APIResponse{
		Message: "OK",
		Data:    statuses,
	})
}

func (h *MeterHandler) Show(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	u, ok := h.store.Get(kind)
	if !ok {
		JSONError(w, http.StatusNotFound, "no reading yet")
		return
	}

	JSONSuccess(w, http.StatusOK, APIResponse{
		Message: "OK",
		Data:    u,
	})
}

func (h *MeterHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		JSONError(w, http.StatusNotFound, "history is disabled")
		return
	}

	kind, ok := h.kind(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	query := HistoryQuery{Since: q.Get("since")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			JSONValidationError(w, map[string]string{"limit": "limit must be a number"})
			return
		}
		query.Limit = limit
	}

	if errs := h.validator.Validate(query); len(errs) > 0 {
		JSONValidationError(w, errs)
		return
	}

	opts := sqlite.ListOptions{Limit: query.Limit}
	if query.Since != "" {
		opts.Since, _ = time.Parse(time.RFC3339, query.Since)
	}

	updates, err := h.history.List(r.Context(), kind, opts)
	if err != nil {
		JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	JSONSuccess(w, http.StatusOK, APIResponse{
		Message: "OK",
		Data:    updates,
		Meta:    map[string]any{"count": len(updates)},
	})
}

func (h *MeterHandler) kind(w http.ResponseWriter, r *http.Request) (meter.Kind, bool) {
	kind, err := meter.ParseKind(r.PathValue("kind"))
	if err != nil {
		JSONError(w, http.StatusNotFound, "unknown meter")
		return 0, false
	}
	if _, ok := h.meters.Meter(kind); !ok {
		JSONError(w, http.StatusNotFound, "meter is not enabled")
		return 0, false
	}
	return kind, true
}
