package trackers_api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/FareWatch/internal/models"
	"github.com/BearBump/FareWatch/internal/services/trackers"
)

type TrackersAPI struct {
	svc *trackers.Service
	now func() time.Time
}

func New(svc *trackers.Service) *TrackersAPI {
	return &TrackersAPI{svc: svc, now: func() time.Time { return time.Now().UTC() }}
}

func (a *TrackersAPI) Routes(r chi.Router) {
	r.Post("/v1/trackers", a.CreateTracker)
	r.Get("/v1/trackers", a.ListTrackers)
	r.Get("/v1/trackers/{trackerId}", a.GetTracker)
	r.Delete("/v1/trackers/{trackerId}", a.RemoveTracker)
	r.Post("/v1/trackers/{trackerId}/refresh", a.RefreshTracker)
	r.Get("/v1/trackers/{trackerId}/alerts", a.ListFareAlerts)
}

type createTrackerRequest struct {
	OwnerID       string `json:"ownerId"`
	ChannelID     string `json:"channelId"`
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	StartDate     string `json:"startDate"`
	Days          int    `json:"days"`
	MaxPriceCents int64  `json:"maxPriceCents"`
	Adults        int32  `json:"adults"`
	SeatClass     string `json:"seatClass"`
	MaxStops      *int32 `json:"maxStops"`
}

type trackerResponse struct {
	ID            uint64 `json:"id"`
	OwnerID       string `json:"ownerId"`
	ChannelID     string `json:"channelId,omitempty"`
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
	Adults        int32  `json:"adults"`
	SeatClass     string `json:"seatClass"`
	MaxStops      *int32 `json:"maxStops,omitempty"`
	MaxPriceCents int64  `json:"maxPriceCents"`

	Stale bool `json:"stale"`

	LastCheckedAt  *time.Time `json:"lastCheckedAt,omitempty"`
	NextCheckAt    time.Time  `json:"nextCheckAt"`
	CheckFailCount int32      `json:"checkFailCount"`
	LastError      string     `json:"lastError,omitempty"`

	BestPriceCents     *int64     `json:"bestPriceCents,omitempty"`
	BestPriceDate      string     `json:"bestPriceDate,omitempty"`
	NotifiedPriceCents *int64     `json:"notifiedPriceCents,omitempty"`
	NotifiedAt         *time.Time `json:"notifiedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type fareAlertResponse struct {
	ID            uint64    `json:"id"`
	TrackerID     uint64    `json:"trackerId"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	TravelDate    string    `json:"travelDate"`
	PriceCents    int64     `json:"priceCents"`
	MaxPriceCents int64     `json:"maxPriceCents"`
	Stops         int32     `json:"stops"`
	PriceLevel    string    `json:"priceLevel,omitempty"`
	CheckedAt     time.Time `json:"checkedAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (a *TrackersAPI) CreateTracker(w http.ResponseWriter, r *http.Request) {
	var req createTrackerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(models.ErrInvalidInput, "malformed request body"))
		return
	}

	t, err := a.svc.CreateTracker(r.Context(), trackers.CreateParams{
		OwnerID:       req.OwnerID,
		ChannelID:     req.ChannelID,
		Origin:        req.Origin,
		Destination:   req.Destination,
		StartDate:     req.StartDate,
		Days:          req.Days,
		MaxPriceCents: req.MaxPriceCents,
		Adults:        req.Adults,
		SeatClass:     req.SeatClass,
		MaxStops:      req.MaxStops,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.toResponse(t))
}

func (a *TrackersAPI) ListTrackers(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	ts, err := a.svc.ListTrackers(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]trackerResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, a.toResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"trackers": out})
}

func (a *TrackersAPI) GetTracker(w http.ResponseWriter, r *http.Request) {
	id, err := trackerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := a.svc.GetTracker(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.toResponse(t))
}

func (a *TrackersAPI) RemoveTracker(w http.ResponseWriter, r *http.Request) {
	id, err := trackerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	owner := r.URL.Query().Get("owner")
	if err := a.svc.RemoveTracker(r.Context(), id, owner); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": true})
}

func (a *TrackersAPI) RefreshTracker(w http.ResponseWriter, r *http.Request) {
	id, err := trackerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.svc.RefreshTracker(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refreshed": true})
}

func (a *TrackersAPI) ListFareAlerts(w http.ResponseWriter, r *http.Request) {
	id, err := trackerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	alerts, err := a.svc.ListFareAlerts(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]fareAlertResponse, 0, len(alerts))
	for _, al := range alerts {
		out = append(out, fareAlertResponse{
			ID:            al.ID,
			TrackerID:     al.TrackerID,
			Origin:        al.Origin,
			Destination:   al.Destination,
			TravelDate:    al.TravelDate.Format("2006-01-02"),
			PriceCents:    al.PriceCents,
			MaxPriceCents: al.MaxPriceCents,
			Stops:         al.Stops,
			PriceLevel:    al.PriceLevel,
			CheckedAt:     al.CheckedAt,
			CreatedAt:     al.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": out})
}

func (a *TrackersAPI) toResponse(t *models.Tracker) trackerResponse {
	resp := trackerResponse{
		ID:            t.ID,
		OwnerID:       t.OwnerID,
		ChannelID:     t.ChannelID,
		Origin:        t.Origin,
		Destination:   t.Destination,
		StartDate:     t.StartDate.Format("2006-01-02"),
		EndDate:       t.EndDate.Format("2006-01-02"),
		Adults:        t.Adults,
		SeatClass:     t.SeatClass,
		MaxStops:      t.MaxStops,
		MaxPriceCents: t.MaxPriceCents,

		Stale: t.StaleAt(a.now()),

		LastCheckedAt:  t.LastCheckedAt,
		NextCheckAt:    t.NextCheckAt,
		CheckFailCount: t.CheckFailCount,

		BestPriceCents:     t.BestPriceCents,
		NotifiedPriceCents: t.NotifiedPriceCents,
		NotifiedAt:         t.NotifiedAt,

		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if t.LastError != nil {
		resp.LastError = *t.LastError
	}
	if t.BestPriceDate != nil {
		resp.BestPriceDate = t.BestPriceDate.Format("2006-01-02")
	}
	return resp
}

func trackerID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "trackerId")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Wrap(models.ErrInvalidInput, "trackerId must be a positive integer")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
