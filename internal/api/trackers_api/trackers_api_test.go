package trackers_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/BearBump/FareWatch/internal/models"
	"github.com/BearBump/FareWatch/internal/services/trackers"
)

type memRepo struct {
	nextID   uint64
	trackers map[uint64]*models.Tracker
	alerts   []*models.FareAlert
}

func newMemRepo() *memRepo { return &memRepo{trackers: map[uint64]*models.Tracker{}} }

func (r *memRepo) CreateTracker(ctx context.Context, in models.TrackerCreateInput) (*models.Tracker, error) {
	r.nextID++
	now := time.Now().UTC()
	t := &models.Tracker{
		ID: r.nextID, OwnerID: in.OwnerID, ChannelID: in.ChannelID,
		Origin: in.Origin, Destination: in.Destination,
		StartDate: in.StartDate, EndDate: in.EndDate,
		Adults: in.Adults, SeatClass: in.SeatClass,
		MaxStops: in.MaxStops, MaxPriceCents: in.MaxPriceCents,
		NextCheckAt: now, CreatedAt: now, UpdatedAt: now,
	}
	r.trackers[t.ID] = t
	return t, nil
}

func (r *memRepo) GetTrackersByIDs(ctx context.Context, ids []uint64) ([]*models.Tracker, error) {
	var out []*models.Tracker
	for _, id := range ids {
		if t, ok := r.trackers[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memRepo) ListTrackersByOwner(ctx context.Context, ownerID string) ([]*models.Tracker, error) {
	var out []*models.Tracker
	for _, t := range r.trackers {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memRepo) RemoveTracker(ctx context.Context, id uint64, ownerID string) error {
	t, ok := r.trackers[id]
	if !ok {
		return models.ErrNotFound
	}
	if t.OwnerID != ownerID {
		return models.ErrForbidden
	}
	delete(r.trackers, id)
	return nil
}

func (r *memRepo) RefreshTracker(ctx context.Context, id uint64) error {
	if _, ok := r.trackers[id]; !ok {
		return models.ErrNotFound
	}
	return nil
}

func (r *memRepo) InsertFareAlert(ctx context.Context, a *models.FareAlert) error {
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *memRepo) ListFareAlerts(ctx context.Context, trackerID uint64, limit, offset int) ([]*models.FareAlert, error) {
	var out []*models.FareAlert
	for _, a := range r.alerts {
		if a.TrackerID == trackerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	svc := trackers.New(repo, nil, 0)
	api := New(svc)

	r := chi.NewRouter()
	api.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, repo
}

func createBody() []byte {
	start := time.Now().UTC().AddDate(0, 1, 0).Format("2006-01-02")
	b, _ := json.Marshal(map[string]any{
		"ownerId":       "user-1",
		"channelId":     "chan-1",
		"origin":        "SFO",
		"destination":   "JFK",
		"startDate":     start,
		"days":          14,
		"maxPriceCents": 40000,
	})
	return b
}

func TestCreateTracker_HTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/trackers", "application/json", bytes.NewReader(createBody()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, float64(1), out["id"])
	require.Equal(t, "SFO", out["origin"])
	require.Equal(t, "economy", out["seatClass"])
	require.Equal(t, false, out["stale"])
}

func TestCreateTracker_HTTP_InvalidInput(t *testing.T) {
	srv, _ := newTestServer(t)

	body := []byte(`{"ownerId":"u","origin":"SFO","destination":"SFO","maxPriceCents":100,"startDate":"2099-01-01"}`)
	resp, err := http.Post(srv.URL+"/v1/trackers", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateTracker_HTTP_MalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/trackers", "application/json", bytes.NewReader([]byte("{oops")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTracker_HTTP_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/trackers/12345")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetTracker_HTTP_BadID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/trackers/abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListTrackers_HTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/trackers", "application/json", bytes.NewReader(createBody()))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/trackers?owner=user-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Trackers []json.RawMessage `json:"trackers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Trackers, 1)
}

func TestListTrackers_HTTP_MissingOwner(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/trackers")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRemoveTracker_HTTP_OwnerMismatch(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/trackers", "application/json", bytes.NewReader(createBody()))
	require.NoError(t, err)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/trackers/1?owner=intruder", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/v1/trackers/1?owner=user-1", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefreshTracker_HTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/trackers", "application/json", bytes.NewReader(createBody()))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/v1/trackers/1/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/trackers/999/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListFareAlerts_HTTP(t *testing.T) {
	srv, repo := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/trackers", "application/json", bytes.NewReader(createBody()))
	require.NoError(t, err)
	resp.Body.Close()

	repo.alerts = append(repo.alerts, &models.FareAlert{
		ID: 1, TrackerID: 1, Origin: "SFO", Destination: "JFK",
		TravelDate: time.Date(2026, 6, 11, 0, 0, 0, 0, time.UTC),
		PriceCents: 33000, MaxPriceCents: 40000, Stops: 1, PriceLevel: "low",
		CheckedAt: time.Now().UTC(), CreatedAt: time.Now().UTC(),
	})

	resp, err = http.Get(srv.URL + "/v1/trackers/1/alerts")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Alerts []struct {
			TravelDate string `json:"travelDate"`
			PriceCents int64  `json:"priceCents"`
		} `json:"alerts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Alerts, 1)
	require.Equal(t, "2026-06-11", out.Alerts[0].TravelDate)
	require.Equal(t, int64(33000), out.Alerts[0].PriceCents)
}

func TestStaleFlagReported(t *testing.T) {
	srv, repo := newTestServer(t)

	today := models.Midnight(time.Now().UTC())
	repo.trackers[7] = &models.Tracker{
		ID: 7, OwnerID: "user-1", Origin: "SFO", Destination: "JFK",
		StartDate: today.AddDate(0, 0, -20), EndDate: today.AddDate(0, 0, -10),
	}

	resp, err := http.Get(srv.URL + "/v1/trackers/7")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, true, out["stale"])
}
