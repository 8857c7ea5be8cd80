package reservations

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autovisiontech/dealership/internal/rbac"
	"github.com/autovisiontech/dealership/internal/shared"
)

var testCar = CarSummary{ID: "0b9a3c1e-5d7f-4e2a-9c1b-2f3e4d5c6b7a", Brand: "Peugeot", Model: "308", Year: 2020}

type tokenResolver map[string]rbac.Identity

func (r tokenResolver) Resolve(_ context.Context, req *http.Request) (*rbac.Identity, error) {
	identity, ok := r[req.Header.Get("Authorization")]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}

type fixture struct {
	repo   *memoryRepo
	mailer *recordingMailer
	router http.Handler
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemoryRepo(testCar)
	mailer := &recordingMailer{}
	resolver := tokenResolver{
		"Bearer agent":  {ID: "agent-1", Role: rbac.RoleAgent, IsActive: true},
		"Bearer admin":  {ID: "admin-1", Role: rbac.RoleAdmin, IsActive: true},
		"Bearer nobody": {ID: "ghost", Role: "ghost", IsActive: true},
	}
	mw := rbac.Middleware{Guard: rbac.NewGuard(resolver, rbac.DefaultCatalog()), Logger: discardLogger()}
	handler := NewHandler(discardLogger(), NewService(repo, mailer, discardLogger()), mw)

	router := chi.NewRouter()
	router.Route("/reservations", handler.MountRoutes)
	return &fixture{repo: repo, mailer: mailer, router: router}
}

func (f *fixture) request(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

const booking = `{"clientName":"Amel","clientEmail":"amel@example.test","clientPhone":"+21650123456","visitDate":"2026-11-02","visitTime":"10:30"}`

func (f *fixture) book(t *testing.T, body string) Reservation {
	t.Helper()
	rr := f.request(http.MethodPost, "/reservations/"+testCar.ID, "", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var res Reservation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	return res
}

func TestCreateReservationIsPublicAndQueuesMail(t *testing.T) {
	f := newFixture(t)

	res := f.book(t, booking)

	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, testCar.ID, res.CarID)
	assert.Equal(t, "Peugeot", res.Car.Brand)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "amel@example.test", f.mailer.sent[0].to)
	assert.Contains(t, f.mailer.sent[0].subject, "Peugeot 308")
	assert.Contains(t, f.mailer.sent[0].body, "2026-11-02 at 10:30")
}

func TestCreateReservationSurvivesMailFailure(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("redis: connection refused")

	f.book(t, booking)

	assert.Len(t, f.repo.reservations, 1)
}

func TestCreateReservationValidation(t *testing.T) {
	f := newFixture(t)

	rr := f.request(http.MethodPost, "/reservations/"+testCar.ID, "", `{"clientName":"Amel","clientEmail":"nope","visitDate":"02/11/2026"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.request(http.MethodPost, "/reservations/7d1f0c52-2b3a-4f8e-8a6d-9e0c1b2a3f4d", "", booking)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.request(http.MethodPost, "/reservations/not-a-car", "", booking)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, f.repo.reservations)
}

func TestReservationManagementPermissions(t *testing.T) {
	f := newFixture(t)
	res := f.book(t, booking)

	assert.Equal(t, http.StatusUnauthorized, f.request(http.MethodGet, "/reservations/", "", "").Code)
	assert.Equal(t, http.StatusForbidden, f.request(http.MethodGet, "/reservations/", "nobody", "").Code)

	for _, token := range []string{"agent", "admin"} {
		rr := f.request(http.MethodGet, "/reservations/"+res.ID, token, "")
		assert.Equal(t, http.StatusOK, rr.Code, token)
	}
}

func TestUpdateAndStatusEndpoints(t *testing.T) {
	f := newFixture(t)
	res := f.book(t, booking)

	rr := f.request(http.MethodPatch, "/reservations/"+res.ID, "agent", `{"visitTime":"14:00","status":"completed"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.request(http.MethodPatch, "/reservations/"+res.ID, "agent", `{"visitTime":"14:00","status":"confirmed"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated Reservation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	assert.Equal(t, "14:00", updated.VisitTime)
	assert.Equal(t, StatusConfirmed, updated.Status)
	assert.Equal(t, "Amel", updated.ClientName)

	rr = f.request(http.MethodPatch, "/reservations/"+res.ID+"/status", "agent", `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	assert.Equal(t, StatusCompleted, updated.Status)

	rr = f.request(http.MethodPatch, "/reservations/"+res.ID+"/status", "agent", `{"status":"lost"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListAndDeleteReservations(t *testing.T) {
	f := newFixture(t)
	f.book(t, booking)
	later := f.book(t, `{"clientName":"Sami","clientEmail":"sami@example.test","clientPhone":"+21650999888","visitDate":"2026-12-15","visitTime":"09:00"}`)

	rr := f.request(http.MethodGet, "/reservations/?sortByVisitDate=desc&limit=1", "admin", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var page shared.Page[Reservation]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, later.ID, page.Items[0].ID)
	assert.Equal(t, 2, page.Meta.TotalItems)

	assert.Equal(t, http.StatusBadRequest, f.request(http.MethodGet, "/reservations/?minVisitDate=soon", "admin", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.request(http.MethodGet, "/reservations/?status=lost", "admin", "").Code)

	assert.Equal(t, http.StatusNoContent, f.request(http.MethodDelete, "/reservations/"+later.ID, "agent", "").Code)
	assert.Equal(t, http.StatusNotFound, f.request(http.MethodDelete, "/reservations/"+later.ID, "agent", "").Code)
}

type memoryGuard struct {
	claimed  map[string]bool
	released []string
}

func (g *memoryGuard) Claim(_ context.Context, module, key string) error {
	if g.claimed[module+":"+key] {
		return shared.ErrIdempotencyConflict
	}
	g.claimed[module+":"+key] = true
	return nil
}

func (g *memoryGuard) Release(_ context.Context, module, key string) error {
	delete(g.claimed, module+":"+key)
	g.released = append(g.released, key)
	return nil
}

func TestCreateReservationIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	guard := &memoryGuard{claimed: map[string]bool{}}
	mw := rbac.Middleware{Guard: rbac.NewGuard(tokenResolver{}, rbac.DefaultCatalog()), Logger: discardLogger()}
	handler := NewHandler(discardLogger(), NewService(f.repo, f.mailer, discardLogger()), mw).WithIdempotency(guard)
	router := chi.NewRouter()
	router.Route("/reservations", handler.MountRoutes)

	post := func(carID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/reservations/"+carID, bytes.NewBufferString(booking))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(shared.IdempotencyHeader, "form-42")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	missing := post("7c1d2e3f-4a5b-4c6d-8e9f-0a1b2c3d4e5f")
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, []string{"form-42"}, guard.released)

	assert.Equal(t, http.StatusCreated, post(testCar.ID).Code)
	assert.Equal(t, http.StatusConflict, post(testCar.ID).Code)
	assert.Len(t, f.repo.reservations, 1)
}
