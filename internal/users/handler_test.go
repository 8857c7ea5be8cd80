package users

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autovisiontech/dealership/internal/media"
	"github.com/autovisiontech/dealership/internal/rbac"
	"github.com/autovisiontech/dealership/internal/shared"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00\x90wS\xde")

type tokenResolver map[string]rbac.Identity

func (r tokenResolver) Resolve(_ context.Context, req *http.Request) (*rbac.Identity, error) {
	identity, ok := r[req.Header.Get("Authorization")]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}

type handlerFixture struct {
	*serviceFixture
	router http.Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := newServiceFixture(t)
	resolver := tokenResolver{
		"Bearer admin": f.identity(f.admin),
		"Bearer agent": f.identity(f.agent),
	}
	mw := rbac.Middleware{Guard: rbac.NewGuard(resolver, rbac.DefaultCatalog()), Logger: discardLogger()}
	handler := NewHandler(discardLogger(), f.service,
		media.NewIntake(f.store, 0, discardLogger(), nil),
		media.NewCompensator(f.store, discardLogger(), nil), mw)

	router := chi.NewRouter()
	router.Route("/users", handler.MountRoutes)
	return &handlerFixture{serviceFixture: f, router: router}
}

func (f *handlerFixture) request(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *handlerFixture) uploadProfile(t *testing.T, token string, files int) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for i := 0; i < files; i++ {
		part, err := w.CreateFormFile(profileImageField, "me.png")
		require.NoError(t, err)
		_, err = part.Write(pngBytes)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPatch, "/users/profile/me/image", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *handlerFixture) profileFiles(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(f.store.Root() + "/profiles")
	require.NoError(t, err)
	return len(entries)
}

func decodeUser(t *testing.T, rr *httptest.ResponseRecorder) User {
	t.Helper()
	var u User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u))
	return u
}

func TestProfileEndpoints(t *testing.T) {
	f := newHandlerFixture(t)

	rr := f.request(http.MethodGet, "/users/profile/me", "agent", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, f.agent.ID, decodeUser(t, rr).ID)

	rr = f.request(http.MethodPatch, "/users/profile/me", "agent", `{"name":"Jo","phone":"+33 6 00"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Jo", decodeUser(t, rr).Name)

	rr = f.request(http.MethodPatch, "/users/profile/me", "agent", `{"email":"admin@dealer.test"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.request(http.MethodPatch, "/users/profile/me", "agent", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Equal(t, http.StatusUnauthorized, f.request(http.MethodGet, "/users/profile/me", "", "").Code)
}

func TestProfileImageEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	rr := f.uploadProfile(t, "agent", 1)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	first := decodeUser(t, rr).Image
	assert.Contains(t, string(first), "/uploads/profiles/me-")

	rr = f.uploadProfile(t, "agent", 1)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEqual(t, first, decodeUser(t, rr).Image)
	assert.Equal(t, 1, f.profileFiles(t))

	rr = f.uploadProfile(t, "agent", 2)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 1, f.profileFiles(t))

	rr = f.request(http.MethodDelete, "/users/profile/me/image", "agent", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decodeUser(t, rr).Image)
	assert.Equal(t, 0, f.profileFiles(t))
}

func TestChangePasswordEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	rr := f.request(http.MethodPatch, "/users/profile/password", "agent", `{"currentPassword":"secret123","newPassword":"secret123"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.request(http.MethodPatch, "/users/profile/password", "agent", `{"currentPassword":"secret123","newPassword":"better456"}`)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestListUsersRequiresPermission(t *testing.T) {
	f := newHandlerFixture(t)

	assert.Equal(t, http.StatusForbidden, f.request(http.MethodGet, "/users/", "agent", "").Code)

	rr := f.request(http.MethodGet, "/users/?role=agent", "admin", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var page shared.Page[User]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, f.agent.ID, page.Items[0].ID)

	assert.Equal(t, http.StatusBadRequest, f.request(http.MethodGet, "/users/?role=owner", "admin", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.request(http.MethodGet, "/users/?createdFrom=yesterday", "admin", "").Code)
}

func TestAdministrationEndpoints(t *testing.T) {
	f := newHandlerFixture(t)

	rr := f.request(http.MethodPatch, "/users/deactivate/"+f.agent.ID, "admin", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decodeUser(t, rr).IsActive)

	rr = f.request(http.MethodPatch, "/users/activate/"+f.agent.ID, "agent", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.request(http.MethodPatch, "/users/"+f.agent.ID+"/role", "admin", `{"role":"admin"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, rbac.RoleAdmin, decodeUser(t, rr).Role)

	rr = f.request(http.MethodPost, "/users/admin", "admin", `{"email":"second@dealer.test","password":"abc12345"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.True(t, decodeUser(t, rr).IsActive)

	assert.Equal(t, http.StatusBadRequest, f.request(http.MethodGet, "/users/nope", "admin", "").Code)
}

func TestDeleteUserEndpoints(t *testing.T) {
	f := newHandlerFixture(t)
	require.Equal(t, http.StatusOK, f.uploadProfile(t, "agent", 1).Code)

	assert.Equal(t, http.StatusForbidden, f.request(http.MethodDelete, "/users/"+f.admin.ID, "agent", "").Code)

	rr := f.request(http.MethodDelete, "/users/me", "agent", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, f.profileFiles(t))
	_, ok := f.repo.stored(f.agent.ID)
	assert.False(t, ok)

	assert.Equal(t, http.StatusNotFound, f.request(http.MethodDelete, "/users/"+f.agent.ID, "admin", "").Code)
}
