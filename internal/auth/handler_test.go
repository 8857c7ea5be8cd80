package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/autovisiontech/dealership/internal/auth"
	"github.com/autovisiontech/dealership/internal/platform/httpx"
	"github.com/autovisiontech/dealership/internal/rbac"
	"github.com/autovisiontech/dealership/internal/shared"
	_ "github.com/autovisiontech/dealership/testing"
)

type stubRepo struct {
	mu       sync.Mutex
	users    map[string]*auth.User
	sessions map[string]string
	findErr  error
}

func newStubRepo(users ...*auth.User) *stubRepo {
	repo := &stubRepo{users: map[string]*auth.User{}, sessions: map[string]string{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *stubRepo) CreateUser(_ context.Context, nu auth.NewUser) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, nu.Email) {
			return nil, httpx.ErrDuplicate
		}
	}
	u := &auth.User{
		ID:           "user-" + nu.Email,
		Email:        nu.Email,
		Name:         nu.Name,
		PasswordHash: nu.PasswordHash,
		Role:         nu.Role,
		IsActive:     nu.IsActive,
		CreatedAt:    time.Now(),
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *stubRepo) CreateSession(_ context.Context, id string, userID string, _ time.Time, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *stubRepo) setActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id].IsActive = active
}

type fixture struct {
	router   chi.Router
	repo     *stubRepo
	sessions *shared.SessionManager
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T, users ...*auth.User) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := shared.NewSessionManager(client, "dealership_session", "secret", time.Hour, false)
	repo := newStubRepo(users...)
	mw := rbac.Middleware{
		Guard:  rbac.NewGuard(auth.NewSessionResolver(sessions, repo), rbac.DefaultCatalog()),
		Logger: logger,
	}

	router := chi.NewRouter()
	router.Route("/auth", auth.NewHandler(logger, auth.NewService(repo), sessions, mw).MountRoutes)
	router.With(mw.Require(rbac.CreateCar)).Post("/cars", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	return &fixture{router: router, repo: repo, sessions: sessions, redis: mr}
}

func (f *fixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func agentUser(t *testing.T, active bool) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct1pass"), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{ID: "agent-1", Email: "agent@dealer.test", PasswordHash: string(hashed), Role: rbac.RoleAgent, IsActive: active}
}

func login(t *testing.T, f *fixture) string {
	t.Helper()
	rr := f.do(http.MethodPost, "/auth/login", `{"email":"agent@dealer.test","password":"correct1pass"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestLoginIssuesSessionCookieAndToken(t *testing.T) {
	f := newFixture(t, agentUser(t, true))

	rr := f.do(http.MethodPost, "/auth/login", `{"email":"AGENT@dealer.test","password":"correct1pass"}`, "")
	require.Equal(t, http.StatusOK, rr.Code)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "dealership_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, f.redis.Exists("session:"+cookies[0].Value))
	assert.Equal(t, "agent-1", f.repo.sessions[cookies[0].Value])
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t, agentUser(t, true))

	rr := f.do(http.MethodPost, "/auth/login", `{"email":"agent@dealer.test","password":"wrong1pass"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(http.MethodPost, "/auth/login", `{"email":"ghost@dealer.test","password":"wrong1pass"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(http.MethodPost, "/auth/login", `{"email":"not-an-email"}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSessionGrantsRoutePermissions(t *testing.T) {
	f := newFixture(t, agentUser(t, true))
	token := login(t, f)

	assert.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/cars", "", token).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/cars", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/cars", "", "forged-token").Code)
}

func TestDeactivationAppliesToLiveSessions(t *testing.T) {
	f := newFixture(t, agentUser(t, true))
	token := login(t, f)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/cars", "", token).Code)

	f.repo.setActive("agent-1", false)

	rr := f.do(http.MethodPost, "/cars", "", token)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), rbac.ReasonAccountDeactivated)
}

func TestInactiveAccountMayLogInButIsForbidden(t *testing.T) {
	f := newFixture(t, agentUser(t, false))
	token := login(t, f)

	rr := f.do(http.MethodPost, "/cars", "", token)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestExpiredSessionIsUnauthenticated(t *testing.T) {
	f := newFixture(t, agentUser(t, true))
	token := login(t, f)

	f.redis.FastForward(2 * time.Hour)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/cars", "", token).Code)
}

func TestSessionStoreOutageIsServiceUnavailable(t *testing.T) {
	f := newFixture(t, agentUser(t, true))
	token := login(t, f)

	f.redis.SetError("ERR store unavailable")
	defer f.redis.SetError("")

	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/cars", "", token).Code)
}

func TestUserLookupFailureIsServiceUnavailable(t *testing.T) {
	f := newFixture(t, agentUser(t, true))
	token := login(t, f)
	f.repo.findErr = errors.New("pg: connection reset")

	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/cars", "", token).Code)
}

func TestLogoutDestroysSession(t *testing.T) {
	f := newFixture(t, agentUser(t, true))
	token := login(t, f)

	rr := f.do(http.MethodPost, "/auth/logout", "", token)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, f.redis.Exists("session:"+token))
	assert.Empty(t, f.repo.sessions)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/auth/logout", "", token).Code)
}

func TestSignUpCreatesInactiveAgent(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/auth/sign-up", `{"email":"New@Dealer.test","password":"abcd1234","name":"Nadia"}`, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var view auth.UserView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, "new@dealer.test", view.Email)
	assert.Equal(t, rbac.RoleAgent, view.Role)
	assert.False(t, view.IsActive)
	assert.NotContains(t, rr.Body.String(), "password")

	rr = f.do(http.MethodPost, "/auth/sign-up", `{"email":"new@dealer.test","password":"abcd1234"}`, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSignUpRejectsWeakPassword(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{
		`{"email":"a@dealer.test","password":"abcdefgh"}`,
		`{"email":"a@dealer.test","password":"abc123"}`,
		`{"email":"a@dealer.test","password":"abcd1234","role":"admin"}`,
	} {
		rr := f.do(http.MethodPost, "/auth/sign-up", body, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
}
