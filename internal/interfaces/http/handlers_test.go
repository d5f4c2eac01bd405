package http

import (
	"context"
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamgee/internal/application"
	"gamgee/internal/domain"
	"gamgee/internal/infrastructure/auth"
)

type memoryStore struct {
	mu        sync.Mutex
	roles     map[string][]domain.Role
	userRoles map[string][]string
	failWith  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		roles: map[string][]domain.Role{
			"gamgee": {{AppID: "gamgee", ID: "admin", Name: "Admin", Permissions: []string{PermissionAssignRoles}}},
			"shire":  {{AppID: "shire", ID: "gardener", Name: "Gardener", Permissions: []string{"garden:tend"}}},
		},
		userRoles: map[string][]string{"gamgee/frodo": {"admin"}},
	}
}

func (s *memoryStore) ListByAppID(_ context.Context, appID string) ([]domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.roles[appID], nil
}

func (s *memoryStore) AssignRole(_ context.Context, appID, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := appID + "/" + userID
	s.userRoles[key] = append(s.userRoles[key], roleID)
	return nil
}

func (s *memoryStore) GetByUserAndApp(_ context.Context, appID, userID string) (domain.UserAppRoles, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles, ok := s.userRoles[appID+"/"+userID]
	if !ok {
		return domain.UserAppRoles{}, domain.ErrNotFound
	}
	return domain.UserAppRoles{AppID: appID, UserID: userID, Roles: roles}, nil
}

func newTestServer(t *testing.T) (*echo.Echo, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	routes, err := Functions(Deps{
		Roles:        application.NewRoleService(store),
		Users:        application.NewUserService(store, store),
		Authz:        application.NewAuthorizationService(store, store),
		Authenticate: auth.Func(auth.HeaderAuthenticator{}),
		AdminAppID:   "gamgee",
	})
	require.NoError(t, err)
	return NewRouter(routes, Middleware{}), store
}

func serve(e *echo.Echo, method, target, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestFunctions_Registered(t *testing.T) {
	e, _ := newTestServer(t)
	routes := map[string]bool{}
	for _, r := range e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /whoami",
		"GET /applications/:app_id/roles",
		"GET /applications/:app_id/users/:user_id",
		"POST /applications/:app_id/users/:user_id/roles",
		"POST /authorize",
		"POST /echo",
	} {
		assert.True(t, routes[want], "missing route %s", want)
	}

	_, err := Functions(Deps{})
	assert.Error(t, err)
}

func TestEcho_SpreadsQueryAndBody(t *testing.T) {
	e, _ := newTestServer(t)

	rec := serve(e, stdhttp.MethodPost, "/echo?name=samwise", "", `{"hello":"world"}`)

	assert.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"echo":"samwise","body":{"hello":"world"}}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestEcho_BodyMustBeJSON(t *testing.T) {
	e, _ := newTestServer(t)

	rec := serve(e, stdhttp.MethodPost, "/echo", "", `not json`)

	assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestWhoami(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(stdhttp.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-Id", "frodo")
	req.Header.Set("X-User-Groups", "bearers")
	req.Header.Set("User-Agent", "hobbit/1.0")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, stdhttp.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "frodo", body["user_id"])
	assert.Equal(t, []any{"bearers"}, body["groups"])
	assert.Equal(t, "hobbit/1.0", body["user_agent"])
	assert.NotEmpty(t, body["request_id"])
	assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), body["request_id"])
}

func TestWhoami_Unauthenticated(t *testing.T) {
	e, _ := newTestServer(t)

	rec := serve(e, stdhttp.MethodGet, "/whoami", "", "")

	assert.Equal(t, stdhttp.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Missing X-User-Id header."}`, rec.Body.String())
}

func TestListRoles(t *testing.T) {
	e, store := newTestServer(t)

	rec := serve(e, stdhttp.MethodGet, "/applications/shire/roles", "sam", "")
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	var body struct {
		Success bool          `json:"success"`
		Result  []domain.Role `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Result, 1)
	assert.Equal(t, "gardener", body.Result[0].ID)

	store.failWith = errors.New("throttled")
	rec = serve(e, stdhttp.MethodGet, "/applications/shire/roles", "sam", "")
	assert.Equal(t, stdhttp.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Internal server error."}`, rec.Body.String())
}

func TestGetUserRoles(t *testing.T) {
	e, _ := newTestServer(t)

	rec := serve(e, stdhttp.MethodGet, "/applications/gamgee/users/frodo", "frodo", "")
	assert.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"roles":["admin"]`)

	rec = serve(e, stdhttp.MethodGet, "/applications/gamgee/users/gollum", "frodo", "")
	assert.Equal(t, stdhttp.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Not found."}`, rec.Body.String())
}

func TestAssignRole(t *testing.T) {
	e, store := newTestServer(t)

	t.Run("admin may assign", func(t *testing.T) {
		rec := serve(e, stdhttp.MethodPost, "/applications/shire/users/sam/roles", "frodo", `{"role_id":"gardener"}`)
		assert.Equal(t, stdhttp.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
		assert.Equal(t, []string{"gardener"}, store.userRoles["shire/sam"])
	})

	t.Run("others are forbidden", func(t *testing.T) {
		rec := serve(e, stdhttp.MethodPost, "/applications/shire/users/sam/roles", "sam", `{"role_id":"gardener"}`)
		assert.Equal(t, stdhttp.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"success":false,"message":"Unauthorized."}`, rec.Body.String())
	})

	t.Run("unknown role", func(t *testing.T) {
		rec := serve(e, stdhttp.MethodPost, "/applications/shire/users/sam/roles", "frodo", `{"role_id":"ringbearer"}`)
		assert.Equal(t, stdhttp.StatusNotFound, rec.Code)
	})

	t.Run("role id is required", func(t *testing.T) {
		rec := serve(e, stdhttp.MethodPost, "/applications/shire/users/sam/roles", "frodo", `{"role_id":""}`)
		assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `role_id`)
	})

	t.Run("missing body key", func(t *testing.T) {
		rec := serve(e, stdhttp.MethodPost, "/applications/shire/users/sam/roles", "frodo", `{}`)
		assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"success":false,"message":"Missing request body parameter \"role_id\"."}`, rec.Body.String())
	})
}

func TestAuthorize(t *testing.T) {
	e, _ := newTestServer(t)

	rec := serve(e, stdhttp.MethodPost, "/authorize", "frodo", `{"app_id":"gamgee","permission":"roles:assign"}`)
	assert.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"allowed":true,"user_id":"frodo"}`, rec.Body.String())

	rec = serve(e, stdhttp.MethodPost, "/authorize", "frodo", `{"app_id":"gamgee","user_id":"sam","permission":"roles:assign"}`)
	assert.JSONEq(t, `{"success":true,"allowed":false,"user_id":"sam"}`, rec.Body.String())

	rec = serve(e, stdhttp.MethodPost, "/authorize", "frodo", `{"app_id":"gamgee"}`)
	assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)
}

func TestToHTTPError(t *testing.T) {
	assert.NoError(t, toHTTPError(nil))
	assert.ErrorIs(t, toHTTPError(domain.ErrInvalidInput), domain.ErrRequestParse)
	assert.ErrorIs(t, toHTTPError(domain.ErrNotFound), domain.ErrMissing)
	assert.ErrorIs(t, toHTTPError(domain.ErrPermissionDeny), domain.ErrAuthorization)
	plain := errors.New("boom")
	assert.Same(t, plain, toHTTPError(plain))
}

func TestLookup(t *testing.T) {
	store := newMemoryStore()
	routes, err := Functions(Deps{
		Roles:        application.NewRoleService(store),
		Users:        application.NewUserService(store, store),
		Authz:        application.NewAuthorizationService(store, store),
		Authenticate: auth.Func(auth.Anonymous{}),
	})
	require.NoError(t, err)

	fn, ok := Lookup(routes, "echo")
	require.True(t, ok)
	resp := fn.Invoke(context.Background(), events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"name": "samwise"},
		Body:                  `{"hello":"world"}`,
	})
	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	_, ok = Lookup(routes, "nope")
	assert.False(t, ok)
}

func TestEchoPath(t *testing.T) {
	assert.Equal(t, "/applications/:app_id/users/:user_id", echoPath("/applications/{app_id}/users/{user_id}"))
	assert.Equal(t, "/echo", echoPath("/echo"))
}

func TestProxyEvent(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(stdhttp.MethodPost, "/applications/shire/roles?tag=a&tag=b", strings.NewReader("\xff\xfe"))
	req.Header.Set("X-Trace", "1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/applications/:app_id/roles")
	c.SetParamNames("app_id")
	c.SetParamValues("shire")

	event, err := ProxyEvent(c, "/applications/{app_id}/roles")
	require.NoError(t, err)

	assert.Equal(t, "POST", event.HTTPMethod)
	assert.Equal(t, "/applications/{app_id}/roles", event.Resource)
	assert.Equal(t, map[string]string{"app_id": "shire"}, event.PathParameters)
	assert.Equal(t, "a", event.QueryStringParameters["tag"])
	assert.Equal(t, []string{"a", "b"}, event.MultiValueQueryStringParameters["tag"])
	assert.Equal(t, "1", event.Headers["X-Trace"])
	assert.True(t, event.IsBase64Encoded)
	assert.Equal(t, "//4=", event.Body)
	assert.NotEmpty(t, event.RequestContext.RequestID)
}
