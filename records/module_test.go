package records

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/gaborage/tenant-records/app"
	"github.com/gaborage/tenant-records/config"
	dbtest "github.com/gaborage/tenant-records/database/testing"
	"github.com/gaborage/tenant-records/server"
	tconsts "github.com/gaborage/tenant-records/testing"
)

type envelope struct {
	Data  json.RawMessage          `json:"data"`
	Error *server.APIErrorResponse `json:"error"`
}

type testAPI struct {
	echo  *echo.Echo
	store *dbtest.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Name: "records-test", Env: config.EnvProduction},
		Server: config.ServerConfig{
			Timeout: config.TimeoutConfig{Middleware: 5 * time.Second},
			Path:    config.PathConfig{Health: "/health", Ready: "/ready"},
		},
		Multitenant: config.MultitenantConfig{
			Header: config.DefaultTenantHeader,
			Tenant: config.TenantConfig{Default: config.DefaultTenantID},
		},
	}
	store := dbtest.NewStore()
	srv := server.New(cfg, testLogger())

	m := NewModule()
	require.NoError(t, m.Init(&app.ModuleDeps{
		Logger:  testLogger(),
		Config:  cfg,
		Tenants: newTestManager(t, store),
	}))
	m.RegisterRoutes(server.NewHandlerRegistry(cfg), srv.ModuleGroup())

	return &testAPI{echo: srv.Echo(), store: store}
}

func (a *testAPI) do(t *testing.T, method, path, tenant, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tenant != "" {
		req.Header.Set(config.DefaultTenantHeader, tenant)
	}
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)

	var env envelope
	if rec.Code != http.StatusNoContent {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (a *testAPI) createAccount(t *testing.T, tenant, body string) string {
	t.Helper()
	rec, env := a.do(t, http.MethodPost, "/accounts", tenant, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created CreatedID
	require.NoError(t, json.Unmarshal(env.Data, &created))
	return created.ID
}

func TestModuleInitRequiresTenantCache(t *testing.T) {
	err := NewModule().Init(&app.ModuleDeps{Logger: testLogger()})
	assert.Error(t, err)
	assert.Equal(t, "records", NewModule().Name())
	assert.NoError(t, NewModule().Shutdown())
}

func TestAccountEndpoints(t *testing.T) {
	api := newTestAPI(t)
	acme := tconsts.TestTenantAcme

	id := api.createAccount(t, acme, `{"name":"Ada","email":"ada@example.com","password":"pw"}`)
	_, err := ParseID(id)
	require.NoError(t, err)

	rec, env := api.do(t, http.MethodGet, "/accounts/"+id, acme, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got Account
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, id, FormatID(got.ID))
	assert.Equal(t, "Ada", got.Name)

	rec, _ = api.do(t, http.MethodPut, "/accounts/"+id, acme, `{"name":"Ada Lovelace","email":"ada@example.com"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = api.do(t, http.MethodGet, "/accounts", acme, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []Account
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Ada Lovelace", list[0].Name)

	rec, _ = api.do(t, http.MethodDelete, "/accounts/"+id, acme, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = api.do(t, http.MethodGet, "/accounts/"+id, acme, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "Account not found", env.Error.Message)
}

func TestListIsEmptyArrayForNewTenant(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(t, http.MethodGet, "/tasks", tconsts.TestTenantOther, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestTenantHeaderSelectsDatabase(t *testing.T) {
	api := newTestAPI(t)

	id := api.createAccount(t, tconsts.TestTenantAcme, `{"name":"Bo"}`)

	rec, _ := api.do(t, http.MethodGet, "/accounts/"+id, tconsts.TestTenantOther, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// no header falls back to the default tenant
	api.createAccount(t, "", `{"name":"Dflt"}`)
	assert.Equal(t, 1, api.store.Count(config.DefaultTenantID, AccountsCollection))
	assert.Equal(t, 1, api.store.Count(tconsts.TestTenantAcme, AccountsCollection))
	assert.Zero(t, api.store.Count(tconsts.TestTenantOther, AccountsCollection))
}

func TestInvalidIDIsBadRequest(t *testing.T) {
	api := newTestAPI(t)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec, env := api.do(t, method, "/tasks/not-an-id", tconsts.TestTenantAcme, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, method)
		require.NotNil(t, env.Error)
		assert.Equal(t, "Invalid task ID", env.Error.Message)
	}

	rec, _ := api.do(t, http.MethodPut, "/accounts/123", tconsts.TestTenantAcme, `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, api.store.Accesses())
}

func TestUpdateMissingIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	missing := FormatID(bson.NewObjectID())

	rec, env := api.do(t, http.MethodPut, "/accounts/"+missing, tconsts.TestTenantAcme, `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Account not found", env.Error.Message)

	rec, _ = api.do(t, http.MethodDelete, "/accounts/"+missing, tconsts.TestTenantAcme, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskEndpoints(t *testing.T) {
	api := newTestAPI(t)
	owner := FormatID(bson.NewObjectID())

	rec, env := api.do(t, http.MethodPost, "/tasks", tconsts.TestTenantAcme,
		`{"title":"ship","description":"v1","account_id":"`+owner+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created CreatedID
	require.NoError(t, json.Unmarshal(env.Data, &created))

	rec, env = api.do(t, http.MethodGet, "/tasks/"+created.ID, tconsts.TestTenantAcme, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var task Task
	require.NoError(t, json.Unmarshal(env.Data, &task))
	assert.Equal(t, owner, FormatID(task.AccountID))
	assert.False(t, task.Completed)
}

func TestTaskRequiresOwner(t *testing.T) {
	api := newTestAPI(t)

	rec, env := api.do(t, http.MethodPost, "/tasks", tconsts.TestTenantAcme, `{"title":"orphan"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)

	rec, _ = api.do(t, http.MethodPost, "/tasks", tconsts.TestTenantAcme, `{"title":"bad","account_id":"xyz"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, api.store.Count(tconsts.TestTenantAcme, TasksCollection))
}

func TestDatabaseFailureIsInternalError(t *testing.T) {
	api := newTestAPI(t)
	api.store.Fail(dbtest.OpFind, errors.New("socket closed"))

	rec, env := api.do(t, http.MethodGet, "/accounts", tconsts.TestTenantAcme, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "Database error: socket closed", env.Error.Message)

	api.store.FailConnect(errors.New("connection refused"))
	rec, _ = api.do(t, http.MethodGet, "/accounts", tconsts.TestTenantOther, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestToAPIErrorCoversEveryKind(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{invalidID("Account", errors.New("bad hex")), http.StatusBadRequest},
		{notFound("Task"), http.StatusNotFound},
		{insertionFailed("Account"), http.StatusInternalServerError},
		{databaseError("Task", errors.New("timeout")), http.StatusInternalServerError},
		{errors.New("untyped"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, toAPIError(tt.err).HTTPStatus())
		})
	}
	assert.Equal(t, "Task not found", toAPIError(notFound("Task")).Message())
}
