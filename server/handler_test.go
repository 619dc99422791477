package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/tenant-records/config"
)

type greetReq struct {
	ID     string `param:"id"`
	Name   string `json:"name" validate:"required"`
	Loud   bool   `query:"loud"`
	Repeat int    `header:"X-Repeat"`
}

type greetResp struct {
	Message string `json:"message"`
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func serveWrapped[T any, R any](t *testing.T, h HandlerFunc[T, R], cfg *config.Config, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	e := newTestEcho()
	e.Add(method, "/greet/:id", WrapHandler(h, NewRequestBinder(), cfg))

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestWrapHandlerBindsAllSources(t *testing.T) {
	var got greetReq
	h := func(req greetReq, _ HandlerContext) (greetResp, IAPIError) {
		got = req
		return greetResp{Message: "hi " + req.Name}, nil
	}

	rec := serveWrapped(t, h, newTestConfig(), http.MethodPost, "/greet/42?loud=true", `{"name":"ada"}`,
		map[string]string{"X-Repeat": "3", echo.HeaderXRequestID: "req-1"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, greetReq{ID: "42", Name: "ada", Loud: true, Repeat: 3}, got)

	resp := decodeEnvelope(t, rec)
	assert.Equal(t, map[string]any{"message": "hi ada"}, resp.Data)
	assert.Equal(t, "req-1", resp.Meta["traceId"])
	assert.NotEmpty(t, resp.Meta["timestamp"])
}

func TestWrapHandlerValidationFailure(t *testing.T) {
	called := false
	h := func(greetReq, HandlerContext) (greetResp, IAPIError) {
		called = true
		return greetResp{}, nil
	}

	rec := serveWrapped(t, h, newTestConfig(), http.MethodPost, "/greet/1", `{"name":""}`, nil)

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Request validation failed", resp.Error.Message)
	assert.Contains(t, rec.Body.String(), "name is required")
}

func TestWrapHandlerMalformedBody(t *testing.T) {
	h := func(greetReq, HandlerContext) (greetResp, IAPIError) { return greetResp{}, nil }

	rec := serveWrapped(t, h, newTestConfig(), http.MethodPost, "/greet/1", `{"name":`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Invalid request data", resp.Error.Message)
}

func TestWrapHandlerBadHeaderType(t *testing.T) {
	h := func(greetReq, HandlerContext) (greetResp, IAPIError) { return greetResp{}, nil }

	rec := serveWrapped(t, h, newTestConfig(), http.MethodPost, "/greet/1", `{"name":"x"}`,
		map[string]string{"X-Repeat": "many"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWrapHandlerResults(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		h := func(greetReq, HandlerContext) (Result[greetResp], IAPIError) {
			return Created(greetResp{Message: "new"}), nil
		}
		rec := serveWrapped(t, h, newTestConfig(), http.MethodPost, "/greet/1", `{"name":"x"}`, nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"message":"new"`)
	})

	t.Run("no_content", func(t *testing.T) {
		h := func(greetReq, HandlerContext) (NoContentResult, IAPIError) {
			return NoContent(), nil
		}
		rec := serveWrapped(t, h, newTestConfig(), http.MethodPut, "/greet/1", `{"name":"x"}`, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
	})
}

func TestWrapHandlerAPIErrorDetailsByEnv(t *testing.T) {
	h := func(greetReq, HandlerContext) (greetResp, IAPIError) {
		return greetResp{}, NewInternalServerError("Database error: boom").WithDetails("tenant", "acme")
	}

	rec := serveWrapped(t, h, newTestConfig(), http.MethodPost, "/greet/1", `{"name":"x"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Database error: boom", resp.Error.Message)
	assert.Equal(t, "acme", resp.Error.Details["tenant"])

	prod := newTestConfig()
	prod.App.Env = config.EnvProduction
	rec = serveWrapped(t, h, prod, http.MethodPost, "/greet/1", `{"name":"x"}`, nil)
	resp = decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Nil(t, resp.Error.Details)
}

func TestGetTraceIDGeneratesRequestID(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", http.NoBody), rec)

	id := getTraceID(c)
	assert.Len(t, id, 36)
	assert.Equal(t, id, rec.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, id, getTraceID(c))
}

func TestRegisterHandlerVerbs(t *testing.T) {
	e := newTestEcho()
	r := newRouteGroup(e.Group(""), "")
	hr := NewHandlerRegistry(newTestConfig())
	h := func(struct{}, HandlerContext) (string, IAPIError) { return "ok", nil }

	GET(hr, r, "/items", h)
	POST(hr, r, "/items", h)
	PUT(hr, r, "/items/:id", h)
	DELETE(hr, r, "/items/:id", h)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/items"},
		{http.MethodPost, "/items"},
		{http.MethodPut, "/items/1"},
		{http.MethodDelete, "/items/1"},
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, http.NoBody))
		assert.Equal(t, http.StatusOK, rec.Code, tc.method+" "+tc.path)
	}
}

func TestRouteGroupFullPath(t *testing.T) {
	e := echo.New()
	root := newRouteGroup(e.Group(""), "")
	assert.Equal(t, "/accounts", root.FullPath("accounts"))
	assert.Equal(t, "/", root.FullPath("/"))

	api := root.Group("/api/")
	assert.Equal(t, "/api/tasks/:id", api.FullPath("/tasks/:id"))
	assert.Equal(t, "/api", api.FullPath("/"))
}
