package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/tenant-records/config"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Data  any               `json:"data,omitempty"`
	Error *APIErrorResponse `json:"error,omitempty"`
	Meta  map[string]any    `json:"meta"`
}

// APIErrorResponse is the error portion of an APIResponse.
type APIErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// HandlerFunc is a typed handler: it receives the bound and validated
// request and returns either a response payload or an API error.
type HandlerFunc[T any, R any] func(request T, ctx HandlerContext) (R, IAPIError)

// HandlerContext gives handlers access to the Echo context when they need it.
type HandlerContext struct {
	Echo   echo.Context
	Config *config.Config
}

// RequestBinder binds request data onto typed request structs.
type RequestBinder struct{}

// NewRequestBinder creates a request binder.
func NewRequestBinder() *RequestBinder { return &RequestBinder{} }

// WrapHandler adapts a typed handler to echo. It binds and validates the
// request, calls the handler and renders the envelope.
func WrapHandler[T any, R any](handlerFunc HandlerFunc[T, R], binder *RequestBinder, cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		var request T

		if err := binder.bindRequest(c, &request); err != nil {
			return formatErrorResponse(c, NewBadRequestError("Invalid request data").WithDetails("error", err.Error()), cfg)
		}

		if err := c.Validate(&request); err != nil {
			vErr := NewBadRequestError("Request validation failed")
			var ve *ValidationError
			if errors.As(err, &ve) {
				_ = vErr.WithDetails("validationErrors", ve.Errors)
			} else {
				_ = vErr.WithDetails("error", err.Error())
			}
			return formatErrorResponse(c, vErr, cfg)
		}

		response, apiErr := handlerFunc(request, HandlerContext{Echo: c, Config: cfg})
		if apiErr != nil {
			return formatErrorResponse(c, apiErr, cfg)
		}

		if rl, ok := any(response).(ResultLike); ok {
			status, data := rl.ResultMeta()
			return formatSuccessResponse(c, status, data)
		}
		return formatSuccessResponse(c, http.StatusOK, response)
	}
}

// bindRequest binds the JSON body, then path parameters, query parameters
// and headers named by the param, query and header struct tags.
func (rb *RequestBinder) bindRequest(c echo.Context, target any) error {
	if ct := c.Request().Header.Get(echo.HeaderContentType); ct != "" {
		if mt, _, _ := mime.ParseMediaType(ct); mt == echo.MIMEApplicationJSON || strings.HasSuffix(mt, "+json") {
			if err := (&echo.DefaultBinder{}).BindBody(c, target); err != nil {
				return fmt.Errorf("failed to bind JSON body: %w", err)
			}
		}
	}

	targetValue := reflect.ValueOf(target).Elem()
	if targetValue.Kind() != reflect.Struct {
		return nil
	}
	targetType := targetValue.Type()

	for i := 0; i < targetType.NumField(); i++ {
		field := targetType.Field(i)
		fieldValue := targetValue.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		if name := field.Tag.Get("param"); name != "" {
			if value := c.Param(name); value != "" {
				if err := setFieldValue(fieldValue, value); err != nil {
					return fmt.Errorf("failed to set path param %s: %w", name, err)
				}
			}
		}
		if name := field.Tag.Get("query"); name != "" {
			if value := c.QueryParam(name); value != "" {
				if err := setFieldValue(fieldValue, value); err != nil {
					return fmt.Errorf("failed to set query param %s: %w", name, err)
				}
			}
		}
		if name := field.Tag.Get("header"); name != "" {
			if value := c.Request().Header.Get(name); value != "" {
				if err := setFieldValue(fieldValue, value); err != nil {
					return fmt.Errorf("failed to set header %s: %w", name, err)
				}
			}
		}
	}
	return nil
}

func setFieldValue(fieldValue reflect.Value, value string) error {
	switch fieldValue.Kind() {
	case reflect.String:
		fieldValue.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, fieldValue.Type().Bits())
		if err != nil {
			return err
		}
		fieldValue.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		fieldValue.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type: %s", fieldValue.Kind())
	}
	return nil
}

func isDevelopmentEnv(cfg *config.Config) bool {
	return cfg != nil && cfg.App.Env == config.EnvDevelopment
}

func responseMeta(c echo.Context) map[string]any {
	return map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"traceId":   getTraceID(c),
	}
}

func formatSuccessResponse(c echo.Context, status int, data any) error {
	if status == 0 {
		status = http.StatusOK
	}
	injectTraceParent(c)
	if status == http.StatusNoContent {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(status, APIResponse{Data: data, Meta: responseMeta(c)})
}

func formatErrorResponse(c echo.Context, apiErr IAPIError, cfg *config.Config) error {
	errorResp := &APIErrorResponse{
		Code:    apiErr.ErrorCode(),
		Message: apiErr.Message(),
	}
	if isDevelopmentEnv(cfg) {
		errorResp.Details = apiErr.Details()
	}

	injectTraceParent(c)
	return c.JSON(apiErr.HTTPStatus(), APIResponse{Error: errorResp, Meta: responseMeta(c)})
}

// getTraceID returns the active OpenTelemetry trace id, falling back to the
// request id and finally to a fresh UUID.
func getTraceID(c echo.Context) string {
	if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	if id := c.Request().Header.Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	id := uuid.New().String()
	c.Response().Header().Set(echo.HeaderXRequestID, id)
	return id
}

func injectTraceParent(c echo.Context) {
	if c.Response().Header().Get(HeaderTraceParent) != "" {
		return
	}
	propagation.TraceContext{}.Inject(c.Request().Context(), propagation.HeaderCarrier(c.Response().Header()))
}

// HandlerRegistry registers typed handlers against a RouteRegistrar.
type HandlerRegistry struct {
	binder *RequestBinder
	cfg    *config.Config
}

// NewHandlerRegistry creates a handler registry.
func NewHandlerRegistry(cfg *config.Config) *HandlerRegistry {
	return &HandlerRegistry{binder: NewRequestBinder(), cfg: cfg}
}

// RegisterHandler wraps handler and adds it under method and path.
func RegisterHandler[T any, R any](hr *HandlerRegistry, r RouteRegistrar, method, path string, handler HandlerFunc[T, R]) {
	r.Add(method, path, WrapHandler(handler, hr.binder, hr.cfg))
}

func GET[T any, R any](hr *HandlerRegistry, r RouteRegistrar, path string, handler HandlerFunc[T, R]) {
	RegisterHandler(hr, r, http.MethodGet, path, handler)
}

func POST[T any, R any](hr *HandlerRegistry, r RouteRegistrar, path string, handler HandlerFunc[T, R]) {
	RegisterHandler(hr, r, http.MethodPost, path, handler)
}

func PUT[T any, R any](hr *HandlerRegistry, r RouteRegistrar, path string, handler HandlerFunc[T, R]) {
	RegisterHandler(hr, r, http.MethodPut, path, handler)
}

func DELETE[T any, R any](hr *HandlerRegistry, r RouteRegistrar, path string, handler HandlerFunc[T, R]) {
	RegisterHandler(hr, r, http.MethodDelete, path, handler)
}

// ResultLike lets a handler choose the success status.
type ResultLike interface {
	ResultMeta() (status int, data any)
}

// Result wraps a payload with a custom status.
type Result[R any] struct {
	Data   R
	Status int
}

// ResultMeta implements ResultLike.
func (r Result[R]) ResultMeta() (status int, data any) {
	return r.Status, r.Data
}

// NoContentResult is a 204 response without a body.
type NoContentResult struct{}

// ResultMeta implements ResultLike.
func (NoContentResult) ResultMeta() (status int, data any) {
	return http.StatusNoContent, nil
}

// Created returns a 201 result for data.
func Created[R any](data R) Result[R] {
	return Result[R]{Data: data, Status: http.StatusCreated}
}

// NoContent returns a 204 result.
func NoContent() NoContentResult { return NoContentResult{} }
