package server

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestLogContextKey stores the request logging state in the echo context.
const RequestLogContextKey = "_request_log_ctx"

// requestLogContext tracks the highest severity logged while serving a
// request. Once an explicit WARN+ entry was written the request is already
// visible in the logs and no action summary is emitted.
type requestLogContext struct {
	mu                 sync.Mutex
	startTime          time.Time
	peakSeverity       zerolog.Level
	hadExplicitWarning bool
}

func newRequestLogContext() *requestLogContext {
	return &requestLogContext{
		startTime:    time.Now(),
		peakSeverity: zerolog.InfoLevel,
	}
}

func getRequestLogContext(c echo.Context) *requestLogContext {
	reqCtx, _ := c.Get(RequestLogContextKey).(*requestLogContext)
	return reqCtx
}

func (r *requestLogContext) escalateSeverity(level zerolog.Level) {
	r.escalate(level, true)
}

func (r *requestLogContext) escalateSeverityFromStatus(level zerolog.Level) {
	r.escalate(level, false)
}

func (r *requestLogContext) escalate(level zerolog.Level, explicit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if level > r.peakSeverity {
		r.peakSeverity = level
	}
	if explicit && level >= zerolog.WarnLevel && level < zerolog.NoLevel {
		r.hadExplicitWarning = true
	}
}

func (r *requestLogContext) hadExplicitWarningOccurred() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hadExplicitWarning
}

func (r *requestLogContext) elapsed() time.Duration {
	return time.Since(r.startTime)
}

// EscalateSeverity raises the recorded severity of the current request, e.g.
// for events that are not logged themselves.
func EscalateSeverity(c echo.Context, level zerolog.Level) {
	if reqCtx := getRequestLogContext(c); reqCtx != nil {
		reqCtx.escalateSeverity(level)
	}
}
