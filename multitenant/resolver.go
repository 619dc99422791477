package multitenant

import (
	"context"
	"errors"
	"net/http"
)

// ErrTenantResolutionFailed is returned when a resolver cannot determine the tenant identifier.
var ErrTenantResolutionFailed = errors.New("tenant resolution failed")

// DefaultHeaderName is used by HeaderResolver when no header is configured.
const DefaultHeaderName = "_db"

// TenantResolver resolves the tenant identifier from an incoming request.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, req *http.Request) (string, error)
}

// HeaderResolver extracts the tenant identifier from a configured request header.
// Values are taken verbatim apart from surrounding whitespace.
type HeaderResolver struct {
	HeaderName string
}

// ResolveTenant implements TenantResolver.
func (r *HeaderResolver) ResolveTenant(_ context.Context, req *http.Request) (string, error) {
	if r == nil || req == nil {
		return "", ErrTenantResolutionFailed
	}

	headerName := r.HeaderName
	if headerName == "" {
		headerName = DefaultHeaderName
	}

	// the value is an opaque identifier and is used verbatim
	tenantID := req.Header.Get(headerName)
	if tenantID == "" {
		return "", ErrTenantResolutionFailed
	}
	return tenantID, nil
}

// FallbackResolver returns Default whenever the wrapped resolver cannot
// determine a tenant, so every request is served by some tenant store.
type FallbackResolver struct {
	Resolver TenantResolver
	Default  string
}

// NewFallbackResolver builds a header resolver that falls back to defaultTenant.
func NewFallbackResolver(headerName, defaultTenant string) *FallbackResolver {
	return &FallbackResolver{
		Resolver: &HeaderResolver{HeaderName: headerName},
		Default:  defaultTenant,
	}
}

// ResolveTenant implements TenantResolver.
func (r *FallbackResolver) ResolveTenant(ctx context.Context, req *http.Request) (string, error) {
	if r == nil {
		return "", ErrTenantResolutionFailed
	}
	if r.Resolver != nil {
		tenantID, err := r.Resolver.ResolveTenant(ctx, req)
		if err == nil && tenantID != "" {
			return tenantID, nil
		}
		if err != nil && !errors.Is(err, ErrTenantResolutionFailed) {
			return "", err
		}
	}
	if r.Default == "" {
		return "", ErrTenantResolutionFailed
	}
	return r.Default, nil
}
