package records

import (
	"context"
	"errors"

	"github.com/gaborage/tenant-records/app"
	"github.com/gaborage/tenant-records/logger"
	"github.com/gaborage/tenant-records/multitenant"
	"github.com/gaborage/tenant-records/server"
)

// Module exposes the account and task services over HTTP.
type Module struct {
	logger   logger.Logger
	accounts *resource[Account, *Account]
	tasks    *resource[Task, *Task]
}

var _ app.Module = (*Module)(nil)

// NewModule creates an uninitialised records module.
func NewModule() *Module {
	return &Module{}
}

func (m *Module) Name() string {
	return "records"
}

func (m *Module) Init(deps *app.ModuleDeps) error {
	if deps.Tenants == nil {
		return errors.New("records: tenant handle cache is required")
	}
	m.logger = deps.Logger
	m.accounts = &resource[Account, *Account]{svc: NewAccountService(deps.Tenants, deps.Logger)}
	m.tasks = &resource[Task, *Task]{svc: NewTaskService(deps.Tenants, deps.Logger)}
	return nil
}

func (m *Module) RegisterRoutes(hr *server.HandlerRegistry, r server.RouteRegistrar) {
	m.accounts.register(hr, r, "/accounts")
	m.tasks.register(hr, r, "/tasks")
}

func (m *Module) Shutdown() error {
	return nil
}

// CreatedID is the body of a successful create.
type CreatedID struct {
	ID string `json:"id"`
}

type idRequest struct {
	ID string `param:"id"`
}

// resource binds one Service to its five routes.
type resource[T any, P Document[T]] struct {
	svc *Service[T, P]
}

func (r *resource[T, P]) register(hr *server.HandlerRegistry, reg server.RouteRegistrar, base string) {
	server.POST(hr, reg, base, r.create)
	server.GET(hr, reg, base, r.list)
	server.GET(hr, reg, base+"/:id", r.get)
	server.PUT(hr, reg, base+"/:id", r.update)
	server.DELETE(hr, reg, base+"/:id", r.delete)
}

func (r *resource[T, P]) create(rec T, hc server.HandlerContext) (server.Result[CreatedID], server.IAPIError) {
	ctx, tenantID := requestTenant(hc)
	id, err := r.svc.Create(ctx, tenantID, rec)
	if err != nil {
		return server.Result[CreatedID]{}, toAPIError(err)
	}
	return server.Created(CreatedID{ID: FormatID(id)}), nil
}

func (r *resource[T, P]) list(_ struct{}, hc server.HandlerContext) ([]T, server.IAPIError) {
	ctx, tenantID := requestTenant(hc)
	recs, err := r.svc.List(ctx, tenantID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return recs, nil
}

func (r *resource[T, P]) get(req idRequest, hc server.HandlerContext) (*T, server.IAPIError) {
	ctx, tenantID := requestTenant(hc)
	rec, err := r.svc.Get(ctx, tenantID, req.ID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return rec, nil
}

// update takes the record from the body; the identifier comes from the path.
func (r *resource[T, P]) update(rec T, hc server.HandlerContext) (server.NoContentResult, server.IAPIError) {
	ctx, tenantID := requestTenant(hc)
	if err := r.svc.Update(ctx, tenantID, hc.Echo.Param("id"), rec); err != nil {
		return server.NoContentResult{}, toAPIError(err)
	}
	return server.NoContent(), nil
}

func (r *resource[T, P]) delete(req idRequest, hc server.HandlerContext) (server.NoContentResult, server.IAPIError) {
	ctx, tenantID := requestTenant(hc)
	if err := r.svc.Delete(ctx, tenantID, req.ID); err != nil {
		return server.NoContentResult{}, toAPIError(err)
	}
	return server.NoContent(), nil
}

// requestTenant returns the request context and the tenant the tenant
// middleware resolved for it.
func requestTenant(hc server.HandlerContext) (context.Context, string) {
	ctx := hc.Echo.Request().Context()
	tenantID, ok := multitenant.GetTenant(ctx)
	if !ok && hc.Config != nil {
		tenantID = hc.Config.Multitenant.Tenant.Default
	}
	return ctx, tenantID
}

// toAPIError maps a record error to its HTTP form. Every Kind has a case.
func toAPIError(err error) server.IAPIError {
	var rerr *Error
	if !errors.As(err, &rerr) {
		return server.NewInternalServerError("")
	}
	switch rerr.Kind {
	case KindInvalidID:
		return server.NewBadRequestError(rerr.Error())
	case KindNotFound:
		return server.NewNotFoundError(rerr.Resource)
	case KindInsertionFailed, KindDatabase:
		return server.NewInternalServerError(rerr.Error())
	default:
		return server.NewInternalServerError("")
	}
}
